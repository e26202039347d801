package tenant

import (
	"errors"
	"fmt"
)

// 配置错误类别：均在加载期产生，除“功能未启用”外一律视为致命
var (
	ErrUnreadable       = errors.New("tenant table unreadable")
	ErrMalformedLine    = errors.New("malformed tenant line")
	ErrLineTooLong      = errors.New("tenant line too long")
	ErrTooManyLocations = errors.New("too many locations for one tenant")
	ErrLocationTooLong  = errors.New("location entry too long")
	ErrEmptyLocation    = errors.New("empty location entry")
	ErrDuplicateRealm   = errors.New("duplicate realm")
)

// ConfigError carries the failing file position. Kind is one of the sentinels above.
type ConfigError struct {
	Kind  error
	Path  string
	Line  int
	Realm string
	Err   error
}

func (e *ConfigError) Error() string {
	msg := e.Kind.Error()
	if e.Path != "" {
		if e.Line > 0 {
			msg = fmt.Sprintf("%s:%d: %s", e.Path, e.Line, msg)
		} else {
			msg = e.Path + ": " + msg
		}
	} else if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Realm != "" {
		msg += " (realm " + e.Realm + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
