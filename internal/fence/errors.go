package fence

import (
	"errors"
	"fmt"
)

// 输入长度上限（字节），超出视为格式错误而非策略拒绝
const (
	MaxRealmLen  = 255
	MaxTargetLen = 255
	MaxGeoLen    = 127
)

// ErrInvalidInput matches every *InputError via errors.Is.
var ErrInvalidInput = errors.New("invalid filter input")

// InputError reports a malformed request; no verdict is produced for it.
type InputError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

func checkField(field, v string, max int) error {
	if v == "" {
		return &InputError{Field: field, Reason: "empty"}
	}
	if len(v) > max {
		return &InputError{Field: field, Reason: fmt.Sprintf("%d bytes exceeds %d", len(v), max)}
	}
	return nil
}
