package utils

import (
	"database/sql"
	"net/url"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

type PGOptions struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
}

func PGOptionsFromEnv() PGOptions {
	o := PGOptions{
		Host:     envOr("PG_HOST", "localhost"),
		Port:     envOr("PG_PORT", "5432"),
		User:     envOr("PG_USER", "postgres"),
		Password: os.Getenv("PG_PASSWORD"),
		DB:       envOr("PG_DB", "geofence"),
		SSLMode:  envOr("PG_SSLMODE", "disable"),
		MaxOpen:  20,
		MaxIdle:  10,
	}
	if n, err := strconv.Atoi(os.Getenv("PG_MAX_OPEN_CONNS")); err == nil && n > 0 {
		o.MaxOpen = n
	}
	if n, err := strconv.Atoi(os.Getenv("PG_MAX_IDLE_CONNS")); err == nil && n >= 0 {
		o.MaxIdle = n
	}
	return o
}

// DSN 构造 postgres:// 连接串；密码经 URL 编码
func (o PGOptions) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     o.Host + ":" + o.Port,
		Path:     "/" + o.DB,
		RawQuery: "sslmode=" + url.QueryEscape(o.SSLMode),
	}
	if o.Password != "" {
		u.User = url.UserPassword(o.User, o.Password)
	} else {
		u.User = url.User(o.User)
	}
	return u.String()
}

func OpenPostgres(o PGOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", o.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxIdle)
	return db, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
