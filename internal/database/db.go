package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options carries connection settings for Open.
type Options struct {
	User     string
	Pass     string
	Host     string
	Port     string
	Name     string
	MaxConns int
	// StatementTimeout bounds how long a single statement may wait on the
	// server, including lock waits.
	StatementTimeout time.Duration
}

// DSN builds the driver connection string.  parseTime maps DATETIME to
// time.Time and a UTC location keeps times consistent.
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Pass
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", o.Host, o.Port)
	cfg.DBName = o.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if o.StatementTimeout > 0 {
		cfg.ReadTimeout = o.StatementTimeout
		cfg.WriteTimeout = o.StatementTimeout
		// innodb_lock_wait_timeout is in whole seconds
		secs := int(o.StatementTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		cfg.Params = map[string]string{"innodb_lock_wait_timeout": fmt.Sprint(secs)}
	}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.  The returned pool
// is owned by the caller and shared by every component.
func Open(o Options) (*sql.DB, error) {
	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	maxConns := o.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
