package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the engine distinguishes.
const (
	errDupEntry        = 1062
	errRowIsReferenced = 1451
	errNoReferencedRow = 1452
	errBadField        = 1054
	errNoSuchTable     = 1146
	errLockWaitTimeout = 1205
	errLockDeadlock    = 1213
)

// IsConflict reports whether err is a constraint violation (duplicate key
// or foreign key failure).
func IsConflict(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errDupEntry, errRowIsReferenced, errNoReferencedRow:
			return true
		}
	}
	return false
}

// IsSchemaMismatch reports whether err was caused by a missing column or
// table.
func IsSchemaMismatch(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errBadField || me.Number == errNoSuchTable
	}
	return false
}

// IsTransient reports whether err is a connection-level failure that may
// succeed when retried: broken or reset connections, network timeouts and
// lock wait timeouts or deadlocks.  Cancellation of the caller's context is
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errLockWaitTimeout || me.Number == errLockDeadlock
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "i/o timeout")
}

// RetryRead runs fn up to attempts times while it fails with a transient
// error, sleeping backoff*n before the n-th retry.  Only read paths use
// it; write transactions are never retried.
func RetryRead(ctx context.Context, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			t := time.NewTimer(backoff * time.Duration(i))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}
