// Package repository holds the SQL for the occupancy engine.  Every
// method takes a database.DBTX so that callers decide whether it runs on
// the pool or inside a transaction they own.
package repository

import "errors"

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an update cannot be applied because
// the row is no longer in the expected state.
var ErrConflict = errors.New("conflict")

// ErrSchemaMismatch is returned when a column the engine cannot work
// without is absent from the connected schema.
var ErrSchemaMismatch = errors.New("schema mismatch")
