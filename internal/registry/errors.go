// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package registry

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound matches every *NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a crate or crate version with no database row.
// Version is empty when the crate itself is missing.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("crate %s not found in the database", e.Name)
	}
	return fmt.Sprintf("%s#%s not found in the database", e.Name, e.Version)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsTransient reports whether err is a database failure that a later re-run
// may not hit: lock conflicts, serialization failures, dropped connections.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled,
			pgerrcode.AdminShutdown,
			pgerrcode.CannotConnectNow,
			pgerrcode.ConnectionFailure:
			return true
		}
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
