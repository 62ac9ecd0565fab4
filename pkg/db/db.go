// Package db defines the database capability the check consumes and a
// database/sql implementation of it.
package db

import (
	"context"
	"errors"
)

// ErrDriverUnavailable is returned when the configured driver is not linked
// into the binary.
var ErrDriverUnavailable = errors.New("database driver unavailable")

// Row is one result row, columns in select order
type Row []any

// Connector opens connections to the monitored database
type Connector interface {
	// Available reports whether the driver can be used at all
	Available() error

	// Connect opens a new connection from a driver parameter string
	Connect(ctx context.Context, params string) (Conn, error)
}

// Conn is a live database session
type Conn interface {
	Cursor() (Cursor, error)
	Close() error
}

// Cursor executes one statement and holds its result set
type Cursor interface {
	Execute(ctx context.Context, query string) error

	// RowCount is the number of rows produced by the last Execute
	RowCount() int

	FetchAll() ([]Row, error)
	Close() error
}
