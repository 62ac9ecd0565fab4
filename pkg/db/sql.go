package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLConnector implements Connector on top of database/sql
type SQLConnector struct {
	driver string
}

// NewSQLConnector creates a connector for a registered database/sql driver name
func NewSQLConnector(driver string) *SQLConnector {
	return &SQLConnector{driver: driver}
}

// Driver returns the driver name
func (c *SQLConnector) Driver() string {
	return c.driver
}

// Available checks that the driver was registered with database/sql
func (c *SQLConnector) Available() error {
	for _, name := range sql.Drivers() {
		if name == c.driver {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not registered (available: %v)", ErrDriverUnavailable, c.driver, sql.Drivers())
}

// Connect opens a single-connection pool and verifies it
func (c *SQLConnector) Connect(ctx context.Context, params string) (Conn, error) {
	pool, err := sql.Open(c.driver, params)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One session per check cycle
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &sqlConn{db: pool}, nil
}

type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) Cursor() (Cursor, error) {
	if c.db == nil {
		return nil, errors.New("connection is closed")
	}
	return &sqlCursor{db: c.db}, nil
}

func (c *sqlConn) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// sqlCursor buffers the result set on Execute so RowCount is known up front,
// the way the Teradata driver reports it.
type sqlCursor struct {
	db     *sql.DB
	rows   []Row
	closed bool
}

func (c *sqlCursor) Execute(ctx context.Context, query string) error {
	if c.closed {
		return errors.New("cursor is closed")
	}

	rs, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}

	var rows []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			// Drivers may reuse byte buffers between rows
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rows = append(rows, Row(values))
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("failed to iterate rows: %w", err)
	}

	c.rows = rows
	return nil
}

func (c *sqlCursor) RowCount() int {
	return len(c.rows)
}

func (c *sqlCursor) FetchAll() ([]Row, error) {
	if c.closed {
		return nil, errors.New("cursor is closed")
	}
	rows := c.rows
	c.rows = nil
	return rows, nil
}

func (c *sqlCursor) Close() error {
	c.closed = true
	c.rows = nil
	return nil
}
