package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/queries"
)

// ErrNoConnection is returned when a query runs after the connection was
// dropped by the error handler.
var ErrNoConnection = errors.New("no database connection")

// RowValidator decides whether a row can be trusted
type RowValidator interface {
	Validate(rc *RunContext, q queries.Query, row db.Row) (Outcome, error)
}

// Executor runs one query against the cycle's connection
type Executor struct {
	database  string
	validator RowValidator
	logger    *slog.Logger
}

// NewExecutor creates an executor that substitutes database into query templates
func NewExecutor(database string, validator RowValidator, logger *slog.Logger) *Executor {
	return &Executor{
		database:  database,
		validator: validator,
		logger:    logger,
	}
}

// Execute runs q and returns a lazy stream of validated rows. An empty result
// is an error: it is counted on rc and the stream ends immediately.
func (e *Executor) Execute(ctx context.Context, rc *RunContext, q queries.Query) (*RowStream, error) {
	conn := rc.Conn()
	if conn == nil {
		return nil, ErrNoConnection
	}

	cursor, err := conn.Cursor()
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor: %w", err)
	}
	defer cursor.Close()

	sql := strings.ReplaceAll(q.SQL, queries.DatabasePlaceholder, e.database)
	if err := cursor.Execute(ctx, sql); err != nil {
		return nil, err
	}

	if cursor.RowCount() < 1 {
		e.logger.Warn("Failed to fetch records from query", "query", q.Name, "sql", sql)
		rc.RecordError()
		return emptyStream(), nil
	}

	rows, err := cursor.FetchAll()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rows: %w", err)
	}

	return newRowStream(rows, func(row db.Row) (db.Row, bool) {
		return e.validate(rc, q, row)
	}), nil
}

// validate never fails: rows the validator cannot inspect are forwarded as-is
func (e *Executor) validate(rc *RunContext, q queries.Query, row db.Row) (out db.Row, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Unable to validate Resource Usage View timestamp, skipping validation", "query", q.Name, "panic", r)
			out, ok = row, true
		}
	}()

	outcome, err := e.validator.Validate(rc, q, row)
	if err != nil {
		e.logger.Debug("Unable to validate Resource Usage View timestamp, skipping validation", "query", q.Name, "error", err)
		return row, true
	}
	return outcome.Row()
}

// RowStream yields rows once, in order. It cannot be restarted.
type RowStream struct {
	rows    []db.Row
	filter  func(db.Row) (db.Row, bool)
	current db.Row
	empty   bool
	done    bool
}

func newRowStream(rows []db.Row, filter func(db.Row) (db.Row, bool)) *RowStream {
	return &RowStream{rows: rows, filter: filter}
}

func emptyStream() *RowStream {
	return &RowStream{empty: true, done: true}
}

// Next advances to the next accepted row
func (s *RowStream) Next() bool {
	for !s.done && len(s.rows) > 0 {
		row := s.rows[0]
		s.rows[0] = nil
		s.rows = s.rows[1:]
		if out, ok := s.filter(row); ok {
			s.current = out
			return true
		}
	}
	s.done = true
	s.current = nil
	return false
}

// Row returns the current row
func (s *RowStream) Row() db.Row {
	return s.current
}

// Empty reports whether the query returned no rows at all
func (s *RowStream) Empty() bool {
	return s.empty
}
