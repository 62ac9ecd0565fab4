// Package check implements one Teradata check cycle: connect, run the query
// catalogue, validate rows, count errors and report health.
package check

import (
	"github.com/google/uuid"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
)

// RunContext is the state of a single cycle. It is owned by the goroutine
// running the cycle and passed explicitly to every step.
type RunContext struct {
	RunID string

	errors int
	conn   db.Conn
}

// NewRunContext starts a fresh cycle with zero errors
func NewRunContext() *RunContext {
	return &RunContext{RunID: uuid.NewString()}
}

// Errors returns the number of errors recorded so far
func (rc *RunContext) Errors() int {
	return rc.errors
}

// RecordError increments the error count by one
func (rc *RunContext) RecordError() {
	rc.errors++
}

// Conn returns the live connection, or nil once it was dropped
func (rc *RunContext) Conn() db.Conn {
	return rc.conn
}

func (rc *RunContext) attach(conn db.Conn) {
	rc.conn = conn
}

func (rc *RunContext) detach() {
	rc.conn = nil
}
