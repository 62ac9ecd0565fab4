package check

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/queries"
)

// Resource usage rows are trusted within this window around now
const (
	MaxRowAge  = time.Hour
	MaxRowSkew = 10 * time.Minute
)

var errEmptyRow = errors.New("row has no columns")

// Outcome is the result of validating one row
type Outcome struct {
	row      db.Row
	accepted bool
}

// Accepted keeps the row unchanged
func Accepted(row db.Row) Outcome {
	return Outcome{row: row, accepted: true}
}

// Rejected drops the row
func Rejected() Outcome {
	return Outcome{}
}

// Row returns the row and whether it was accepted
func (o Outcome) Row() (db.Row, bool) {
	return o.row, o.accepted
}

// Validator checks resource usage rows for timestamp freshness
type Validator struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator creates a validator using the given clock
func NewValidator(now func() time.Time, logger *slog.Logger) *Validator {
	return &Validator{now: now, logger: logger}
}

// Validate accepts or rejects a row. Rejections are counted on rc. The
// returned error is reserved for rows the validator could not inspect.
func (v *Validator) Validate(rc *RunContext, q queries.Query, row db.Row) (Outcome, error) {
	if q.Class != queries.ClassResourceUsage {
		return Accepted(row), nil
	}
	if len(row) == 0 {
		return Rejected(), errEmptyRow
	}

	ts, ok := asInteger(row[0])
	if !ok {
		v.logger.Warn("Returned timestamp is invalid", "query", q.Name, "timestamp", row[0])
		rc.RecordError()
		return Rejected(), nil
	}

	diff := v.now().Sub(time.Unix(ts, 0))
	switch {
	case diff > MaxRowAge:
		v.logger.Warn("Resource Usage stats are invalid. Row timestamp is more than 1h in the past. Is SPMA Resource Usage Logging enabled?",
			"query", q.Name, "timestamp", ts)
		rc.RecordError()
		return Rejected(), nil
	case diff < -MaxRowSkew:
		v.logger.Warn("Resource Usage stats are invalid. Row timestamp is more than 10 min in the future. Try checking system time settings.",
			"query", q.Name, "timestamp", ts)
		rc.RecordError()
		return Rejected(), nil
	}
	return Accepted(row), nil
}

// asInteger accepts integer kinds only; floats, strings and bools are not
// epoch seconds. Unsigned values beyond int64 are rejected rather than wrapped.
func asInteger(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	default:
		return 0, false
	}
}
