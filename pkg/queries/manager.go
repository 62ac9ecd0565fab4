package queries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "teradata"

// ErrNotCompiled is returned by Execute before Compile succeeded
var ErrNotCompiled = errors.New("queries not compiled")

// Submitter receives metrics produced from query rows
type Submitter interface {
	SubmitMetric(m types.Metric)
}

// Rows is a single-pass row sequence
type Rows interface {
	Next() bool
	Row() db.Row
}

// QueryFunc runs one query and returns its rows
type QueryFunc func(ctx context.Context, q Query) (Rows, error)

// ErrorFunc is called when a query fails; it returns the error to log
type ErrorFunc func(err error) error

// RowErrorFunc is called once for every row that cannot be mapped to metrics
type RowErrorFunc func(err error)

// Manager compiles the catalogue once and executes it every cycle
type Manager struct {
	queries   []Query
	compiled  []compiledQuery
	submitter Submitter
	namespace string
	tags      []string
	logger    *slog.Logger
}

type compiledQuery struct {
	Query
	metricNames []string
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNamespace overrides the metric name prefix
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		m.namespace = ns
	}
}

// NewManager creates a manager for a query list
func NewManager(queries []Query, submitter Submitter, opts ...Option) *Manager {
	m := &Manager{
		queries:   queries,
		submitter: submitter,
		namespace: DefaultNamespace,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTags sets the tags attached to every metric
func (m *Manager) SetTags(tags []string) {
	m.tags = append([]string(nil), tags...)
}

// Queries returns the configured query list
func (m *Manager) Queries() []Query {
	return m.queries
}

// Compile validates every query and precomputes metric names
func (m *Manager) Compile() error {
	seen := make(map[string]bool, len(m.queries))
	compiled := make([]compiledQuery, 0, len(m.queries))

	for i, q := range m.queries {
		if q.Name == "" {
			return fmt.Errorf("query #%d: name is required", i)
		}
		if seen[q.Name] {
			return fmt.Errorf("query %s: duplicate name", q.Name)
		}
		seen[q.Name] = true

		if strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("query %s: SQL is required", q.Name)
		}
		if len(q.Columns) == 0 {
			return fmt.Errorf("query %s: at least one column is required", q.Name)
		}
		if q.Class == ClassResourceUsage && q.Columns[0].Type != ColumnSource {
			return fmt.Errorf("query %s: first column must be the source timestamp", q.Name)
		}

		cq := compiledQuery{Query: q, metricNames: make([]string, len(q.Columns))}
		metrics := 0
		for j, col := range q.Columns {
			if col.Name == "" {
				return fmt.Errorf("query %s: column #%d: name is required", q.Name, j)
			}
			switch col.Type {
			case ColumnGauge, ColumnMonotonicCount, ColumnRate:
				cq.metricNames[j] = m.namespace + "." + col.Name
				metrics++
			case ColumnTag, ColumnSource:
			default:
				return fmt.Errorf("query %s: column %s: unknown type %q", q.Name, col.Name, col.Type)
			}
		}
		if metrics == 0 {
			return fmt.Errorf("query %s: no metric columns", q.Name)
		}
		compiled = append(compiled, cq)
	}

	m.compiled = compiled
	m.logger.Debug("Compiled queries", "count", len(compiled))
	return nil
}

// Execute runs every compiled query in order. A query that fails to run is
// handed to onError and execution moves on to the next one. A row that cannot
// be mapped is logged, handed to onRowError and skipped; the rest of its
// query still runs. It returns the number of queries attempted.
func (m *Manager) Execute(ctx context.Context, run QueryFunc, onError ErrorFunc, onRowError RowErrorFunc) (int, error) {
	if m.compiled == nil {
		return 0, ErrNotCompiled
	}

	attempted := 0
	for _, cq := range m.compiled {
		attempted++
		if err := m.executeQuery(ctx, cq, run, onRowError); err != nil {
			err = fmt.Errorf("query %s: %w", cq.Name, err)
			if onError != nil {
				err = onError(err)
			}
			m.logger.Error("Error querying", "query", cq.Name, "error", err)
		}
	}
	return attempted, nil
}

func (m *Manager) executeQuery(ctx context.Context, cq compiledQuery, run QueryFunc, onRowError RowErrorFunc) error {
	rows, err := run(ctx, cq.Query)
	if err != nil {
		return err
	}

	for rows.Next() {
		row := rows.Row()
		if len(row) == 0 {
			m.logger.Debug("Query returned an empty row", "query", cq.Name)
			continue
		}

		var rowErr error
		if len(row) != len(cq.Columns) {
			rowErr = fmt.Errorf("row has %d columns, expected %d", len(row), len(cq.Columns))
		} else {
			rowErr = m.submitRow(cq, row)
		}
		if rowErr != nil {
			rowErr = fmt.Errorf("query %s: %w", cq.Name, rowErr)
			m.logger.Warn("Skipping row", "query", cq.Name, "error", rowErr)
			if onRowError != nil {
				onRowError(rowErr)
			}
		}
	}
	return nil
}

// submitRow converts every metric column before submitting anything, so a
// bad cell never leaves a half-submitted row behind.
func (m *Manager) submitRow(cq compiledQuery, row db.Row) error {
	tags := append([]string(nil), m.tags...)
	for i, col := range cq.Columns {
		if col.Type != ColumnTag || row[i] == nil {
			continue
		}
		tags = append(tags, col.Name+":"+tagValue(row[i]))
	}

	metrics := make([]types.Metric, 0, len(cq.Columns))
	for i, col := range cq.Columns {
		name := cq.metricNames[i]
		if name == "" || row[i] == nil {
			continue
		}
		value, err := ToFloat(row[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", col.Name, err)
		}
		metrics = append(metrics, types.Metric{
			Name:  name,
			Type:  metricType(col.Type),
			Value: value,
			Tags:  tags,
		})
	}

	for _, metric := range metrics {
		m.submitter.SubmitMetric(metric)
	}
	return nil
}

func metricType(t ColumnType) types.MetricType {
	switch t {
	case ColumnMonotonicCount:
		return types.MetricMonotonicCount
	case ColumnRate:
		return types.MetricRate
	default:
		return types.MetricGauge
	}
}

func tagValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	default:
		return fmt.Sprint(val)
	}
}

// ToFloat converts a driver column value to a metric value
func ToFloat(v any) (float64, error) {
	switch val := v.(type) {
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case float32:
		return float64(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("non-finite value %v", val)
		}
		return val, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		return parseFloat(val)
	case []byte:
		return parseFloat(string(val))
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("error converting to double: %w", err)
	}
	return f, nil
}
