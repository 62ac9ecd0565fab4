package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravito-framework/quasar-teradata/pkg/config"
	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/queries"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// Sink receives everything a cycle produces
type Sink interface {
	queries.Submitter
	HealthReporter
}

// Result summarizes one cycle
type Result struct {
	RunID       string
	Connected   bool
	QueryErrors int
	QueriesRun  int
	Duration    time.Duration
}

// Check runs Teradata check cycles. Cycles must not run concurrently.
type Check struct {
	tags     []string
	sink     Sink
	manager  *queries.Manager
	conns    *ConnectionManager
	executor *Executor
	errors   *ErrorHandler
	logger   *slog.Logger
	now      func() time.Time
}

type settings struct {
	logger  *slog.Logger
	now     func() time.Time
	queries []queries.Query
}

// Option is a functional option for configuring the Check
type Option func(*settings)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithClock sets the clock used for timestamp validation and durations
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithQueries replaces the built-in query catalogue
func WithQueries(list []queries.Query) Option {
	return func(s *settings) {
		s.queries = list
	}
}

// New prepares a check: connection parameters, tags and compiled queries are
// computed once here and reused by every cycle.
func New(in config.Instance, connector db.Connector, sink Sink, opts ...Option) (*Check, error) {
	s := settings{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.queries == nil {
		s.queries = queries.Build(in.CollectResUsage)
	}

	params, err := in.ConnectParams()
	if err != nil {
		return nil, err
	}
	tags := in.CheckTags()

	manager := queries.NewManager(s.queries, sink, queries.WithLogger(s.logger))
	manager.SetTags(tags)
	if err := manager.Compile(); err != nil {
		return nil, fmt.Errorf("failed to compile queries: %w", err)
	}

	return &Check{
		tags:     tags,
		sink:     sink,
		manager:  manager,
		conns:    NewConnectionManager(connector, params, sink, tags, s.logger),
		executor: NewExecutor(in.Database, NewValidator(s.now, s.logger), s.logger),
		errors:   NewErrorHandler(s.logger),
		logger:   s.logger,
		now:      s.now,
	}, nil
}

// Tags returns the tags attached to every signal
func (c *Check) Tags() []string {
	return c.tags
}

// Run executes one cycle. A connection failure is returned as an error after
// the CRITICAL can_connect check was submitted; query failures are counted
// and reported through can_query instead.
func (c *Check) Run(ctx context.Context) (Result, error) {
	start := c.now()
	rc := NewRunContext()
	res := Result{RunID: rc.RunID}

	err := c.conns.WithConnection(ctx, func(conn db.Conn) error {
		res.Connected = true
		rc.attach(conn)
		defer rc.detach()

		onError := func(err error) error {
			return c.errors.Handle(rc, err)
		}
		// A row that cannot be mapped counts as an error but keeps the connection
		onRowError := func(error) {
			rc.RecordError()
		}
		n, err := c.manager.Execute(ctx, c.runQuery(rc), onError, onRowError)
		res.QueriesRun = n
		return err
	})

	res.QueryErrors = rc.Errors()
	res.Duration = c.now().Sub(start)

	if err != nil {
		return res, err
	}

	c.submitHealthChecks(rc)
	c.logger.Debug("Check cycle finished",
		"runId", res.RunID,
		"queries", res.QueriesRun,
		"errors", res.QueryErrors,
	)
	return res, nil
}

func (c *Check) runQuery(rc *RunContext) queries.QueryFunc {
	return func(ctx context.Context, q queries.Query) (queries.Rows, error) {
		stream, err := c.executor.Execute(ctx, rc, q)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

func (c *Check) submitHealthChecks(rc *RunContext) {
	queryCheck := types.ServiceCheck{
		Name:   types.CheckCanQuery,
		Status: types.StatusOK,
		Tags:   c.tags,
	}
	if n := rc.Errors(); n > 0 {
		queryCheck.Status = types.StatusCritical
		queryCheck.Message = fmt.Sprintf("%d query errors", n)
	}

	c.sink.SubmitServiceCheck(types.ServiceCheck{
		Name:   types.CheckCanConnect,
		Status: types.StatusOK,
		Tags:   c.tags,
	})
	c.sink.SubmitServiceCheck(queryCheck)
}
