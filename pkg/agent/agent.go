// Package agent provides the Quasar Teradata agent: it runs check cycles on
// an interval and publishes every cycle to the transport Redis.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	qredis "github.com/gravito-framework/quasar-teradata/internal/redis"
	"github.com/gravito-framework/quasar-teradata/pkg/check"
	"github.com/gravito-framework/quasar-teradata/pkg/commands"
	"github.com/gravito-framework/quasar-teradata/pkg/config"
	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/probes"
	"github.com/gravito-framework/quasar-teradata/pkg/sink"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// Version is reported in every cycle report
var Version = "dev"

// ErrCheckPending is returned when an extra cycle is already queued
var ErrCheckPending = errors.New("check already pending")

// Transport is the part of the Redis client the agent publishes through
type Transport interface {
	sink.Setter
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Agent is the main Quasar Teradata agent
type Agent struct {
	config *config.Config
	logger *slog.Logger

	transport Transport
	connector db.Connector
	selfProbe probes.SelfProbe
	ownsProbe bool

	reporter   *sink.RedisReporter
	prometheus *sink.PrometheusSink
	check      *check.Check

	// Command listener (for remote control)
	commandListener *CommandListener

	// State
	nodeID   string
	cycleMu  sync.Mutex
	trigger  chan struct{}
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	release  sync.Once
}

// Option is a functional option for configuring the Agent
type Option func(*Agent)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithConnector sets the database connector
func WithConnector(connector db.Connector) Option {
	return func(a *Agent) {
		a.connector = connector
	}
}

// WithRedisClient sets the transport client instead of dialing TransportRedisURL
func WithRedisClient(client Transport) Option {
	return func(a *Agent) {
		a.transport = client
	}
}

// WithSelfProbe sets a custom self probe
func WithSelfProbe(probe probes.SelfProbe) Option {
	return func(a *Agent) {
		a.selfProbe = probe
	}
}

// WithPrometheus also exposes every cycle through p
func WithPrometheus(p *sink.PrometheusSink) Option {
	return func(a *Agent) {
		a.prometheus = p
	}
}

// New creates a new agent
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		config:   cfg,
		logger:   slog.Default(),
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(a)
	}

	if a.connector == nil {
		a.connector = db.NewSQLConnector(cfg.Instance.Driver)
	}

	if a.transport == nil {
		client, err := qredis.NewClientLazy(cfg.TransportRedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid transport redis URL: %w", err)
		}
		a.transport = client
	}

	if a.selfProbe == nil {
		probe, err := probes.NewGoSelfProbe(Version, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to create self probe: %w", err)
		}
		a.selfProbe = probe
		a.ownsProbe = true
	}

	a.reporter = sink.NewRedisReporter(a.transport, cfg.Service,
		sink.WithTTL(3*cfg.Interval),
		sink.WithReporterLogger(a.logger),
	)

	var out sink.Sink = a.reporter
	if a.prometheus != nil {
		out = sink.Multi(a.reporter, a.prometheus)
	}

	c, err := check.New(cfg.Instance, a.connector, out, check.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create check: %w", err)
	}
	a.check = c

	a.nodeID = a.resolveNodeID()
	return a, nil
}

func (a *Agent) resolveNodeID() string {
	name := a.config.Name
	pid := os.Getpid()
	if info, err := a.selfProbe.Sample(); err == nil {
		if name == "" {
			name = info.Hostname
		}
		pid = info.PID
	}
	if name == "" {
		name = "unknown"
	}
	return name + "-" + strconv.Itoa(pid)
}

// NodeID returns the node identifier
func (a *Agent) NodeID() string {
	return a.nodeID
}

// RunOnce runs one check cycle and publishes its report. The returned error
// joins the cycle failure (if any) and the publish failure (if any); the
// report is returned in every case.
func (a *Agent) RunOnce(ctx context.Context) (*types.CycleReport, error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	res, runErr := a.check.Run(ctx)

	report := &types.CycleReport{
		ID:          a.nodeID,
		RunID:       res.RunID,
		Service:     a.config.Service,
		Server:      a.config.Instance.Server,
		Connected:   res.Connected,
		QueryErrors: res.QueryErrors,
		QueriesRun:  res.QueriesRun,
		DurationMs:  res.Duration.Milliseconds(),
		Timestamp:   time.Now().UnixMilli(),
	}
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if info, err := a.selfProbe.Sample(); err == nil {
		report.Agent = info
	} else {
		a.logger.Warn("Self probe failed", "error", err)
	}

	if a.prometheus != nil {
		a.prometheus.ObserveCycle(res.Duration.Seconds(), res.QueryErrors, runErr != nil)
	}

	flushErr := a.reporter.Flush(ctx, report)
	return report, errors.Join(runErr, flushErr)
}

// TriggerCheck queues an extra cycle on the running loop. At most one extra
// cycle can be pending.
func (a *Agent) TriggerCheck() error {
	select {
	case a.trigger <- struct{}{}:
		return nil
	default:
		return ErrCheckPending
	}
}

// Start runs an initial cycle and begins the check loop
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("agent already running")
	}
	a.running = true
	a.mu.Unlock()

	// Test transport connection (non-fatal)
	if err := a.transport.Ping(ctx).Err(); err != nil {
		a.logger.Warn("⚠️ Failed to connect to transport Redis, will retry in background", "error", err)
	}

	a.logger.Info("Quasar Teradata agent started",
		"service", a.config.Service,
		"server", a.config.Instance.Server,
		"interval", a.config.Interval,
		"nodeId", a.nodeID,
	)

	a.cycle(ctx)

	if a.config.RemoteControl {
		if err := a.EnableRemoteControl(ctx); err != nil {
			a.logger.Error("Failed to enable remote control", "error", err)
		}
	}

	a.wg.Add(1)
	go a.checkLoop(ctx)

	return nil
}

// Stop gracefully stops the agent. It also releases the transport of an
// agent that was never started, as after RunOnce.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.close()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)

	// Stop command listener if active
	if a.commandListener != nil {
		if err := a.commandListener.Stop(ctx); err != nil {
			a.logger.Error("Failed to stop command listener", "error", err)
		}
	}

	// Wait for the loop; an in-flight cycle finishes first
	a.wg.Wait()

	a.close()
	a.logger.Info("Quasar Teradata agent stopped")
	return nil
}

// close releases the sampler and the transport exactly once
func (a *Agent) close() {
	a.release.Do(func() {
		if stopper, ok := a.selfProbe.(interface{ Stop() }); ok && a.ownsProbe {
			stopper.Stop()
		}
		if err := a.transport.Close(); err != nil {
			a.logger.Error("Failed to close transport Redis", "error", err)
		}
	})
}

// EnableRemoteControl subscribes to RUN_CHECK commands for this node
func (a *Agent) EnableRemoteControl(ctx context.Context) error {
	// Pub/sub needs a dedicated connection
	subscriber, err := qredis.NewClientLazy(a.config.TransportRedisURL)
	if err != nil {
		return fmt.Errorf("invalid transport redis URL: %w", err)
	}

	a.commandListener = NewCommandListener(
		subscriber.Client,
		a.config.Service,
		a.nodeID,
		a.logger,
		commands.NewRunCheckExecutor(a.TriggerCheck),
	)

	if err := a.commandListener.Start(ctx); err != nil {
		a.commandListener = nil
		_ = subscriber.Close()
		return fmt.Errorf("failed to start command listener: %w", err)
	}

	a.logger.Info("🎮 Remote control enabled", "nodeId", a.nodeID)
	return nil
}

func (a *Agent) checkLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		case <-a.trigger:
			a.logger.Info("Running requested check cycle")
			a.cycle(ctx)
		}
	}
}

func (a *Agent) cycle(ctx context.Context) {
	report, err := a.RunOnce(ctx)
	if err != nil {
		a.logger.Error("Check cycle failed", "runId", report.RunID, "error", err)
		return
	}
	a.logger.Debug("Check cycle reported",
		"runId", report.RunID,
		"queries", report.QueriesRun,
		"errors", report.QueryErrors,
		"durationMs", report.DurationMs,
	)
}
