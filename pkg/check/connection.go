package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gravito-framework/quasar-teradata/pkg/db"
	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

// HealthReporter receives service checks
type HealthReporter interface {
	SubmitServiceCheck(sc types.ServiceCheck)
}

// ConnState is the connection lifecycle state
type ConnState int

const (
	NotConnected ConnState = iota
	Connecting
	Connected
	Closed
)

func (s ConnState) String() string {
	switch s {
	case NotConnected:
		return "not_connected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager owns the connection of one cycle at a time
type ConnectionManager struct {
	connector db.Connector
	params    string
	driverErr error
	health    HealthReporter
	tags      []string
	logger    *slog.Logger
	state     ConnState
}

// NewConnectionManager checks driver availability once; the result holds for
// the lifetime of the process.
func NewConnectionManager(connector db.Connector, params string, health HealthReporter, tags []string, logger *slog.Logger) *ConnectionManager {
	driverErr := connector.Available()
	if driverErr != nil && !errors.Is(driverErr, db.ErrDriverUnavailable) {
		driverErr = fmt.Errorf("%w: %v", db.ErrDriverUnavailable, driverErr)
	}

	return &ConnectionManager{
		connector: connector,
		params:    params,
		driverErr: driverErr,
		health:    health,
		tags:      tags,
		logger:    logger,
	}
}

// State returns the current lifecycle state
func (m *ConnectionManager) State() ConnState {
	return m.state
}

// WithConnection connects, runs fn and closes the connection on every path.
// Connection failures are reported as a CRITICAL can_connect check and
// returned.
func (m *ConnectionManager) WithConnection(ctx context.Context, fn func(conn db.Conn) error) error {
	if m.driverErr != nil {
		m.reportCritical(m.driverErr)
		m.logger.Error("Teradata SQL Driver is unavailable. Please double check your installation.", "error", m.driverErr)
		return m.driverErr
	}

	m.state = Connecting
	m.logger.Info("Connecting to Teradata...")

	raw, err := m.connector.Connect(ctx, m.params)
	if err != nil {
		m.state = NotConnected
		m.reportCritical(err)
		m.logger.Error("Unable to connect to Teradata", "error", err)
		return fmt.Errorf("unable to connect: %w", err)
	}

	conn := &onceConn{Conn: raw}
	m.state = Connected
	m.logger.Info("Connected to Teradata.")

	defer func() {
		// the error handler already logged a close it ran itself
		if closed, err := conn.closeOnce(); closed && err != nil {
			m.logger.Warn("Failed to close Teradata connection", "error", err)
		}
		m.state = Closed
	}()

	return fn(conn)
}

func (m *ConnectionManager) reportCritical(err error) {
	m.health.SubmitServiceCheck(types.ServiceCheck{
		Name:    types.CheckCanConnect,
		Status:  types.StatusCritical,
		Tags:    m.tags,
		Message: err.Error(),
	})
}

// onceConn closes the underlying connection at most once, whether the error
// handler or the connection scope gets there first.
type onceConn struct {
	db.Conn
	once sync.Once
	err  error
}

func (c *onceConn) Close() error {
	_, err := c.closeOnce()
	return err
}

// closeOnce reports whether this call closed the connection
func (c *onceConn) closeOnce() (bool, error) {
	closed := false
	c.once.Do(func() {
		closed = true
		c.err = c.Conn.Close()
	})
	return closed, c.err
}
