package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gravito-framework/quasar-teradata/pkg/types"
)

const (
	// KeyPrefix is where cycle reports are published
	KeyPrefix  = "gravito:quasar:teradata:"
	defaultTTL = 45 * time.Second
)

// Setter is the part of the Redis client the reporter needs
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisReporter buffers one cycle and publishes it as a single report
type RedisReporter struct {
	*Recorder

	client  Setter
	service string
	ttl     time.Duration
	logger  *slog.Logger
}

// ReporterOption is a functional option for configuring the RedisReporter
type ReporterOption func(*RedisReporter)

// WithTTL sets how long a report stays visible after the last flush
func WithTTL(ttl time.Duration) ReporterOption {
	return func(r *RedisReporter) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithReporterLogger sets a custom logger
func WithReporterLogger(logger *slog.Logger) ReporterOption {
	return func(r *RedisReporter) {
		r.logger = logger
	}
}

// NewRedisReporter creates a reporter publishing under service
func NewRedisReporter(client Setter, service string, opts ...ReporterOption) *RedisReporter {
	r := &RedisReporter{
		Recorder: NewRecorder(),
		client:   client,
		service:  service,
		ttl:      defaultTTL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the Redis key for a node
func (r *RedisReporter) Key(nodeID string) string {
	return KeyPrefix + r.service + ":" + nodeID
}

// TTL returns the key expiration
func (r *RedisReporter) TTL() time.Duration {
	return r.ttl
}

// Flush publishes everything buffered since the last flush. report carries
// the cycle summary; its metrics and service checks are filled in here.
// The buffer is reset even when publishing fails.
func (r *RedisReporter) Flush(ctx context.Context, report *types.CycleReport) error {
	report.Metrics, report.ServiceChecks = r.Drain()
	if report.ServiceChecks == nil {
		report.ServiceChecks = []types.ServiceCheck{}
	}
	if report.Service == "" {
		report.Service = r.service
	}
	if report.Timestamp == 0 {
		report.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := r.Key(report.ID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}

	r.logger.Debug("Report sent",
		"key", key,
		"metrics", len(report.Metrics),
		"checks", len(report.ServiceChecks),
	)
	return nil
}
