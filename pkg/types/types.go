// Package types defines shared types for the Quasar Teradata agent.
// The JSON shapes are what quasar-inspect and Zenith read back from Redis.
package types

import "time"

// Status is a service check status
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusCritical
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status by name so reports stay readable
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name; unknown names map to StatusUnknown
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*s = StatusOK
	case "WARNING":
		*s = StatusWarning
	case "CRITICAL":
		*s = StatusCritical
	default:
		*s = StatusUnknown
	}
	return nil
}

// Service check names
const (
	CheckCanConnect = "teradata.can_connect"
	CheckCanQuery   = "teradata.can_query"
)

// ServiceCheck is one health signal
type ServiceCheck struct {
	Name    string   `json:"name"`
	Status  Status   `json:"status"`
	Tags    []string `json:"tags,omitempty"`
	Message string   `json:"message,omitempty"`
}

// MetricType is how a metric value should be interpreted downstream
type MetricType string

const (
	MetricGauge          MetricType = "gauge"
	MetricMonotonicCount MetricType = "monotonic_count"
	MetricRate           MetricType = "rate"
)

// Metric is a single (name, value, tags) sample
type Metric struct {
	Name  string     `json:"name"`
	Type  MetricType `json:"type"`
	Value float64    `json:"value"`
	Tags  []string   `json:"tags,omitempty"`
}

// AgentInfo describes the agent process itself
type AgentInfo struct {
	PID        int     `json:"pid"`
	Hostname   string  `json:"hostname"`
	Version    string  `json:"version"`
	Platform   string  `json:"platform"`
	Uptime     float64 `json:"uptime"`
	CPUPercent float64 `json:"cpuPercent"`
	RSS        uint64  `json:"rss"`
}

// CycleReport is the payload published after every check cycle
type CycleReport struct {
	ID            string         `json:"id"`
	RunID         string         `json:"runId"`
	Service       string         `json:"service"`
	Server        string         `json:"server"`
	Connected     bool           `json:"connected"`
	QueryErrors   int            `json:"queryErrors"`
	QueriesRun    int            `json:"queriesRun"`
	DurationMs    int64          `json:"durationMs"`
	Error         string         `json:"error,omitempty"`
	ServiceChecks []ServiceCheck `json:"serviceChecks"`
	Metrics       []Metric       `json:"metrics,omitempty"`
	Agent         *AgentInfo     `json:"agent,omitempty"`
	Timestamp     int64          `json:"timestamp"`
}

// ============================================
// Remote Control Types
// ============================================

// CommandType represents allowed command types
type CommandType string

const (
	CmdRunCheck CommandType = "RUN_CHECK"
)

// AllowedCommands is the security allowlist
var AllowedCommands = []CommandType{CmdRunCheck}

// IsAllowed checks if a command type is in the allowlist
func (c CommandType) IsAllowed() bool {
	for _, allowed := range AllowedCommands {
		if c == allowed {
			return true
		}
	}
	return false
}

// QuasarCommand represents a command from Zenith
type QuasarCommand struct {
	ID           string      `json:"id"`
	Type         CommandType `json:"type"`
	TargetNodeID string      `json:"targetNodeId"`
	Timestamp    int64       `json:"timestamp"`
	Issuer       string      `json:"issuer"`
}

// CommandStatus represents execution result status
type CommandStatus string

const (
	CommandSuccess    CommandStatus = "success"
	CommandFailed     CommandStatus = "failed"
	CommandNotAllowed CommandStatus = "not_allowed"
)

// CommandResult represents the result of command execution
type CommandResult struct {
	CommandID string        `json:"commandId"`
	Status    CommandStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// NewSuccessResult creates a success result
func NewSuccessResult(commandID, message string) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    CommandSuccess,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFailedResult creates a failed result
func NewFailedResult(commandID, message string) CommandResult {
	return CommandResult{
		CommandID: commandID,
		Status:    CommandFailed,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}
