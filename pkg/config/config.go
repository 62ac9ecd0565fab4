// Package config handles configuration loading from a YAML file and environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the Quasar Teradata agent
type Config struct {
	// Service identification
	Service string // Required: service name (e.g., "edw-prod")
	Name    string // Optional: custom node name (defaults to hostname)

	// Transport Redis (for publishing cycle reports to Zenith)
	TransportRedisURL string

	// Agent behavior
	Interval      time.Duration // Check interval (default: 15s)
	MetricsAddr   string        // Prometheus listen address, empty disables it
	RemoteControl bool          // Subscribe to RUN_CHECK commands

	// Monitored database
	Instance Instance
}

// Instance describes the database the check connects to
type Instance struct {
	Driver          string // database/sql driver name
	DSN             string // Optional: raw DSN, overrides the generated parameter blob
	Server          string
	Account         string
	Database        string
	Port            int
	HTTPSPort       int
	AuthMechanism   string
	AuthData        string
	Username        string
	Password        string
	SSLMode         string
	SSLProtocol     string
	Tags            []string
	CollectResUsage bool
}

// Defaults
const (
	DefaultDriver        = "teradatasql"
	DefaultPort          = 1025
	DefaultHTTPSPort     = 443
	DefaultAuthMechanism = "TD2"
	DefaultSSLMode       = "Prefer"
	DefaultSSLProtocol   = "TLSv1.2"
	DefaultInterval      = 15 * time.Second
	DefaultRedisURL      = "redis://localhost:6379"
)

var validAuthMechanisms = []string{"TD2", "LDAP", "KRB5", "JWT", "TDNEGO", "BROWSER"}

var validSSLModes = []string{"ALLOW", "DISABLE", "PREFER", "REQUIRE", "VERIFY-CA", "VERIFY-FULL"}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		TransportRedisURL: DefaultRedisURL,
		Interval:          DefaultInterval,
		Instance: Instance{
			Driver:        DefaultDriver,
			Port:          DefaultPort,
			HTTPSPort:     DefaultHTTPSPort,
			AuthMechanism: DefaultAuthMechanism,
			SSLMode:       DefaultSSLMode,
			SSLProtocol:   DefaultSSLProtocol,
			Tags:          []string{},
		},
	}
}

// Load creates a Config from an optional YAML file, then applies environment
// variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	applyFile(cfg, k)
	applyEnv(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, k *koanf.Koanf) {
	setString(&cfg.Service, k, "service")
	setString(&cfg.Name, k, "name")
	setString(&cfg.TransportRedisURL, k, "transport_redis_url")
	setString(&cfg.MetricsAddr, k, "metrics_addr")
	if k.Exists("interval") {
		if seconds := k.Int("interval"); seconds > 0 {
			cfg.Interval = time.Duration(seconds) * time.Second
		}
	}
	if k.Exists("remote_control") {
		cfg.RemoteControl = k.Bool("remote_control")
	}

	in := &cfg.Instance
	setString(&in.Driver, k, "instance.driver")
	setString(&in.DSN, k, "instance.dsn")
	setString(&in.Server, k, "instance.server")
	setString(&in.Account, k, "instance.account")
	setString(&in.Database, k, "instance.database")
	setString(&in.AuthMechanism, k, "instance.auth_mechanism")
	setString(&in.AuthData, k, "instance.auth_data")
	setString(&in.Username, k, "instance.username")
	setString(&in.Password, k, "instance.password")
	setString(&in.SSLMode, k, "instance.ssl_mode")
	setString(&in.SSLProtocol, k, "instance.ssl_protocol")
	if k.Exists("instance.port") {
		in.Port = k.Int("instance.port")
	}
	if k.Exists("instance.https_port") {
		in.HTTPSPort = k.Int("instance.https_port")
	}
	if k.Exists("instance.tags") {
		in.Tags = k.Strings("instance.tags")
	}
	if k.Exists("instance.collect_res_usage") {
		in.CollectResUsage = k.Bool("instance.collect_res_usage")
	}
}

func setString(dst *string, k *koanf.Koanf, key string) {
	if v := k.String(key); v != "" {
		*dst = v
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QUASAR_SERVICE"); v != "" {
		cfg.Service = v
	}
	if v := os.Getenv("QUASAR_NAME"); v != "" {
		cfg.Name = v
	}

	if v := os.Getenv("QUASAR_TRANSPORT_REDIS_URL"); v != "" {
		cfg.TransportRedisURL = v
	} else if v := os.Getenv("QUASAR_REDIS_URL"); v != "" {
		// Legacy shorthand
		cfg.TransportRedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.TransportRedisURL = v
	}

	if v := os.Getenv("QUASAR_INTERVAL"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.Interval = time.Duration(seconds) * time.Second
		}
	}
	if v := os.Getenv("QUASAR_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	if v := os.Getenv("TERADATA_SERVER"); v != "" {
		cfg.Instance.Server = v
	}
	if v := os.Getenv("TERADATA_DATABASE"); v != "" {
		cfg.Instance.Database = v
	}
	if v := os.Getenv("TERADATA_USERNAME"); v != "" {
		cfg.Instance.Username = v
	}
	if v := os.Getenv("TERADATA_PASSWORD"); v != "" {
		cfg.Instance.Password = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Service == "" {
		return &ConfigError{Field: "Service", Message: "service name is required (set QUASAR_SERVICE)"}
	}
	if c.TransportRedisURL == "" {
		return &ConfigError{Field: "TransportRedisURL", Message: "transport Redis URL is required"}
	}
	if c.Interval <= 0 {
		return &ConfigError{Field: "Interval", Message: "interval must be positive"}
	}
	return c.Instance.Validate()
}

// Validate checks the database instance settings
func (in *Instance) Validate() error {
	if in.Driver == "" {
		return &ConfigError{Field: "Instance.Driver", Message: "driver is required"}
	}
	if in.DSN != "" {
		// A raw DSN is passed through to the driver as-is
		return nil
	}
	if in.Server == "" {
		return &ConfigError{Field: "Instance.Server", Message: "server is required (set TERADATA_SERVER)"}
	}
	if in.Port <= 0 || in.Port > 65535 {
		return &ConfigError{Field: "Instance.Port", Message: fmt.Sprintf("invalid port %d", in.Port)}
	}

	mech := strings.ToUpper(in.AuthMechanism)
	if !contains(validAuthMechanisms, mech) {
		return &ConfigError{Field: "Instance.AuthMechanism", Message: fmt.Sprintf("unsupported auth mechanism %q", in.AuthMechanism)}
	}
	switch mech {
	case "TD2", "LDAP":
		if in.Username == "" || in.Password == "" {
			return &ConfigError{Field: "Instance.Username", Message: mech + " requires username and password"}
		}
	case "JWT":
		if in.AuthData == "" {
			return &ConfigError{Field: "Instance.AuthData", Message: "JWT requires auth_data"}
		}
	}

	if !contains(validSSLModes, strings.ToUpper(in.SSLMode)) {
		return &ConfigError{Field: "Instance.SSLMode", Message: fmt.Sprintf("unsupported ssl mode %q", in.SSLMode)}
	}
	return nil
}

// connectParams mirrors the teradatasql JSON connection string
type connectParams struct {
	Host        string `json:"host"`
	Account     string `json:"account"`
	Database    string `json:"database"`
	DBSPort     string `json:"dbs_port"`
	LogMech     string `json:"logmech"`
	LogData     string `json:"logdata"`
	User        string `json:"user"`
	Password    string `json:"password"`
	HTTPSPort   string `json:"https_port"`
	SSLMode     string `json:"sslmode"`
	SSLProtocol string `json:"sslprotocol"`
}

// ConnectParams serializes the driver connection parameters. When a raw DSN
// is configured it is returned unchanged.
func (in *Instance) ConnectParams() (string, error) {
	if in.DSN != "" {
		return in.DSN, nil
	}
	data, err := json.Marshal(connectParams{
		Host:        in.Server,
		Account:     in.Account,
		Database:    in.Database,
		DBSPort:     strconv.Itoa(in.Port),
		LogMech:     strings.ToUpper(in.AuthMechanism),
		LogData:     in.AuthData,
		User:        in.Username,
		Password:    in.Password,
		HTTPSPort:   strconv.Itoa(in.HTTPSPort),
		SSLMode:     strings.ToUpper(in.SSLMode),
		SSLProtocol: in.SSLProtocol,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode connection parameters: %w", err)
	}
	return string(data), nil
}

// CheckTags returns the user tags followed by the server and port tags
func (in *Instance) CheckTags() []string {
	tags := make([]string, 0, len(in.Tags)+2)
	tags = append(tags, in.Tags...)
	tags = append(tags,
		"teradata_server:"+in.Server,
		"teradata_port:"+strconv.Itoa(in.Port),
	)
	return tags
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
