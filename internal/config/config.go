package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Node      NodeConfig      `mapstructure:"node"`
	Clock     ClockConfig     `mapstructure:"clock"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Etcd      EtcdConfig      `mapstructure:"etcd"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AuthConfig guards the operator-facing endpoints (manual sync). The
// peer-to-peer surface stays open: nodes authenticate by behavior, not keys.
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`      // Bind address (e.g., 0.0.0.0 for all interfaces)
	HTTPPort int    `mapstructure:"http_port"` // HTTP server port
}

// NodeConfig identifies this node within the content network
type NodeConfig struct {
	// Endpoint is the publicly reachable URL of this node, as it appears in
	// user replica sets returned by the directory service.
	Endpoint string `mapstructure:"endpoint"`

	// Wallet is the stable identity of this node's operator.
	Wallet string `mapstructure:"wallet"`

	// DevMode shortens the scheduler inter-run delay for local development.
	DevMode bool `mapstructure:"dev_mode"`
}

// ClockConfig represents clock ledger configuration
type ClockConfig struct {
	DBPath             string        `mapstructure:"db_path"`              // SQLite database path (":memory:" for tests)
	DriftCheckInterval time.Duration `mapstructure:"drift_check_interval"` // How often to scan for clock/record drift
}

// DirectoryConfig points at the external directory service that maps
// users to their replica sets.
type DirectoryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig represents replica-set scheduler configuration
type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	SliceBase          int           `mapstructure:"slice_base"`           // Modulo base for per-run user slicing
	RunDelay           time.Duration `mapstructure:"run_delay"`            // Delay between completed runs
	DevRunDelay        time.Duration `mapstructure:"dev_run_delay"`        // Delay used when node.dev_mode is set
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"` // Per-peer health check timeout
}

// SyncConfig represents sync executor configuration
type SyncConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`         // Secondary clock poll interval during monitoring
	MonitorCeiling       time.Duration `mapstructure:"monitor_ceiling"`       // Hard ceiling on monitoring a single sync
	MaxClockRange        int64         `mapstructure:"max_clock_range"`       // Max clock range one sync can transfer
	ManualConcurrency    int           `mapstructure:"manual_concurrency"`    // Workers draining the manual queue
	RecurringConcurrency int           `mapstructure:"recurring_concurrency"` // Workers draining the recurring queue
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`       // Timeout for issuing the sync request itself
}

// QueueConfig represents message queue configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"`     // Queue type: memory (default) or nats
	URL      string `mapstructure:"url"`      // Queue server URL (e.g., nats://localhost:4222)
	Username string `mapstructure:"username"` // Optional authentication
	Password string `mapstructure:"password"` // Optional authentication
}

// EtcdConfig represents etcd configuration for node registration
type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory config: %w", err)
	}
	c.Scheduler.applyDefaults()
	c.Sync.applyDefaults()
	if c.Clock.DriftCheckInterval <= 0 {
		c.Clock.DriftCheckInterval = 10 * time.Minute
	}
	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates node identity configuration
func (c *NodeConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("node endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("node endpoint must be a http(s) URL, got %q", c.Endpoint)
	}
	return nil
}

// Validate validates directory service configuration
func (c *DirectoryConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("directory url is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	return nil
}

func (c *SchedulerConfig) applyDefaults() {
	if c.SliceBase <= 0 {
		c.SliceBase = 24
	}
	if c.RunDelay <= 0 {
		c.RunDelay = 1 * time.Hour
	}
	if c.DevRunDelay <= 0 {
		c.DevRunDelay = 1 * time.Minute
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = 2 * time.Second
	}
}

func (c *SyncConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.MonitorCeiling <= 0 {
		c.MonitorCeiling = 6 * time.Minute
	}
	if c.MaxClockRange <= 0 {
		c.MaxClockRange = 10000
	}
	if c.ManualConcurrency <= 0 {
		c.ManualConcurrency = 6
	}
	if c.RecurringConcurrency <= 0 {
		c.RecurringConcurrency = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// EffectiveRunDelay returns the scheduler inter-run delay honoring dev mode
func (c *Config) EffectiveRunDelay() time.Duration {
	if c.Node.DevMode {
		return c.Scheduler.DevRunDelay
	}
	return c.Scheduler.RunDelay
}
