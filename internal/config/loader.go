package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/harmonet")
	}

	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("HARMONET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 4000)

	// Node defaults
	v.SetDefault("node.endpoint", "http://localhost:4000")
	v.SetDefault("node.dev_mode", false)

	// Clock ledger defaults
	v.SetDefault("clock.db_path", "./data/clock.db")
	v.SetDefault("clock.drift_check_interval", "10m")

	// Directory service defaults
	v.SetDefault("directory.url", "http://localhost:5000")
	v.SetDefault("directory.timeout", "45s")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.slice_base", 24)
	v.SetDefault("scheduler.run_delay", "1h")
	v.SetDefault("scheduler.dev_run_delay", "1m")
	v.SetDefault("scheduler.health_check_timeout", "2s")

	// Sync executor defaults
	v.SetDefault("sync.poll_interval", "15s")
	v.SetDefault("sync.monitor_ceiling", "6m")
	v.SetDefault("sync.max_clock_range", 10000)
	v.SetDefault("sync.manual_concurrency", 6)
	v.SetDefault("sync.recurring_concurrency", 3)
	v.SetDefault("sync.request_timeout", "30s")

	// Queue defaults
	v.SetDefault("queue.type", "memory")
	v.SetDefault("queue.url", "nats://localhost:4222")

	// Etcd defaults
	v.SetDefault("etcd.enabled", false)
	v.SetDefault("etcd.endpoints", []string{"http://localhost:2379"})
	v.SetDefault("etcd.dial_timeout", "5s")

	// Auth defaults (operator surface open until keys are configured)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_keys", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 4000,
		},
		Node: NodeConfig{
			Endpoint: "http://localhost:4000",
		},
		Clock: ClockConfig{
			DBPath:             "./data/clock.db",
			DriftCheckInterval: 10 * time.Minute,
		},
		Directory: DirectoryConfig{
			URL:     "http://localhost:5000",
			Timeout: 45 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:            true,
			SliceBase:          24,
			RunDelay:           1 * time.Hour,
			DevRunDelay:        1 * time.Minute,
			HealthCheckTimeout: 2 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval:         15 * time.Second,
			MonitorCeiling:       6 * time.Minute,
			MaxClockRange:        10000,
			ManualConcurrency:    6,
			RecurringConcurrency: 3,
			RequestTimeout:       30 * time.Second,
		},
		Queue: QueueConfig{
			Type: "memory",
		},
		Etcd: EtcdConfig{
			Endpoints:   []string{"http://localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
