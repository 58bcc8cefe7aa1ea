// Package config defines the application's configuration shape and loads
// it from a TOML file, mirroring the structure of the original
// implementation's config.rs.
package config

import "time"

// Config is the root configuration object, split into the same sections as
// the original implementation (server, proxy, log) plus an ambient metrics
// section this rewrite adds.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	// Scrapers holds third-party scraper API adapter settings (fofa, quake,
	// hunter, ...). Loading and using these adapters is out of scope here;
	// the field only exists so a config file written by the host program
	// round-trips without losing that section.
	Scrapers map[string]any `toml:"scrapers"`
}

// ServerConfig controls the client-facing SOCKS5 listener.
type ServerConfig struct {
	BindHost       string `toml:"bind_host"`
	BindPort       int    `toml:"bind_port"`
	MaxConnections int    `toml:"max_connections"`
}

// ProxyConfig controls pool behavior, upstream auth, and bulk-test tuning.
// Interval fields are stored in seconds, matching the original TOML shape,
// and converted to time.Duration by the *Duration methods below.
type ProxyConfig struct {
	ProxyFile           string `toml:"proxy_file"`
	TestTimeout         int    `toml:"test_timeout"`
	HealthCheckSwitch   bool   `toml:"health_check_switch"`
	HealthCheckInterval int    `toml:"health_check_interval"`
	RetryTimes          uint32 `toml:"retry_times"`
	AutoSwitch          bool   `toml:"auto_switch"`
	SwitchInterval      int    `toml:"switch_interval"`
	MaxConcurrency      int64  `toml:"max_concurrency"`
	UseAuth             bool   `toml:"use_auth"`
	Username            string `toml:"username"`
	Password            string `toml:"password"`
	DialTimeoutSeconds  int    `toml:"dial_timeout"`
}

// TestTimeoutDuration converts TestTimeout (seconds) to a time.Duration.
func (p ProxyConfig) TestTimeoutDuration() time.Duration {
	return time.Duration(p.TestTimeout) * time.Second
}

// HealthCheckIntervalDuration converts HealthCheckInterval (seconds) to a
// time.Duration.
func (p ProxyConfig) HealthCheckIntervalDuration() time.Duration {
	return time.Duration(p.HealthCheckInterval) * time.Second
}

// SwitchIntervalDuration converts SwitchInterval (seconds) to a
// time.Duration.
func (p ProxyConfig) SwitchIntervalDuration() time.Duration {
	return time.Duration(p.SwitchInterval) * time.Second
}

// DialTimeoutDuration converts DialTimeoutSeconds to a time.Duration,
// falling back to 10s when unset.
func (p ProxyConfig) DialTimeoutDuration() time.Duration {
	if p.DialTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.DialTimeoutSeconds) * time.Second
}

// LogConfig gates optional log lines the way original_source's log section
// does; formatting/coloring itself is out of scope.
type LogConfig struct {
	ShowConnectionLog bool `toml:"show_connection_log"`
	ShowErrorLog      bool `toml:"show_error_log"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Default returns the configuration the original implementation ships as
// its built-in default, translated field for field.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindHost:       "127.0.0.1",
			BindPort:       1080,
			MaxConnections: 100,
		},
		Proxy: ProxyConfig{
			ProxyFile:           "proxies.txt",
			TestTimeout:         5,
			HealthCheckSwitch:   true,
			HealthCheckInterval: 300,
			RetryTimes:          3,
			AutoSwitch:          false,
			SwitchInterval:      300,
			MaxConcurrency:      100,
			UseAuth:             false,
		},
		Log: LogConfig{
			ShowConnectionLog: false,
			ShowErrorLog:      false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}
