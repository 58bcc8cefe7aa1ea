package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// defaultTOML is the hard-coded default configuration, written out on first
// run exactly as original_source's DEFAULT_CONFIG constant is, so a fresh
// deployment gets a complete, editable file instead of an empty one.
const defaultTOML = `[server]
bind_host = "127.0.0.1"
bind_port = 1080
max_connections = 100

[proxy]
proxy_file = "proxies.txt"
test_timeout = 5
health_check_switch = true
health_check_interval = 300
retry_times = 3
auto_switch = false
switch_interval = 300
max_concurrency = 100
use_auth = false
username = ""
password = ""

[log]
show_connection_log = false
show_error_log = false

[metrics]
enabled = false
addr = "127.0.0.1:9090"
`

// Load reads and parses a TOML config file at path. If path does not
// exist, it is created with the default configuration (WriteDefault) and
// Default() is returned, matching the original implementation's
// first-run behavior.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := WriteDefault(path); werr != nil {
			return Config{}, werr
		}
		return Default(), nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the hard-coded default configuration to path.
func WriteDefault(path string) error {
	if err := os.WriteFile(path, []byte(defaultTOML), 0o644); err != nil {
		return fmt.Errorf("config: write default config %s: %w", path, err)
	}
	return nil
}
