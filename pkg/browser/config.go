package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all browser instance configuration.
type Config struct {
	// Browser executable path (empty = search platform default paths)
	ExecutablePath string `json:"executable_path" yaml:"executable_path"`

	// Profile directory (empty = generated under the profile base dir)
	ProfileDir string `json:"profile_dir" yaml:"profile_dir"`

	// Proxy server URL
	Proxy string `json:"proxy" yaml:"proxy"`

	// Window size
	WindowWidth  int `json:"window_width" yaml:"window_width"`
	WindowHeight int `json:"window_height" yaml:"window_height"`

	// Viewport size, used as the window size when no window size is set
	ViewportWidth  int `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int `json:"viewport_height" yaml:"viewport_height"`

	// Remote debugging port (0 = pick a free ephemeral port)
	RemoteDebuggingPort int `json:"remote_debugging_port" yaml:"remote_debugging_port"`

	// Extra launch flags appended after the computed flags
	ExtraFlags []string `json:"extra_flags" yaml:"extra_flags"`

	// How long to wait for the CDP endpoint after launch
	StartupTimeout time.Duration `json:"startup_timeout" yaml:"startup_timeout"`

	// Interval between readiness polls
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Timeout for a single CDP command round trip
	CommandTimeout time.Duration `json:"command_timeout" yaml:"command_timeout"`

	// How long to wait for render readiness before proceeding anyway
	PageLoadTimeout time.Duration `json:"page_load_timeout" yaml:"page_load_timeout"`

	// Grace period between terminate and kill on close
	ShutdownGrace time.Duration `json:"shutdown_grace" yaml:"shutdown_grace"`

	// Caller-supplied strategies, merged over the defaults at construction.
	// After construction this holds the final merged list.
	Strategies []Strategy `json:"-" yaml:"-"`

	// Strategy overrides by name; a nil value removes the named strategy
	StrategyOverrides map[string]Strategy `json:"-" yaml:"-"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		WindowWidth:     1280,
		WindowHeight:    800,
		StartupTimeout:  20 * time.Second,
		PollInterval:    200 * time.Millisecond,
		CommandTimeout:  10 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		ShutdownGrace:   5 * time.Second,
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RemoteDebuggingPort < 0 || c.RemoteDebuggingPort > 65535 {
		return fmt.Errorf("remote debugging port must be between 0 and 65535")
	}

	if c.WindowWidth < 0 || c.WindowHeight < 0 {
		return fmt.Errorf("window size must not be negative")
	}

	if c.ViewportWidth < 0 || c.ViewportHeight < 0 {
		return fmt.Errorf("viewport size must not be negative")
	}

	if c.StartupTimeout <= 0 {
		return fmt.Errorf("startup timeout must be positive")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive")
	}

	if c.PageLoadTimeout <= 0 {
		return fmt.Errorf("page load timeout must be positive")
	}

	return nil
}

// Clone creates a deep copy of the configuration. Strategies are copied
// by reference into fresh containers; they are shared, not duplicated.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)

	if c.Strategies != nil {
		clone.Strategies = make([]Strategy, len(c.Strategies))
		copy(clone.Strategies, c.Strategies)
	}
	if c.StrategyOverrides != nil {
		clone.StrategyOverrides = make(map[string]Strategy, len(c.StrategyOverrides))
		for name, s := range c.StrategyOverrides {
			clone.StrategyOverrides[name] = s
		}
	}

	return clone
}

// windowSize returns the effective window size, falling back to the
// viewport when no window size is configured.
func (c *Config) windowSize() (int, int) {
	if c.WindowWidth > 0 && c.WindowHeight > 0 {
		return c.WindowWidth, c.WindowHeight
	}
	if c.ViewportWidth > 0 && c.ViewportHeight > 0 {
		return c.ViewportWidth, c.ViewportHeight
	}
	return 0, 0
}
