// Package config provides configuration management for the best-instance
// service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	AWS      AWSConfig      `yaml:"aws"`
	Selector SelectorConfig `yaml:"selector"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

// HTTPConfig contains HTTP server settings.
type HTTPConfig struct {
	Address      string   `yaml:"address"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// AWSConfig contains AWS client settings.
type AWSConfig struct {
	// Region is the target region for instance and price lookups. The
	// pricing client itself always talks to us-east-1.
	Region string `yaml:"region"`
	// SpotAdvisorURL overrides the Spot Advisor feed location. Empty means
	// the public feed.
	SpotAdvisorURL string `yaml:"spot_advisor_url"`
}

// SelectorConfig contains selection engine settings.
type SelectorConfig struct {
	SpotConcurrency     int      `yaml:"spot_concurrency"`
	OnDemandConcurrency int      `yaml:"on_demand_concurrency"`
	CacheTTL            Duration `yaml:"cache_ttl"`
	CacheCapacity       int      `yaml:"cache_capacity"`
	RequestTimeout      Duration `yaml:"request_timeout"`
	SingleFlight        bool     `yaml:"single_flight"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Address:     "0.0.0.0:8080",
				ReadTimeout: Duration(30 * time.Second),
				// Cold-cache selections can run for minutes, so the write
				// timeout must exceed the selector request timeout.
				WriteTimeout: Duration(10 * time.Minute),
			},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Selector: SelectorConfig{
			SpotConcurrency:     10,
			OnDemandConcurrency: 10,
			CacheTTL:            Duration(120 * time.Minute),
			CacheCapacity:       256,
			RequestTimeout:      Duration(5 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BESTINSTANCE_HTTP_ADDRESS"); v != "" {
		c.Server.HTTP.Address = v
	}
	if v := os.Getenv("BESTINSTANCE_AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("BESTINSTANCE_SPOT_ADVISOR_URL"); v != "" {
		c.AWS.SpotAdvisorURL = v
	}
	if v := os.Getenv("BESTINSTANCE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTP.Address == "" {
		return fmt.Errorf("server.http.address is required")
	}
	if c.AWS.Region == "" {
		return fmt.Errorf("aws.region is required")
	}
	if c.Selector.SpotConcurrency < 1 {
		return fmt.Errorf("selector.spot_concurrency must be at least 1")
	}
	if c.Selector.OnDemandConcurrency < 1 {
		return fmt.Errorf("selector.on_demand_concurrency must be at least 1")
	}
	if c.Selector.CacheCapacity < 1 {
		return fmt.Errorf("selector.cache_capacity must be at least 1")
	}
	return nil
}
