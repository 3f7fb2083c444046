package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
}

type Accounts struct {
	// Path points to the YAML file holding the sender account pool.
	Path string `yaml:"path"`
}

type Dispatch struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"maxRetries"`
	// BackoffBaseMs is the initial retry delay; it doubles each attempt.
	BackoffBaseMs int `yaml:"backoffBaseMs"`
	// SMTPTimeoutSeconds bounds a single delivery attempt.
	SMTPTimeoutSeconds int `yaml:"smtpTimeoutSeconds"`
}

type Audit struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	QueueSize int      `yaml:"queueSize"`
}

type RateLimit struct {
	// Rate is requests per second allowed per client IP, Burst the bucket size.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type Config struct {
	Server    Server    `yaml:"server"`
	Accounts  Accounts  `yaml:"accounts"`
	Dispatch  Dispatch  `yaml:"dispatch"`
	Audit     Audit     `yaml:"audit"`
	RateLimit RateLimit `yaml:"rateLimit"`
}

// Load loads the service configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The config file path can also be overridden via the PRELAX_CONFIG_PATH environment variable.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("PRELAX_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open prelax config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}
	return config, nil
}

// Defaults fills in zero-valued fields with sensible defaults.
func (c *Config) Defaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Accounts.Path == "" {
		c.Accounts.Path = "./accounts.yaml"
	}
	if c.Dispatch.MaxRetries <= 0 {
		c.Dispatch.MaxRetries = 3
	}
	if c.Dispatch.BackoffBaseMs <= 0 {
		c.Dispatch.BackoffBaseMs = 1000
	}
	if c.Dispatch.SMTPTimeoutSeconds <= 0 {
		c.Dispatch.SMTPTimeoutSeconds = 30
	}
	if c.Audit.QueueSize <= 0 {
		c.Audit.QueueSize = 1000
	}
	if c.RateLimit.Rate <= 0 {
		c.RateLimit.Rate = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 50
	}
}

// BackoffBase returns the initial retry delay as a duration.
func (c Dispatch) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// SMTPTimeout returns the per-attempt delivery timeout as a duration.
func (c Dispatch) SMTPTimeout() time.Duration {
	return time.Duration(c.SMTPTimeoutSeconds) * time.Second
}
