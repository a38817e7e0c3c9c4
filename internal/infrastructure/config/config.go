package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Execution ExecutionConfig `yaml:"execution"`
	Limits    LimitsConfig    `yaml:"limits"`
	Log       LogConfig       `yaml:"log"`
}

// AppConfig represents application settings
type AppConfig struct {
	Name        string        `yaml:"name"`
	Environment string        `yaml:"environment"`
	DryRun      bool          `yaml:"dry_run"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// ExchangeConfig represents exchange connection settings
type ExchangeConfig struct {
	BaseURL    string        `yaml:"base_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
	Testnet    bool          `yaml:"testnet"`
	RecvWindow time.Duration `yaml:"recv_window"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ExecutionConfig represents strategy execution settings
type ExecutionConfig struct {
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	TWAPOrderType    string        `yaml:"twap_order_type"`
}

// LimitsConfig represents pre-trade limit settings. Quantities are
// decimal strings so no precision is lost in transit.
type LimitsConfig struct {
	MaxOrderQuantity string   `yaml:"max_order_quantity"`
	MaxNotional      string   `yaml:"max_notional"`
	AllowedSymbols   []string `yaml:"allowed_symbols"`
	MaxGridLevels    int      `yaml:"max_grid_levels"`
}

// LogConfig represents logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// Load loads configuration from YAML file with env overrides
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.loadEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadEnvOverrides overrides config with environment variables
func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		c.Exchange.WSURL = v
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		c.Exchange.Testnet = v == "true" || v == "1"
	}

	if v := os.Getenv("APP_ENVIRONMENT"); v != "" {
		c.App.Environment = v
	}
	if v := os.Getenv("APP_DRY_RUN"); v != "" {
		c.App.DryRun = v == "true" || v == "1"
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	if v := os.Getenv("EXECUTION_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.RetryMaxAttempts = n
		}
	}
}

// applyDefaults fills settings the file and environment left empty
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "futures-agent"
	}
	if c.App.GracePeriod <= 0 {
		c.App.GracePeriod = 10 * time.Second
	}

	if c.Exchange.BaseURL == "" {
		if c.Exchange.Testnet {
			c.Exchange.BaseURL = "https://testnet.binancefuture.com"
		} else {
			c.Exchange.BaseURL = "https://fapi.binance.com"
		}
	}
	if c.Exchange.WSURL == "" {
		if c.Exchange.Testnet {
			c.Exchange.WSURL = "wss://stream.binancefuture.com"
		} else {
			c.Exchange.WSURL = "wss://fstream.binance.com"
		}
	}
	if c.Exchange.RecvWindow <= 0 {
		c.Exchange.RecvWindow = 5 * time.Second
	}
	if c.Exchange.Timeout <= 0 {
		c.Exchange.Timeout = 10 * time.Second
	}

	if c.Execution.RetryMaxAttempts <= 0 {
		c.Execution.RetryMaxAttempts = 3
	}
	if c.Execution.RetryBaseDelay <= 0 {
		c.Execution.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.Execution.RetryMaxDelay <= 0 {
		c.Execution.RetryMaxDelay = 30 * time.Second
	}
	if c.Execution.PollInterval <= 0 {
		c.Execution.PollInterval = time.Second
	}
	if c.Execution.TWAPOrderType == "" {
		c.Execution.TWAPOrderType = "MARKET"
	}

	if c.Limits.MaxGridLevels <= 0 {
		c.Limits.MaxGridLevels = 50
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate validates configuration
func (c *Config) validate() error {
	if !c.App.DryRun {
		if c.Exchange.APIKey == "" {
			return fmt.Errorf("exchange.api_key is required")
		}
		if c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange.api_secret is required")
		}
	}
	if c.Execution.TWAPOrderType != "MARKET" && c.Execution.TWAPOrderType != "LIMIT" {
		return fmt.Errorf("execution.twap_order_type must be MARKET or LIMIT, got %q", c.Execution.TWAPOrderType)
	}
	if _, err := c.MaxOrderQuantity(); err != nil {
		return err
	}
	if _, err := c.MaxNotional(); err != nil {
		return err
	}
	return nil
}

// MaxOrderQuantity parses the configured order quantity cap; zero
// means no cap
func (c *Config) MaxOrderQuantity() (decimal.Decimal, error) {
	return parseLimit("limits.max_order_quantity", c.Limits.MaxOrderQuantity)
}

// MaxNotional parses the configured notional cap; zero means no cap
func (c *Config) MaxNotional() (decimal.Decimal, error) {
	return parseLimit("limits.max_notional", c.Limits.MaxNotional)
}

func parseLimit(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
