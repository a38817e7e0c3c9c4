package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
app:
  dry_run: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.BaseURL != "https://fapi.binance.com" {
		t.Errorf("BaseURL = %q", cfg.Exchange.BaseURL)
	}
	if cfg.Execution.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.Execution.RetryMaxAttempts)
	}
	if cfg.Execution.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.Execution.PollInterval)
	}
	if cfg.Limits.MaxGridLevels != 50 {
		t.Errorf("MaxGridLevels = %d, want 50", cfg.Limits.MaxGridLevels)
	}
}

func TestLoad_TestnetEndpoints(t *testing.T) {
	path := writeConfig(t, `
app:
  dry_run: true
exchange:
  testnet: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.BaseURL != "https://testnet.binancefuture.com" {
		t.Errorf("BaseURL = %q", cfg.Exchange.BaseURL)
	}
}

func TestLoad_RequiresCredentialsForLiveTrading(t *testing.T) {
	path := writeConfig(t, `
exchange:
  api_key: ""
`)
	os.Unsetenv("BINANCE_API_KEY")
	os.Unsetenv("BINANCE_API_SECRET")

	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want missing credentials error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
exchange:
  api_key: file-key
  api_secret: file-secret
`)
	t.Setenv("BINANCE_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want env override", cfg.Exchange.APIKey)
	}
	if cfg.Exchange.APISecret != "file-secret" {
		t.Errorf("APISecret = %q, want file value", cfg.Exchange.APISecret)
	}
}

func TestLoad_Limits(t *testing.T) {
	path := writeConfig(t, `
app:
  dry_run: true
limits:
  max_order_quantity: "2.5"
  max_notional: "100000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	qty, err := cfg.MaxOrderQuantity()
	if err != nil {
		t.Fatalf("MaxOrderQuantity() error = %v", err)
	}
	if qty.String() != "2.5" {
		t.Errorf("MaxOrderQuantity = %s, want 2.5", qty)
	}
}

func TestLoad_RejectsBadLimit(t *testing.T) {
	path := writeConfig(t, `
app:
  dry_run: true
limits:
  max_order_quantity: "lots"
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want parse error")
	}
}

func TestLoad_RejectsBadTWAPOrderType(t *testing.T) {
	path := writeConfig(t, `
app:
  dry_run: true
execution:
  twap_order_type: STOP
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error, want validation error")
	}
}
