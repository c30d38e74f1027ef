package config

import (
	"strings"
	"testing"
)

// validConfig returns Defaults with the required operator-supplied fields
// filled in.
func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.SecretKey = "base58secret"
	cfg.Trading.Instruments = []string{"So11111111111111111111111111111111111111112"}
	cfg.Feed.WsURL = "wss://stream.example.com/trades"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "backtest" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"no wallet in trade mode", func(c *Config) { c.Wallet = WalletConfig{} }, "wallet"},
		{"encrypted key without password", func(c *Config) {
			c.Wallet = WalletConfig{EncryptedKeyPath: "/keys/main.json"}
		}, "key_password"},
		{"missing rpc url", func(c *Config) { c.Helius.RPCURL = "" }, "rpc_url"},
		{"missing jupiter urls", func(c *Config) { c.Jupiter.QuoteURL = "" }, "jupiter"},
		{"no instruments", func(c *Config) { c.Trading.Instruments = nil }, "instrument"},
		{"duplicate instruments", func(c *Config) {
			c.Trading.Instruments = append(c.Trading.Instruments, c.Trading.Instruments[0])
		}, "duplicate instrument"},
		{"zero loop delay", func(c *Config) { c.Trading.LoopDelay = duration{} }, "loop_delay"},
		{"balance percentage above 1", func(c *Config) { c.Trading.BalancePercentage = 1.2 }, "balance_percentage"},
		{"zero base slippage", func(c *Config) { c.Gateway.BaseSlippageBps = 0 }, "base_slippage_bps"},
		{"zero max attempts", func(c *Config) { c.Gateway.MaxAttempts = 0 }, "max_attempts"},
		{"zero stop loss", func(c *Config) { c.Strategy.StopLossPct = 0 }, "stop_loss_pct"},
		{"zero max stale", func(c *Config) { c.Feed.MaxStale = duration{} }, "max_stale"},
		{"missing ws url in full mode", func(c *Config) { c.Feed.WsURL = "" }, "ws_url"},
		{"pool min above max", func(c *Config) {
			c.Database.PoolMinConns = 20
			c.Database.PoolMaxConns = 5
		}, "pool_min_conns"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

// Feed mode has no wallet and no instruments, but needs the websocket URL.
func TestValidateFeedMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "feed"
	cfg.Feed.WsURL = "wss://stream.example.com/trades"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for feed mode", err)
	}

	cfg.Feed.WsURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for feed mode without ws_url")
	}
}

// Trade mode does not run the ingestor, so ws_url may stay empty.
func TestValidateTradeModeWithoutWsURL(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "trade"
	cfg.Feed.WsURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil for trade mode without ws_url", err)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "invalid"
	cfg.Trading.Lookback = 0
	cfg.Gateway.AttemptTimeout = duration{}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want combined error")
	}
	for _, want := range []string{"unknown mode", "lookback", "attempt_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error %q missing %q", err, want)
		}
	}
}

func TestDefaultsAreInternallyConsistent(t *testing.T) {
	cfg := Defaults()
	if cfg.Gateway.BaseSlippageBps <= 0 || cfg.Gateway.MaxAttempts < 1 {
		t.Error("gateway defaults must satisfy their own validation rules")
	}
	if cfg.Trading.BalancePercentage <= 0 || cfg.Trading.BalancePercentage > 1 {
		t.Error("default balance percentage out of range")
	}
	if !validModes[cfg.Mode] {
		t.Errorf("default mode %q is not a valid mode", cfg.Mode)
	}
}
