// Package config defines the top-level configuration for the trading bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLTRADER_* environment variables.
// It is constructed once at startup and passed by value into the components
// that need it; nothing mutates it after Validate.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Helius   HeliusConfig   `toml:"helius"`
	Jupiter  JupiterConfig  `toml:"jupiter"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Feed     FeedConfig     `toml:"feed"`
	Trading  TradingConfig  `toml:"trading"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Strategy StrategyConfig `toml:"strategy"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Solana wallet credentials. Either the base58 secret key
// or an encrypted keypair file must be provided for trading modes.
type WalletConfig struct {
	SecretKey        string `toml:"secret_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HeliusConfig holds Solana RPC parameters.
type HeliusConfig struct {
	RPCURL     string `toml:"rpc_url"`
	APIKey     string `toml:"api_key"`
	Commitment string `toml:"commitment"`
}

// JupiterConfig holds the Jupiter swap API endpoints.
type JupiterConfig struct {
	QuoteURL string `toml:"quote_url"`
	SwapURL  string `toml:"swap_url"`
	APIKey   string `toml:"api_key"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// FeedConfig holds the live market-data ingestor parameters.
type FeedConfig struct {
	WsURL          string   `toml:"ws_url"`
	CandleInterval duration `toml:"candle_interval"`
	MaxStale       duration `toml:"max_stale"`
}

// TradingConfig holds loop and sizing parameters shared by all strategies.
type TradingConfig struct {
	// Instruments are the token mints to trade. Each gets its own engine.
	Instruments       []string `toml:"instruments"`
	LoopDelay         duration `toml:"loop_delay"`
	Lookback          int      `toml:"lookback"`
	BalancePercentage float64  `toml:"balance_percentage"`
	MinTradeSizeSOL   float64  `toml:"min_trade_size_sol"`
	FeeBufferSOL      float64  `toml:"fee_buffer_sol"`
	RentBufferSOL     float64  `toml:"rent_buffer_sol"`
}

// GatewayConfig holds the order-submission retry protocol parameters.
type GatewayConfig struct {
	BaseSlippageBps int      `toml:"base_slippage_bps"`
	SlippageStepBps int      `toml:"slippage_step_bps"`
	MaxAttempts     int      `toml:"max_attempts"`
	AttemptTimeout  duration `toml:"attempt_timeout"`
	RetryDelay      duration `toml:"retry_delay"`
}

// StrategyConfig selects the strategy and carries its risk parameters.
type StrategyConfig struct {
	Name             string   `toml:"name"`
	StopLossPct      float64  `toml:"stop_loss_pct"`
	TakeProfitPct    float64  `toml:"take_profit_pct"`
	MaxHoldDuration  duration `toml:"max_hold_duration"`
	CooldownDuration duration `toml:"cooldown_duration"`

	Goliath     GoliathConfig     `toml:"goliath"`
	Momentum    MomentumConfig    `toml:"momentum"`
	EMAGradient EMAGradientConfig `toml:"ema_gradient"`
}

// GoliathConfig holds parameters for the goliath strategy.
type GoliathConfig struct {
	MAPeriods        int     `toml:"ma_periods"`
	VolumeMultiplier float64 `toml:"volume_multiplier"`
}

// MomentumConfig holds parameters for the momentum strategy.
type MomentumConfig struct {
	MinPriceMomentumPct float64 `toml:"min_price_momentum_pct"`
	MinVolMomentumPct   float64 `toml:"min_vol_momentum_pct"`
	RSIPeriod           int     `toml:"rsi_period"`
	MaxRSI              float64 `toml:"max_rsi"`
}

// EMAGradientConfig holds parameters for the ema_gradient strategy.
type EMAGradientConfig struct {
	EMAPeriod         int     `toml:"ema_period"`
	GradientThreshold float64 `toml:"gradient_threshold"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Helius: HeliusConfig{
			RPCURL:     "https://mainnet.helius-rpc.com",
			Commitment: "confirmed",
		},
		Jupiter: JupiterConfig{
			QuoteURL: "https://lite-api.jup.ag/swap/v1/quote",
			SwapURL:  "https://lite-api.jup.ag/swap/v1/swap",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "soltrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Feed: FeedConfig{
			CandleInterval: duration{time.Second},
			MaxStale:       duration{5 * time.Second},
		},
		Trading: TradingConfig{
			LoopDelay:         duration{time.Second},
			Lookback:          20,
			BalancePercentage: 0.5,
			MinTradeSizeSOL:   0.001,
			FeeBufferSOL:      0.01,
			RentBufferSOL:     0.002,
		},
		Gateway: GatewayConfig{
			BaseSlippageBps: 500,
			SlippageStepBps: 250,
			MaxAttempts:     4,
			AttemptTimeout:  duration{20 * time.Second},
			RetryDelay:      duration{500 * time.Millisecond},
		},
		Strategy: StrategyConfig{
			Name:             "goliath",
			StopLossPct:      10,
			TakeProfitPct:    20,
			MaxHoldDuration:  duration{time.Hour},
			CooldownDuration: duration{5 * time.Minute},
			Goliath: GoliathConfig{
				MAPeriods:        20,
				VolumeMultiplier: 1.5,
			},
			Momentum: MomentumConfig{
				MinPriceMomentumPct: 2,
				MinVolMomentumPct:   50,
				RSIPeriod:           14,
				MaxRSI:              70,
			},
			EMAGradient: EMAGradientConfig{
				EMAPeriod:         20,
				GradientThreshold: 0.001,
			},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade": true,
	"feed":  true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// needsWallet reports whether the mode submits orders.
func needsWallet(mode string) bool {
	return mode == "trade" || mode == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. A non-nil error is fatal: the
// engine refuses to start.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, feed, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if needsWallet(mode) {
		if c.Wallet.SecretKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either secret_key or encrypted_key_path must be set for mode "+mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Helius.RPCURL == "" {
		errs = append(errs, "helius: rpc_url must not be empty")
	}
	if c.Jupiter.QuoteURL == "" || c.Jupiter.SwapURL == "" {
		errs = append(errs, "jupiter: quote_url and swap_url must not be empty")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if mode == "feed" || mode == "full" {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty for mode "+mode)
		}
	}
	if c.Feed.MaxStale.Duration <= 0 {
		errs = append(errs, "feed: max_stale must be > 0")
	}

	if len(c.Trading.Instruments) == 0 && mode != "feed" {
		errs = append(errs, "trading: at least one instrument is required")
	}
	seen := map[string]bool{}
	for _, inst := range c.Trading.Instruments {
		if inst == "" {
			errs = append(errs, "trading: empty instrument")
			continue
		}
		if seen[inst] {
			errs = append(errs, fmt.Sprintf("trading: duplicate instrument %q (one engine per instrument)", inst))
		}
		seen[inst] = true
	}
	if c.Trading.LoopDelay.Duration <= 0 {
		errs = append(errs, "trading: loop_delay must be > 0")
	}
	if c.Trading.Lookback < 1 {
		errs = append(errs, "trading: lookback must be >= 1")
	}
	if c.Trading.BalancePercentage <= 0 || c.Trading.BalancePercentage > 1 {
		errs = append(errs, fmt.Sprintf("trading: balance_percentage must be in (0, 1], got %v", c.Trading.BalancePercentage))
	}
	if c.Trading.MinTradeSizeSOL <= 0 {
		errs = append(errs, "trading: min_trade_size_sol must be > 0")
	}
	if c.Trading.FeeBufferSOL < 0 || c.Trading.RentBufferSOL < 0 {
		errs = append(errs, "trading: fee and rent buffers must be >= 0")
	}

	if c.Gateway.BaseSlippageBps <= 0 {
		errs = append(errs, "gateway: base_slippage_bps must be > 0")
	}
	if c.Gateway.SlippageStepBps < 0 {
		errs = append(errs, "gateway: slippage_step_bps must be >= 0")
	}
	if c.Gateway.MaxAttempts < 1 {
		errs = append(errs, "gateway: max_attempts must be >= 1")
	}
	if c.Gateway.AttemptTimeout.Duration <= 0 {
		errs = append(errs, "gateway: attempt_timeout must be > 0")
	}

	if c.Strategy.Name == "" {
		errs = append(errs, "strategy: name must not be empty")
	}
	if c.Strategy.StopLossPct <= 0 {
		errs = append(errs, "strategy: stop_loss_pct must be > 0")
	}
	if c.Strategy.TakeProfitPct <= 0 {
		errs = append(errs, "strategy: take_profit_pct must be > 0")
	}
	if c.Strategy.MaxHoldDuration.Duration <= 0 {
		errs = append(errs, "strategy: max_hold_duration must be > 0")
	}
	if c.Strategy.CooldownDuration.Duration < 0 {
		errs = append(errs, "strategy: cooldown_duration must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
