package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLTRADER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOLTRADER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.SecretKey, "SOLTRADER_WALLET_SECRET_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "SOLTRADER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SOLTRADER_WALLET_KEY_PASSWORD")

	// ── Helius ──
	setStr(&cfg.Helius.RPCURL, "SOLTRADER_HELIUS_RPC_URL")
	setStr(&cfg.Helius.APIKey, "SOLTRADER_HELIUS_API_KEY")
	setStr(&cfg.Helius.Commitment, "SOLTRADER_HELIUS_COMMITMENT")

	// ── Jupiter ──
	setStr(&cfg.Jupiter.QuoteURL, "SOLTRADER_JUPITER_QUOTE_URL")
	setStr(&cfg.Jupiter.SwapURL, "SOLTRADER_JUPITER_SWAP_URL")
	setStr(&cfg.Jupiter.APIKey, "SOLTRADER_JUPITER_API_KEY")

	// ── Database ──
	setStr(&cfg.Database.DSN, "SOLTRADER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "SOLTRADER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "SOLTRADER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "SOLTRADER_DATABASE_NAME")
	setStr(&cfg.Database.User, "SOLTRADER_DATABASE_USER")
	setStr(&cfg.Database.Password, "SOLTRADER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SOLTRADER_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "SOLTRADER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SOLTRADER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SOLTRADER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOLTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLTRADER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLTRADER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOLTRADER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOLTRADER_REDIS_TLS_ENABLED")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "SOLTRADER_FEED_WS_URL")
	setDuration(&cfg.Feed.CandleInterval, "SOLTRADER_FEED_CANDLE_INTERVAL")
	setDuration(&cfg.Feed.MaxStale, "SOLTRADER_FEED_MAX_STALE")

	// ── Trading ──
	setStringSlice(&cfg.Trading.Instruments, "SOLTRADER_TRADING_INSTRUMENTS")
	setDuration(&cfg.Trading.LoopDelay, "SOLTRADER_TRADING_LOOP_DELAY")
	setInt(&cfg.Trading.Lookback, "SOLTRADER_TRADING_LOOKBACK")
	setFloat64(&cfg.Trading.BalancePercentage, "SOLTRADER_TRADING_BALANCE_PERCENTAGE")
	setFloat64(&cfg.Trading.MinTradeSizeSOL, "SOLTRADER_TRADING_MIN_TRADE_SIZE_SOL")
	setFloat64(&cfg.Trading.FeeBufferSOL, "SOLTRADER_TRADING_FEE_BUFFER_SOL")
	setFloat64(&cfg.Trading.RentBufferSOL, "SOLTRADER_TRADING_RENT_BUFFER_SOL")

	// ── Gateway ──
	setInt(&cfg.Gateway.BaseSlippageBps, "SOLTRADER_GATEWAY_BASE_SLIPPAGE_BPS")
	setInt(&cfg.Gateway.SlippageStepBps, "SOLTRADER_GATEWAY_SLIPPAGE_STEP_BPS")
	setInt(&cfg.Gateway.MaxAttempts, "SOLTRADER_GATEWAY_MAX_ATTEMPTS")
	setDuration(&cfg.Gateway.AttemptTimeout, "SOLTRADER_GATEWAY_ATTEMPT_TIMEOUT")
	setDuration(&cfg.Gateway.RetryDelay, "SOLTRADER_GATEWAY_RETRY_DELAY")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "SOLTRADER_STRATEGY_NAME")
	setFloat64(&cfg.Strategy.StopLossPct, "SOLTRADER_STRATEGY_STOP_LOSS_PCT")
	setFloat64(&cfg.Strategy.TakeProfitPct, "SOLTRADER_STRATEGY_TAKE_PROFIT_PCT")
	setDuration(&cfg.Strategy.MaxHoldDuration, "SOLTRADER_STRATEGY_MAX_HOLD_DURATION")
	setDuration(&cfg.Strategy.CooldownDuration, "SOLTRADER_STRATEGY_COOLDOWN_DURATION")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLTRADER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLTRADER_MODE")
	setStr(&cfg.LogLevel, "SOLTRADER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
