// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// TradingMode controls whether orders are actually sent to the broker.
type TradingMode string

const (
	// ModeResearch - no orders are ever sent, execution paths return RESEARCH_ONLY
	ModeResearch TradingMode = "RESEARCH"
	// ModePaper - orders go to the broker's paper endpoint
	ModePaper TradingMode = "PAPER"
	// ModeLive - real money
	ModeLive TradingMode = "LIVE"
)

// RiskConfig holds the position sizing and compliance knobs.
type RiskConfig struct {
	MaxRiskPerTradePercent  float64 // base risk per trade, percent of equity
	CoreRiskPerTradePercent float64 // risk for trades flagged as core conviction
	MaxAllocationPercent    float64 // per-position cap, percent of equity
	MaxOpenPositions        int     // hard cap on concurrent open positions
	ConvictionSizing        bool    // scale risk by score (quadratic)
	ConvictionBaseline      float64 // score at which multiplier == 1.0
	ConvictionCapPercent    float64 // ceiling for scaled risk percent
	ConvictionFloorPercent  float64 // floor for scaled risk percent
}

// BackupConfig holds S3-compatible ledger backup settings.
type BackupConfig struct {
	Enabled   bool
	Endpoint  string // empty for AWS S3 proper
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Keep      int // number of snapshots to retain
}

// Config holds application configuration
type Config struct {
	DataDir      string // base directory for sqlite databases, always absolute
	Port         int
	DevMode      bool
	LogLevel     string
	TradingMode  TradingMode
	AutoExecute  bool   // scheduler windows execute candidates, not just report them
	WebhookToken string // shared secret for inbound signals

	// Broker (Alpaca-compatible REST API)
	BrokerAPIKey    string
	BrokerAPISecret string
	BrokerBaseURL   string
	BrokerDataURL   string
	BrokerStreamURL string

	// Notifications
	DiscordWebhookURL string
	TelegramToken     string
	TelegramChatID    int64

	Risk   RiskConfig
	Backup BackupConfig
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADER_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mode := TradingMode(strings.ToUpper(getEnv("TRADING_MODE", "PAPER")))

	// Auto-execution defaults on for research/paper, off for live unless forced.
	defaultAuto := mode != ModeLive

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("PORT", 8001),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		TradingMode:  mode,
		AutoExecute:  getEnvAsBool("AUTO_EXECUTION_ENABLED", defaultAuto),
		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),

		BrokerAPIKey:    getEnv("BROKER_API_KEY_ID", ""),
		BrokerAPISecret: getEnv("BROKER_API_SECRET_KEY", ""),
		BrokerBaseURL:   getEnv("BROKER_API_BASE_URL", "https://paper-api.alpaca.markets"),
		BrokerDataURL:   getEnv("BROKER_DATA_BASE_URL", "https://data.alpaca.markets"),
		BrokerStreamURL: getEnv("BROKER_STREAM_URL", "wss://paper-api.alpaca.markets/stream"),

		DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		TelegramToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getEnvAsInt64("TELEGRAM_CHAT_ID", 0),

		Risk: RiskConfig{
			MaxRiskPerTradePercent:  getEnvAsFloat("MAX_RISK_PER_TRADE_PERCENT", 0.75),
			CoreRiskPerTradePercent: getEnvAsFloat("CORE_RISK_PER_TRADE_PERCENT", 1.25),
			MaxAllocationPercent:    getEnvAsFloat("MAX_ALLOCATION_PERCENT", 20.0),
			MaxOpenPositions:        getEnvAsInt("MAX_OPEN_POSITIONS", 4),
			ConvictionSizing:        getEnvAsBool("CONVICTION_SIZING_ENABLED", false),
			ConvictionBaseline:      getEnvAsFloat("CONVICTION_BASELINE_SCORE", 70.0),
			ConvictionCapPercent:    getEnvAsFloat("CONVICTION_CAP_PERCENT", 2.0),
			ConvictionFloorPercent:  getEnvAsFloat("CONVICTION_FLOOR_PERCENT", 0.25),
		},

		Backup: BackupConfig{
			Enabled:   getEnvAsBool("BACKUP_ENABLED", false),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Keep:      getEnvAsInt("BACKUP_KEEP", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.TradingMode {
	case ModeResearch, ModePaper, ModeLive:
	default:
		return fmt.Errorf("invalid TRADING_MODE %q (must be RESEARCH, PAPER or LIVE)", c.TradingMode)
	}

	// Going live is an explicit, two-step decision.
	if c.TradingMode == ModeLive && os.Getenv("LIVE_TRADING_CONFIRMED") != "true" {
		return fmt.Errorf("LIVE trading requires LIVE_TRADING_CONFIRMED=true")
	}

	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("BACKUP_ENABLED requires BACKUP_S3_BUCKET")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
