// Package config loads typed configuration from an optional JSON file with
// environment variable overrides. Environment always wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	DetectionConfig    DetectionConfig    `json:"detection"`
	RiskConfig         RiskConfig         `json:"risk"`
	ExecutionConfig    ExecutionConfig    `json:"execution"`
	PaperConfig        PaperConfig        `json:"paper"`
	QueueConfig        QueueConfig        `json:"queue"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings. When disabled, the redis-backed
// components run on their in-memory fallbacks.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	ProductionMode  bool   `json:"production_mode"`
	AllowedOrigins  string `json:"allowed_origins"` // comma-separated, empty = all
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

// DetectionConfig holds trendline detection parameters.
type DetectionConfig struct {
	PivotLookback           int     `json:"pivot_lookback"`
	MaxSlopeDegrees         float64 `json:"max_slope_degrees"`
	TouchToleranceATR       float64 `json:"touch_tolerance_atr"`
	AlertTouchToleranceATR  float64 `json:"alert_touch_tolerance_atr"`
	MinCandleSpacing        int     `json:"min_candle_spacing"`
	MaxLinesPerInstrument   int     `json:"max_lines_per_instrument"`
	PromotionATRMultiple    float64 `json:"promotion_atr_multiple"`
	ExpiryDays              int     `json:"expiry_days"`
	SafetyLineOffsetCandles int     `json:"safety_line_offset_candles"`
}

// RiskConfig holds the default per-user risk settings.
type RiskConfig struct {
	MaxPositionSizeMicro    int     `json:"max_position_size_micro"`
	MaxPositionSizeFull     int     `json:"max_position_size_full"`
	DailyLossLimit          float64 `json:"daily_loss_limit"`
	MaxConcurrentPositions  int     `json:"max_concurrent_positions"`
	MinRiskReward           float64 `json:"min_risk_reward"`
	CorrelationThreshold    float64 `json:"correlation_threshold"`
	MaxTradeRisk            float64 `json:"max_trade_risk"`
	TradingHours            string  `json:"trading_hours"` // RTH, ETH or 24H
	MaxSignalAgeSeconds     int     `json:"max_signal_age_seconds"`
	CircuitBreakerThreshold int     `json:"circuit_breaker_threshold"`
}

// ExecutionConfig holds pipeline settings. BreakevenActivationR moves the
// protective stop to entry once a position runs that many R in profit; zero
// leaves stops where the bracket placed them.
type ExecutionConfig struct {
	TradingMode          string  `json:"trading_mode"` // paper or live
	DedupWindowSecs      int     `json:"dedup_window_secs"`
	BreakevenActivationR float64 `json:"breakeven_activation_r"`
}

// PaperConfig holds the simulated broker settings.
type PaperConfig struct {
	StartingBalance float64 `json:"starting_balance"`
	SlippageTicks   int     `json:"slippage_ticks"`
}

// QueueConfig holds worker pool settings.
type QueueConfig struct {
	Workers    int `json:"workers"`
	MaxRetries int `json:"max_retries"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // console writer when false
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "trendline"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "false") == "true"
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", defaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Detection
	cfg.DetectionConfig.PivotLookback = getEnvIntOrDefault("DETECT_PIVOT_LOOKBACK", defaultInt(cfg.DetectionConfig.PivotLookback, 5))
	cfg.DetectionConfig.MaxSlopeDegrees = getEnvFloatOrDefault("DETECT_MAX_SLOPE_DEGREES", defaultFloat(cfg.DetectionConfig.MaxSlopeDegrees, 60))
	cfg.DetectionConfig.TouchToleranceATR = getEnvFloatOrDefault("DETECT_TOUCH_TOLERANCE_ATR", defaultFloat(cfg.DetectionConfig.TouchToleranceATR, 1.0))
	cfg.DetectionConfig.AlertTouchToleranceATR = getEnvFloatOrDefault("DETECT_ALERT_TOUCH_TOLERANCE_ATR", defaultFloat(cfg.DetectionConfig.AlertTouchToleranceATR, 0.5))
	cfg.DetectionConfig.MinCandleSpacing = getEnvIntOrDefault("DETECT_MIN_CANDLE_SPACING", defaultInt(cfg.DetectionConfig.MinCandleSpacing, 3))
	cfg.DetectionConfig.MaxLinesPerInstrument = getEnvIntOrDefault("DETECT_MAX_LINES", defaultInt(cfg.DetectionConfig.MaxLinesPerInstrument, 20))
	cfg.DetectionConfig.PromotionATRMultiple = getEnvFloatOrDefault("DETECT_PROMOTION_ATR_MULTIPLE", defaultFloat(cfg.DetectionConfig.PromotionATRMultiple, 2.0))
	cfg.DetectionConfig.ExpiryDays = getEnvIntOrDefault("DETECT_EXPIRY_DAYS", defaultInt(cfg.DetectionConfig.ExpiryDays, 90))
	cfg.DetectionConfig.SafetyLineOffsetCandles = getEnvIntOrDefault("DETECT_SAFETY_OFFSET_CANDLES", defaultInt(cfg.DetectionConfig.SafetyLineOffsetCandles, 2))

	// Risk
	cfg.RiskConfig.MaxPositionSizeMicro = getEnvIntOrDefault("RISK_MAX_POSITION_SIZE_MICRO", defaultInt(cfg.RiskConfig.MaxPositionSizeMicro, 10))
	cfg.RiskConfig.MaxPositionSizeFull = getEnvIntOrDefault("RISK_MAX_POSITION_SIZE_FULL", defaultInt(cfg.RiskConfig.MaxPositionSizeFull, 2))
	cfg.RiskConfig.DailyLossLimit = getEnvFloatOrDefault("RISK_DAILY_LOSS_LIMIT", defaultFloat(cfg.RiskConfig.DailyLossLimit, 1000))
	cfg.RiskConfig.MaxConcurrentPositions = getEnvIntOrDefault("RISK_MAX_CONCURRENT_POSITIONS", defaultInt(cfg.RiskConfig.MaxConcurrentPositions, 3))
	cfg.RiskConfig.MinRiskReward = getEnvFloatOrDefault("RISK_MIN_RISK_REWARD", defaultFloat(cfg.RiskConfig.MinRiskReward, 1.5))
	cfg.RiskConfig.CorrelationThreshold = getEnvFloatOrDefault("RISK_CORRELATION_THRESHOLD", defaultFloat(cfg.RiskConfig.CorrelationThreshold, 0.7))
	cfg.RiskConfig.MaxTradeRisk = getEnvFloatOrDefault("RISK_MAX_TRADE_RISK", defaultFloat(cfg.RiskConfig.MaxTradeRisk, 250))
	cfg.RiskConfig.TradingHours = getEnvOrDefault("RISK_TRADING_HOURS", defaultStr(cfg.RiskConfig.TradingHours, "24H"))
	cfg.RiskConfig.MaxSignalAgeSeconds = getEnvIntOrDefault("RISK_MAX_SIGNAL_AGE_SECONDS", defaultInt(cfg.RiskConfig.MaxSignalAgeSeconds, 300))
	cfg.RiskConfig.CircuitBreakerThreshold = getEnvIntOrDefault("RISK_CIRCUIT_BREAKER_THRESHOLD", defaultInt(cfg.RiskConfig.CircuitBreakerThreshold, 3))

	// Execution
	cfg.ExecutionConfig.TradingMode = getEnvOrDefault("TRADING_MODE", defaultStr(cfg.ExecutionConfig.TradingMode, "paper"))
	cfg.ExecutionConfig.DedupWindowSecs = getEnvIntOrDefault("DEDUP_WINDOW_SECS", defaultInt(cfg.ExecutionConfig.DedupWindowSecs, 60))
	cfg.ExecutionConfig.BreakevenActivationR = getEnvFloatOrDefault("BREAKEVEN_ACTIVATION_R", cfg.ExecutionConfig.BreakevenActivationR)

	// Paper broker
	cfg.PaperConfig.StartingBalance = getEnvFloatOrDefault("PAPER_STARTING_BALANCE", defaultFloat(cfg.PaperConfig.StartingBalance, 50000))
	cfg.PaperConfig.SlippageTicks = getEnvIntOrDefault("PAPER_SLIPPAGE_TICKS", defaultInt(cfg.PaperConfig.SlippageTicks, 1))

	// Queue
	cfg.QueueConfig.Workers = getEnvIntOrDefault("QUEUE_WORKERS", defaultInt(cfg.QueueConfig.Workers, 4))
	cfg.QueueConfig.MaxRetries = getEnvIntOrDefault("QUEUE_MAX_RETRIES", defaultInt(cfg.QueueConfig.MaxRetries, 3))

	// Notifications
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// MaxSignalAge converts the configured seconds to a duration.
func (c RiskConfig) MaxSignalAge() time.Duration {
	return time.Duration(c.MaxSignalAgeSeconds) * time.Second
}

// GenerateSampleConfig writes a starter config.json.
func GenerateSampleConfig(filename string) error {
	cfg := &Config{}
	applyEnvOverrides(cfg)

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
