package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"trendline-trading-bot/config"
	"trendline-trading-bot/internal/api"
	"trendline-trading-bot/internal/broker"
	"trendline-trading-bot/internal/database"
	"trendline-trading-bot/internal/dedup"
	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/execution"
	"trendline-trading-bot/internal/logging"
	"trendline-trading-bot/internal/market"
	"trendline-trading-bot/internal/notification"
	"trendline-trading-bot/internal/queue"
	"trendline-trading-bot/internal/risk"
)

// staticSettings serves the same configured limits and trading mode to every
// user. Per-user settings storage can slot in behind the same interface.
type staticSettings struct {
	settings risk.Settings
	mode     broker.Mode
}

func (s *staticSettings) RiskSettings(ctx context.Context, userID string) (risk.Settings, error) {
	return s.settings, nil
}

func (s *staticSettings) TradingMode(ctx context.Context, userID string) (broker.Mode, error) {
	return s.mode, nil
}

func riskSettingsFromConfig(rc config.RiskConfig) risk.Settings {
	return risk.Settings{
		MaxPositionSizeMicro:    rc.MaxPositionSizeMicro,
		MaxPositionSizeFull:     rc.MaxPositionSizeFull,
		DailyLossLimit:          decimal.NewFromFloat(rc.DailyLossLimit),
		MaxConcurrentPositions:  rc.MaxConcurrentPositions,
		MinRiskReward:           rc.MinRiskReward,
		CorrelationThreshold:    rc.CorrelationThreshold,
		MaxTradeRisk:            decimal.NewFromFloat(rc.MaxTradeRisk),
		TradingHours:            risk.TradingHours(rc.TradingHours),
		MaxSignalAge:            rc.MaxSignalAge(),
		CircuitBreakerThreshold: rc.CircuitBreakerThreshold,
	}
}

func detectConfigFromConfig(dc config.DetectionConfig) detect.Config {
	cfg := detect.DefaultConfig()
	cfg.PivotLookback = dc.PivotLookback
	cfg.MaxSlopeDegrees = dc.MaxSlopeDegrees
	cfg.TouchToleranceATR = dc.TouchToleranceATR
	cfg.AlertTouchToleranceATR = dc.AlertTouchToleranceATR
	cfg.MinCandleSpacing = dc.MinCandleSpacing
	cfg.MaxLinesPerInstrument = dc.MaxLinesPerInstrument
	cfg.PromotionATRMultiple = dc.PromotionATRMultiple
	cfg.ExpiryDays = dc.ExpiryDays
	cfg.SafetyLineOffsetCandles = dc.SafetyLineOffsetCandles
	return cfg
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("starting trendline trading bot")

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Redis is optional: the breaker, dedup lock and task queue all degrade
	// to in-memory fallbacks when the client is nil or unreachable.
	var redisClient *redis.Client
	if cfg.RedisConfig.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		})
	}

	bus := events.NewBus()

	candleRepo := database.NewCandleRepository(db.Pool)
	trendlineRepo := database.NewTrendlineRepository(db.Pool)
	alertRepo := database.NewAlertRepository(db.Pool)
	auditRepo := database.NewRiskAuditRepository(db.Pool)
	execStore := database.NewExecutionStore(db)

	specs := market.NewSpecRegistry()
	corr := market.NewCorrelationTable()

	orchestrator := detect.NewOrchestrator(
		trendlineRepo, alertRepo, candleRepo, bus,
		detectConfigFromConfig(cfg.DetectionConfig), detect.DefaultRubric(), logger)

	engine := risk.NewEngine(auditRepo, specs, corr, logger)
	breaker := risk.NewCircuitBreaker(redisClient, bus, logger)
	dedupLock := dedup.NewLock(redisClient,
		time.Duration(cfg.ExecutionConfig.DedupWindowSecs)*time.Second, logger)

	registry := broker.NewRegistry()
	paper := broker.NewPaperAdapter(specs, cfg.PaperConfig.SlippageTicks,
		decimal.NewFromFloat(cfg.PaperConfig.StartingBalance), logger)
	if err := paper.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start paper broker")
	}
	registry.Register(paper)
	registry.Register(broker.NewLiveAdapter())

	settings := &staticSettings{
		settings: riskSettingsFromConfig(cfg.RiskConfig),
		mode:     broker.Mode(cfg.ExecutionConfig.TradingMode),
	}

	processor := execution.NewProcessor(
		execStore, specs, engine, breaker, dedupLock, registry, settings, bus, logger)
	processor.EnableBreakevenStop(cfg.ExecutionConfig.BreakevenActivationR)

	// Pump broker fills back into the pipeline.
	go func() {
		for update := range paper.OrderUpdates() {
			if err := processor.HandleOrderUpdate(ctx, update); err != nil {
				logger.Error().Err(err).
					Str("broker_order_id", update.BrokerOrderID).
					Msg("order update failed")
			}
		}
	}()

	q := queue.NewQueue(redisClient, uint64(cfg.QueueConfig.MaxRetries), logger)
	w := &workers{
		candles:      candleRepo,
		orchestrator: orchestrator,
		processor:    processor,
		paper:        paper,
		logger:       logger.With().Str("component", "workers").Logger(),
	}
	w.register(q)
	q.Start(ctx, cfg.QueueConfig.Workers)

	if cfg.NotificationConfig.Enabled {
		manager := notification.NewManager(logger)
		if cfg.NotificationConfig.Telegram.Enabled {
			manager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
				BotToken: cfg.NotificationConfig.Telegram.BotToken,
				ChatID:   cfg.NotificationConfig.Telegram.ChatID,
				Enabled:  true,
			}))
		}
		if cfg.NotificationConfig.Discord.Enabled {
			manager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
				WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
				Enabled:    true,
			}))
		}
		notification.NewDispatcher(manager, logger).Attach(bus)
	}

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
	}, q, trendlineRepo, alertRepo, execStore, breaker, bus, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	cancel()
	q.Wait()
	if err := paper.Disconnect(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("broker disconnect failed")
	}
	logger.Info().Msg("shutdown complete")
}

// splitOrigins parses the comma-separated CORS origin list. Empty or "*"
// means allow all.
func splitOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
