// Command detect runs one trendline detection pass for an instrument against
// the database and prints the surviving lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"trendline-trading-bot/config"
	"trendline-trading-bot/internal/database"
	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/logging"
)

func main() {
	godotenv.Load()
	godotenv.Load("../../.env")

	var (
		userID     = flag.String("user", "default", "user id to run detection for")
		instrument = flag.String("instrument", "", "instrument symbol, e.g. MNQ")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *instrument == "" {
		fmt.Fprintln(os.Stderr, "usage: detect -instrument MNQ [-user default] [-v]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{Level: level, JSONFormat: false})

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run migrations: %v\n", err)
		os.Exit(1)
	}

	trendlines := database.NewTrendlineRepository(db.Pool)
	alerts := database.NewAlertRepository(db.Pool)
	candles := database.NewCandleRepository(db.Pool)

	orchestrator := detect.NewOrchestrator(trendlines, alerts, candles, nil,
		detectCfg(cfg), detect.DefaultRubric(), logger)

	if err := orchestrator.DetectForInstrument(ctx, *userID, *instrument); err != nil {
		fmt.Fprintf(os.Stderr, "detection failed: %v\n", err)
		os.Exit(1)
	}

	lines, err := trendlines.LiveTrendlines(ctx, *userID, *instrument)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load trendlines: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d live trendline(s) for %s\n\n", len(lines), *instrument)
	for _, tl := range lines {
		fmt.Printf("#%d %-10s grade=%-2s score=%6.2f touches=%d slope=%+.4f status=%s\n",
			tl.ID, tl.Direction, tl.Grade, tl.Score, tl.TouchCount, tl.Slope, tl.Status)
		fmt.Printf("    projected=%.2f safety=%.2f\n", tl.ProjectedPrice, tl.SafetyPrice)
	}
}

func detectCfg(cfg *config.Config) detect.Config {
	dc := detect.DefaultConfig()
	dc.PivotLookback = cfg.DetectionConfig.PivotLookback
	dc.MaxSlopeDegrees = cfg.DetectionConfig.MaxSlopeDegrees
	dc.TouchToleranceATR = cfg.DetectionConfig.TouchToleranceATR
	dc.AlertTouchToleranceATR = cfg.DetectionConfig.AlertTouchToleranceATR
	dc.MinCandleSpacing = cfg.DetectionConfig.MinCandleSpacing
	dc.MaxLinesPerInstrument = cfg.DetectionConfig.MaxLinesPerInstrument
	dc.PromotionATRMultiple = cfg.DetectionConfig.PromotionATRMultiple
	dc.ExpiryDays = cfg.DetectionConfig.ExpiryDays
	dc.SafetyLineOffsetCandles = cfg.DetectionConfig.SafetyLineOffsetCandles
	return dc
}
