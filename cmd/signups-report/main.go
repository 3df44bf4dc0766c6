package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"example.com/signups/internal/app"
	"example.com/signups/internal/config"
	"example.com/signups/internal/logger"
	"example.com/signups/internal/report"
)

// Collects the configured lookback window once and prints it.
func main() {
	cfg := config.Load()
	// Logs go to stderr so stdout carries only the report.
	log := logger.New(os.Stderr, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	snap, err := a.Dashboard.Load(ctx, cfg.LookbackDays, true)
	cancel()
	a.Close(10 * time.Second)
	if err != nil {
		log.Error("collection failed", "error", err)
		os.Exit(1)
	}

	if err := report.NewPrinter(os.Stdout, !color.NoColor).Render(snap, cfg.ReportTimezone, cfg.TableLimit); err != nil {
		log.Error("render report", "error", err)
		os.Exit(1)
	}
}
