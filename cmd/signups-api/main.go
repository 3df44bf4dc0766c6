package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/signups/internal/app"
	"example.com/signups/internal/config"
	"example.com/signups/internal/logger"
	transport "example.com/signups/internal/transport/http"
)

func main() {
	cfg := config.Load()
	log := logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log.Info("config loaded",
		"port", cfg.Port,
		"lookback_days", cfg.LookbackDays,
		"partition", cfg.Partition,
		"timezone", cfg.ReportTimezone,
		"archive", cfg.ArchiveEnabled())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	deps := &transport.ServerDeps{
		Cfg:       cfg,
		Dashboard: a.Dashboard,
		Ready:     a.Ready,
		Logger:    log,
		Now:       func() time.Time { return time.Now().UTC() },
	}

	// Collection of a long window can take a while under the CRM rate limit.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	a.Close(10 * time.Second)
}
