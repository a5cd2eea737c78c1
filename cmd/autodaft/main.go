// Command autodaft runs the property application engine: a scheduler that
// matches standing search preferences against the listings service, records
// each application once and emails the owner, plus a nightly sweep that
// removes expired preferences. A small ops API exposes health, metrics and
// manual sweep triggers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-autodaft/internal/config"
	"github.com/tbourn/go-autodaft/internal/domain"
	httpapi "github.com/tbourn/go-autodaft/internal/http"
	"github.com/tbourn/go-autodaft/internal/listings"
	"github.com/tbourn/go-autodaft/internal/notify"
	"github.com/tbourn/go-autodaft/internal/observability"
	"github.com/tbourn/go-autodaft/internal/repo"
	"github.com/tbourn/go-autodaft/internal/scheduler"
	"github.com/tbourn/go-autodaft/internal/services"
	"github.com/tbourn/go-autodaft/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 20 * time.Second

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := sysutil.ConfigureLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("autodaft exited")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL,
		observability.Build{Version: version, Environment: cfg.Env},
		sysutil.Component(log, "otel"))
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}

	notifier, err := notify.New(ctx, &cfg, sysutil.Component(log, "notify"))
	if err != nil {
		return err
	}

	store := repo.PreferenceStore{DB: db}
	ledger := repo.Ledger{DB: db}
	matcher := &services.Matcher{
		Source: listings.New(listings.Options{
			BaseURL:         cfg.Listings.BaseURL,
			Timeout:         cfg.Listings.Timeout,
			BreakerFailures: cfg.Listings.BreakerFailures,
			BreakerCooldown: cfg.Listings.BreakerCooldown,
		}, sysutil.Component(log, "listings")),
		Ledger:   ledger,
		Notifier: notifier,
		DefaultBedrooms: domain.BedroomRange{
			Min: cfg.Automation.DefaultMinBedrooms,
			Max: cfg.Automation.DefaultMaxBedrooms,
		},
		Log: sysutil.Component(log, "matcher"),
	}
	sweeper := &services.ExpirySweeper{Store: store, Log: sysutil.Component(log, "expiry")}

	// Validated by config.Load.
	loc, _ := time.LoadLocation(cfg.Automation.Timezone)
	sched := scheduler.New(store, matcher, sweeper, scheduler.Options{
		MatchInterval:  cfg.Automation.MatchInterval,
		ExpirySchedule: cfg.Automation.ExpirySchedule,
		Location:       loc,
		Concurrency:    cfg.Automation.MatchConcurrency,
		RunOnStart:     cfg.Automation.MatchRunOnStart,
	}, sysutil.Component(log, "scheduler"))

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		Sweeps:  sched,
		Ledger:  ledger,
		Ping:    func(ctx context.Context) error { return repo.Ping(ctx, db) },
		Version: version,
		Log:     sysutil.Component(log, "http"),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	if err := sched.Start(); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Str("env", cfg.Env).Msg("ops api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err = <-serveErr:
		log.Error().Err(err).Msg("http server failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := srv.Shutdown(sctx); serr != nil {
		log.Error().Err(serr).Msg("http shutdown")
	}
	if serr := sched.Stop(sctx); serr != nil {
		log.Error().Err(serr).Msg("scheduler shutdown")
	}
	if serr := shutdownTracing(sctx); serr != nil {
		log.Error().Err(serr).Msg("tracing shutdown")
	}
	if sqlDB, derr := db.DB(); derr == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
	return err
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}
