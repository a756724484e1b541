package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderflow/internal/backfill"
	"orderflow/internal/domain/repository"
	"orderflow/internal/usecase"
	pkgch "orderflow/pkg/clickhouse"
	"orderflow/pkg/config"
	xhttp "orderflow/pkg/http"
	pkgkafka "orderflow/pkg/kafka"
	applogger "orderflow/pkg/logger"
	"orderflow/pkg/util"
)

// App encapsulates the application lifecycle: the live aggregation pipeline,
// the optional backfill pass, and the HTTP read API.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	live        *usecase.LiveService
	backfiller  *backfill.Driver
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server

	chClient *pkgch.Client
	producer *pkgkafka.Producer
	cache    repository.CandleCache
}

// New creates an App. backfiller, producer, and cache may be nil when the
// corresponding subsystem is disabled in config.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	live *usecase.LiveService,
	backfiller *backfill.Driver,
	httpHandler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	cache repository.CandleCache,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		live:        live,
		backfiller:  backfiller,
		httpHandler: httpHandler,
		chClient:    chClient,
		producer:    producer,
		cache:       cache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.live.Start(ctx); err != nil {
		a.log.Error("live pipeline start failed", applogger.Error(err))
		return err
	}
	a.log.Info("live pipeline running", applogger.Strings("symbols", a.cfg.Exchange.Symbols))

	if a.backfiller != nil {
		go a.runBackfill(ctx)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// runBackfill fills each configured symbol from the configured start (or the
// stored resume point) to now, then repairs any remaining holes.
func (a *App) runBackfill(ctx context.Context) {
	start := util.ParseTimeDefault(a.cfg.Backfill.Start, time.Now().UTC().AddDate(0, 0, -7))
	end := time.Now().UTC()

	for _, symbol := range a.cfg.Exchange.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := a.backfiller.Run(ctx, symbol, start, end); err != nil {
			a.log.Error("backfill failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			continue
		}
		if err := a.backfiller.RepairGaps(ctx, symbol, a.cfg.Backfill.GapThreshold); err != nil {
			a.log.Error("gap repair failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
	}
	a.log.Info("backfill complete", applogger.Strings("symbols", a.cfg.Exchange.Symbols))
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.live.Shutdown(ctx); err != nil {
		a.log.Warn("live pipeline stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
