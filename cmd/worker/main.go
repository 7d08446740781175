package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/atlasdocs/kb-assistant/internal/bootstrap"
	"github.com/atlasdocs/kb-assistant/internal/config"
	"github.com/atlasdocs/kb-assistant/internal/infrastructure/source/dirsource"
	"github.com/atlasdocs/kb-assistant/internal/observability/logging"
	"github.com/atlasdocs/kb-assistant/internal/observability/metrics"
)

const rebuildTimeout = 15 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("worker", "error").Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: m.Handler(),
	}
	go func() {
		log.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	rebuild := func(handlerCtx context.Context, force bool) error {
		rebuildCtx, cancel := context.WithTimeout(handlerCtx, rebuildTimeout)
		defer cancel()

		m.StartRebuild()
		start := time.Now()
		stats, err := app.Rebuilder.Rebuild(rebuildCtx, force)
		m.FinishRebuild("worker", time.Since(start), stats, err)
		if err != nil {
			log.Error("index rebuild failed", "force", force, "error", err)
			return err
		}
		log.Info("index rebuild finished",
			"force", force,
			"documents", stats.Documents,
			"skipped_documents", stats.SkippedDocs,
			"chunks", stats.Chunks,
			"embedded_chunks", stats.EmbeddedChunks,
			"cached_chunks", stats.CachedChunks,
			"duration", time.Since(start),
		)
		return nil
	}

	// Build once at startup if the disk snapshot did not restore, so a fresh
	// deployment serves without waiting for an explicit rebuild request.
	if _, err := app.Provider.Current(); err != nil {
		if err := rebuild(ctx, false); err != nil {
			log.Warn("initial index build failed, waiting for rebuild events", "error", err)
		}
	}

	if cfg.WatchArticles {
		watcher := dirsource.NewWatcher(
			cfg.ArticleDir,
			time.Duration(cfg.WatchDebounceSecond)*time.Second,
			func(triggerCtx context.Context) {
				if err := app.Queue.PublishRebuild(triggerCtx, false); err != nil {
					log.Error("publish rebuild after article change", "error", err)
				}
			},
			log,
		)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("article watcher stopped", "error", err)
			}
		}()
	}

	log.Info("worker subscribed", "subject", cfg.NATSSubject)
	if err := app.Queue.SubscribeRebuild(ctx, rebuild); err != nil && ctx.Err() == nil {
		log.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}
