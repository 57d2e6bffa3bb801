// Package bootstrap wires the application together: logger, config,
// classifier, analyzer, sinks and the detection pipeline, plus the
// graceful shutdown path.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minerwatch/config"
	"minerwatch/core"
	"minerwatch/detect"
	"minerwatch/ml"
	"minerwatch/pipeline"
	"minerwatch/sink"
	"minerwatch/storage"
	"minerwatch/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the application's components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Indicators *core.Indicators
	Cache      core.PatternCache
	Classifier *ml.SystemClassifier
	Archive    *storage.Archive

	Coordinator *pipeline.Coordinator

	metricsServer *http.Server
	pipelineDone  chan struct{}
	cancelRun     context.CancelFunc
}

// NewApp creates the application and initializes every component.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{pipelineDone: make(chan struct{})}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("minerwatch starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	indicators, err := InitIndicators(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Indicators = indicators

	cache, err := InitPatternCache(ctx, cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.Cache = cache

	model, err := ml.NewLogisticModel(cfg.Classifier.ModelPath, cfg.Classifier.Threshold, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier model: %w", err)
	}
	app.Classifier = ml.NewSystemClassifier(ml.NewSystemCollector(sugar), model)

	if cfg.Archive.Enabled {
		archive, err := storage.NewArchive(cfg.Archive.Path, sugar)
		if err != nil {
			// The archive is an audit trail, not a dependency.
			sugar.Warnf("Detection archive disabled: %v", err)
		} else {
			app.Archive = archive
		}
	}

	app.Coordinator = pipeline.NewCoordinator(cfg, pipeline.Deps{
		Classifier: app.Classifier,
		Events:     telemetry.NewReader(cfg.Telemetry.EvePath, sugar),
		Coverage:   detect.NewCoverageChecker(cfg.Telemetry.EvePath, indicators, sugar),
		Fallback:   detect.NewSyntheticFallback(sugar),
		Analyzer: detect.NewAnalyzer(detect.AnalyzerConfig{
			Indicators: indicators,
			BaseSID:    cfg.Rules.BaseSID,
			MaxRules:   cfg.Rules.MaxPerPass,
			Cache:      cache,
			Logger:     sugar,
		}),
		Writer:    sink.NewWriter(cfg.Rules.EngineFile, cfg.Rules.BackupFile, sugar),
		Reloader:  sink.DefaultReloadChain(sugar),
		Publisher: sink.NewPublisher(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout, cfg.Backend.RateLimit, sugar),
		Archive:   app.Archive,
		Logger:    sugar,
	})

	return app, nil
}

// InitIndicators loads indicator overrides when a file is configured,
// otherwise the built-in sets.
func InitIndicators(cfg *config.Config, sugar *zap.SugaredLogger) (*core.Indicators, error) {
	if cfg.Indicators.File == "" {
		return core.DefaultIndicators(), nil
	}
	indicators, err := core.LoadIndicators(cfg.Indicators.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load indicators from %s: %w", cfg.Indicators.File, err)
	}
	sugar.Infof("Indicator overrides loaded from %s", cfg.Indicators.File)
	return indicators, nil
}

// InitPatternCache builds the configured pattern cache, nil when cross-
// cycle suppression is disabled. A configured Redis address that cannot
// be reached degrades to the in-memory cache.
func InitPatternCache(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (core.PatternCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}

	if cfg.Cache.Redis.Addr != "" {
		cache, err := core.NewRedisPatternCache(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.TTL, sugar)
		if err == nil {
			sugar.Infof("Redis pattern cache connected at %s", cfg.Cache.Redis.Addr)
			return cache, nil
		}
		sugar.Warnf("Redis pattern cache unavailable, falling back to memory: %v", err)
	}

	sugar.Infof("In-memory pattern cache enabled (size=%d ttl=%s)", cfg.Cache.Size, cfg.Cache.TTL)
	return core.NewMemoryPatternCache(cfg.Cache.Size, cfg.Cache.TTL), nil
}

// Start launches the detection pipeline and the metrics listener.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancelRun = cancel

	go func() {
		defer close(a.pipelineDone)
		if err := a.Coordinator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.Sugar.Errorf("Detection pipeline exited: %v", err)
		}
	}()

	if a.Config.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsServer = &http.Server{Addr: a.Config.Metrics.Addr, Handler: mux}
		go func() {
			a.Sugar.Infof("Metrics listening on %s", a.Config.Metrics.Addr)
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Sugar.Errorf("Metrics server exited: %v", err)
			}
		}()
	}

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown stops the pipeline and releases resources, then logs the run
// summary.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	if a.cancelRun != nil {
		a.cancelRun()
		select {
		case <-a.pipelineDone:
		case <-time.After(5 * time.Second):
			a.Sugar.Warn("Pipeline did not stop within 5s")
		}
	}

	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.Sugar.Warnf("Metrics server shutdown: %v", err)
		}
	}

	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Sugar.Warnf("Pattern cache close: %v", err)
		}
	}

	a.logSummary()

	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Sugar.Warnf("Archive close: %v", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// logSummary reports what the run accomplished, preferring the archive's
// totals (which span restarts) over the in-process counters.
func (a *App) logSummary() {
	detections := a.Coordinator.DetectionCount()
	last := a.Coordinator.LastDetectionTime()

	if a.Archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if summary, err := a.Archive.Summarize(ctx); err == nil {
			a.Sugar.Infow("Run summary",
				"detections_this_run", detections,
				"detections_total", summary.Detections,
				"rules_total", summary.Rules,
				"last_detection", summary.LastDetection)
			return
		}
	}

	a.Sugar.Infow("Run summary", "detections_this_run", detections, "last_detection", last)
}
