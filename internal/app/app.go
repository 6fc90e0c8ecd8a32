// Package app wires configuration, storage and the pipeline stages into a
// runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deusflow/newsroom/internal/cache"
	"github.com/deusflow/newsroom/internal/config"
	"github.com/deusflow/newsroom/internal/entities"
	"github.com/deusflow/newsroom/internal/gemini"
	"github.com/deusflow/newsroom/internal/langdetect"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/pipeline"
	"github.com/deusflow/newsroom/internal/ratelimit"
	"github.com/deusflow/newsroom/internal/retry"
	"github.com/deusflow/newsroom/internal/rss"
	"github.com/deusflow/newsroom/internal/scoring"
	"github.com/deusflow/newsroom/internal/server"
	"github.com/deusflow/newsroom/internal/storage"
	"github.com/deusflow/newsroom/internal/translate"
)

// App owns every long-lived collaborator of the process.
type App struct {
	Config  *config.Config
	Store   *storage.Store
	Metrics *metrics.Metrics
	Limiter *ratelimit.AIRateLimiter
	Runner  *pipeline.Runner

	prose  *entities.ProseRecognizer
	gemini *gemini.Client
}

// New opens the store and builds the stages. Missing API keys disable the
// corresponding external calls; the stages then leave items pending.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.Global,
		Limiter: ratelimit.NewAIRateLimiter(map[string]int{
			ratelimit.Groq:   cfg.MaxGroqRequests,
			ratelimit.Gemini: cfg.MaxGeminiRequests,
		}, cfg.MaxTotalRequests),
		prose: entities.SharedProse(),
	}

	retryCfg := retry.RetryConfig{MaxAttempts: cfg.RetryAttempts, Delay: cfg.RetryDelay, Backoff: true}
	classifier := langdetect.New()

	var translator translate.Client
	if cfg.TranslationAPIKey != "" {
		translator = translate.NewOpenAIClient(cfg.TranslationAPIKey, cfg.TranslationBaseURL, cfg.TranslationModel, cfg.RequestTimeout)
	} else {
		logger.Warn("translation API key not set, translations will stay pending")
	}

	var generator scoring.Generator
	if cfg.GeminiAPIKey != "" {
		a.gemini, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.ScoringModel)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		generator = a.gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, items will stay unscored")
	}

	a.Runner = pipeline.New(pipeline.Stages{
		Scanner: rss.NewReader(store, classifier, a.Metrics, rss.Options{
			Freshness: cfg.Freshness,
			Timeout:   cfg.RequestTimeout,
			UserAgent: cfg.UserAgent,
		}),
		Translator: translate.New(translate.Deps{
			Store:      store,
			Client:     translator,
			Classifier: classifier,
			Limiter:    a.Limiter,
			Cache:      cache.New[translate.Translation](cfg.TranslationCacheTTL, cfg.TranslationCacheSize),
			Metrics:    a.Metrics,
		}, translate.Options{
			BatchSize:  cfg.TranslateBatchSize,
			MaxItems:   cfg.TranslateMaxItems,
			BatchDelay: cfg.TranslateBatchDelay,
			Retry:      retryCfg,
		}),
		Extractor: entities.New(store, a.prose, a.Metrics, entities.Options{
			TranslatedBatch: cfg.EntityTranslatedBatch,
			NativeBatch:     cfg.EntityNativeBatch,
		}),
		Scorer: scoring.New(store, generator, a.Limiter, a.Metrics, scoring.Options{
			BatchSize: cfg.ScoringBatchSize,
			MaxAge:    cfg.ScoringMaxAge,
			Retry:     retryCfg,
		}),
	}, a.Metrics)

	return a, nil
}

// Close releases the store and the scoring client.
func (a *App) Close() {
	if a.gemini != nil {
		a.gemini.Close()
	}
	if err := a.Store.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}
}

// Serve runs the scheduler, the monitoring server and, when the config came
// from a file, the catalogue watcher until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if _, err := a.Config.Seed(ctx, a.Store); err != nil {
		return err
	}

	go func() {
		if err := a.prose.Warm(); err != nil {
			logger.Error("entity model failed to load", "error", err)
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Runner.Schedule(ctx, a.Config.ScanInterval)
	}()

	if path := a.Config.Path(); path != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, path, func(cfg *config.Config) {
				if _, err := cfg.Seed(ctx, a.Store); err != nil {
					logger.Error("re-seeding catalogue failed", "error", err)
				}
			})
			if err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	srv := server.New(a.Store, a.Runner, a.Limiter, a.Metrics)
	go func() {
		errCh <- srv.ListenAndServe(ctx, ":"+a.Config.MonitoringPort)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
		cancel()
	}
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("monitoring server: %w", err)
	}
	return nil
}
