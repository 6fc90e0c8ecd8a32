// Package translate implements the Translator stage: Spanish items are
// copied locally, the rest are translated in fixed-size batches through an
// OpenAI-compatible API with a deterministic fallback.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsroom/internal/cache"
	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/langdetect"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/ratelimit"
	"github.com/deusflow/newsroom/internal/retry"
	"github.com/deusflow/newsroom/internal/storage"
)

const StageName = "translate"

// FallbackMarker prefixes the title of an item whose translation failed.
const FallbackMarker = "[ERROR TRADUCCIÓN] "

// Options tunes the stage.
type Options struct {
	BatchSize  int
	MaxItems   int
	BatchDelay time.Duration
	Retry      retry.RetryConfig
}

// DefaultOptions mirrors the provider's free-tier limits.
func DefaultOptions() Options {
	return Options{
		BatchSize:  5,
		MaxItems:   50,
		BatchDelay: 2 * time.Second,
		Retry:      retry.RetryConfig{MaxAttempts: 2, Delay: 2 * time.Second, Backoff: true},
	}
}

// Translator is the translation stage.
type Translator struct {
	store      *storage.Store
	client     Client
	classifier *langdetect.Classifier
	limiter    *ratelimit.AIRateLimiter
	pacer      *ratelimit.Pacer
	cache      *cache.Cache[Translation]
	metrics    *metrics.Metrics
	opts       Options
}

// Deps groups the collaborators of the stage. Limiter and Cache are optional.
type Deps struct {
	Store      *storage.Store
	Client     Client
	Classifier *langdetect.Classifier
	Limiter    *ratelimit.AIRateLimiter
	Cache      *cache.Cache[Translation]
	Metrics    *metrics.Metrics
}

func New(deps Deps, opts Options) *Translator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Global
	}
	if deps.Classifier == nil {
		deps.Classifier = langdetect.New()
	}
	return &Translator{
		store:      deps.Store,
		client:     deps.Client,
		classifier: deps.Classifier,
		limiter:    deps.Limiter,
		pacer:      ratelimit.NewPacer(opts.BatchDelay),
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		opts:       opts,
	}
}

// Run processes items with no Spanish rendering, restricted to ids when
// given. Processed counts every item whose sentinel was set.
func (t *Translator) Run(ctx context.Context, ids []int64) (*domain.StageResult, error) {
	result := domain.NewStageResult(StageName, uuid.NewString())
	log := logger.Stage(StageName, result.RunID)
	start := time.Now()
	defer func() { t.metrics.RecordStage(StageName, time.Since(start)) }()

	var (
		queue []domain.NewsItem
		local outcomes
	)
	err := t.store.InTx(ctx, func(tx *storage.Tx) error {
		local = outcomes{}
		queue = nil
		pending, err := tx.PendingTranslation(ctx, ids, t.opts.MaxItems)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			log.Info("pending translations", "items", len(pending))
		}

		for _, item := range pending {
			if item.Language == "" || item.Language == domain.LanguageUnknown {
				item.Language = t.classifier.DetectItem(item.Title, item.ContentSnippet)
				if err := tx.SetLanguage(ctx, item.ID, item.Language); err != nil {
					return err
				}
			}

			if item.Language == domain.LanguageSpanish {
				if err := local.write(ctx, tx, item.ID, item.Title, item.ContentSnippet, domain.OutcomeDone); err != nil {
					return err
				}
				local.native++
				continue
			}
			if tr := t.cached(item); tr != nil {
				if err := local.write(ctx, tx, item.ID, tr.TitleES, tr.ContentES, domain.OutcomeDone); err != nil {
					return err
				}
				local.cacheHits++
				continue
			}
			queue = append(queue, item)
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("translate local phase: %w", err)
	}
	local.apply(result)
	t.metrics.AddNativeCopies(local.native)
	t.metrics.AddTranslationCacheHits(local.cacheHits)
	if t.limiter != nil {
		for i := 0; i < local.cacheHits; i++ {
			t.limiter.RecordCacheHit()
		}
	}
	for _, item := range queue {
		result.Set(item.ID, domain.OutcomePending)
	}

	if t.client == nil && len(queue) > 0 {
		log.Warn("no translation client configured, leaving items pending", "items", len(queue))
		queue = nil
	}

	for i := 0; i < len(queue); i += t.opts.BatchSize {
		end := i + t.opts.BatchSize
		if end > len(queue) {
			end = len(queue)
		}
		batch := queue[i:end]
		batchNo := i/t.opts.BatchSize + 1

		if err := t.pacer.Wait(ctx); err != nil {
			log.Warn("translation interrupted", "batch", batchNo, "error", err)
			break
		}
		if t.limiter != nil {
			if err := t.limiter.Use(ratelimit.Groq); err != nil {
				log.Warn("translation budget exhausted, leaving items pending", "batch", batchNo, "remaining", len(queue)-i)
				break
			}
		}

		t.translateBatch(ctx, log, batchNo, batch, result)
		t.pacer.Done()
	}

	log.Info("translation finished", "processed", result.Processed,
		"done", result.Count(domain.OutcomeDone),
		"fallback", result.Count(domain.OutcomeFallback),
		"pending", result.Count(domain.OutcomePending))
	return result, nil
}

func (t *Translator) translateBatch(ctx context.Context, log *slog.Logger, batchNo int, batch []domain.NewsItem, result *domain.StageResult) {
	req := make(map[string]SourceText, len(batch))
	for _, item := range batch {
		req[strconv.FormatInt(item.ID, 10)] = SourceText{Title: item.Title, Content: item.ContentSnippet}
	}

	var resp BatchResponse
	callStart := time.Now()
	callErr := retry.WithRetry(ctx, t.opts.Retry, func() error {
		var err error
		resp, err = t.client.TranslateBatch(ctx, req)
		return err
	})
	latency := time.Since(callStart)

	// A cancelled run leaves the batch pending instead of filling fallbacks.
	if ctx.Err() != nil {
		return
	}

	if callErr != nil {
		log.Error("translation batch failed, using fallback", "batch", batchNo, "items", len(batch), "error", callErr)
		resp = BatchResponse{}
	} else {
		t.metrics.RecordAPICall(resp.PromptTokens, resp.CompletionTokens, latency)
		log.Info("translation batch done", "batch", batchNo, "items", len(batch), "returned", len(resp.Items),
			"prompt_tokens", resp.PromptTokens, "completion_tokens", resp.CompletionTokens,
			"latency_ms", latency.Milliseconds())
	}

	var (
		out        outcomes
		translated = make(map[string]Translation)
	)
	err := t.store.InTx(ctx, func(tx *storage.Tx) error {
		out = outcomes{}
		for _, item := range batch {
			tr, ok := resp.Items[strconv.FormatInt(item.ID, 10)]
			title, content := normalizeTitle(tr.TitleES), normalizeContent(tr.ContentES)
			if ok && title != "" {
				if content == "" {
					log.Warn("translation without content, keeping snippet", "batch", batchNo, "item_id", item.ID)
					content = normalizeContent(item.ContentSnippet)
				}
				if err := out.write(ctx, tx, item.ID, title, content, domain.OutcomeDone); err != nil {
					return err
				}
				translated[cache.GenerateKey(item.Title, item.ContentSnippet)] = Translation{TitleES: title, ContentES: content}
				continue
			}

			log.Warn("item missing from translation, using fallback", "batch", batchNo, "item_id", item.ID)
			if err := out.write(ctx, tx, item.ID, FallbackMarker+item.Title, item.ContentSnippet, domain.OutcomeFallback); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Error("translation batch not persisted", "batch", batchNo, "error", err)
		t.metrics.SetError(err.Error())
		return
	}

	out.apply(result)
	if t.cache != nil {
		for k, v := range translated {
			t.cache.Set(k, v)
		}
	}
	t.metrics.AddTranslations(out.count(domain.OutcomeDone))
	t.metrics.AddTranslationFallbacks(out.count(domain.OutcomeFallback))
}

// outcomes buffers per-item results until the transaction that wrote them commits.
type outcomes struct {
	byID      map[int64]domain.StageOutcome
	processed int
	native    int
	cacheHits int
}

// write sets the sentinel. An item translated concurrently elsewhere is
// reported done without being counted.
func (o *outcomes) write(ctx context.Context, tx *storage.Tx, id int64, title, content string, outcome domain.StageOutcome) error {
	ok, err := tx.SetTranslation(ctx, id, title, content)
	if err != nil {
		return err
	}
	if o.byID == nil {
		o.byID = make(map[int64]domain.StageOutcome)
	}
	if !ok {
		o.byID[id] = domain.OutcomeDone
		return nil
	}
	o.processed++
	o.byID[id] = outcome
	return nil
}

func (o outcomes) count(outcome domain.StageOutcome) int {
	n := 0
	for _, v := range o.byID {
		if v == outcome {
			n++
		}
	}
	return n
}

func (o outcomes) apply(result *domain.StageResult) {
	for id, v := range o.byID {
		result.Set(id, v)
	}
	result.Processed += o.processed
}

func (t *Translator) cached(item domain.NewsItem) *Translation {
	if t.cache == nil {
		return nil
	}
	tr, ok := t.cache.Get(cache.GenerateKey(item.Title, item.ContentSnippet))
	if !ok {
		return nil
	}
	return &tr
}
