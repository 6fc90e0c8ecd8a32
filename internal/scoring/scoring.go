// Package scoring implements the RelevanceScorer stage: one structured
// Gemini call per batch rates DISCOVERED items against the interest topics.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/gemini"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/ratelimit"
	"github.com/deusflow/newsroom/internal/retry"
	"github.com/deusflow/newsroom/internal/storage"
)

const StageName = "score"

const (
	exclusionExplanation = "Excluida por el tema %q."
	expiredExplanation   = "Puntuación no disponible: la noticia superó el tiempo máximo de espera."
)

// Generator produces a JSON completion for a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (gemini.Response, error)
}

type Options struct {
	BatchSize int
	// MaxAge, when positive, fills unscored items older than it with a
	// zero score so a permanently failing provider cannot stall them forever.
	MaxAge time.Duration
	Retry  retry.RetryConfig
}

func DefaultOptions() Options {
	return Options{
		BatchSize: 5,
		Retry:     retry.RetryConfig{MaxAttempts: 2, Delay: 5 * time.Second, Backoff: true},
	}
}

// Scorer is the RelevanceScorer stage.
type Scorer struct {
	store     *storage.Store
	generator Generator
	limiter   *ratelimit.AIRateLimiter
	metrics   *metrics.Metrics
	opts      Options
	now       func() time.Time
}

func New(store *storage.Store, generator Generator, limiter *ratelimit.AIRateLimiter, m *metrics.Metrics, opts Options) *Scorer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if m == nil {
		m = metrics.Global
	}
	return &Scorer{store: store, generator: generator, limiter: limiter, metrics: m, opts: opts, now: time.Now}
}

// Run scores one batch. Items missing from the response, and every item of
// a failed call, stay unscored for the next run.
func (s *Scorer) Run(ctx context.Context) (*domain.StageResult, error) {
	result := domain.NewStageResult(StageName, uuid.NewString())
	log := logger.Stage(StageName, result.RunID)
	start := time.Now()
	defer func() { s.metrics.RecordStage(StageName, time.Since(start)) }()

	var (
		topics  []domain.InterestTopic
		items   []domain.NewsItem
		expired []int64
	)
	err := s.store.InTx(ctx, func(tx *storage.Tx) error {
		expired = nil
		var err error
		if topics, err = tx.ListTopics(ctx); err != nil {
			return err
		}
		if len(topics) == 0 {
			return nil
		}

		if s.opts.MaxAge > 0 {
			old, err := tx.UnscoredBefore(ctx, s.now().Add(-s.opts.MaxAge), 0)
			if err != nil {
				return err
			}
			for _, n := range old {
				ok, err := tx.SetScore(ctx, n.ID, 0, CategoryIrrelevant, expiredExplanation)
				if err != nil {
					return err
				}
				if ok {
					expired = append(expired, n.ID)
				}
			}
		}

		items, err = tx.PendingScoring(ctx, s.opts.BatchSize)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("select scoring batch: %w", err)
	}

	// Expired items are reported as fallbacks, not counted as scored.
	for _, id := range expired {
		result.Set(id, domain.OutcomeFallback)
	}
	if len(expired) > 0 {
		s.metrics.AddScoringExpired(len(expired))
		log.Warn("unscored items expired", "items", len(expired), "max_age", s.opts.MaxAge.String())
	}

	if len(topics) == 0 {
		log.Warn("no interest topics configured, skipping scoring")
		return result, nil
	}
	if len(items) == 0 {
		return result, nil
	}
	for _, n := range items {
		result.Set(n.ID, domain.OutcomePending)
	}

	if s.generator == nil {
		log.Warn("no scoring model configured, leaving items unscored", "items", len(items))
		return result, nil
	}
	if s.limiter != nil {
		if err := s.limiter.Use(ratelimit.Gemini); err != nil {
			log.Warn("scoring budget exhausted, leaving items unscored", "items", len(items))
			return result, nil
		}
	}

	prompt, err := BuildPrompt(topics, items)
	if err != nil {
		log.Error("failed to build scoring prompt", "error", err)
		return result, nil
	}

	var results []Result
	callStart := time.Now()
	err = retry.WithRetry(ctx, s.opts.Retry, func() error {
		resp, err := s.generator.GenerateJSON(ctx, prompt)
		if err != nil {
			return err
		}
		s.metrics.RecordAPICall(resp.PromptTokens, resp.CompletionTokens, time.Since(callStart))
		parsed, err := ParseResults(resp.Text)
		if err != nil {
			return err
		}
		results = parsed
		return nil
	})
	if err != nil {
		s.metrics.AddScoringFailures(1)
		log.Error("scoring call failed, batch left for retry", "items", len(items), "error", err)
		return result, nil
	}

	byID := make(map[int64]domain.NewsItem, len(items))
	for _, n := range items {
		byID[n.ID] = n
	}

	scored := make(map[int64]bool)
	err = s.store.InTx(ctx, func(tx *storage.Tx) error {
		clear(scored)
		for _, r := range results {
			item, ok := byID[r.NewsID]
			if !ok || scored[r.NewsID] {
				continue
			}

			score, explanation := Clamp(r.Score), r.Explanation
			if excluded, subject := Excluded(item, topics); excluded {
				score = 0
				if explanation == "" || r.Score != 0 {
					explanation = fmt.Sprintf(exclusionExplanation, subject)
				}
			}

			ok, err := tx.SetScore(ctx, item.ID, score, Bucket(score), explanation)
			if err != nil {
				return err
			}
			if ok {
				scored[item.ID] = true
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.AddScoringFailures(1)
		log.Error("scoring results not persisted", "error", err)
		return result, nil
	}

	for id := range scored {
		result.Set(id, domain.OutcomeDone)
	}
	result.Processed += len(scored)
	s.metrics.AddScored(len(scored))
	log.Info("scoring finished", "batch", len(items), "returned", len(results), "scored", len(scored),
		"left_unscored", len(items)-len(scored))
	return result, nil
}
