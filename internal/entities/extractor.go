// Package entities implements the EntityExtractor stage: statistical NER plus
// a deterministic watchlist, filtered and linked to news items.
package entities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/storage"
)

const StageName = "extract"

// Options bounds the two selection predicates.
type Options struct {
	TranslatedBatch int
	NativeBatch     int
}

func DefaultOptions() Options {
	return Options{TranslatedBatch: 10, NativeBatch: 100}
}

// Candidate is an entity proposed for an item.
type Candidate struct {
	Name string
	Type domain.EntityType
}

// Extractor is the EntityExtractor stage.
type Extractor struct {
	store      *storage.Store
	recognizer Recognizer
	metrics    *metrics.Metrics
	opts       Options
}

func New(store *storage.Store, recognizer Recognizer, m *metrics.Metrics, opts Options) *Extractor {
	if opts.TranslatedBatch <= 0 {
		opts.TranslatedBatch = 10
	}
	if opts.NativeBatch <= 0 {
		opts.NativeBatch = 100
	}
	if m == nil {
		m = metrics.Global
	}
	return &Extractor{store: store, recognizer: recognizer, metrics: m, opts: opts}
}

// RunTranslated processes translated items that were not extracted yet.
func (e *Extractor) RunTranslated(ctx context.Context) (*domain.StageResult, error) {
	return e.run(ctx, "translated", func(tx *storage.Tx) ([]domain.NewsItem, error) {
		return tx.PendingEntitiesTranslated(ctx, e.opts.TranslatedBatch)
	})
}

// RunNative processes native Spanish items that were not extracted yet.
func (e *Extractor) RunNative(ctx context.Context) (*domain.StageResult, error) {
	return e.run(ctx, "native", func(tx *storage.Tx) ([]domain.NewsItem, error) {
		return tx.PendingEntitiesNative(ctx, e.opts.NativeBatch)
	})
}

// run processes one batch inside one transaction. Each item runs in its own
// savepoint so a failing item loses only its links; the sentinel is then set
// outside the savepoint.
func (e *Extractor) run(ctx context.Context, kind string, selectBatch func(tx *storage.Tx) ([]domain.NewsItem, error)) (*domain.StageResult, error) {
	result := domain.NewStageResult(StageName, uuid.NewString())
	log := logger.Stage(StageName, result.RunID).With("batch", kind)
	start := time.Now()
	defer func() { e.metrics.RecordStage(StageName+"_"+kind, time.Since(start)) }()

	var (
		outcomes map[int64]domain.StageOutcome
		linked   int
	)
	err := e.store.InTx(ctx, func(tx *storage.Tx) error {
		outcomes = make(map[int64]domain.StageOutcome)
		linked = 0

		items, err := selectBatch(tx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		watchNames, err := tx.WatchlistNames(ctx)
		if err != nil {
			return err
		}
		blacklist, err := tx.IgnoredNames(ctx)
		if err != nil {
			return err
		}
		watchlist := NewWatchlist(watchNames)
		log.Info("extracting entities", "items", len(items), "watchlist", watchlist.Len(), "blacklist", len(blacklist))

		for _, item := range items {
			n := 0
			spErr := tx.Savepoint(ctx, fmt.Sprintf("item_%d", item.ID), func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = fmt.Errorf("panic: %v", p)
					}
				}()
				n, err = e.processItem(ctx, tx, item, watchlist, blacklist)
				return err
			})
			outcome := domain.OutcomeDone
			if spErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("entity extraction failed for item", "item_id", item.ID, "error", spErr)
				outcome = domain.OutcomeFallback
				n = 0
			}

			if err := tx.MarkEntitiesExtracted(ctx, item.ID); err != nil {
				return err
			}
			outcomes[item.ID] = outcome
			linked += n
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("extract entities (%s): %w", kind, err)
	}

	for id, o := range outcomes {
		result.Set(id, o)
	}
	result.Processed = len(outcomes)
	e.metrics.AddExtracted(result.Processed)
	e.metrics.AddEntitiesLinked(linked)
	if result.Processed > 0 {
		log.Info("entity extraction finished", "processed", result.Processed, "linked", linked,
			"failed", result.Count(domain.OutcomeFallback))
	}
	return result, nil
}

func (e *Extractor) processItem(ctx context.Context, tx *storage.Tx, item domain.NewsItem, watchlist *Watchlist, blacklist map[string]struct{}) (int, error) {
	candidates, err := e.Candidates(item.AnalysisText(), watchlist, blacklist)
	if err != nil {
		return 0, err
	}

	linked := 0
	for _, c := range candidates {
		ent, err := tx.FindEntityByName(ctx, c.Name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if ent.ID, err = tx.CreateEntity(ctx, c.Name, c.Type); err != nil {
				return linked, err
			}
		case err != nil:
			return linked, err
		case ent.IsIgnored:
			slog.Debug("skipping ignored entity", "item_id", item.ID, "entity", ent.Name)
			continue
		}

		ok, err := tx.LinkEntity(ctx, item.ID, ent.ID)
		if err != nil {
			return linked, err
		}
		if ok {
			linked++
		}
	}
	return linked, nil
}

// Candidates runs NER and the watchlist over text and returns the filtered,
// de-duplicated entity candidates. Watchlist matches not already found by
// NER are typed CONCEPT.
func (e *Extractor) Candidates(text string, watchlist *Watchlist, blacklist map[string]struct{}) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate

	add := func(name string, typ domain.EntityType) {
		name = strings.TrimSpace(name)
		if !Valid(name) {
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			return
		}
		seen[key] = true
		if _, ignored := blacklist[key]; ignored {
			return
		}
		out = append(out, Candidate{Name: name, Type: typ})
	}

	if e.recognizer != nil {
		spans, err := e.recognizer.Recognize(text)
		if err != nil {
			return nil, err
		}
		for _, s := range spans {
			if typ, ok := CanonicalType(s.Label); ok {
				add(s.Text, typ)
			}
		}
	}

	for _, name := range watchlist.Match(text) {
		add(name, domain.EntityConcept)
	}
	return out, nil
}
