// Package pipeline runs the enrichment stages: one stage at a time per kind,
// the full scan cycle, and the periodic scheduler used by serve.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/rss"
)

// Stage names accepted by Trigger.
const (
	StageScan      = "scan"
	StageTranslate = "translate"
	StageExtract   = "extract"
	StageScore     = "score"
	StageCycle     = "cycle"
)

var (
	// ErrStageBusy is returned when an invocation of the same stage is still running.
	ErrStageBusy = errors.New("stage already running")
	// ErrUnknownStage is returned by Trigger for names it does not know.
	ErrUnknownStage = errors.New("unknown stage")
)

type Scanner interface {
	Scan(ctx context.Context) (rss.ScanResult, error)
}

type Translator interface {
	Run(ctx context.Context, ids []int64) (*domain.StageResult, error)
}

type Extractor interface {
	RunNative(ctx context.Context) (*domain.StageResult, error)
	RunTranslated(ctx context.Context) (*domain.StageResult, error)
}

type Scorer interface {
	Run(ctx context.Context) (*domain.StageResult, error)
}

// Stages groups the stage implementations. A nil stage is skipped.
type Stages struct {
	Scanner    Scanner
	Translator Translator
	Extractor  Extractor
	Scorer     Scorer
}

// Report summarizes one invocation.
type Report struct {
	Stage      string   `json:"stage"`
	Created    int      `json:"created"`
	Translated int      `json:"translated"`
	Extracted  int      `json:"extracted"`
	Scored     int      `json:"scored"`
	Skipped    []string `json:"skipped,omitempty"`
}

// Runner serializes invocations per stage.
type Runner struct {
	stages  Stages
	metrics *metrics.Metrics
	locks   map[string]*sync.Mutex
}

func New(stages Stages, m *metrics.Metrics) *Runner {
	if m == nil {
		m = metrics.Global
	}
	locks := make(map[string]*sync.Mutex)
	for _, name := range []string{StageScan, StageTranslate, StageExtract, StageScore, StageCycle} {
		locks[name] = &sync.Mutex{}
	}
	return &Runner{stages: stages, metrics: m, locks: locks}
}

func (r *Runner) acquire(stage string) (func(), error) {
	mu := r.locks[stage]
	if !mu.TryLock() {
		return nil, fmt.Errorf("%s: %w", stage, ErrStageBusy)
	}
	return mu.Unlock, nil
}

// Scan runs the FeedReader.
func (r *Runner) Scan(ctx context.Context) (rss.ScanResult, error) {
	if r.stages.Scanner == nil {
		return rss.ScanResult{}, nil
	}
	release, err := r.acquire(StageScan)
	if err != nil {
		return rss.ScanResult{}, err
	}
	defer release()
	return r.stages.Scanner.Scan(ctx)
}

// Translate runs the Translator, restricted to ids when given.
func (r *Runner) Translate(ctx context.Context, ids []int64) (*domain.StageResult, error) {
	if r.stages.Translator == nil {
		return domain.NewStageResult(StageTranslate, ""), nil
	}
	release, err := r.acquire(StageTranslate)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.stages.Translator.Run(ctx, ids)
}

// Extract runs the native batch, then the translated one.
func (r *Runner) Extract(ctx context.Context) (int, error) {
	return r.extract(ctx, true, true)
}

func (r *Runner) extract(ctx context.Context, native, translated bool) (int, error) {
	if r.stages.Extractor == nil {
		return 0, nil
	}
	release, err := r.acquire(StageExtract)
	if err != nil {
		return 0, err
	}
	defer release()

	total := 0
	if native {
		res, err := r.stages.Extractor.RunNative(ctx)
		if err != nil {
			return total, err
		}
		total += res.Processed
	}
	if translated {
		res, err := r.stages.Extractor.RunTranslated(ctx)
		if err != nil {
			return total, err
		}
		total += res.Processed
	}
	return total, nil
}

// Score runs the RelevanceScorer.
func (r *Runner) Score(ctx context.Context) (*domain.StageResult, error) {
	if r.stages.Scorer == nil {
		return domain.NewStageResult(StageScore, ""), nil
	}
	release, err := r.acquire(StageScore)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.stages.Scorer.Run(ctx)
}

// Trigger runs the named stage once.
func (r *Runner) Trigger(ctx context.Context, stage string) (Report, error) {
	rep := Report{Stage: stage}
	switch stage {
	case StageScan:
		res, err := r.Scan(ctx)
		rep.Created = res.Created
		return rep, err
	case StageTranslate:
		res, err := r.Translate(ctx, nil)
		if res != nil {
			rep.Translated = res.Processed
		}
		return rep, err
	case StageExtract:
		n, err := r.Extract(ctx)
		rep.Extracted = n
		return rep, err
	case StageScore:
		res, err := r.Score(ctx)
		if res != nil {
			rep.Scored = res.Processed
		}
		return rep, err
	case StageCycle:
		return r.RunCycle(ctx)
	}
	return rep, fmt.Errorf("%q: %w", stage, ErrUnknownStage)
}

// RunCycle scans, extracts native items, translates the new ids first and
// then the backlog, extracts translated items and scores. A busy stage is
// skipped; an error stops the cycle.
func (r *Runner) RunCycle(ctx context.Context) (Report, error) {
	rep := Report{Stage: StageCycle}
	release, err := r.acquire(StageCycle)
	if err != nil {
		return rep, err
	}
	defer release()

	log := logger.Stage(StageCycle, uuid.NewString())
	start := time.Now()
	defer func() { r.metrics.RecordStage(StageCycle, time.Since(start)) }()

	skip := func(stage string, err error) error {
		if errors.Is(err, ErrStageBusy) {
			log.Warn("stage busy, skipped in this cycle", "skipped", stage)
			rep.Skipped = append(rep.Skipped, stage)
			return nil
		}
		return err
	}

	scan, err := r.Scan(ctx)
	if err = skip(StageScan, err); err != nil {
		return rep, fmt.Errorf("scan: %w", err)
	}
	rep.Created = scan.Created

	n, err := r.extract(ctx, true, false)
	if err = skip(StageExtract, err); err != nil {
		return rep, fmt.Errorf("extract native: %w", err)
	}
	rep.Extracted += n

	if len(scan.NewIDs) > 0 {
		res, err := r.Translate(ctx, scan.NewIDs)
		if err = skip(StageTranslate, err); err != nil {
			return rep, fmt.Errorf("translate new items: %w", err)
		}
		if res != nil {
			rep.Translated += res.Processed
		}
	}
	if ctx.Err() == nil {
		res, err := r.Translate(ctx, nil)
		if err = skip(StageTranslate, err); err != nil {
			return rep, fmt.Errorf("translate backlog: %w", err)
		}
		if res != nil {
			rep.Translated += res.Processed
		}
	}

	n, err = r.extract(ctx, false, true)
	if err = skip(StageExtract, err); err != nil {
		return rep, fmt.Errorf("extract translated: %w", err)
	}
	rep.Extracted += n

	res, err := r.Score(ctx)
	if err = skip(StageScore, err); err != nil {
		return rep, fmt.Errorf("score: %w", err)
	}
	if res != nil {
		rep.Scored = res.Processed
	}

	log.Info("cycle finished", "created", rep.Created, "translated", rep.Translated,
		"extracted", rep.Extracted, "scored", rep.Scored, "duration", time.Since(start).String())
	return rep, nil
}

// Schedule runs a cycle immediately and then every interval until ctx is done.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrStageBusy) {
				logger.Warn("previous cycle still running, tick skipped")
			} else if ctx.Err() == nil {
				logger.Error("scheduled cycle failed", "error", err)
				r.metrics.SetError(err.Error())
			}
		} else {
			r.metrics.SetLastRun()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
