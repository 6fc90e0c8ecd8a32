package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsIngested        int64
	DuplicatesSkipped    int64
	StaleSkipped         int64
	SourceFailures       int64
	NativeCopies         int64
	Translations         int64
	TranslationFallbacks int64
	TranslationCacheHits int64
	ItemsExtracted       int64
	EntitiesLinked       int64
	ItemsScored          int64
	ScoringFailures      int64
	ScoringExpired       int64

	// AI usage
	PromptTokens     int64
	CompletionTokens int64
	APICalls         int64
	APILatency       time.Duration

	// Timings
	LastStageDuration map[string]time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true, LastStageDuration: make(map[string]time.Duration)}
}

func (m *Metrics) add(field *int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += int64(n)
}

func (m *Metrics) AddIngested(n int)             { m.add(&m.ItemsIngested, n) }
func (m *Metrics) AddDuplicates(n int)           { m.add(&m.DuplicatesSkipped, n) }
func (m *Metrics) AddStale(n int)                { m.add(&m.StaleSkipped, n) }
func (m *Metrics) AddSourceFailures(n int)       { m.add(&m.SourceFailures, n) }
func (m *Metrics) AddNativeCopies(n int)         { m.add(&m.NativeCopies, n) }
func (m *Metrics) AddTranslations(n int)         { m.add(&m.Translations, n) }
func (m *Metrics) AddTranslationFallbacks(n int) { m.add(&m.TranslationFallbacks, n) }
func (m *Metrics) AddTranslationCacheHits(n int) { m.add(&m.TranslationCacheHits, n) }
func (m *Metrics) AddExtracted(n int)            { m.add(&m.ItemsExtracted, n) }
func (m *Metrics) AddEntitiesLinked(n int)       { m.add(&m.EntitiesLinked, n) }
func (m *Metrics) AddScored(n int)               { m.add(&m.ItemsScored, n) }
func (m *Metrics) AddScoringFailures(n int)      { m.add(&m.ScoringFailures, n) }
func (m *Metrics) AddScoringExpired(n int)       { m.add(&m.ScoringExpired, n) }

// RecordAPICall accumulates token usage and latency of one external call.
func (m *Metrics) RecordAPICall(promptTokens, completionTokens int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.APICalls++
	m.PromptTokens += int64(promptTokens)
	m.CompletionTokens += int64(completionTokens)
	m.APILatency += latency
}

func (m *Metrics) RecordStage(stage string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastStageDuration[stage] = duration
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgLatency := int64(0)
	if m.APICalls > 0 {
		avgLatency = (m.APILatency / time.Duration(m.APICalls)).Milliseconds()
	}

	stages := make(map[string]int64, len(m.LastStageDuration))
	for k, v := range m.LastStageDuration {
		stages[k] = v.Milliseconds()
	}

	return map[string]interface{}{
		"items_ingested":         m.ItemsIngested,
		"duplicates_skipped":     m.DuplicatesSkipped,
		"stale_skipped":          m.StaleSkipped,
		"source_failures":        m.SourceFailures,
		"native_copies":          m.NativeCopies,
		"translations":           m.Translations,
		"translation_fallbacks":  m.TranslationFallbacks,
		"translation_cache_hits": m.TranslationCacheHits,
		"items_extracted":        m.ItemsExtracted,
		"entities_linked":        m.EntitiesLinked,
		"items_scored":           m.ItemsScored,
		"scoring_failures":       m.ScoringFailures,
		"scoring_expired":        m.ScoringExpired,
		"api_calls":              m.APICalls,
		"prompt_tokens":          m.PromptTokens,
		"completion_tokens":      m.CompletionTokens,
		"average_api_latency_ms": avgLatency,
		"last_stage_duration_ms": stages,
		"last_run_time":          m.LastRunTime.Format(time.RFC3339),
		"last_error_time":        m.LastErrorTime.Format(time.RFC3339),
		"last_error":             m.LastError,
		"is_healthy":             m.IsHealthy,
	}
}
