// Package config loads settings from defaults, an optional YAML file and the
// environment, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/storage"
)

// PathEnv names the YAML file to load.
const PathEnv = "NEWSROOM_CONFIG"

type Config struct {
	// Database
	DatabaseDriver string `yaml:"database_driver"`
	DatabaseURL    string `yaml:"database_url"`

	// App settings
	LogLevel       string        `yaml:"log_level"`
	Debug          bool          `yaml:"debug"`
	MonitoringPort string        `yaml:"monitoring_port"`
	ScanInterval   time.Duration `yaml:"scan_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`

	// Feed reader
	Freshness time.Duration `yaml:"freshness"`
	UserAgent string        `yaml:"user_agent"`

	// Translation (OpenAI-compatible endpoint, Groq by default)
	TranslationAPIKey    string        `yaml:"translation_api_key"`
	TranslationBaseURL   string        `yaml:"translation_base_url"`
	TranslationModel     string        `yaml:"translation_model"`
	TranslateBatchSize   int           `yaml:"translate_batch_size"`
	TranslateMaxItems    int           `yaml:"translate_max_items"`
	TranslateBatchDelay  time.Duration `yaml:"translate_batch_delay"`
	TranslationCacheTTL  time.Duration `yaml:"translation_cache_ttl"`
	TranslationCacheSize int           `yaml:"translation_cache_size"`

	// Entity extraction
	EntityTranslatedBatch int `yaml:"entity_translated_batch"`
	EntityNativeBatch     int `yaml:"entity_native_batch"`

	// Scoring
	GeminiAPIKey     string        `yaml:"gemini_api_key"`
	ScoringModel     string        `yaml:"scoring_model"`
	ScoringBatchSize int           `yaml:"scoring_batch_size"`
	ScoringMaxAge    time.Duration `yaml:"scoring_max_age"`

	// Daily request budgets, 0 = unlimited
	MaxGroqRequests   int `yaml:"max_groq_requests"`
	MaxGeminiRequests int `yaml:"max_gemini_requests"`
	MaxTotalRequests  int `yaml:"max_total_requests"`

	// Seed catalogue
	Sources   []SourceSeed `yaml:"sources"`
	Topics    []TopicSeed  `yaml:"topics"`
	Watchlist []WatchSeed  `yaml:"watchlist"`
	Ignored   []string     `yaml:"ignored"`

	path string
}

// SourceSeed declares a source in the YAML catalogue.
type SourceSeed struct {
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Pattern string            `yaml:"pattern"`
	Active  *bool             `yaml:"active"`
}

type TopicSeed struct {
	Subject    string `yaml:"subject"`
	Scope      string `yaml:"scope"`
	Keywords   string `yaml:"keywords"`
	Exclusions string `yaml:"exclusions"`
	Relevance  int    `yaml:"relevance"`
}

// WatchSeed is a watchlist entity, optionally tied to a source by name.
type WatchSeed struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
}

func defaultConfig() *Config {
	return &Config{
		DatabaseDriver:        "sqlite",
		DatabaseURL:           "newsroom.db",
		LogLevel:              "info",
		MonitoringPort:        "8080",
		ScanInterval:          time.Hour,
		RequestTimeout:        30 * time.Second,
		RetryAttempts:         2,
		RetryDelay:            2 * time.Second,
		Freshness:             24 * time.Hour,
		TranslationBaseURL:    "https://api.groq.com/openai/v1",
		TranslationModel:      "llama-3.1-8b-instant",
		TranslateBatchSize:    5,
		TranslateMaxItems:     50,
		TranslateBatchDelay:   2 * time.Second,
		TranslationCacheTTL:   48 * time.Hour,
		TranslationCacheSize:  1000,
		EntityTranslatedBatch: 10,
		EntityNativeBatch:     100,
		ScoringModel:          "gemini-2.0-flash",
		ScoringBatchSize:      5,
		MaxGroqRequests:       1000,
		MaxGeminiRequests:     200,
	}
}

// Load builds the configuration from defaults, the file named by
// NEWSROOM_CONFIG (if any) and the environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// Path is the YAML file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

func (c *Config) applyEnvOverrides() {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.DatabaseDriver, "DATABASE_DRIVER")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.MonitoringPort, "MONITORING_PORT")

	// API_KEY is the legacy name of the translation key.
	setString(&c.TranslationAPIKey, "API_KEY")
	setString(&c.TranslationAPIKey, "GROQ_API_KEY")
	setString(&c.TranslationModel, "TRANSLATION_MODEL")
	setString(&c.TranslationBaseURL, "TRANSLATION_BASE_URL")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.ScoringModel, "SCORING_MODEL")

	setDuration(&c.TranslateBatchDelay, "TRANSLATE_BATCH_DELAY")
	setDuration(&c.ScanInterval, "SCAN_INTERVAL")
	setDuration(&c.ScoringMaxAge, "SCORING_MAX_AGE")
	setDuration(&c.Freshness, "FRESHNESS")

	setInt(&c.MaxGroqRequests, "MAX_GROQ_REQUESTS")
	setInt(&c.MaxGeminiRequests, "MAX_GEMINI_REQUESTS")
	setInt(&c.MaxTotalRequests, "MAX_TOTAL_REQUESTS")
	setInt(&c.TranslateMaxItems, "TRANSLATE_MAX_ITEMS")

	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val >= 0 {
			*dst = val
		} else {
			slog.Warn("ignoring invalid integer", "env", key, "value", v)
		}
	}
}

// setDuration accepts Go durations ("90s") or plain seconds ("90").
func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		*dst = d
		return
	}
	slog.Warn("ignoring invalid duration", "env", key, "value", v)
}

func (c *Config) Validate() error {
	if _, err := storage.ParseDialect(c.DatabaseDriver); err != nil {
		return err
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.TranslateBatchSize <= 0 || c.ScoringBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if c.EntityTranslatedBatch <= 0 || c.EntityNativeBatch <= 0 {
		return fmt.Errorf("entity batch sizes must be positive")
	}
	if c.Freshness <= 0 {
		return fmt.Errorf("freshness window must be positive")
	}

	seen := make(map[string]bool)
	for _, s := range c.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("source without a name")
		}
		if seen[strings.ToLower(name)] {
			return fmt.Errorf("duplicate source %q", name)
		}
		seen[strings.ToLower(name)] = true
		if _, err := s.Source(); err != nil {
			return err
		}
	}
	for _, t := range c.Topics {
		if strings.TrimSpace(t.Subject) == "" {
			return fmt.Errorf("topic without a subject")
		}
		if t.Relevance < 1 || t.Relevance > 5 {
			return fmt.Errorf("topic %q: relevance must be between 1 and 5", t.Subject)
		}
	}
	for _, w := range c.Watchlist {
		if _, err := w.EntityType(); err != nil {
			return err
		}
		if w.Source != "" && !seen[strings.ToLower(strings.TrimSpace(w.Source))] {
			return fmt.Errorf("watchlist entry %q refers to unknown source %q", w.Name, w.Source)
		}
	}
	return nil
}

// Source converts the seed into a typed source. A seed without url is
// stored inactive.
func (s SourceSeed) Source() (domain.Source, error) {
	src := domain.Source{Name: strings.TrimSpace(s.Name), Active: s.Active == nil || *s.Active}
	url := strings.TrimSpace(s.URL)

	switch domain.SourceType(strings.ToUpper(strings.TrimSpace(s.Type))) {
	case domain.SourceRSS, "":
		src.Config = domain.SourceConfig{Type: domain.SourceRSS, RSS: &domain.RSSConfig{URL: url, Headers: s.Headers}}
	case domain.SourceHTML:
		src.Config = domain.SourceConfig{Type: domain.SourceHTML, HTML: &domain.HTMLConfig{URL: url, Pattern: s.Pattern}}
	default:
		return domain.Source{}, fmt.Errorf("source %q: %w: %q", s.Name, domain.ErrUnknownSourceType, s.Type)
	}
	if url == "" {
		src.Active = false
	}
	return src, nil
}

func (t TopicSeed) Topic() domain.InterestTopic {
	return domain.InterestTopic{
		Subject:        strings.TrimSpace(t.Subject),
		Scope:          t.Scope,
		Keywords:       t.Keywords,
		Exclusions:     t.Exclusions,
		RelevanceLevel: t.Relevance,
	}
}

// EntityType parses the seed type; empty means CONCEPT.
func (w WatchSeed) EntityType() (domain.EntityType, error) {
	switch typ := domain.EntityType(strings.ToUpper(strings.TrimSpace(w.Type))); typ {
	case "":
		return domain.EntityConcept, nil
	case domain.EntityPerson, domain.EntityOrganization, domain.EntityLocation, domain.EntityConcept:
		return typ, nil
	}
	return "", fmt.Errorf("watchlist entry %q: unknown entity type %q", w.Name, w.Type)
}
