package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/storage"
)

const sampleYAML = `
database_driver: sqlite
database_url: /tmp/newsroom.db
scan_interval: 30m
translate_batch_delay: 3s
scoring_max_age: 72h
translation_api_key: from-file
sources:
  - name: El País
    url: https://feeds.elpais.com/portada
  - name: Reuters
    url: https://example.com/reuters.xml
    headers:
      X-Api-Key: secret
  - name: Borrador
topics:
  - subject: Energía
    scope: Mercado energético europeo
    keywords: gas, petróleo
    exclusions: fútbol
    relevance: 5
watchlist:
  - name: Iberdrola
    type: organization
    source: El País
  - name: OPEP
ignored:
  - Redacción
`

var envKeys = []string{
	PathEnv, "DATABASE_URL", "DATABASE_DRIVER", "LOG_LEVEL", "MONITORING_PORT", "API_KEY", "GROQ_API_KEY",
	"TRANSLATION_MODEL", "TRANSLATION_BASE_URL", "GEMINI_API_KEY", "SCORING_MODEL", "TRANSLATE_BATCH_DELAY",
	"SCAN_INTERVAL", "SCORING_MAX_AGE", "FRESHNESS", "MAX_GROQ_REQUESTS", "MAX_GEMINI_REQUESTS",
	"MAX_TOTAL_REQUESTS", "TRANSLATE_MAX_ITEMS", "DEBUG",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsroom.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabaseDriver != "sqlite" || cfg.Freshness != 24*time.Hour || cfg.TranslateBatchSize != 5 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.EntityTranslatedBatch != 10 || cfg.EntityNativeBatch != 100 || cfg.ScoringBatchSize != 5 {
		t.Errorf("unexpected batch defaults %+v", cfg)
	}
	if cfg.ScoringMaxAge != 0 {
		t.Error("scoring give-up must be disabled by default")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(PathEnv, writeConfig(t, sampleYAML))
	t.Setenv("API_KEY", "legacy")
	t.Setenv("GROQ_API_KEY", "groq")
	t.Setenv("TRANSLATE_BATCH_DELAY", "5")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ScanInterval != 30*time.Minute || cfg.ScoringMaxAge != 72*time.Hour {
		t.Errorf("durations from file not applied: %v %v", cfg.ScanInterval, cfg.ScoringMaxAge)
	}
	if cfg.TranslateBatchDelay != 5*time.Second {
		t.Errorf("env should override the file delay, got %v", cfg.TranslateBatchDelay)
	}
	if cfg.TranslationAPIKey != "groq" {
		t.Errorf("GROQ_API_KEY should win, got %q", cfg.TranslationAPIKey)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("DEBUG=true should force debug logging, got %q", cfg.LogLevel)
	}
	if cfg.TranslateBatchSize != 5 {
		t.Error("defaults not present in the file must be kept")
	}
	if len(cfg.Sources) != 3 || len(cfg.Topics) != 1 || len(cfg.Watchlist) != 2 {
		t.Errorf("catalogue not loaded: %+v", cfg)
	}
}

func TestValidateRejectsBadCatalogue(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"relevance": "topics:\n  - subject: X\n    relevance: 9\n",
		"type":      "sources:\n  - name: X\n    type: ftp\n    url: ftp://x\n",
		"duplicate": "sources:\n  - name: X\n    url: https://a\n  - name: x\n    url: https://b\n",
		"watchlist": "watchlist:\n  - name: X\n    source: Nowhere\n",
		"driver":    "database_driver: mysql\n",
	}
	for name, body := range cases {
		if _, err := LoadFile(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestSeed(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFile(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for i := 0; i < 2; i++ {
		res, err := cfg.Seed(ctx, store)
		if err != nil {
			t.Fatal(err)
		}
		if res.Sources != 3 || res.Topics != 1 || res.Watchlist != 2 || res.Ignored != 1 {
			t.Fatalf("unexpected seed result %+v", res)
		}
	}

	err = store.InTx(ctx, func(tx *storage.Tx) error {
		sources, err := tx.ActiveSources(ctx)
		if err != nil {
			return err
		}
		var names []string
		for _, s := range sources {
			if s.Active {
				names = append(names, s.Name)
			}
		}
		if strings.Join(names, ",") != "El País,Reuters" {
			t.Errorf("expected two active sources, got %v", names)
		}

		topics, err := tx.ListTopics(ctx)
		if err != nil {
			return err
		}
		if len(topics) != 1 || topics[0].RelevanceLevel != 5 {
			t.Errorf("unexpected topics %+v", topics)
		}

		e, err := tx.FindEntityByName(ctx, "iberdrola")
		if err != nil {
			return err
		}
		if e.Type != domain.EntityOrganization {
			t.Errorf("unexpected watchlist type %q", e.Type)
		}

		ignored, err := tx.IgnoredNames(ctx)
		if err != nil {
			return err
		}
		if _, ok := ignored["redacción"]; !ok {
			t.Errorf("ignored name not stored: %v", ignored)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "scan_interval: 10m\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = Watch(ctx, path, func(c *Config) {
			select {
			case changed <- c:
			default:
			}
		})
	}()
	<-ready
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(path, []byte("scan_interval: 20m\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.ScanInterval != 20*time.Minute {
			t.Errorf("reloaded config has %v", cfg.ScanInterval)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change not detected")
	}
}
