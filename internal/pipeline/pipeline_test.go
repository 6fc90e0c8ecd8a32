package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/entities"
	"github.com/deusflow/newsroom/internal/gemini"
	"github.com/deusflow/newsroom/internal/langdetect"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/rss"
	"github.com/deusflow/newsroom/internal/scoring"
	"github.com/deusflow/newsroom/internal/storage"
	"github.com/deusflow/newsroom/internal/translate"
)

const feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Wire</title>
<item>
  <title>Government approves the national budget</title>
  <link>https://example.com/budget</link>
  <pubDate>%[1]s</pubDate>
  <description>The cabinet approved the draft budget bill on Tuesday. It now goes to parliament.</description>
</item>
<item>
  <title>El Gobierno aprueba los presupuestos</title>
  <link>https://example.com/presupuestos</link>
  <pubDate>%[1]s</pubDate>
  <description>El Consejo de Ministros ha aprobado el proyecto de ley de presupuestos.</description>
</item>
</channel>
</rss>`

type spanishClient struct{ calls int }

func (c *spanishClient) TranslateBatch(_ context.Context, batch map[string]translate.SourceText) (translate.BatchResponse, error) {
	c.calls++
	items := make(map[string]translate.Translation, len(batch))
	for id := range batch {
		items[id] = translate.Translation{
			TitleES:   "El Gobierno aprueba el presupuesto nacional",
			ContentES: "El Consejo de Ministros aprobó el martes el proyecto de presupuestos. Ahora pasa al Parlamento.",
		}
	}
	return translate.BatchResponse{Items: items}, nil
}

type keywordRecognizer map[string]string

func (k keywordRecognizer) Recognize(text string) ([]entities.Span, error) {
	var spans []entities.Span
	for name, label := range k {
		if strings.Contains(text, name) {
			spans = append(spans, entities.Span{Text: name, Label: label})
		}
	}
	return spans, nil
}

var promptItemID = regexp.MustCompile(`"id": (\d+),\s+"title"`)

type scoreAll int

func (s scoreAll) GenerateJSON(_ context.Context, prompt string) (gemini.Response, error) {
	var parts []string
	for _, m := range promptItemID.FindAllStringSubmatch(prompt, -1) {
		parts = append(parts, fmt.Sprintf(`{"news_id": %s, "ai_score": %d, "ai_category": "x", "ai_explanation": "Presupuestos."}`, m[1], int(s)))
	}
	return gemini.Response{Text: "[" + strings.Join(parts, ",") + "]"}, nil
}

func TestRunCycleEnrichesNewItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feed, time.Now().Add(-time.Hour).Format(time.RFC1123Z))
	}))
	defer srv.Close()

	ctx := context.Background()
	store, err := storage.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.InTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.UpsertSource(ctx, domain.Source{
			Name:   "wire",
			Active: true,
			Config: domain.SourceConfig{Type: domain.SourceRSS, RSS: &domain.RSSConfig{URL: srv.URL}},
		}); err != nil {
			return err
		}
		_, err := tx.UpsertTopic(ctx, domain.InterestTopic{Subject: "Economía", Scope: "Presupuestos públicos", Keywords: "presupuestos, budget", RelevanceLevel: 4})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	classifier := langdetect.New()
	client := &spanishClient{}
	runner := New(Stages{
		Scanner:    rss.NewReader(store, classifier, m, rss.Options{}),
		Translator: translate.New(translate.Deps{Store: store, Client: client, Classifier: classifier, Metrics: m}, translate.Options{BatchSize: 5, MaxItems: 50}),
		Extractor: entities.New(store, keywordRecognizer{
			"Consejo de Ministros": "ORG",
			"Parlamento":           "ORG",
		}, m, entities.Options{}),
		Scorer: scoring.New(store, scoreAll(75), nil, m, scoring.Options{}),
	}, m)

	rep, err := runner.RunCycle(ctx)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if rep.Created != 2 || rep.Translated != 2 || rep.Extracted != 2 || rep.Scored != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if client.calls != 1 {
		t.Errorf("expected one translation call for the English item, got %d", client.calls)
	}

	err = store.InTx(ctx, func(tx *storage.Tx) error {
		stats, err := tx.Stats(ctx)
		if err != nil {
			return err
		}
		if stats["pending_translation"] != 0 || stats["pending_entities"] != 0 || stats["pending_scoring"] != 0 {
			t.Errorf("everything should be enriched, got %v", stats)
		}
		if stats["entities"] != 2 {
			t.Errorf("expected 2 entities, got %d", stats["entities"])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	again, err := runner.RunCycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Created != 0 || again.Translated != 0 || again.Scored != 0 {
		t.Errorf("second cycle must find nothing new, got %+v", again)
	}
}

type blockingScanner struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingScanner) Scan(ctx context.Context) (rss.ScanResult, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return rss.ScanResult{Created: 1}, nil
}

func TestConcurrentInvocationIsRejected(t *testing.T) {
	scanner := &blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	runner := New(Stages{Scanner: scanner}, metrics.New())

	done := make(chan error, 1)
	go func() {
		_, err := runner.Scan(context.Background())
		done <- err
	}()
	<-scanner.started

	if _, err := runner.Trigger(context.Background(), StageScan); !errors.Is(err, ErrStageBusy) {
		t.Fatalf("expected ErrStageBusy, got %v", err)
	}

	close(scanner.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	rep, err := runner.Trigger(context.Background(), StageScan)
	if err != nil || rep.Created != 1 {
		t.Fatalf("stage should be free again: %+v %v", rep, err)
	}
}

func TestTriggerUnknownStage(t *testing.T) {
	runner := New(Stages{}, metrics.New())
	if _, err := runner.Trigger(context.Background(), "publish"); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
	rep, err := runner.Trigger(context.Background(), StageCycle)
	if err != nil {
		t.Fatalf("cycle without stages: %v", err)
	}
	if rep.Created != 0 || len(rep.Skipped) != 0 {
		t.Errorf("unexpected report %+v", rep)
	}
}

func TestScheduleStopsOnCancel(t *testing.T) {
	m := metrics.New()
	runner := New(Stages{}, m)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runner.Schedule(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if !m.Healthy() {
		t.Error("successful cycle should keep the process healthy")
	}
}
