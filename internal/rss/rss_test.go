package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/langdetect"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/storage"
)

func feedXML(now time.Time) string {
	fresh := now.Add(-time.Hour).Format(time.RFC1123Z)
	stale := now.Add(-48 * time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<title>Test feed</title>
<item>
  <title>Government approves the national budget</title>
  <link>https://example.com/budget#comments</link>
  <pubDate>%s</pubDate>
  <description>short summary</description>
  <content:encoded><![CDATA[<p>The cabinet <b>approved</b> the draft budget bill on Tuesday.</p><script>track()</script><p>It now goes to parliament.</p>]]></content:encoded>
</item>
<item>
  <title>El Gobierno aprueba los presupuestos</title>
  <link>https://example.com/presupuestos</link>
  <pubDate>%s</pubDate>
  <description>&lt;p&gt;El Consejo de Ministros ha aprobado el proyecto de ley de presupuestos.&lt;/p&gt;</description>
</item>
<item>
  <title>Old news</title>
  <link>https://example.com/old</link>
  <pubDate>%s</pubDate>
  <description>stale</description>
</item>
<item>
  <title>Government approves the national budget</title>
  <link>https://example.com/budget</link>
  <pubDate>%s</pubDate>
</item>
</channel>
</rss>`, fresh, fresh, stale, fresh)
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "rss.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addSource(t *testing.T, s *storage.Store, name, url string, headers map[string]string) {
	t.Helper()
	err := s.InTx(context.Background(), func(tx *storage.Tx) error {
		_, err := tx.UpsertSource(context.Background(), domain.Source{
			Name:   name,
			Active: true,
			Config: domain.SourceConfig{Type: domain.SourceRSS, RSS: &domain.RSSConfig{URL: url, Headers: headers}},
		})
		return err
	})
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
}

func TestScanIngestsFreshEntriesOnce(t *testing.T) {
	now := time.Now()
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedXML(now))
	}))
	defer srv.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer broken.Close()

	store := newStore(t)
	addSource(t, store, "broken", broken.URL, nil)
	addSource(t, store, "main", srv.URL, map[string]string{"X-Api-Key": "secret"})

	m := metrics.New()
	reader := NewReader(store, langdetect.New(), m, Options{})
	ctx := context.Background()

	res, err := reader.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if res.Created != 2 || len(res.NewIDs) != 2 {
		t.Fatalf("expected 2 new items, got %+v", res)
	}
	if gotHeader != "secret" {
		t.Errorf("source headers were not sent, got %q", gotHeader)
	}
	if m.SourceFailures != 1 {
		t.Errorf("expected the broken source to be counted, got %d", m.SourceFailures)
	}

	err = store.InTx(ctx, func(tx *storage.Tx) error {
		en, err := tx.GetNews(ctx, res.NewIDs[0])
		if err != nil {
			return err
		}
		if en.URL != "https://example.com/budget" {
			t.Errorf("fragment should be stripped, got %q", en.URL)
		}
		if en.ContentSnippet != "The cabinet approved the draft budget bill on Tuesday. It now goes to parliament." {
			t.Errorf("unexpected snippet %q", en.ContentSnippet)
		}
		if en.Language != "en" || en.Status != domain.StatusDiscovered || en.EntitiesExtracted || en.AIScore != nil {
			t.Errorf("unexpected initial state %+v", en)
		}

		es, err := tx.GetNews(ctx, res.NewIDs[1])
		if err != nil {
			return err
		}
		if es.Language != "es" {
			t.Errorf("expected es, got %q", es.Language)
		}
		if strings.Contains(es.ContentSnippet, "<p>") {
			t.Errorf("markup left in snippet %q", es.ContentSnippet)
		}

		if exists, _ := tx.NewsExists(ctx, "https://example.com/old"); exists {
			t.Error("stale entry must never be stored")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	again, err := reader.Scan(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if again.Created != 0 {
		t.Errorf("second scan should create nothing, got %d", again.Created)
	}
}

func TestCleanHTML(t *testing.T) {
	cases := map[string]string{
		"":                                   "",
		"plain   text\n\twith spaces":        "plain text with spaces",
		"<p>Hello <b>big</b>world</p>":       "Hello big world",
		"<style>p{}</style><p>A &amp; B</p>": "A & B",
	}
	for in, want := range cases {
		if got := CleanHTML(in); got != want {
			t.Errorf("CleanHTML(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	if got := CleanTitle("  <b>Breaking</b> &amp; news "); got != "Breaking & news" {
		t.Errorf("unexpected title %q", got)
	}
}
