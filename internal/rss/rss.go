// Package rss implements the FeedReader: it fetches active feed sources,
// drops stale and already known entries and stores the rest as DISCOVERED items.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/langdetect"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/storage"
)

// DefaultFreshness is how old an entry may be to still be ingested.
const DefaultFreshness = 24 * time.Hour

const defaultTitle = "Sin título"

// Options tunes the reader.
type Options struct {
	Freshness time.Duration
	Timeout   time.Duration
	UserAgent string
}

// Reader is the FeedReader stage.
type Reader struct {
	store      *storage.Store
	classifier *langdetect.Classifier
	parser     *gofeed.Parser
	client     *http.Client
	metrics    *metrics.Metrics
	opts       Options
	now        func() time.Time
}

// ScanResult reports what a scan created.
type ScanResult struct {
	Created int
	NewIDs  []int64
}

func NewReader(store *storage.Store, classifier *langdetect.Classifier, m *metrics.Metrics, opts Options) *Reader {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "newsroom/1.0 (+https://github.com/deusflow/newsroom)"
	}
	if m == nil {
		m = metrics.Global
	}
	return &Reader{
		store:      store,
		classifier: classifier,
		parser:     gofeed.NewParser(),
		client:     &http.Client{Timeout: opts.Timeout},
		metrics:    m,
		opts:       opts,
		now:        time.Now,
	}
}

// Scan processes every active RSS source. Failures of single sources or
// entries are logged and skipped; an error is returned only when the
// source list cannot be loaded.
func (r *Reader) Scan(ctx context.Context) (ScanResult, error) {
	var sources []domain.Source
	err := r.store.InTx(ctx, func(tx *storage.Tx) error {
		var err error
		sources, err = tx.ActiveSources(ctx)
		return err
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("load sources: %w", err)
	}

	cutoff := r.now().Add(-r.opts.Freshness)
	slog.Info("starting feed scan", "sources", len(sources), "cutoff", cutoff.Format(time.RFC3339))

	var result ScanResult
	successCount := 0
	for _, src := range sources {
		feedURL := src.FeedURL()
		if feedURL == "" {
			continue
		}

		ids, err := r.scanSource(ctx, src, feedURL, cutoff)
		if err != nil {
			r.metrics.AddSourceFailures(1)
			slog.Error("feed scan failed", "source_id", src.ID, "source", src.Name, "error", err)
			continue
		}
		successCount++
		result.NewIDs = append(result.NewIDs, ids...)
	}

	result.Created = len(result.NewIDs)
	r.metrics.AddIngested(result.Created)
	slog.Info("feed scan finished", "sources_ok", successCount, "sources", len(sources), "created", result.Created)
	return result, nil
}

func (r *Reader) scanSource(ctx context.Context, src domain.Source, feedURL string, cutoff time.Time) ([]int64, error) {
	feed, err := r.fetch(ctx, feedURL, src.Config.RSS.Headers)
	if err != nil {
		return nil, err
	}

	var ids []int64
	stale, dups := 0, 0
	err = r.store.InTx(ctx, func(tx *storage.Tx) error {
		for i, item := range feed.Items {
			if item == nil {
				continue
			}
			spErr := tx.Savepoint(ctx, fmt.Sprintf("entry_%d", i), func() error {
				id, outcome, err := r.ingestEntry(ctx, tx, src.ID, item, cutoff)
				switch outcome {
				case entryStale:
					stale++
				case entryDuplicate:
					dups++
				case entryCreated:
					ids = append(ids, id)
				}
				return err
			})
			if spErr != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("skipping feed entry", "source_id", src.ID, "link", item.Link, "error", spErr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.AddStale(stale)
	r.metrics.AddDuplicates(dups)
	slog.Debug("source scanned", "source_id", src.ID, "entries", len(feed.Items), "created", len(ids),
		"stale", stale, "duplicates", dups)
	return ids, nil
}

type entryOutcome int

const (
	entrySkipped entryOutcome = iota
	entryStale
	entryDuplicate
	entryCreated
)

func (r *Reader) ingestEntry(ctx context.Context, tx *storage.Tx, sourceID int64, item *gofeed.Item, cutoff time.Time) (int64, entryOutcome, error) {
	link := canonicalLink(item)
	if link == "" {
		return 0, entrySkipped, nil
	}

	exists, err := tx.NewsExists(ctx, link)
	if err != nil {
		return 0, entrySkipped, err
	}
	if exists {
		return 0, entryDuplicate, nil
	}

	published := entryTime(item, r.now())
	if published.Before(cutoff) {
		slog.Debug("skipping old entry", "link", link, "published", published.Format(time.RFC3339))
		return 0, entryStale, nil
	}

	title := CleanTitle(item.Title)
	if title == "" {
		title = defaultTitle
	}
	snippet := CleanHTML(entryContent(item))

	id, err := tx.InsertNews(ctx, domain.NewNewsItem{
		SourceID:       sourceID,
		URL:            link,
		Title:          title,
		ContentSnippet: snippet,
		PublishedAt:    published,
		Language:       r.classifier.DetectItem(title, snippet),
	})
	if err != nil {
		return 0, entrySkipped, err
	}
	return id, entryCreated, nil
}

func (r *Reader) fetch(ctx context.Context, feedURL string, headers map[string]string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", r.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", feedURL, resp.StatusCode)
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", feedURL, err)
	}
	return feed, nil
}

// canonicalLink returns the entry link without surrounding space or fragment,
// falling back to a URL-shaped GUID.
func canonicalLink(item *gofeed.Item) string {
	link := strings.TrimSpace(item.Link)
	if link == "" && strings.HasPrefix(item.GUID, "http") {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return ""
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	u.Fragment = ""
	return u.String()
}

func entryTime(item *gofeed.Item, now time.Time) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

// entryContent picks the richest body: full content, then the summary or
// description, then extension summaries.
func entryContent(item *gofeed.Item) string {
	if c := strings.TrimSpace(item.Content); c != "" {
		return c
	}
	if d := strings.TrimSpace(item.Description); d != "" {
		return d
	}
	if item.ITunesExt != nil {
		if s := strings.TrimSpace(item.ITunesExt.Summary); s != "" {
			return s
		}
	}
	if item.DublinCoreExt != nil {
		for _, d := range item.DublinCoreExt.Description {
			if d = strings.TrimSpace(d); d != "" {
				return d
			}
		}
	}
	return ""
}
