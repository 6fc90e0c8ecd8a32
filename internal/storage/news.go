package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/newsroom/internal/domain"
)

var newsColumns = []string{
	"id", "source_id", "url", "title", "content_snippet", "published_at", "language",
	"title_es", "content_es", "entities_extracted", "ai_score", "ai_category",
	"ai_explanation", "status", "created_at",
}

func scanNews(rows interface{ Scan(...any) error }) (domain.NewsItem, error) {
	var (
		n           domain.NewsItem
		sourceID    sql.NullInt64
		publishedAt int64
		createdAt   int64
		titleES     sql.NullString
		contentES   sql.NullString
		score       sql.NullInt64
		category    sql.NullString
		explanation sql.NullString
		status      string
	)

	err := rows.Scan(&n.ID, &sourceID, &n.URL, &n.Title, &n.ContentSnippet, &publishedAt,
		&n.Language, &titleES, &contentES, &n.EntitiesExtracted, &score, &category,
		&explanation, &status, &createdAt)
	if err != nil {
		return n, err
	}

	n.SourceID = sourceID.Int64
	n.PublishedAt = time.Unix(publishedAt, 0).UTC()
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	n.Status = domain.Status(status)
	if titleES.Valid {
		n.TitleES = &titleES.String
	}
	if contentES.Valid {
		n.ContentES = &contentES.String
	}
	if score.Valid {
		v := int(score.Int64)
		n.AIScore = &v
	}
	if category.Valid {
		n.AICategory = &category.String
	}
	if explanation.Valid {
		n.AIExplanation = &explanation.String
	}
	return n, nil
}

func (t *Tx) selectNews(ctx context.Context, b sq.SelectBuilder) ([]domain.NewsItem, error) {
	rows, err := t.query(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var items []domain.NewsItem
	for rows.Next() {
		n, err := scanNews(rows)
		if err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

// NewsExists reports whether an item with url is already stored.
func (t *Tx) NewsExists(ctx context.Context, url string) (bool, error) {
	row, err := t.queryRow(ctx, t.sb.Select("COUNT(*)").From("news_items").Where(sq.Eq{"url": url}))
	if err != nil {
		return false, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check news url: %w", err)
	}
	return count > 0, nil
}

// InsertNews stores a new DISCOVERED item and returns its id.
func (t *Tx) InsertNews(ctx context.Context, n domain.NewNewsItem) (int64, error) {
	lang := n.Language
	if lang == "" {
		lang = domain.LanguageUnknown
	}
	b := t.sb.Insert("news_items").
		Columns("source_id", "url", "title", "content_snippet", "published_at", "language",
			"entities_extracted", "status", "created_at").
		Values(nullableID(n.SourceID), n.URL, n.Title, n.ContentSnippet, n.PublishedAt.Unix(), lang,
			false, string(domain.StatusDiscovered), time.Now().Unix()).
		Suffix("RETURNING id")

	row, err := t.queryRow(ctx, b)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("insert news %s: %w", n.URL, err)
	}
	return id, nil
}

// GetNews loads one item by id.
func (t *Tx) GetNews(ctx context.Context, id int64) (domain.NewsItem, error) {
	items, err := t.selectNews(ctx, t.sb.Select(newsColumns...).From("news_items").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.NewsItem{}, err
	}
	if len(items) == 0 {
		return domain.NewsItem{}, fmt.Errorf("news %d: %w", id, ErrNotFound)
	}
	return items[0], nil
}

// PendingTranslation selects items without a Spanish rendering, restricted
// to ids when ids is non-empty.
func (t *Tx) PendingTranslation(ctx context.Context, ids []int64, limit int) ([]domain.NewsItem, error) {
	b := t.sb.Select(newsColumns...).From("news_items").
		Where(sq.Eq{"title_es": nil}).
		OrderBy("id")
	if len(ids) > 0 {
		b = b.Where(sq.Eq{"id": ids})
	}
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return t.selectNews(ctx, b)
}

// SetLanguage records a detected language.
func (t *Tx) SetLanguage(ctx context.Context, id int64, lang string) error {
	_, err := t.exec(ctx, t.sb.Update("news_items").Set("language", lang).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set language %d: %w", id, err)
	}
	return nil
}

// SetTranslation writes the Spanish rendering. The sentinel is monotonic: an
// item that already has title_es is left untouched and false is returned.
func (t *Tx) SetTranslation(ctx context.Context, id int64, titleES, contentES string) (bool, error) {
	res, err := t.exec(ctx, t.sb.Update("news_items").
		Set("title_es", titleES).
		Set("content_es", contentES).
		Where(sq.Eq{"id": id, "title_es": nil}))
	if err != nil {
		return false, fmt.Errorf("set translation %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// PendingEntitiesTranslated selects translated items whose entities were not extracted.
func (t *Tx) PendingEntitiesTranslated(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	b := t.sb.Select(newsColumns...).From("news_items").
		Where(sq.NotEq{"title_es": nil}).
		Where(sq.Eq{"entities_extracted": false}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return t.selectNews(ctx, b)
}

// PendingEntitiesNative selects native Spanish items whose entities were not extracted.
func (t *Tx) PendingEntitiesNative(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	b := t.sb.Select(newsColumns...).From("news_items").
		Where(sq.Eq{"language": domain.LanguageSpanish, "entities_extracted": false}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return t.selectNews(ctx, b)
}

// MarkEntitiesExtracted sets the extraction sentinel.
func (t *Tx) MarkEntitiesExtracted(ctx context.Context, id int64) error {
	_, err := t.exec(ctx, t.sb.Update("news_items").Set("entities_extracted", true).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark entities extracted %d: %w", id, err)
	}
	return nil
}

// PendingScoring selects DISCOVERED items without a relevance score.
func (t *Tx) PendingScoring(ctx context.Context, limit int) ([]domain.NewsItem, error) {
	b := t.sb.Select(newsColumns...).From("news_items").
		Where(sq.Eq{"status": string(domain.StatusDiscovered), "ai_score": nil}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return t.selectNews(ctx, b)
}

// UnscoredBefore selects DISCOVERED unscored items created before cutoff.
func (t *Tx) UnscoredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.NewsItem, error) {
	b := t.sb.Select(newsColumns...).From("news_items").
		Where(sq.Eq{"status": string(domain.StatusDiscovered), "ai_score": nil}).
		Where(sq.Lt{"created_at": cutoff.Unix()}).
		OrderBy("id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return t.selectNews(ctx, b)
}

// SetScore writes the relevance result if the item is still unscored.
func (t *Tx) SetScore(ctx context.Context, id int64, score int, category, explanation string) (bool, error) {
	res, err := t.exec(ctx, t.sb.Update("news_items").
		Set("ai_score", score).
		Set("ai_category", category).
		Set("ai_explanation", explanation).
		Where(sq.Eq{"id": id, "ai_score": nil}))
	if err != nil {
		return false, fmt.Errorf("set score %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetStatus applies an editorial decision.
func (t *Tx) SetStatus(ctx context.Context, id int64, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	res, err := t.exec(ctx, t.sb.Update("news_items").Set("status", string(status)).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set status %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("news %d: %w", id, ErrNotFound)
	}
	return nil
}

// Restore moves a REJECTED item back to DISCOVERED.
func (t *Tx) Restore(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, t.sb.Update("news_items").
		Set("status", string(domain.StatusDiscovered)).
		Where(sq.Eq{"id": id, "status": string(domain.StatusRejected)}))
	if err != nil {
		return fmt.Errorf("restore %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rejected news %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteNews removes an item in any state.
func (t *Tx) DeleteNews(ctx context.Context, id int64) error {
	res, err := t.exec(ctx, t.sb.Delete("news_items").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("delete news %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("news %d: %w", id, ErrNotFound)
	}
	return nil
}

// EmptyTrash deletes every REJECTED item and returns how many were removed.
func (t *Tx) EmptyTrash(ctx context.Context) (int64, error) {
	res, err := t.exec(ctx, t.sb.Delete("news_items").Where(sq.Eq{"status": string(domain.StatusRejected)}))
	if err != nil {
		return 0, fmt.Errorf("empty trash: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns backlog counters per stage, used by the status command and /metrics.
func (t *Tx) Stats(ctx context.Context) (map[string]int, error) {
	counters := []struct {
		name string
		b    sq.SelectBuilder
	}{
		{"total_items", t.sb.Select("COUNT(*)").From("news_items")},
		{"pending_translation", t.sb.Select("COUNT(*)").From("news_items").Where(sq.Eq{"title_es": nil})},
		{"pending_entities", t.sb.Select("COUNT(*)").From("news_items").
			Where(sq.Eq{"entities_extracted": false}).
			Where(sq.Or{sq.NotEq{"title_es": nil}, sq.Eq{"language": domain.LanguageSpanish}})},
		{"pending_scoring", t.sb.Select("COUNT(*)").From("news_items").
			Where(sq.Eq{"status": string(domain.StatusDiscovered), "ai_score": nil})},
		{"entities", t.sb.Select("COUNT(*)").From("entities")},
		{"topics", t.sb.Select("COUNT(*)").From("interest_topics")},
	}

	stats := make(map[string]int, len(counters))
	for _, c := range counters {
		row, err := t.queryRow(ctx, c.b)
		if err != nil {
			return nil, err
		}
		var n int
		if err := row.Scan(&n); err != nil {
			return nil, fmt.Errorf("stats %s: %w", c.name, err)
		}
		stats[c.name] = n
	}
	return stats, nil
}
