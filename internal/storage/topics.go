package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/deusflow/newsroom/internal/domain"
)

// ListTopics returns the full compass ordered by id.
func (t *Tx) ListTopics(ctx context.Context) ([]domain.InterestTopic, error) {
	rows, err := t.query(ctx, t.sb.Select("id", "subject", "scope", "keywords", "exclusions", "relevance_level").
		From("interest_topics").
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.InterestTopic
	for rows.Next() {
		var tp domain.InterestTopic
		if err := rows.Scan(&tp.ID, &tp.Subject, &tp.Scope, &tp.Keywords, &tp.Exclusions, &tp.RelevanceLevel); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, tp)
	}
	return topics, rows.Err()
}

// UpsertTopic inserts or updates a topic keyed by subject.
func (t *Tx) UpsertTopic(ctx context.Context, tp domain.InterestTopic) (int64, error) {
	row, err := t.queryRow(ctx, t.sb.Insert("interest_topics").
		Columns("subject", "scope", "keywords", "exclusions", "relevance_level").
		Values(strings.TrimSpace(tp.Subject), tp.Scope, tp.Keywords, tp.Exclusions, tp.RelevanceLevel).
		Suffix(`ON CONFLICT (subject) DO UPDATE SET
			scope = excluded.scope,
			keywords = excluded.keywords,
			exclusions = excluded.exclusions,
			relevance_level = excluded.relevance_level
			RETURNING id`))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert topic %q: %w", tp.Subject, err)
	}
	return id, nil
}
