package storage

import (
	"context"
	"fmt"
	"strings"
)

// schemaTemplate is shared by both dialects; {{ID}} and {{BIGINT}} are
// substituted per dialect.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS sources (
	id          {{ID}},
	name        TEXT NOT NULL UNIQUE,
	type        TEXT NOT NULL DEFAULT 'RSS',
	config_json TEXT NOT NULL DEFAULT '{}',
	active      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS news_items (
	id                 {{ID}},
	source_id          {{BIGINT}} REFERENCES sources(id) ON DELETE SET NULL,
	url                TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL,
	content_snippet    TEXT NOT NULL DEFAULT '',
	published_at       {{BIGINT}} NOT NULL,
	language           TEXT NOT NULL DEFAULT 'unknown',
	title_es           TEXT,
	content_es         TEXT,
	entities_extracted BOOLEAN NOT NULL DEFAULT FALSE,
	ai_score           INTEGER,
	ai_category        TEXT,
	ai_explanation     TEXT,
	status             TEXT NOT NULL DEFAULT 'DISCOVERED',
	created_at         {{BIGINT}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_news_items_title_es ON news_items(title_es);
CREATE INDEX IF NOT EXISTS idx_news_items_entities ON news_items(entities_extracted, language);
CREATE INDEX IF NOT EXISTS idx_news_items_scoring ON news_items(status, ai_score);

CREATE TABLE IF NOT EXISTS entities (
	id         {{ID}},
	name       TEXT NOT NULL,
	type       TEXT NOT NULL,
	is_ignored BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_name_ci ON entities(LOWER(name));

CREATE TABLE IF NOT EXISTS news_entities (
	news_id   {{BIGINT}} NOT NULL REFERENCES news_items(id) ON DELETE CASCADE,
	entity_id {{BIGINT}} NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	PRIMARY KEY (news_id, entity_id)
);

CREATE TABLE IF NOT EXISTS entity_sources (
	entity_id {{BIGINT}} NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	source_id {{BIGINT}} NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
	PRIMARY KEY (entity_id, source_id)
);

CREATE TABLE IF NOT EXISTS interest_topics (
	id              {{ID}},
	subject         TEXT NOT NULL UNIQUE,
	scope           TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '',
	exclusions      TEXT NOT NULL DEFAULT '',
	relevance_level INTEGER NOT NULL DEFAULT 1
);
`

func (s *Store) schema() string {
	id, bigint := "BIGSERIAL PRIMARY KEY", "BIGINT"
	if s.dialect == SQLite {
		id, bigint = "INTEGER PRIMARY KEY AUTOINCREMENT", "INTEGER"
	}
	return strings.NewReplacer("{{ID}}", id, "{{BIGINT}}", bigint).Replace(schemaTemplate)
}

// initSchema creates the necessary tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(s.schema(), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
