package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/newsroom/internal/domain"
)

// ActiveSources loads active sources and decodes their configs. Rows whose
// config does not match their type tag are logged and skipped.
func (t *Tx) ActiveSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := t.query(ctx, t.sb.Select("id", "name", "type", "config_json").
		From("sources").
		Where(sq.Eq{"active": true}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var (
			s       domain.Source
			typ     string
			rawJSON string
		)
		if err := rows.Scan(&s.ID, &s.Name, &typ, &rawJSON); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}

		cfg, err := domain.DecodeSourceConfig(domain.SourceType(typ), []byte(rawJSON))
		if err != nil {
			slog.Warn("skipping source with malformed config", "source_id", s.ID, "name", s.Name, "error", err)
			continue
		}
		s.Active = true
		s.Config = cfg
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpsertSource inserts or updates a source keyed by name.
func (t *Tx) UpsertSource(ctx context.Context, s domain.Source) (int64, error) {
	raw, err := s.Config.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode source %q: %w", s.Name, err)
	}

	row, err := t.queryRow(ctx, t.sb.Insert("sources").
		Columns("name", "type", "config_json", "active").
		Values(strings.TrimSpace(s.Name), string(s.Config.Type), string(raw), s.Active).
		Suffix(`ON CONFLICT (name) DO UPDATE SET
			type = excluded.type,
			config_json = excluded.config_json,
			active = excluded.active
			RETURNING id`))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert source %q: %w", s.Name, err)
	}
	return id, nil
}

// SetSourceRawConfig overwrites the type tag and config blob without validation.
func (t *Tx) SetSourceRawConfig(ctx context.Context, id int64, typ, raw string) error {
	_, err := t.exec(ctx, t.sb.Update("sources").
		Set("type", typ).
		Set("config_json", raw).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("set source config %d: %w", id, err)
	}
	return nil
}
