package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/newsroom/internal/domain"
)

func nameMatches(name string) sq.Sqlizer {
	return sq.Expr("LOWER(name) = LOWER(?)", strings.TrimSpace(name))
}

// FindEntityByName looks an entity up case-insensitively.
func (t *Tx) FindEntityByName(ctx context.Context, name string) (domain.Entity, error) {
	row, err := t.queryRow(ctx, t.sb.Select("id", "name", "type", "is_ignored").
		From("entities").
		Where(nameMatches(name)))
	if err != nil {
		return domain.Entity{}, err
	}

	var (
		e   domain.Entity
		typ string
	)
	if err := row.Scan(&e.ID, &e.Name, &typ, &e.IsIgnored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		return domain.Entity{}, fmt.Errorf("find entity %q: %w", name, err)
	}
	e.Type = domain.EntityType(typ)
	return e, nil
}

// CreateEntity inserts a new, non-ignored entity.
func (t *Tx) CreateEntity(ctx context.Context, name string, typ domain.EntityType) (int64, error) {
	row, err := t.queryRow(ctx, t.sb.Insert("entities").
		Columns("name", "type", "is_ignored").
		Values(strings.TrimSpace(name), string(typ), false).
		Suffix("RETURNING id"))
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("create entity %q: %w", name, err)
	}
	return id, nil
}

// LinkEntity associates an entity with a news item. It returns false when
// the link already existed.
func (t *Tx) LinkEntity(ctx context.Context, newsID, entityID int64) (bool, error) {
	res, err := t.exec(ctx, t.sb.Insert("news_entities").
		Columns("news_id", "entity_id").
		Values(newsID, entityID).
		Suffix("ON CONFLICT DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("link entity %d to news %d: %w", entityID, newsID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LinkedEntities lists the entities linked to a news item, ordered by name.
func (t *Tx) LinkedEntities(ctx context.Context, newsID int64) ([]domain.Entity, error) {
	rows, err := t.query(ctx, t.sb.Select("e.id", "e.name", "e.type", "e.is_ignored").
		From("entities e").
		Join("news_entities ne ON ne.entity_id = e.id").
		Where(sq.Eq{"ne.news_id": newsID}).
		OrderBy("e.name"))
	if err != nil {
		return nil, fmt.Errorf("query linked entities: %w", err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		var (
			e   domain.Entity
			typ string
		)
		if err := rows.Scan(&e.ID, &e.Name, &typ, &e.IsIgnored); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Type = domain.EntityType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// WatchlistNames returns the names of every non-ignored entity.
func (t *Tx) WatchlistNames(ctx context.Context) ([]string, error) {
	return t.entityNames(ctx, false)
}

// IgnoredNames returns the lower-cased names of every ignored entity.
func (t *Tx) IgnoredNames(ctx context.Context) (map[string]struct{}, error) {
	names, err := t.entityNames(ctx, true)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set, nil
}

func (t *Tx) entityNames(ctx context.Context, ignored bool) ([]string, error) {
	rows, err := t.query(ctx, t.sb.Select("name").From("entities").
		Where(sq.Eq{"is_ignored": ignored}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("query entity names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan entity name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// SetEntityIgnored flags or unflags an entity by name, creating it as a
// CONCEPT when it does not exist yet so a blacklist entry can precede any sighting.
func (t *Tx) SetEntityIgnored(ctx context.Context, name string, ignored bool) error {
	e, err := t.FindEntityByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		id, err := t.CreateEntity(ctx, name, domain.EntityConcept)
		if err != nil {
			return err
		}
		e.ID = id
	case err != nil:
		return err
	}

	_, err = t.exec(ctx, t.sb.Update("entities").Set("is_ignored", ignored).Where(sq.Eq{"id": e.ID}))
	if err != nil {
		return fmt.Errorf("set ignored %q: %w", name, err)
	}
	return nil
}

// WatchEntity finds or creates an entity and associates it with a source's
// watchlist. sourceID 0 only ensures the entity exists.
func (t *Tx) WatchEntity(ctx context.Context, name string, typ domain.EntityType, sourceID int64) (int64, error) {
	e, err := t.FindEntityByName(ctx, name)
	switch {
	case errors.Is(err, ErrNotFound):
		if e.ID, err = t.CreateEntity(ctx, name, typ); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	}

	if sourceID > 0 {
		_, err = t.exec(ctx, t.sb.Insert("entity_sources").
			Columns("entity_id", "source_id").
			Values(e.ID, sourceID).
			Suffix("ON CONFLICT DO NOTHING"))
		if err != nil {
			return 0, fmt.Errorf("watch entity %q: %w", name, err)
		}
	}
	return e.ID, nil
}
