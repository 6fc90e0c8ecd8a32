package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/storage"
)

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Sources   int
	Topics    int
	Watchlist int
	Ignored   int
}

// Seed upserts the catalogue into the store in one transaction. Rows that
// are not in the file are left alone.
func (c *Config) Seed(ctx context.Context, store *storage.Store) (SeedResult, error) {
	var res SeedResult
	err := store.InTx(ctx, func(tx *storage.Tx) error {
		res = SeedResult{}
		sourceIDs := make(map[string]int64, len(c.Sources))

		for _, seed := range c.Sources {
			src, err := seed.Source()
			if err != nil {
				return err
			}
			id, err := tx.UpsertSource(ctx, src)
			if err != nil {
				return err
			}
			sourceIDs[strings.ToLower(src.Name)] = id
			res.Sources++
		}

		for _, seed := range c.Topics {
			if _, err := tx.UpsertTopic(ctx, seed.Topic()); err != nil {
				return err
			}
			res.Topics++
		}

		for _, seed := range c.Watchlist {
			typ, err := seed.EntityType()
			if err != nil {
				return err
			}
			var sourceID int64
			if seed.Source != "" {
				id, ok := sourceIDs[strings.ToLower(strings.TrimSpace(seed.Source))]
				if !ok {
					return fmt.Errorf("watchlist entry %q refers to unknown source %q", seed.Name, seed.Source)
				}
				sourceID = id
			}
			if _, err := tx.WatchEntity(ctx, strings.TrimSpace(seed.Name), typ, sourceID); err != nil {
				return err
			}
			res.Watchlist++
		}

		for _, name := range c.Ignored {
			if err := tx.SetEntityIgnored(ctx, strings.TrimSpace(name), true); err != nil {
				return err
			}
			res.Ignored++
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed catalogue: %w", err)
	}

	logger.Info("catalogue synced", "sources", res.Sources, "topics", res.Topics,
		"watchlist", res.Watchlist, "ignored", res.Ignored)
	return res, nil
}
