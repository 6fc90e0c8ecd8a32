package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/deusflow/newsroom/internal/app"
	"github.com/deusflow/newsroom/internal/config"
	"github.com/deusflow/newsroom/internal/domain"
	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/pipeline"
	"github.com/deusflow/newsroom/internal/storage"
)

const usage = `usage: newsroom <command> [flags]

Pipeline:
  scan         fetch every active feed
  translate    render pending items in Spanish
  extract      link named entities to enriched items
  score        rate unscored items against the interest topics
  run          one full cycle
  serve        scheduler, monitoring server and catalogue watcher

Catalogue and editorial:
  sync                     upsert sources, topics and watchlist from the config file
  status                   print backlog counters
  approve -id N            mark an item APPROVED
  reject -id N             move an item to the trash
  restore -id N            bring a rejected item back
  delete -id N             delete an item for good
  empty-trash              delete every rejected item
  ignore -name X [-undo]   blacklist an entity name
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case pipeline.StageScan, pipeline.StageTranslate, pipeline.StageExtract, pipeline.StageScore, "run":
		if cmd == "run" {
			cmd = pipeline.StageCycle
		}
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.Runner.Trigger(ctx, cmd)
		if err != nil {
			return err
		}
		return printJSON(rep)

	case "serve":
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(ctx)

	case "sync":
		return withStore(ctx, cfg, func(store *storage.Store) error {
			res, err := cfg.Seed(ctx, store)
			if err != nil {
				return err
			}
			return printJSON(res)
		})

	case "status":
		return withStore(ctx, cfg, func(store *storage.Store) error {
			return store.InTx(ctx, func(tx *storage.Tx) error {
				stats, err := tx.Stats(ctx)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(stats))
				for k := range stats {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%-20s %d\n", k, stats[k])
				}
				return nil
			})
		})

	case "approve", "reject", "restore", "delete":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "news item id")
		_ = fs.Parse(args)
		if *id <= 0 {
			return fmt.Errorf("%s: -id is required", cmd)
		}
		return withStore(ctx, cfg, func(store *storage.Store) error {
			return store.InTx(ctx, func(tx *storage.Tx) error {
				switch cmd {
				case "approve":
					return tx.SetStatus(ctx, *id, domain.StatusApproved)
				case "reject":
					return tx.SetStatus(ctx, *id, domain.StatusRejected)
				case "restore":
					return tx.Restore(ctx, *id)
				}
				return tx.DeleteNews(ctx, *id)
			})
		})

	case "empty-trash":
		return withStore(ctx, cfg, func(store *storage.Store) error {
			return store.InTx(ctx, func(tx *storage.Tx) error {
				n, err := tx.EmptyTrash(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d items\n", n)
				return nil
			})
		})

	case "ignore":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "entity name")
		undo := fs.Bool("undo", false, "remove the name from the blacklist")
		_ = fs.Parse(args)
		if *name == "" {
			return fmt.Errorf("ignore: -name is required")
		}
		return withStore(ctx, cfg, func(store *storage.Store) error {
			return store.InTx(ctx, func(tx *storage.Tx) error {
				return tx.SetEntityIgnored(ctx, *name, !*undo)
			})
		})
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func withStore(ctx context.Context, cfg *config.Config, fn func(*storage.Store) error) error {
	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
