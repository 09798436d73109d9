package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"leadflow_backend/internal/leadsync"
	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/internal/leadsync/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/lock"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const usage = `usage: leadsync [-async] <command> [flags]

commands:
  run                                   ingest all auto-sync websites, then allocate and dispatch
  dialer                                allocate and dispatch pending leads only
  sync-from -website ID -form-id N      move a website cursor forward to form id N
  available -website ID                 count records waiting upstream after the cursor
  revert -operation ID                  return a dispatch operation's leads to pending
  history -kind dialer|errors|cursor [-entity ID] [-since 24h] [-limit 50]
  history -kind operation -entity ID    list the leads one dispatch operation touched
`

func main() {
	async := flag.Bool("async", false, "enqueue run, dialer and sync-from on the worker queue instead of running inline")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *async {
		err = enqueue(ctx, cfg, args)
	} else {
		err = runInline(ctx, cfg, log, args)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func enqueue(ctx context.Context, cfg *config.Config, args []string) error {
	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var taskID string
	switch args[0] {
	case "run":
		taskID, err = client.EnqueueRun(ctx, "cli")
	case "dialer":
		taskID, err = client.EnqueueDialerSync(ctx, "cli")
	case "sync-from":
		var websiteID uuid.UUID
		var formID int64
		websiteID, formID, err = parseSyncFrom(args[1:])
		if err != nil {
			return err
		}
		taskID, err = client.EnqueueCursorReset(ctx, websiteID, formID)
	default:
		return fmt.Errorf("command %q cannot run with -async", args[0])
	}
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, map[string]string{"taskId": taskID, "command": args[0]})
}

func runInline(ctx context.Context, cfg *config.Config, log *logger.Logger, args []string) error {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	locker, closeLocker, err := lock.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLocker() }()

	module := leadsync.NewModule(repository.New(pool), locker, cfg, log)

	switch args[0] {
	case "run":
		module.Orchestrator.Run(ctx)
		return nil

	case "dialer":
		module.Orchestrator.RunDialerSync(ctx)
		return nil

	case "sync-from":
		websiteID, formID, err := parseSyncFrom(args[1:])
		if err != nil {
			return err
		}
		entry, err := module.Ingestor.ResetCursor(ctx, websiteID, formID)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, entry)

	case "available":
		fs := flag.NewFlagSet("leadsync available", flag.ContinueOnError)
		website := fs.String("website", "", "website id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		websiteID, err := parseID("website", *website)
		if err != nil {
			return err
		}
		n, err := module.Ingestor.Available(ctx, websiteID)
		if err != nil {
			return err
		}
		return writeJSON(os.Stdout, map[string]any{"websiteId": websiteID, "available": n})

	case "revert":
		fs := flag.NewFlagSet("leadsync revert", flag.ContinueOnError)
		operation := fs.String("operation", "", "dispatch operation id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		opID, err := parseID("operation", *operation)
		if err != nil {
			return err
		}
		n, err := module.Store.RevertOperation(ctx, opID)
		if err != nil {
			return err
		}
		log.Info("dispatch operation reverted", "operation_id", opID.String(), "leads", n)
		return writeJSON(os.Stdout, map[string]any{"operationId": opID, "reverted": n})

	case "history":
		return history(ctx, module.Store, args[1:], os.Stdout)

	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func history(ctx context.Context, store repository.ReportReader, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("leadsync history", flag.ContinueOnError)
	kind := fs.String("kind", "dialer", "dialer|errors|cursor|operation")
	entity := fs.String("entity", "", "branch id for dialer, website id for errors and cursor, operation id for operation")
	since := fs.Duration("since", 24*time.Hour, "how far back to look")
	limit := fs.Int("limit", 50, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter := domain.LogFilter{Limit: *limit}
	if *since > 0 {
		filter.From = time.Now().Add(-*since)
	}
	if strings.TrimSpace(*entity) != "" {
		id, err := parseID("entity", *entity)
		if err != nil {
			return err
		}
		filter.EntityID = &id
	}

	var (
		rows any
		err  error
	)
	switch *kind {
	case "operation":
		if filter.EntityID == nil {
			return errors.New("-entity required for operation history")
		}
		rows, err = store.ListLeadsByOperation(ctx, *filter.EntityID)
	case "dialer":
		rows, err = store.ListDialerLogs(ctx, filter)
	case "errors":
		rows, err = store.ListSyncErrors(ctx, filter)
	case "cursor":
		rows, err = store.ListCursorHistory(ctx, filter)
	default:
		return fmt.Errorf("unknown history kind %q", *kind)
	}
	if err != nil {
		return err
	}
	return writeJSON(w, rows)
}

func parseSyncFrom(args []string) (uuid.UUID, int64, error) {
	fs := flag.NewFlagSet("leadsync sync-from", flag.ContinueOnError)
	website := fs.String("website", "", "website id")
	formID := fs.Int64("form-id", -1, "upstream form id to resume after")
	if err := fs.Parse(args); err != nil {
		return uuid.Nil, 0, err
	}
	websiteID, err := parseID("website", *website)
	if err != nil {
		return uuid.Nil, 0, err
	}
	if *formID < 0 {
		return uuid.Nil, 0, errors.New("-form-id required")
	}
	return websiteID, *formID, nil
}

func parseID(name, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("-%s required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id: %w", name, err)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
