package leadsync

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/leadsync/allocate"
	"leadflow_backend/internal/leadsync/dispatch"
	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/lock"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DispatchLockKey serializes allocation and dispatch across processes.
const DispatchLockKey = "dispatch"

// WebsiteLister lists the websites a run ingests.
type WebsiteLister interface {
	ListAutoSyncWebsites(ctx context.Context) ([]domain.Website, error)
}

// WebsiteIngestor syncs one website.
type WebsiteIngestor interface {
	Ingest(ctx context.Context, website domain.Website) (int, error)
}

// Allocator plans which leads go to which branch.
type Allocator interface {
	Allocate(ctx context.Context) ([]allocate.ProductAllocation, error)
}

// BatchDispatcher pushes one batch to one branch.
type BatchDispatcher interface {
	Dispatch(ctx context.Context, branch domain.Branch, leads []domain.Lead) (dispatch.Result, error)
}

// Orchestrator sequences ingestion, allocation and dispatch.
type Orchestrator struct {
	websites   WebsiteLister
	ingestor   WebsiteIngestor
	allocator  Allocator
	dispatcher BatchDispatcher
	locker     lock.Locker
	cfg        config.SyncConfig
	log        *logger.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(websites WebsiteLister, ingestor WebsiteIngestor, allocator Allocator, dispatcher BatchDispatcher, locker lock.Locker, cfg config.SyncConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		websites:   websites,
		ingestor:   ingestor,
		allocator:  allocator,
		dispatcher: dispatcher,
		locker:     locker,
		cfg:        cfg,
		log:        log,
	}
}

// Run ingests every auto-sync website, then allocates and dispatches once.
// Failures are logged per website or branch and never abort the run.
func (o *Orchestrator) Run(ctx context.Context) {
	ctx, log := o.startRun(ctx, "full")
	start := time.Now()

	o.ingestAll(ctx, log)
	o.dispatchAll(ctx, log)

	log.Info("lead sync run finished", "duration_ms", time.Since(start).Milliseconds())
}

// RunDialerSync allocates and dispatches pending leads without ingesting.
func (o *Orchestrator) RunDialerSync(ctx context.Context) {
	ctx, log := o.startRun(ctx, "dialer")
	start := time.Now()

	o.dispatchAll(ctx, log)

	log.Info("lead sync run finished", "duration_ms", time.Since(start).Milliseconds())
}

func (o *Orchestrator) startRun(ctx context.Context, mode string) (context.Context, *logger.Logger) {
	runID := uuid.NewString()
	ctx = logger.ContextWith(ctx, logger.RunIDKey, runID)
	log := o.log.WithContext(ctx)
	log.Info("lead sync run started", "mode", mode)
	return ctx, log
}

func (o *Orchestrator) ingestAll(ctx context.Context, log *logger.Logger) {
	websites, err := o.websites.ListAutoSyncWebsites(ctx)
	if err != nil {
		log.DatabaseError("list_auto_sync_websites", err)
		return
	}
	if len(websites) == 0 {
		log.Info("no auto sync websites")
		return
	}

	inserted := make([]int, len(websites))
	tasks := make([]task, len(websites))
	for i, w := range websites {
		i, w := i, w
		tasks[i] = task{
			name: "ingest " + w.Name,
			fn: func(ctx context.Context) error {
				ctx = logger.ContextWith(ctx, logger.WebsiteIDKey, w.ID.String())
				n, err := o.ingestor.Ingest(ctx, w)
				inserted[i] = n
				return err
			},
		}
	}

	results := runTasks(ctx, o.cfg.GetIngestConcurrency(), tasks)

	var total, failed, skipped int
	for i, res := range results {
		total += inserted[i]
		switch {
		case res.err == nil:
		case apperr.Is(res.err, apperr.KindConflict):
			skipped++
		default:
			failed++
			if res.panicked {
				log.Error("website ingestion panicked", "website_id", websites[i].ID.String(), "error", res.err.Error())
			}
		}
	}
	log.Info("ingestion finished",
		"websites", len(websites),
		"inserted", total,
		"failed", failed,
		"skipped", skipped,
	)
}

func (o *Orchestrator) dispatchAll(ctx context.Context, log *logger.Logger) {
	release, ok, err := o.locker.TryLock(ctx, DispatchLockKey, o.cfg.GetDispatchLockTTL())
	if err != nil {
		log.Error("acquire dispatch lock failed", "error", err.Error())
		return
	}
	if !ok {
		log.Info("dispatch already running elsewhere, skipping")
		return
	}
	defer release()

	plan, err := o.allocator.Allocate(ctx)
	if err != nil {
		log.Error("allocation failed", "error", err.Error())
		return
	}

	type unit struct {
		product string
		batch   allocate.Batch
	}
	var units []unit
	for _, p := range plan {
		for _, b := range p.Batches {
			units = append(units, unit{product: p.Product.Name, batch: b})
		}
	}
	if len(units) == 0 {
		log.Info("nothing to dispatch")
		return
	}

	outcomes := make([]dispatch.Result, len(units))
	tasks := make([]task, len(units))
	for i, u := range units {
		i, u := i, u
		tasks[i] = task{
			name: fmt.Sprintf("dispatch %s to %s", u.product, u.batch.Branch.Name),
			fn: func(ctx context.Context) error {
				ctx = logger.ContextWith(ctx, logger.BranchIDKey, u.batch.Branch.ID.String())
				res, err := o.dispatcher.Dispatch(ctx, u.batch.Branch, u.batch.Leads)
				outcomes[i] = res
				return err
			},
		}
	}

	results := runTasks(ctx, o.cfg.GetDispatchConcurrency(), tasks)

	var accepted, rejected, failed, skipped int
	for i, res := range results {
		if res.err != nil {
			failed++
			if res.panicked {
				log.Error("dispatch panicked", "task", res.name, "error", res.err.Error())
			}
			continue
		}
		if outcomes[i].Skipped {
			skipped++
		}
		accepted += outcomes[i].Accepted
		rejected += outcomes[i].Rejected
	}
	log.Info("dispatch finished",
		"batches", len(units),
		"accepted", accepted,
		"rejected", rejected,
		"failed", failed,
		"skipped", skipped,
	)
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

type taskResult struct {
	name     string
	err      error
	panicked bool
}

// runTasks runs every task with at most limit in flight. A failing or
// panicking task does not cancel its siblings.
func runTasks(ctx context.Context, limit int, tasks []task) []taskResult {
	results := make([]taskResult, len(tasks))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			results[i].name = t.name
			defer func() {
				if r := recover(); r != nil {
					results[i].err = apperr.Internal(fmt.Sprintf("task %q panicked", t.name), fmt.Errorf("%v", r))
					results[i].panicked = true
				}
			}()
			results[i].err = t.fn(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
