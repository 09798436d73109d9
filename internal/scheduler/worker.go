package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// LeadSyncRunner executes pipeline runs.
type LeadSyncRunner interface {
	Run(ctx context.Context)
	RunDialerSync(ctx context.Context)
}

// CursorResetter moves a website cursor.
type CursorResetter interface {
	ResetCursor(ctx context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	runner  LeadSyncRunner
	cursors CursorResetter
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner LeadSyncRunner, cursors CursorResetter, log *logger.Logger) (*Worker, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 2
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		runner:  runner,
		cursors: cursors,
		log:     log,
	}

	mux.HandleFunc(TaskLeadSyncRun, w.handleLeadSyncRun)
	mux.HandleFunc(TaskLeadSyncDialer, w.handleLeadSyncDialer)
	mux.HandleFunc(TaskCursorReset, w.handleCursorReset)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadSyncRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadSyncRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	start := time.Now()
	w.runner.Run(ctx)
	w.log.Debug("lead sync task done", "trigger", payload.Trigger, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleLeadSyncDialer(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadSyncRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	start := time.Now()
	w.runner.RunDialerSync(ctx)
	w.log.Debug("dialer sync task done", "trigger", payload.Trigger, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleCursorReset(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseCursorResetPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	websiteID, err := uuid.Parse(payload.WebsiteID)
	if err != nil {
		return fmt.Errorf("%w: invalid website id: %v", asynq.SkipRetry, err)
	}

	if _, err := w.cursors.ResetCursor(ctx, websiteID, payload.FormID); err != nil {
		// A sync in progress holds the website lock; let asynq retry later.
		if apperr.Is(err, apperr.KindConflict) {
			return err
		}
		if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	return nil
}
