package scheduler

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type fakeRunner struct {
	runs, dialerRuns int
}

func (f *fakeRunner) Run(context.Context)           { f.runs++ }
func (f *fakeRunner) RunDialerSync(context.Context) { f.dialerRuns++ }

type fakeResetter struct {
	err       error
	websiteID uuid.UUID
	formID    int64
}

func (f *fakeResetter) ResetCursor(_ context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error) {
	f.websiteID = websiteID
	f.formID = formID
	return domain.LeadSyncLog{WebsiteID: websiteID, FormID: formID, Manual: true}, f.err
}

func newTestWorker(resetErr error) (*Worker, *fakeRunner, *fakeResetter) {
	runner := &fakeRunner{}
	resetter := &fakeResetter{err: resetErr}
	return &Worker{runner: runner, cursors: resetter, log: logger.Discard()}, runner, resetter
}

func TestHandleRunTasks(t *testing.T) {
	w, runner, _ := newTestWorker(nil)

	runTask, err := NewLeadSyncRunTask(LeadSyncRunPayload{Trigger: "schedule"})
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := w.handleLeadSyncRun(context.Background(), runTask); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dialerTask, _ := NewLeadSyncDialerTask(LeadSyncRunPayload{Trigger: "cli"})
	if err := w.handleLeadSyncDialer(context.Background(), dialerTask); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.runs != 1 || runner.dialerRuns != 1 {
		t.Fatalf("expected one run of each kind, got %+v", runner)
	}
}

func TestHandleRunAcceptsEmptyPayload(t *testing.T) {
	w, runner, _ := newTestWorker(nil)
	if err := w.handleLeadSyncRun(context.Background(), asynq.NewTask(TaskLeadSyncRun, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.runs != 1 {
		t.Fatalf("expected run, got %d", runner.runs)
	}
}

func TestHandleCursorReset(t *testing.T) {
	w, _, resetter := newTestWorker(nil)
	websiteID := uuid.New()

	task, err := NewCursorResetTask(websiteID, 120)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := w.handleCursorReset(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resetter.websiteID != websiteID || resetter.formID != 120 {
		t.Fatalf("unexpected reset call %+v", resetter)
	}
}

func TestHandleCursorResetRetryPolicy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantSkip bool
	}{
		{name: "conflict retries", err: apperr.Conflict("website sync already in progress"), wantSkip: false},
		{name: "not found skips retry", err: apperr.NotFound("website not found"), wantSkip: true},
		{name: "validation skips retry", err: apperr.Validation("form id must not be negative"), wantSkip: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, _, _ := newTestWorker(tc.err)
			task, _ := NewCursorResetTask(uuid.New(), 1)

			err := w.handleCursorReset(context.Background(), task)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tc.wantSkip {
				t.Fatalf("expected skip retry %v, got %v (%v)", tc.wantSkip, got, err)
			}
		})
	}
}

func TestHandleCursorResetRejectsBadWebsiteID(t *testing.T) {
	w, _, _ := newTestWorker(nil)
	task := asynq.NewTask(TaskCursorReset, []byte(`{"websiteId":"not-a-uuid","formId":3}`))

	if err := w.handleCursorReset(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected skip retry for bad id, got %v", err)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("rediss://:secret@cache.internal:6380/2", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.Addr != "cache.internal:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("unexpected options %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure tls config")
	}

	plain, err := redisClientOpt("redis://localhost:6379", false)
	if err != nil || plain.TLSConfig != nil {
		t.Fatalf("expected plain connection, got %+v (%v)", plain, err)
	}
}
