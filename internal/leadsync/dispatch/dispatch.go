// Package dispatch pushes allocated lead batches to branch dialers and
// records what each dialer did with them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

const (
	emptyBatchMessage = "Leads Data Empty"
	emptyBatchCode    = 404
)

// Store is the storage the dispatcher writes.
type Store interface {
	ApplyOutcome(ctx context.Context, outcome domain.Outcome) (int, error)
	AppendDialerLog(ctx context.Context, entry domain.DialerSyncLog) error
}

// Result summarizes one dispatch attempt.
type Result struct {
	OperationID uuid.UUID
	// Skipped is true when the branch lacks dialer settings and nothing was sent.
	Skipped  bool
	Sent     int
	Accepted int
	Rejected int
}

// Dispatcher delivers batches to branch dialers.
type Dispatcher struct {
	store    Store
	pusher   ports.DialerPusher
	validate *validator.Validator
	log      *logger.Logger
	nowFn    func() time.Time
}

// New creates a dispatcher.
func New(store Store, pusher ports.DialerPusher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		pusher:   pusher,
		validate: validator.New(),
		log:      log,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch sends leads to the branch dialer and applies the per-lead outcome.
// A transport failure is logged against the branch and returned without
// touching any lead, so the batch is offered again on a later run.
func (d *Dispatcher) Dispatch(ctx context.Context, branch domain.Branch, leads []domain.Lead) (Result, error) {
	opID := uuid.New()
	ctx = logger.ContextWith(ctx, logger.OperationIDKey, opID.String())
	log := d.log.WithContext(ctx).WithBranch(branch.ID.String())
	result := Result{OperationID: opID}

	if len(leads) == 0 {
		zero := 0
		code := emptyBatchCode
		return result, d.appendLog(ctx, log, domain.DialerSyncLog{
			Success:      false,
			BranchID:     branch.ID,
			ResponseCode: &code,
			TotalSent:    &zero,
			TotalPassed:  &zero,
			TotalFailed:  &zero,
			Message:      emptyBatchMessage,
			OperationID:  opID,
		})
	}

	target := branch.Target()
	if err := d.validate.Struct(target); err != nil {
		log.Info("branch dialer settings incomplete, skipping", "error", err.Error())
		result.Skipped = true
		return result, nil
	}

	push := ports.DialerPush{Target: target, Records: make([]ports.DialerRecord, 0, len(leads))}
	for _, l := range leads {
		push.Records = append(push.Records, ports.DialerRecord{
			FirstName:   l.FullName,
			PhoneNumber: l.Phone,
			Address:     l.Address,
			Comments:    domain.DialerComment(l),
		})
	}
	result.Sent = len(leads)

	answer, err := d.pusher.Push(ctx, push)
	if err != nil {
		log.Warn("dialer push failed", "error", err.Error(), "leads", len(leads))
		entry := domain.DialerSyncLog{
			Success:     false,
			BranchID:    branch.ID,
			Message:     fmt.Sprintf("dialer push failed, see logs for operation %s", opID),
			OperationID: opID,
		}
		if e, ok := apperr.As(err); ok {
			if e.Status != 0 {
				status := e.Status
				entry.ResponseCode = &status
			}
			if len(e.Body) > 0 {
				body := string(e.Body)
				entry.Response = &body
			}
		}
		if logErr := d.appendLog(ctx, log, entry); logErr != nil {
			return result, logErr
		}
		return result, err
	}

	outcome := Resolve(branch.ID, opID, d.nowFn(), leads, answer)
	updated, applyErr := d.store.ApplyOutcome(ctx, outcome)
	if applyErr != nil {
		log.DatabaseError("apply_outcome", applyErr)
	} else {
		result.Accepted = len(outcome.Accepted)
		result.Rejected = len(outcome.Rejected)
		if touched := result.Accepted + result.Rejected; updated != touched {
			log.Warn("some leads were already dispatched", "expected", touched, "updated", updated)
		}
	}

	// Logged even when the outcome could not be stored.
	message := answer.StatusText
	if applyErr != nil {
		message = fmt.Sprintf("%s; lead outcome not stored, leads stay pending: %v", answer.StatusText, applyErr)
	}
	raw := answer.Raw
	code, total, passed, failed := answer.StatusCode, answer.Total, answer.Passed, answer.Failed
	if err := d.appendLog(ctx, log, domain.DialerSyncLog{
		Success:      answer.OK,
		BranchID:     branch.ID,
		Response:     &raw,
		ResponseCode: &code,
		TotalSent:    &total,
		TotalPassed:  &passed,
		TotalFailed:  &failed,
		Message:      message,
		OperationID:  opID,
	}); err != nil {
		return result, errors.Join(applyErr, err)
	}
	if applyErr != nil {
		return result, applyErr
	}

	log.Info("leads dispatched",
		"status", answer.StatusCode,
		"sent", result.Sent,
		"accepted", result.Accepted,
		"rejected", result.Rejected,
	)
	return result, nil
}

func (d *Dispatcher) appendLog(ctx context.Context, log *logger.Logger, entry domain.DialerSyncLog) error {
	if err := d.store.AppendDialerLog(ctx, entry); err != nil {
		log.DatabaseError("append_dialer_log", err)
		return err
	}
	return nil
}

// Resolve maps a dialer answer onto per-lead statuses. A successful answer
// accepts every lead. A failed answer rejects the leads named in the failure
// list and accepts the rest; without a failure list nothing is marked.
func Resolve(branchID, operationID uuid.UUID, at time.Time, leads []domain.Lead, answer ports.DialerResult) domain.Outcome {
	outcome := domain.Outcome{BranchID: branchID, OperationID: operationID, SyncedAt: at}

	if answer.OK {
		for _, l := range leads {
			outcome.Accepted = append(outcome.Accepted, l.ID)
		}
		return outcome
	}
	if !answer.HasFailureList {
		return outcome
	}

	failed := make(map[string]struct{}, len(answer.FailedPhones))
	for _, p := range answer.FailedPhones {
		failed[p] = struct{}{}
	}
	for _, l := range leads {
		if _, ok := failed[l.Phone]; ok {
			outcome.Rejected = append(outcome.Rejected, l.ID)
		} else {
			outcome.Accepted = append(outcome.Accepted, l.ID)
		}
	}
	return outcome
}
