// Package repository persists websites, leads, branches and the sync audit trail.
package repository

import (
	"context"
	"fmt"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// WebsiteStore reads lead sources and moves their cursors.
type WebsiteStore interface {
	ListAutoSyncWebsites(ctx context.Context) ([]domain.Website, error)
	GetWebsite(ctx context.Context, id uuid.UUID) (domain.Website, error)
	// AppendCursor records a manual cursor position. The cursor is the highest
	// recorded form id, so formID must not be below it.
	AppendCursor(ctx context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error)
}

// LeadWriter stores freshly ingested leads.
type LeadWriter interface {
	// IngestBatch inserts leads whose phone is not yet known and advances the
	// website cursor to cursor in the same transaction. It returns the number of
	// leads inserted. A cursor that does not move forward is left untouched.
	IngestBatch(ctx context.Context, websiteID uuid.UUID, leads []domain.NewLead, cursor int64) (int, error)
}

// AllocationReader loads what the allocator needs.
type AllocationReader interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CountEnabledBranches(ctx context.Context) (int, error)
	// ListShares returns the product's positive weights on enabled branches.
	ListShares(ctx context.Context, productID uuid.UUID) ([]domain.BranchShare, error)
	// ListPendingLeads returns unallocated leads for a product code, oldest first.
	ListPendingLeads(ctx context.Context, product string) ([]domain.Lead, error)
}

// SettingsReader reads key/value settings.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

// OutcomeWriter records and undoes dispatch outcomes.
type OutcomeWriter interface {
	// ApplyOutcome marks accepted and rejected leads in one transaction. Leads
	// that are no longer pending are skipped. It returns the number of leads updated.
	ApplyOutcome(ctx context.Context, outcome domain.Outcome) (int, error)
	// RevertOperation returns every lead of an operation to pending.
	RevertOperation(ctx context.Context, operationID uuid.UUID) (int, error)
}

// AuditWriter appends to the sync audit logs.
type AuditWriter interface {
	RecordSyncError(ctx context.Context, entry domain.LeadSyncErrorLog) error
	AppendDialerLog(ctx context.Context, entry domain.DialerSyncLog) error
}

// ReportReader queries the audit logs.
type ReportReader interface {
	ListDialerLogs(ctx context.Context, filter domain.LogFilter) ([]domain.DialerSyncLog, error)
	ListSyncErrors(ctx context.Context, filter domain.LogFilter) ([]domain.LeadSyncErrorLog, error)
	ListCursorHistory(ctx context.Context, filter domain.LogFilter) ([]domain.LeadSyncLog, error)
	ListLeadsByOperation(ctx context.Context, operationID uuid.UUID) ([]domain.Lead, error)
}

// LeadStore is the full storage surface of the lead sync context.
type LeadStore interface {
	WebsiteStore
	LeadWriter
	AllocationReader
	SettingsReader
	OutcomeWriter
	AuditWriter
	ReportReader
}

const (
	websiteNotFoundMessage   = "website not found"
	operationNotFoundMessage = "operation not found"
	defaultLogLimit          = 500
)

func logLimit(filter domain.LogFilter) int {
	if filter.Limit <= 0 {
		return defaultLogLimit
	}
	return filter.Limit
}

func checkManualCursor(current *int64, formID int64) error {
	if current != nil && formID < *current {
		return apperr.Validation(fmt.Sprintf("form id %d is below the current cursor %d", formID, *current))
	}
	return nil
}
