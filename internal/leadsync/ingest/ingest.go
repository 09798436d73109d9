// Package ingest pulls new leads from websites into the lead store.
package ingest

import (
	"context"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/lock"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the storage the ingestor needs.
type Store interface {
	GetWebsite(ctx context.Context, id uuid.UUID) (domain.Website, error)
	AppendCursor(ctx context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error)
	IngestBatch(ctx context.Context, websiteID uuid.UUID, leads []domain.NewLead, cursor int64) (int, error)
	RecordSyncError(ctx context.Context, entry domain.LeadSyncErrorLog) error
}

// Ingestor syncs one website at a time.
type Ingestor struct {
	store   Store
	fetcher ports.WebsiteFetcher
	locker  lock.Locker
	lockTTL time.Duration
	log     *logger.Logger
}

// New creates an ingestor.
func New(store Store, fetcher ports.WebsiteFetcher, locker lock.Locker, cfg config.SyncConfig, log *logger.Logger) *Ingestor {
	return &Ingestor{
		store:   store,
		fetcher: fetcher,
		locker:  locker,
		lockTTL: cfg.GetWebsiteLockTTL(),
		log:     log,
	}
}

// LockKey is the lock guarding one website's cursor.
func LockKey(websiteID uuid.UUID) string {
	return "website:" + websiteID.String()
}

// Ingest fetches the website's records after its cursor, stores the new
// valid leads and advances the cursor. It returns the number of leads
// inserted. An upstream "no new data" answer is not an error. Any other
// failure is recorded as a sync error for the website and returned.
func (i *Ingestor) Ingest(ctx context.Context, website domain.Website) (int, error) {
	log := i.log.WithContext(ctx).WithWebsite(website.ID.String())

	release, err := i.acquire(ctx, website.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			log.Info("website sync already running, skipping")
		}
		return 0, err
	}
	defer release()

	// Re-read under the lock so the cursor reflects any sync that finished meanwhile.
	current, err := i.store.GetWebsite(ctx, website.ID)
	if err != nil {
		return 0, err
	}

	records, err := i.fetcher.Fetch(ctx, current.URL, current.Token, current.Cursor)
	if err != nil {
		if apperr.Is(err, apperr.KindEmptyResult) {
			log.Debug("no new leads")
			return 0, nil
		}
		i.recordFailure(ctx, log, current.ID, err)
		return 0, err
	}
	if len(records) == 0 {
		log.Debug("no new leads")
		return 0, nil
	}

	leads, dropped := Dedupe(records, current.ID)
	cursor := records[len(records)-1].FormID

	inserted, err := i.store.IngestBatch(ctx, current.ID, leads, cursor)
	if err != nil {
		log.DatabaseError("ingest_batch", err)
		i.recordFailure(ctx, log, current.ID, err)
		return 0, err
	}

	log.Info("website synced",
		"fetched", len(records),
		"valid", len(leads),
		"dropped", dropped,
		"inserted", inserted,
		"cursor", cursor,
	)
	return inserted, nil
}

// ResetCursor moves a website's cursor forward to formID so the next sync
// skips everything up to it. A formID below the current cursor is a
// validation error.
func (i *Ingestor) ResetCursor(ctx context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error) {
	if formID < 0 {
		return domain.LeadSyncLog{}, apperr.Validation("form id must not be negative")
	}

	release, err := i.acquire(ctx, websiteID)
	if err != nil {
		return domain.LeadSyncLog{}, err
	}
	defer release()

	entry, err := i.store.AppendCursor(ctx, websiteID, formID)
	if err != nil {
		return domain.LeadSyncLog{}, err
	}
	i.log.WithContext(ctx).WithWebsite(websiteID.String()).Info("website cursor reset", "form_id", formID)
	return entry, nil
}

// Available asks the website how many records lie after its cursor.
func (i *Ingestor) Available(ctx context.Context, websiteID uuid.UUID) (int, error) {
	website, err := i.store.GetWebsite(ctx, websiteID)
	if err != nil {
		return 0, err
	}
	return i.fetcher.Count(ctx, website.URL, website.Token, website.Cursor)
}

func (i *Ingestor) acquire(ctx context.Context, websiteID uuid.UUID) (lock.Release, error) {
	release, ok, err := i.locker.TryLock(ctx, LockKey(websiteID), i.lockTTL)
	if err != nil {
		return nil, apperr.Internal("acquire website lock", err)
	}
	if !ok {
		return nil, apperr.Conflict("website sync already in progress")
	}
	return release, nil
}

func (i *Ingestor) recordFailure(ctx context.Context, log *logger.Logger, websiteID uuid.UUID, cause error) {
	entry := domain.LeadSyncErrorLog{
		WebsiteID: websiteID,
		Message:   cause.Error(),
	}
	if e, ok := apperr.As(cause); ok {
		if e.Status != 0 {
			status := e.Status
			entry.Status = &status
		}
		if len(e.Body) > 0 {
			body := string(e.Body)
			entry.Body = &body
		}
	}

	log.Warn("website sync failed", "error", cause.Error(), "kind", apperr.GetKind(cause).String())
	if err := i.store.RecordSyncError(ctx, entry); err != nil {
		log.DatabaseError("record_sync_error", err)
	}
}

const duplicateReason = "duplicate"

// Dedupe normalizes records into storable leads. Records whose phone is not a
// bare 10-digit number are dropped, and only the first record per phone is
// kept. dropped counts the rejected records by reason, duplicates included.
func Dedupe(records []ports.UpstreamLead, websiteID uuid.UUID) (leads []domain.NewLead, dropped map[string]int) {
	seen := make(map[string]struct{}, len(records))
	leads = make([]domain.NewLead, 0, len(records))
	dropped = make(map[string]int)
	for _, rec := range records {
		number, reason := phone.Check(rec.Phone)
		if reason != "" {
			dropped[string(reason)]++
			continue
		}
		if _, dup := seen[number]; dup {
			dropped[duplicateReason]++
			continue
		}
		seen[number] = struct{}{}
		leads = append(leads, domain.NewLead{
			FullName:  rec.FullName,
			Phone:     number,
			Address:   rec.Address,
			Language:  rec.Language,
			Product:   rec.Product,
			FormID:    rec.FormID,
			WebsiteID: websiteID,
			InquiryAt: rec.InquiryAt,
		})
	}
	return leads, dropped
}
