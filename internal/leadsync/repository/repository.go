package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements LeadStore on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new lead sync repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Compile-time check that Repository implements LeadStore.
var _ LeadStore = (*Repository)(nil)

const websiteColumns = `
	w.id, w.name, w.url, w.token, w.auto_sync,
	(SELECT MAX(l.form_id) FROM lead_sync_logs l WHERE l.website_id = w.id)`

func scanWebsite(row pgx.Row) (domain.Website, error) {
	var w domain.Website
	err := row.Scan(&w.ID, &w.Name, &w.URL, &w.Token, &w.AutoSync, &w.Cursor)
	return w, err
}

// ListAutoSyncWebsites returns every website flagged for automatic sync.
func (r *Repository) ListAutoSyncWebsites(ctx context.Context) ([]domain.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites w WHERE w.auto_sync ORDER BY w.created_at, w.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list auto sync websites: %w", err)
	}
	defer rows.Close()

	var websites []domain.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan website: %w", err)
		}
		websites = append(websites, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate websites: %w", err)
	}
	return websites, nil
}

// GetWebsite returns one website with its current cursor.
func (r *Repository) GetWebsite(ctx context.Context, id uuid.UUID) (domain.Website, error) {
	query := `SELECT ` + websiteColumns + ` FROM websites w WHERE w.id = $1`

	w, err := scanWebsite(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Website{}, apperr.NotFound(websiteNotFoundMessage)
		}
		return domain.Website{}, fmt.Errorf("get website: %w", err)
	}
	return w, nil
}

// AppendCursor records a manual cursor position. A position below the
// current cursor is rejected.
func (r *Repository) AppendCursor(ctx context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.LeadSyncLog{}, fmt.Errorf("begin append cursor: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockCursor(ctx, tx, websiteID)
	if err != nil {
		return domain.LeadSyncLog{}, err
	}
	if err := checkManualCursor(current, formID); err != nil {
		return domain.LeadSyncLog{}, err
	}

	var entry domain.LeadSyncLog
	if err := tx.QueryRow(ctx, `
		INSERT INTO lead_sync_logs (website_id, form_id, manual)
		VALUES ($1, $2, TRUE)
		RETURNING id, website_id, form_id, manual, created_at`, websiteID, formID).Scan(
		&entry.ID, &entry.WebsiteID, &entry.FormID, &entry.Manual, &entry.CreatedAt,
	); err != nil {
		return domain.LeadSyncLog{}, fmt.Errorf("append cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LeadSyncLog{}, fmt.Errorf("commit append cursor: %w", err)
	}
	return entry, nil
}

// lockCursor locks the website row and returns its cursor.
func lockCursor(ctx context.Context, tx pgx.Tx, websiteID uuid.UUID) (*int64, error) {
	var current *int64
	if err := tx.QueryRow(ctx, `
		SELECT (SELECT MAX(l.form_id) FROM lead_sync_logs l WHERE l.website_id = w.id)
		FROM websites w WHERE w.id = $1
		FOR UPDATE`, websiteID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(websiteNotFoundMessage)
		}
		return nil, fmt.Errorf("lock website: %w", err)
	}
	return current, nil
}

// IngestBatch inserts new leads and advances the cursor in one transaction.
func (r *Repository) IngestBatch(ctx context.Context, websiteID uuid.UUID, leads []domain.NewLead, cursor int64) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes concurrent ingests of the same website for the cursor check below.
	current, err := lockCursor(ctx, tx, websiteID)
	if err != nil {
		return 0, err
	}

	inserted := 0
	if len(leads) > 0 {
		batch := &pgx.Batch{}
		for _, l := range leads {
			batch.Queue(`
				INSERT INTO leads (fullname, mobile_one, address, language, product, form_id, website_id, inquiry_timestamp)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (mobile_one) DO NOTHING`,
				l.FullName, l.Phone, l.Address, l.Language, l.Product, l.FormID, websiteID, l.InquiryAt,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range leads {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return 0, fmt.Errorf("insert lead: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		if err := results.Close(); err != nil {
			return 0, fmt.Errorf("close lead batch: %w", err)
		}
	}

	if current == nil || cursor > *current {
		if _, err := tx.Exec(ctx,
			`INSERT INTO lead_sync_logs (website_id, form_id) VALUES ($1, $2)`,
			websiteID, cursor,
		); err != nil {
			return 0, fmt.Errorf("advance cursor: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit ingest: %w", err)
	}
	return inserted, nil
}

// ListProducts returns every product.
func (r *Repository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// CountEnabledBranches returns the number of enabled branches.
func (r *Repository) CountEnabledBranches(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branches WHERE enabled`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count enabled branches: %w", err)
	}
	return n, nil
}

// ListShares returns the product's positive weights on enabled branches.
func (r *Repository) ListShares(ctx context.Context, productID uuid.UUID) ([]domain.BranchShare, error) {
	query := `
		SELECT d.product_id, d.distribution,
			b.id, b.name, b.enabled, b.host, b.https, b.username, b.token,
			COALESCE(b.campaign_name, ''), COALESCE(b.queue_name, ''), COALESCE(b.list_name, '')
		FROM product_distributions d
		JOIN branches b ON b.id = d.branch_id
		WHERE d.product_id = $1 AND d.distribution > 0 AND b.enabled
		ORDER BY b.created_at, b.id`

	rows, err := r.pool.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	var shares []domain.BranchShare
	for rows.Next() {
		var s domain.BranchShare
		b := &s.Branch
		if err := rows.Scan(
			&s.ProductID, &s.Weight,
			&b.ID, &b.Name, &b.Enabled, &b.Host, &b.HTTPS, &b.Username, &b.Token,
			&b.Campaign, &b.Queue, &b.List,
		); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return shares, nil
}

const leadColumns = `
	id, fullname, mobile_one, address, language, product, form_id, website_id,
	inquiry_timestamp, created_at, COALESCE(dialer_status, ''), branch_id, operation_id, synced_with_branch_at`

func scanLeads(rows pgx.Rows) ([]domain.Lead, error) {
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		var l domain.Lead
		var status string
		if err := rows.Scan(
			&l.ID, &l.FullName, &l.Phone, &l.Address, &l.Language, &l.Product, &l.FormID, &l.WebsiteID,
			&l.InquiryAt, &l.CreatedAt, &status, &l.BranchID, &l.OperationID, &l.SyncedWithBranchAt,
		); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.DialerStatus = domain.DialerStatus(status)
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

// ListPendingLeads returns unallocated leads for a product code in insertion order.
func (r *Repository) ListPendingLeads(ctx context.Context, product string) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE product = $1 AND branch_id IS NULL AND dialer_status IS NULL
		ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, product)
	if err != nil {
		return nil, fmt.Errorf("list pending leads: %w", err)
	}
	return scanLeads(rows)
}

// GetSetting returns a setting value and whether it exists.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx, `SELECT setting_value FROM settings WHERE setting_key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// ApplyOutcome marks accepted and rejected leads in one transaction.
func (r *Repository) ApplyOutcome(ctx context.Context, outcome domain.Outcome) (int, error) {
	if outcome.Empty() {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin outcome: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE leads
		SET dialer_status = $1, branch_id = $2, operation_id = $3, synced_with_branch_at = $4
		WHERE id = ANY($5::uuid[]) AND dialer_status IS NULL AND branch_id IS NULL`

	updated := 0
	for _, group := range []struct {
		status domain.DialerStatus
		ids    []uuid.UUID
	}{
		{domain.DialerStatusAccepted, outcome.Accepted},
		{domain.DialerStatusRejected, outcome.Rejected},
	} {
		if len(group.ids) == 0 {
			continue
		}
		tag, err := tx.Exec(ctx, query,
			string(group.status), outcome.BranchID, outcome.OperationID, outcome.SyncedAt, group.ids,
		)
		if err != nil {
			return 0, fmt.Errorf("mark %s leads: %w", group.status, err)
		}
		updated += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit outcome: %w", err)
	}
	return updated, nil
}

// RevertOperation returns every lead of an operation to pending.
func (r *Repository) RevertOperation(ctx context.Context, operationID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET dialer_status = NULL, branch_id = NULL, operation_id = NULL, synced_with_branch_at = NULL
		WHERE operation_id = $1`, operationID)
	if err != nil {
		return 0, fmt.Errorf("revert operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperr.NotFound(operationNotFoundMessage)
	}
	return int(tag.RowsAffected()), nil
}

// RecordSyncError appends a failed ingestion entry.
func (r *Repository) RecordSyncError(ctx context.Context, entry domain.LeadSyncErrorLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO lead_sync_error_logs (website_id, message, body, status) VALUES ($1, $2, $3, $4)`,
		entry.WebsiteID, entry.Message, entry.Body, entry.Status,
	)
	if err != nil {
		return fmt.Errorf("record sync error: %w", err)
	}
	return nil
}

// AppendDialerLog appends a dispatch attempt entry.
func (r *Repository) AppendDialerLog(ctx context.Context, entry domain.DialerSyncLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dialer_sync_logs
			(success, branch_id, response, response_code, total_sent, total_passed, total_failed, message, operation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Success, entry.BranchID, entry.Response, entry.ResponseCode,
		entry.TotalSent, entry.TotalPassed, entry.TotalFailed, entry.Message, entry.OperationID,
	)
	if err != nil {
		return fmt.Errorf("append dialer log: %w", err)
	}
	return nil
}

// logWhere builds the shared entity and time range predicate for audit queries.
func logWhere(entityColumn string, filter domain.LogFilter) (string, []interface{}) {
	clauses := []string{"TRUE"}
	var args []interface{}

	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", entityColumn, len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	args = append(args, logLimit(filter))
	where := strings.Join(clauses, " AND ")
	return fmt.Sprintf("WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d", where, len(args)), args
}

// ListDialerLogs returns dispatch attempts, newest first.
func (r *Repository) ListDialerLogs(ctx context.Context, filter domain.LogFilter) ([]domain.DialerSyncLog, error) {
	where, args := logWhere("branch_id", filter)
	query := `
		SELECT id, success, branch_id, response, response_code, total_sent, total_passed, total_failed,
			message, operation_id, created_at
		FROM dialer_sync_logs ` + where

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dialer logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.DialerSyncLog
	for rows.Next() {
		var e domain.DialerSyncLog
		if err := rows.Scan(
			&e.ID, &e.Success, &e.BranchID, &e.Response, &e.ResponseCode, &e.TotalSent, &e.TotalPassed,
			&e.TotalFailed, &e.Message, &e.OperationID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dialer log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dialer logs: %w", err)
	}
	return entries, nil
}

// ListSyncErrors returns ingestion failures, newest first.
func (r *Repository) ListSyncErrors(ctx context.Context, filter domain.LogFilter) ([]domain.LeadSyncErrorLog, error) {
	where, args := logWhere("website_id", filter)
	query := `SELECT id, website_id, message, body, status, created_at FROM lead_sync_error_logs ` + where

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync errors: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeadSyncErrorLog
	for rows.Next() {
		var e domain.LeadSyncErrorLog
		if err := rows.Scan(&e.ID, &e.WebsiteID, &e.Message, &e.Body, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync error: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync errors: %w", err)
	}
	return entries, nil
}

// ListCursorHistory returns cursor positions, newest first.
func (r *Repository) ListCursorHistory(ctx context.Context, filter domain.LogFilter) ([]domain.LeadSyncLog, error) {
	where, args := logWhere("website_id", filter)
	query := `SELECT id, website_id, form_id, manual, created_at FROM lead_sync_logs ` + where

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cursor history: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeadSyncLog
	for rows.Next() {
		var e domain.LeadSyncLog
		if err := rows.Scan(&e.ID, &e.WebsiteID, &e.FormID, &e.Manual, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursor history: %w", err)
	}
	return entries, nil
}

// ListLeadsByOperation returns the leads touched by one dispatch attempt.
func (r *Repository) ListLeadsByOperation(ctx context.Context, operationID uuid.UUID) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE operation_id = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("list leads by operation: %w", err)
	}
	return scanLeads(rows)
}
