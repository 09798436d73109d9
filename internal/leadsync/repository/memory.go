package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// Memory is an in-process LeadStore. It is safe for concurrent use.
type Memory struct {
	mu sync.Mutex

	websites      []domain.Website
	branches      []domain.Branch
	products      []domain.Product
	distributions []distribution
	settings      map[string]string

	leads   []domain.Lead
	byPhone map[string]int

	cursors    []domain.LeadSyncLog
	syncErrors []domain.LeadSyncErrorLog
	dialerLogs []domain.DialerSyncLog
	nextLogID  int64

	nowFn func() time.Time
}

type distribution struct {
	productID uuid.UUID
	branchID  uuid.UUID
	weight    int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		settings: make(map[string]string),
		byPhone:  make(map[string]int),
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

var _ LeadStore = (*Memory)(nil)

// AddWebsite seeds a website. A zero ID is replaced with a new one.
func (m *Memory) AddWebsite(w domain.Website) domain.Website {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.Cursor = nil
	m.websites = append(m.websites, w)
	return w
}

// AddBranch seeds a branch. A zero ID is replaced with a new one.
func (m *Memory) AddBranch(b domain.Branch) domain.Branch {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.branches = append(m.branches, b)
	return b
}

// AddProduct seeds a product by code.
func (m *Memory) AddProduct(name string) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Product{ID: uuid.New(), Name: name}
	m.products = append(m.products, p)
	return p
}

// SetDistribution sets a product's weight on a branch.
func (m *Memory) SetDistribution(productID, branchID uuid.UUID, weight int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.distributions {
		if m.distributions[i].productID == productID && m.distributions[i].branchID == branchID {
			m.distributions[i].weight = weight
			return
		}
	}
	m.distributions = append(m.distributions, distribution{productID: productID, branchID: branchID, weight: weight})
}

// SetSetting stores a setting value.
func (m *Memory) SetSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

// Leads returns a snapshot of every stored lead in insertion order.
func (m *Memory) Leads() []domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Lead, len(m.leads))
	copy(out, m.leads)
	return out
}

func (m *Memory) nextID() int64 {
	m.nextLogID++
	return m.nextLogID
}

func (m *Memory) cursorOf(websiteID uuid.UUID) *int64 {
	var highest *int64
	for _, c := range m.cursors {
		if c.WebsiteID != websiteID {
			continue
		}
		if highest == nil || c.FormID > *highest {
			formID := c.FormID
			highest = &formID
		}
	}
	return highest
}

func (m *Memory) websiteIndex(id uuid.UUID) int {
	for i := range m.websites {
		if m.websites[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) branchByID(id uuid.UUID) (domain.Branch, bool) {
	for _, b := range m.branches {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Branch{}, false
}

// ListAutoSyncWebsites returns every website flagged for automatic sync.
func (m *Memory) ListAutoSyncWebsites(_ context.Context) ([]domain.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Website
	for _, w := range m.websites {
		if !w.AutoSync {
			continue
		}
		w.Cursor = m.cursorOf(w.ID)
		out = append(out, w)
	}
	return out, nil
}

// GetWebsite returns one website with its current cursor.
func (m *Memory) GetWebsite(_ context.Context, id uuid.UUID) (domain.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.websiteIndex(id)
	if idx < 0 {
		return domain.Website{}, apperr.NotFound(websiteNotFoundMessage)
	}
	w := m.websites[idx]
	w.Cursor = m.cursorOf(id)
	return w, nil
}

// AppendCursor records a manual cursor position at or above the current one.
func (m *Memory) AppendCursor(_ context.Context, websiteID uuid.UUID, formID int64) (domain.LeadSyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.websiteIndex(websiteID) < 0 {
		return domain.LeadSyncLog{}, apperr.NotFound(websiteNotFoundMessage)
	}
	if err := checkManualCursor(m.cursorOf(websiteID), formID); err != nil {
		return domain.LeadSyncLog{}, err
	}
	entry := domain.LeadSyncLog{
		ID:        m.nextID(),
		WebsiteID: websiteID,
		FormID:    formID,
		Manual:    true,
		CreatedAt: m.nowFn(),
	}
	m.cursors = append(m.cursors, entry)
	return entry, nil
}

// IngestBatch inserts leads with unseen phones and advances the cursor.
func (m *Memory) IngestBatch(_ context.Context, websiteID uuid.UUID, leads []domain.NewLead, cursor int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.websiteIndex(websiteID) < 0 {
		return 0, apperr.NotFound(websiteNotFoundMessage)
	}

	now := m.nowFn()
	inserted := 0
	for _, nl := range leads {
		if _, exists := m.byPhone[nl.Phone]; exists {
			continue
		}
		m.byPhone[nl.Phone] = len(m.leads)
		m.leads = append(m.leads, domain.Lead{
			ID:        uuid.New(),
			FullName:  nl.FullName,
			Phone:     nl.Phone,
			Address:   nl.Address,
			Language:  nl.Language,
			Product:   nl.Product,
			FormID:    nl.FormID,
			WebsiteID: websiteID,
			InquiryAt: nl.InquiryAt,
			CreatedAt: now,
		})
		inserted++
	}

	if current := m.cursorOf(websiteID); current == nil || cursor > *current {
		m.cursors = append(m.cursors, domain.LeadSyncLog{
			ID:        m.nextID(),
			WebsiteID: websiteID,
			FormID:    cursor,
			CreatedAt: now,
		})
	}
	return inserted, nil
}

// ListProducts returns every product.
func (m *Memory) ListProducts(_ context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}

// CountEnabledBranches returns the number of enabled branches.
func (m *Memory) CountEnabledBranches(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.branches {
		if b.Enabled {
			n++
		}
	}
	return n, nil
}

// ListShares returns the product's positive weights on enabled branches in branch order.
func (m *Memory) ListShares(_ context.Context, productID uuid.UUID) ([]domain.BranchShare, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BranchShare
	for _, b := range m.branches {
		if !b.Enabled {
			continue
		}
		for _, d := range m.distributions {
			if d.productID == productID && d.branchID == b.ID && d.weight > 0 {
				out = append(out, domain.BranchShare{ProductID: productID, Branch: b, Weight: d.weight})
			}
		}
	}
	return out, nil
}

// ListPendingLeads returns unallocated leads for a product code in insertion order.
func (m *Memory) ListPendingLeads(_ context.Context, product string) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.leads {
		if l.Product == product && l.Pending() {
			out = append(out, l)
		}
	}
	return out, nil
}

// GetSetting returns a setting value and whether it exists.
func (m *Memory) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

// ApplyOutcome marks accepted and rejected leads atomically.
func (m *Memory) ApplyOutcome(_ context.Context, outcome domain.Outcome) (int, error) {
	if outcome.Empty() {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.branchByID(outcome.BranchID); !ok {
		return 0, apperr.NotFound("branch not found")
	}

	index := make(map[uuid.UUID]int, len(m.leads))
	for i := range m.leads {
		index[m.leads[i].ID] = i
	}

	updated := 0
	mark := func(ids []uuid.UUID, status domain.DialerStatus) {
		for _, id := range ids {
			i, ok := index[id]
			if !ok || !m.leads[i].Pending() {
				continue
			}
			branchID, opID, syncedAt := outcome.BranchID, outcome.OperationID, outcome.SyncedAt
			l := &m.leads[i]
			l.DialerStatus = status
			l.BranchID = &branchID
			l.OperationID = &opID
			l.SyncedWithBranchAt = &syncedAt
			updated++
		}
	}
	mark(outcome.Accepted, domain.DialerStatusAccepted)
	mark(outcome.Rejected, domain.DialerStatusRejected)
	return updated, nil
}

// RevertOperation returns every lead of an operation to pending.
func (m *Memory) RevertOperation(_ context.Context, operationID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reverted := 0
	for i := range m.leads {
		l := &m.leads[i]
		if l.OperationID == nil || *l.OperationID != operationID {
			continue
		}
		l.DialerStatus = domain.DialerStatusUnset
		l.BranchID = nil
		l.OperationID = nil
		l.SyncedWithBranchAt = nil
		reverted++
	}
	if reverted == 0 {
		return 0, apperr.NotFound(operationNotFoundMessage)
	}
	return reverted, nil
}

// RecordSyncError appends a failed ingestion entry.
func (m *Memory) RecordSyncError(_ context.Context, entry domain.LeadSyncErrorLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextID()
	entry.CreatedAt = m.nowFn()
	m.syncErrors = append(m.syncErrors, entry)
	return nil
}

// AppendDialerLog appends a dispatch attempt entry.
func (m *Memory) AppendDialerLog(_ context.Context, entry domain.DialerSyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.nextID()
	entry.CreatedAt = m.nowFn()
	m.dialerLogs = append(m.dialerLogs, entry)
	return nil
}

// newestFirst filters rows and orders them newest first, capped at the filter limit.
func newestFirst[T any](rows []T, filter domain.LogFilter, key func(T) (uuid.UUID, time.Time, int64)) []T {
	var out []T
	for _, row := range rows {
		entity, ts, _ := key(row)
		if filter.Matches(entity, ts) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		_, ti, idI := key(out[i])
		_, tj, idJ := key(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idI > idJ
	})
	if limit := logLimit(filter); len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListDialerLogs returns dispatch attempts, newest first.
func (m *Memory) ListDialerLogs(_ context.Context, filter domain.LogFilter) ([]domain.DialerSyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.dialerLogs, filter, func(e domain.DialerSyncLog) (uuid.UUID, time.Time, int64) {
		return e.BranchID, e.CreatedAt, e.ID
	}), nil
}

// ListSyncErrors returns ingestion failures, newest first.
func (m *Memory) ListSyncErrors(_ context.Context, filter domain.LogFilter) ([]domain.LeadSyncErrorLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.syncErrors, filter, func(e domain.LeadSyncErrorLog) (uuid.UUID, time.Time, int64) {
		return e.WebsiteID, e.CreatedAt, e.ID
	}), nil
}

// ListCursorHistory returns cursor positions, newest first.
func (m *Memory) ListCursorHistory(_ context.Context, filter domain.LogFilter) ([]domain.LeadSyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.cursors, filter, func(e domain.LeadSyncLog) (uuid.UUID, time.Time, int64) {
		return e.WebsiteID, e.CreatedAt, e.ID
	}), nil
}

// ListLeadsByOperation returns the leads touched by one dispatch attempt.
func (m *Memory) ListLeadsByOperation(_ context.Context, operationID uuid.UUID) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.leads {
		if l.OperationID != nil && *l.OperationID == operationID {
			out = append(out, l)
		}
	}
	return out, nil
}
