// Package domain holds the entities of the lead sync bounded context.
// It has no dependencies on storage or transport.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SettingSyncThreshold is the settings key holding the allocation threshold.
const SettingSyncThreshold = "sync_threshold"

// DialerStatus records what a branch dialer did with a lead.
type DialerStatus string

const (
	DialerStatusUnset    DialerStatus = ""
	DialerStatusAccepted DialerStatus = "accepted"
	DialerStatusRejected DialerStatus = "rejected"
)

// Lead is a sales inquiry ingested from a website.
type Lead struct {
	ID        uuid.UUID
	FullName  string
	Phone     string
	Address   string
	Language  string
	Product   string
	FormID    int64
	WebsiteID uuid.UUID
	InquiryAt *time.Time
	CreatedAt time.Time

	DialerStatus       DialerStatus
	BranchID           *uuid.UUID
	OperationID        *uuid.UUID
	SyncedWithBranchAt *time.Time
}

// Pending reports whether the lead can still be allocated to a branch.
func (l Lead) Pending() bool {
	return l.BranchID == nil && l.DialerStatus == DialerStatusUnset
}

// OutcomeConsistent reports whether the dispatch outcome fields are either all
// set or all unset.
func (l Lead) OutcomeConsistent() bool {
	set := l.BranchID != nil && l.OperationID != nil && l.SyncedWithBranchAt != nil
	unset := l.BranchID == nil && l.OperationID == nil && l.SyncedWithBranchAt == nil
	if l.DialerStatus == DialerStatusUnset {
		return unset
	}
	return set
}

// NewLead is a normalized lead ready to be stored.
type NewLead struct {
	FullName  string
	Phone     string
	Address   string
	Language  string
	Product   string
	FormID    int64
	WebsiteID uuid.UUID
	InquiryAt *time.Time
}

// Website is an external lead source.
type Website struct {
	ID       uuid.UUID
	Name     string
	URL      string
	Token    string
	AutoSync bool
	// Cursor is the upstream form id of the last ingested record, nil before the first sync.
	Cursor *int64
}

// Branch is a call-center destination with its own dialer.
type Branch struct {
	ID       uuid.UUID
	Name     string
	Enabled  bool
	Host     string
	HTTPS    bool
	Username string
	Token    string
	Campaign string
	Queue    string
	List     string
}

// DialerTarget is the subset of a branch needed to push leads.
type DialerTarget struct {
	Host     string `validate:"notblank"`
	HTTPS    bool
	Username string
	Token    string
	Campaign string `validate:"notblank"`
	Queue    string `validate:"notblank"`
	List     string `validate:"notblank"`
}

// Target returns the branch's dialer coordinates with whitespace trimmed.
func (b Branch) Target() DialerTarget {
	return DialerTarget{
		Host:     strings.TrimSpace(b.Host),
		HTTPS:    b.HTTPS,
		Username: b.Username,
		Token:    b.Token,
		Campaign: strings.TrimSpace(b.Campaign),
		Queue:    strings.TrimSpace(b.Queue),
		List:     strings.TrimSpace(b.List),
	}
}

// Product is a lead product code. Leads reference it by name.
type Product struct {
	ID   uuid.UUID
	Name string
}

// BranchShare is one distribution weight for a product joined to its branch.
type BranchShare struct {
	ProductID uuid.UUID
	Branch    Branch
	Weight    int
}

// Outcome is the per-lead result of one dispatch attempt.
type Outcome struct {
	BranchID    uuid.UUID
	OperationID uuid.UUID
	SyncedAt    time.Time
	Accepted    []uuid.UUID
	Rejected    []uuid.UUID
}

// Empty reports whether the outcome touches no leads.
func (o Outcome) Empty() bool {
	return len(o.Accepted) == 0 && len(o.Rejected) == 0
}

// DialerSyncLog is the immutable audit row written for every dispatch attempt.
type DialerSyncLog struct {
	ID           int64
	Success      bool
	BranchID     uuid.UUID
	Response     *string
	ResponseCode *int
	TotalSent    *int
	TotalPassed  *int
	TotalFailed  *int
	Message      string
	OperationID  uuid.UUID
	CreatedAt    time.Time
}

// LeadSyncErrorLog records a failed ingestion for one website.
type LeadSyncErrorLog struct {
	ID        int64
	WebsiteID uuid.UUID
	Message   string
	Body      *string
	Status    *int
	CreatedAt time.Time
}

// LeadSyncLog is one cursor position for a website. The newest row is the cursor.
type LeadSyncLog struct {
	ID        int64
	WebsiteID uuid.UUID
	FormID    int64
	Manual    bool
	CreatedAt time.Time
}

// LogFilter narrows audit queries by entity and time range. Zero values match everything.
type LogFilter struct {
	EntityID *uuid.UUID
	From     time.Time
	To       time.Time
	Limit    int
}

// Matches reports whether a row for entityID created at ts passes the filter.
func (f LogFilter) Matches(entityID uuid.UUID, ts time.Time) bool {
	if f.EntityID != nil && *f.EntityID != entityID {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ts.Before(f.To) {
		return false
	}
	return true
}

// DialerComment is the free-text comment sent to the dialer with each lead.
func DialerComment(l Lead) string {
	return fmt.Sprintf("Product: %s, Language: %s", l.Product, l.Language)
}
