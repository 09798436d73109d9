// Package ports defines the external systems the lead sync pipeline talks to.
// Implementations live in internal/website and internal/dialer and are wired
// by the composition root.
package ports

import (
	"context"
	"time"

	"leadflow_backend/internal/leadsync/domain"
)

// UpstreamLead is one candidate record returned by a lead website.
type UpstreamLead struct {
	FullName  string
	Phone     string // as sent upstream, not yet validated
	Address   string
	Language  string
	Product   string
	FormID    int64
	InquiryAt *time.Time
}

// WebsiteFetcher pulls new leads from a website endpoint.
type WebsiteFetcher interface {
	// Fetch returns records after sinceFormID (all records when nil).
	// An upstream "nothing new" answer is an apperr.KindEmptyResult error.
	Fetch(ctx context.Context, url, token string, sinceFormID *int64) ([]UpstreamLead, error)
	// Count returns how many records are available after sinceFormID.
	Count(ctx context.Context, url, token string, sinceFormID *int64) (int, error)
}

// DialerRecord is one lead as the dialer receives it.
type DialerRecord struct {
	FirstName   string
	PhoneNumber string
	Address     string
	Comments    string
}

// DialerPush is one batch sent to a branch dialer.
type DialerPush struct {
	Target  domain.DialerTarget
	Records []DialerRecord
}

// DialerResult is the dialer's answer to a push.
type DialerResult struct {
	StatusCode int
	StatusText string
	OK         bool
	Raw        string
	Total      int
	Passed     int
	Failed     int
	// HasFailureList is true when the dialer sent a failure_list, even an empty one.
	HasFailureList bool
	// FailedPhones holds the phone numbers named in failure_list.
	FailedPhones []string
}

// DialerPusher delivers lead batches to a branch dialer.
type DialerPusher interface {
	// Push returns an apperr.KindTransport error when no usable response arrived.
	Push(ctx context.Context, push DialerPush) (DialerResult, error)
}
