package website

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/sanitize"
)

// apiLead is one record as lead websites serve it.
type apiLead struct {
	FullName         string     `json:"full_name"`
	MobileOne        flexString `json:"mobile_one"`
	Address          string     `json:"address"`
	Language         string     `json:"language"`
	Product          string     `json:"product"`
	InquiryTimestamp flexString `json:"inquiry_timestamp"`
	FormID           flexInt64  `json:"form_id"`
}

func (a apiLead) toPort() ports.UpstreamLead {
	return ports.UpstreamLead{
		FullName:  sanitize.Field(a.FullName),
		Phone:     string(a.MobileOne),
		Address:   sanitize.Field(a.Address),
		Language:  sanitize.Field(a.Language),
		Product:   sanitize.Field(a.Product),
		FormID:    int64(a.FormID),
		InquiryAt: parseInquiryTime(string(a.InquiryTimestamp)),
	}
}

var inquiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseInquiryTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range inquiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt64 accepts a JSON integer or a quoted integer.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}
