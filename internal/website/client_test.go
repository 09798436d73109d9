package website

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

type testHTTPConfig struct{}

func (testHTTPConfig) GetWebsiteFetchTimeout() time.Duration { return 2 * time.Second }
func (testHTTPConfig) GetDialerPushTimeout() time.Duration   { return 2 * time.Second }
func (testHTTPConfig) GetOutboundRatePerSecond() float64     { return 0 }

func newTestClient() *Client {
	return New(testHTTPConfig{}, logger.Discard())
}

func TestFetchSendsTokenAndCursor(t *testing.T) {
	var gotToken, gotFormID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		gotFormID = r.URL.Query().Get("formid")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"full_name":" <b>Asha</b>  Rao ","mobile_one":9876543210,"address":"MG Road,\n Pune","language":"Hindi","product":"solar","inquiry_timestamp":"2026-03-01T09:30:00.000+05:30","form_id":41},
			{"full_name":"Ravi","mobile_one":"9123456789","address":"","language":"Tamil","product":"solar","inquiry_timestamp":null,"form_id":"42"}
		]`))
	}))
	defer srv.Close()

	since := int64(40)
	leads, err := newTestClient().Fetch(context.Background(), srv.URL+"/api/leads", "secret", &since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken != "secret" || gotFormID != "40" {
		t.Fatalf("expected token=secret formid=40, got token=%q formid=%q", gotToken, gotFormID)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].FullName != "Asha Rao" || leads[0].Address != "MG Road, Pune" || leads[0].Phone != "9876543210" || leads[0].FormID != 41 {
		t.Fatalf("unexpected first lead: %+v", leads[0])
	}
	if leads[0].InquiryAt == nil {
		t.Fatalf("expected inquiry timestamp to be parsed")
	}
	if leads[1].Phone != "9123456789" || leads[1].FormID != 42 || leads[1].InquiryAt != nil {
		t.Fatalf("unexpected second lead: %+v", leads[1])
	}
}

func TestFetchOmitsCursorOnFirstRun(t *testing.T) {
	hasFormID := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasFormID = r.URL.Query().Has("formid")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	leads, err := newTestClient().Fetch(context.Background(), srv.URL, "t", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasFormID {
		t.Fatalf("expected no formid parameter without a cursor")
	}
	if len(leads) != 0 {
		t.Fatalf("expected no leads, got %d", len(leads))
	}
}

func TestFetchBadRequestIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"no data"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, "t", nil)
	if !apperr.Is(err, apperr.KindEmptyResult) {
		t.Fatalf("expected empty result kind, got %v", err)
	}
}

func TestFetchServerErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"db down"}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, "t", nil)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	if e.Status != http.StatusInternalServerError || string(e.Body) != `{"error":"db down"}` {
		t.Fatalf("expected status and body on error, got %d %q", e.Status, e.Body)
	}
}

func TestFetchMalformedBodyIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Fetch(context.Background(), srv.URL, "t", nil)
	if !apperr.Is(err, apperr.KindTransport) {
		t.Fatalf("expected transport error for malformed body, got %v", err)
	}
}

func TestFetchTimeoutIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient().Fetch(ctx, srv.URL, "t", nil)
	if !apperr.Is(err, apperr.KindTransport) {
		t.Fatalf("expected transport error on timeout, got %v", err)
	}
}

func TestCountTreatsNotFoundAsZero(t *testing.T) {
	var gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCount = r.URL.Query().Get("count")
		http.NotFound(w, r)
	}))
	defer srv.Close()

	n, err := newTestClient().Count(context.Background(), srv.URL, "t", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 || gotCount != "true" {
		t.Fatalf("expected 0 with count=true, got %d count=%q", n, gotCount)
	}
}

func TestFetchRejectsRelativeURL(t *testing.T) {
	_, err := newTestClient().Fetch(context.Background(), "leads.example.com/api", "t", nil)
	if !apperr.Is(err, apperr.KindConfig) {
		t.Fatalf("expected config error for relative url, got %v", err)
	}
}
