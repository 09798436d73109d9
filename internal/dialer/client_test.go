package dialer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
)

type testHTTPConfig struct{}

func (testHTTPConfig) GetWebsiteFetchTimeout() time.Duration { return 2 * time.Second }
func (testHTTPConfig) GetDialerPushTimeout() time.Duration   { return 2 * time.Second }
func (testHTTPConfig) GetOutboundRatePerSecond() float64     { return 0 }

func testPush(host string, https bool) ports.DialerPush {
	return ports.DialerPush{
		Target: domain.DialerTarget{
			Host:     host,
			HTTPS:    https,
			Username: "branch-user",
			Token:    "branch-token",
			Campaign: "solar-q1",
			Queue:    "inbound",
			List:     "web",
		},
		Records: []ports.DialerRecord{
			{FirstName: "Asha", PhoneNumber: "9876543210", Address: "MG Road", Comments: "Product: solar, Language: Hindi"},
			{FirstName: "Ravi", PhoneNumber: "9123456789", Address: "", Comments: "Product: solar, Language: Tamil"},
		},
	}
}

func TestPushOverSelfSignedTLS(t *testing.T) {
	var got pushRequest
	var user, pass, path string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"Response":"Success","total":2,"pass":2,"fail":0}`))
	}))
	defer srv.Close()

	client := New(testHTTPConfig{}, logger.Discard())
	result, err := client.Push(context.Background(), testPush(strings.TrimPrefix(srv.URL, "https://"), true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if path != "/admin/leadpush" {
		t.Fatalf("expected /admin/leadpush, got %s", path)
	}
	if user != "branch-user" || pass != "branch-token" {
		t.Fatalf("expected basic auth branch-user/branch-token, got %s/%s", user, pass)
	}
	if got.CampName != "solar-q1" || got.QName != "inbound" || got.ListName != "web" {
		t.Fatalf("unexpected campaign fields: %+v", got)
	}
	if len(got.Data) != 2 || got.Data[0].Status != "NEW" || got.Data[0].PhoneNumber != "9876543210" {
		t.Fatalf("unexpected data: %+v", got.Data)
	}
	if !result.OK || result.Total != 2 || result.Passed != 2 || result.HasFailureList {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestPushFailureResponseIsAResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"Response":"Failure","total":2,"pass":1,"fail":1,
			"failure_list":[{"firstname":"Ravi","phonenumber":9123456789,"status":"NEW","failure_cause":"DNC"}]}`))
	}))
	defer srv.Close()

	client := New(testHTTPConfig{}, logger.Discard())
	result, err := client.Push(context.Background(), testPush(strings.TrimPrefix(srv.URL, "http://"), false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK || result.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected failed status in result, got %+v", result)
	}
	if !result.HasFailureList || len(result.FailedPhones) != 1 || result.FailedPhones[0] != "9123456789" {
		t.Fatalf("expected numeric failure phone to be decoded, got %+v", result.FailedPhones)
	}
	if result.Failed != 1 || result.Passed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
}

func TestPushMalformedResponseIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	client := New(testHTTPConfig{}, logger.Discard())
	_, err := client.Push(context.Background(), testPush(strings.TrimPrefix(srv.URL, "http://"), false))
	if !apperr.Is(err, apperr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPushConnectionRefusedIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	client := New(testHTTPConfig{}, logger.Discard())
	_, err := client.Push(context.Background(), testPush(host, false))
	if !apperr.Is(err, apperr.KindTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint("10.0.0.5", true); got != "https://10.0.0.5/admin/leadpush" {
		t.Fatalf("unexpected https endpoint %s", got)
	}
	if got := Endpoint("10.0.0.5:8080", false); got != "http://10.0.0.5:8080/admin/leadpush" {
		t.Fatalf("unexpected http endpoint %s", got)
	}
}
