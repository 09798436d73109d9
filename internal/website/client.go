// Package website provides the HTTP client for lead websites.
package website

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

const maxErrorBody = 64 << 10

// Client fetches leads from website endpoints.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a website client. Each request is bounded by the configured fetch timeout.
func New(cfg config.HTTPClientConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.GetWebsiteFetchTimeout()},
		limiter:    newLimiter(cfg.GetOutboundRatePerSecond()),
		log:        log,
	}
}

var _ ports.WebsiteFetcher = (*Client)(nil)

// Fetch returns records newer than sinceFormID.
func (c *Client) Fetch(ctx context.Context, baseURL, token string, sinceFormID *int64) ([]ports.UpstreamLead, error) {
	reqURL, err := buildURL(baseURL, token, sinceFormID, false)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "invalid website url", err).WithOp("website.Fetch")
	}

	records, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	leads := make([]ports.UpstreamLead, 0, len(records))
	for _, rec := range records {
		leads = append(leads, rec.toPort())
	}
	return leads, nil
}

// Count returns how many records the website has after sinceFormID.
func (c *Client) Count(ctx context.Context, baseURL, token string, sinceFormID *int64) (int, error) {
	reqURL, err := buildURL(baseURL, token, sinceFormID, true)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConfig, "invalid website url", err).WithOp("website.Count")
	}

	records, err := c.get(ctx, reqURL)
	if err != nil {
		if e, ok := apperr.As(err); ok && (e.Kind == apperr.KindEmptyResult || e.Status == http.StatusNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return len(records), nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]apiLead, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperr.Transport("rate limiter wait", err).WithOp("website.get")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "create request", err).WithOp("website.get")
	}
	req.Header.Set("Accept", "application/json")

	target := redactToken(reqURL)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ExternalCall("website", target, 0, sinceMs(start), err)
		return nil, apperr.Transport("http request", err).WithOp("website.get")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// decode below
	case resp.StatusCode == http.StatusBadRequest:
		// Websites answer 400 when there is nothing after the cursor.
		c.log.Debug("website has no new leads", "target", target)
		return nil, apperr.EmptyResult("no new leads").WithOp("website.get")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := apperr.Transport(fmt.Sprintf("upstream error: status %d", resp.StatusCode), nil).
			WithOp("website.get").
			WithResponse(resp.StatusCode, body)
		c.log.ExternalCall("website", target, resp.StatusCode, sinceMs(start), err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transport("read response", err).WithOp("website.get")
	}
	c.log.ExternalCall("website", target, resp.StatusCode, sinceMs(start), nil)

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var records []apiLead
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, apperr.Transport("decode response", err).
			WithOp("website.get").
			WithResponse(resp.StatusCode, truncate(body))
	}
	return records, nil
}

func buildURL(baseURL, token string, sinceFormID *int64, count bool) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", baseURL)
	}

	q := u.Query()
	q.Set("token", token)
	if sinceFormID != nil {
		q.Set("formid", strconv.FormatInt(*sinceFormID, 10))
	}
	if count {
		q.Set("count", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func redactToken(reqURL string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return reqURL
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "redacted")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func truncate(body []byte) []byte {
	if len(body) > maxErrorBody {
		return body[:maxErrorBody]
	}
	return body
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
