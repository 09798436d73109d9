// Package dialer provides the HTTP client for branch dialer systems.
package dialer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadflow_backend/internal/leadsync/ports"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

const leadPushPath = "/admin/leadpush"

const maxResponseBody = 4 << 20

// Client pushes lead batches to branch dialers.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New creates a dialer client. Branch dialers run with self-signed
// certificates, so certificate verification is disabled.
func New(cfg config.HTTPClientConfig, log *logger.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	var limiter *rate.Limiter
	if perSecond := cfg.GetOutboundRatePerSecond(); perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.GetDialerPushTimeout(),
			Transport: transport,
		},
		limiter: limiter,
		log:     log,
	}
}

var _ ports.DialerPusher = (*Client)(nil)

// Push sends one batch and interprets the dialer's answer.
// A non-2xx answer with a decodable body is a result, not an error.
func (c *Client) Push(ctx context.Context, push ports.DialerPush) (ports.DialerResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return ports.DialerResult{}, apperr.Transport("rate limiter wait", err).WithOp("dialer.Push")
		}
	}

	payload, err := json.Marshal(newPushRequest(push))
	if err != nil {
		return ports.DialerResult{}, apperr.Internal("encode push request", err).WithOp("dialer.Push")
	}

	endpoint := Endpoint(push.Target.Host, push.Target.HTTPS)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ports.DialerResult{}, apperr.Wrap(apperr.KindConfig, "create request", err).WithOp("dialer.Push")
	}
	req.SetBasicAuth(push.Target.Username, push.Target.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ExternalCall("dialer", endpoint, 0, sinceMs(start), err)
		return ports.DialerResult{}, apperr.Transport("http request", err).WithOp("dialer.Push")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.log.ExternalCall("dialer", endpoint, resp.StatusCode, sinceMs(start), err)
		return ports.DialerResult{}, apperr.Transport("read response", err).WithOp("dialer.Push")
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		decodeErr := apperr.Transport("decode response", err).
			WithOp("dialer.Push").
			WithResponse(resp.StatusCode, body)
		c.log.ExternalCall("dialer", endpoint, resp.StatusCode, sinceMs(start), decodeErr)
		return ports.DialerResult{}, decodeErr
	}
	c.log.ExternalCall("dialer", endpoint, resp.StatusCode, sinceMs(start), nil)

	result := ports.DialerResult{
		StatusCode:     resp.StatusCode,
		StatusText:     statusText(resp),
		OK:             resp.StatusCode >= 200 && resp.StatusCode < 300,
		Raw:            string(body),
		Total:          decoded.Total,
		Passed:         decoded.Pass,
		Failed:         decoded.Fail,
		HasFailureList: decoded.FailureList != nil,
	}
	for _, failure := range decoded.FailureList {
		if failure.PhoneNumber != "" {
			result.FailedPhones = append(result.FailedPhones, string(failure.PhoneNumber))
		}
	}

	return result, nil
}

// Endpoint returns the lead push URL for a dialer host.
func Endpoint(host string, https bool) string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, leadPushPath)
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
