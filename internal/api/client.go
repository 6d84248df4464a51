// Package api is the REST client for the dispatch platform: call and unit
// fetches, lifecycle transitions, unit status changes and artifact
// downloads. Every request carries the operator's bearer token and a
// request id, and every failure maps onto the dispatch error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/watchdesk/watchdesk/internal/dispatch"
	"github.com/watchdesk/watchdesk/internal/log"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	userAgent      = "watchdesk"
)

// TokenSource supplies the current bearer credential.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for a fixed credential.
type StaticToken string

// Token returns the credential.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", errors.New("no credential configured")
	}
	return string(t), nil
}

// Client talks to the platform REST API.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport. Tests use it to skip otelhttp.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New returns a client for baseURL (e.g. "https://cad.example.org").
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	c := &Client{
		base: base,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured server root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Resolve turns a server-relative reference (e.g. "/static/a.mp3") into an
// absolute URL. Absolute references are returned unchanged.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

// errorBody is the platform's error envelope.
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// request describes one round trip.
type request struct {
	method string
	path   string
	op     string
	callID string
	body   any
	out    any
}

func (c *Client) do(ctx context.Context, r request) error {
	var body io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", r.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.base.String()+r.path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.op, err)
	}
	if err := c.authorize(req, r.op); err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug(log.CatAPI, "request failed", "op", r.op, "request_id", requestID, "error", err)
		return &dispatch.TransientError{Op: r.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &dispatch.TransientError{Op: r.op, Err: fmt.Errorf("read body: %w", err)}
	}
	log.Debug(log.CatAPI, "round trip", "op", r.op, "status", resp.StatusCode,
		"request_id", requestID, "elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode >= 300 {
		return classify(r.op, r.callID, resp.StatusCode, data)
	}
	if r.out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, r.out); err != nil {
		return &dispatch.TransientError{Op: r.op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) authorize(req *http.Request, op string) error {
	if c.tokens == nil {
		return &dispatch.AuthError{Op: op, Detail: "no credential configured"}
	}
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		detail := "no credential available"
		if err != nil {
			detail = err.Error()
		}
		return &dispatch.AuthError{Op: op, Detail: detail}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// classify maps a non-2xx response onto the error taxonomy.
func classify(op, callID string, status int, data []byte) error {
	detail := detailOf(data)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &dispatch.AuthError{Op: op, Status: status, Detail: detail}
	case status == http.StatusTooManyRequests || status >= 500:
		if detail == "" {
			detail = http.StatusText(status)
		}
		return &dispatch.TransientError{Op: op, Err: fmt.Errorf("HTTP %d: %s", status, detail)}
	default:
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", status)
		}
		return &dispatch.RejectedError{Op: op, CallID: callID, Reason: detail}
	}
}

func detailOf(data []byte) string {
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
