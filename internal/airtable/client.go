// Package airtable provides the HTTP client for the Airtable REST API.
//
// # Client Architecture
//
// The Client wraps Go's standard net/http.Client and turns every gateway
// operation into exactly one Airtable call:
//
//	┌──────────────────┬────────┬──────────────────────────────────────────┐
//	│ Operation        │ Method │ Upstream request                         │
//	├──────────────────┼────────┼──────────────────────────────────────────┤
//	│ ListRecords      │ GET    │ {api}/{base}/{table}?view=&maxRecords=…  │
//	│ CreateRecord     │ POST   │ {api}/{base}/{table}  {"records":[…]}    │
//	│ UpdateRecord     │ PATCH  │ {api}/{base}/{table}  {"records":[…]}    │
//	│ DeleteRecords    │ DELETE │ {api}/{base}/{table}?records[]=id        │
//	└──────────────────┴────────┴──────────────────────────────────────────┘
//
// The table name is path-escaped once by the client. There are no retries:
// a failed call is reported to the caller as-is.
//
// # Response Handling
//
// The response body is always returned as valid JSON. Bodies that do not
// parse are wrapped as {"raw": "<text>"}. A non-2xx status is returned as
// *UpstreamError carrying the status and that body, so callers can pass both
// through unchanged. Transport failures are returned as plain wrapped errors
// with no status.
//
// # Thread Safety
//
// The Client is safe for concurrent use. The underlying http.Client handles
// connection pooling.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/config"
	"github.com/RaikaSurendra/airtable-gateway/internal/observability"
)

// Client provides methods to interact with the Airtable REST API.
// All methods are safe for concurrent use.
type Client interface {
	// Do issues a single upstream call. path is relative to the base and
	// must already be escaped, including any query suffix. body is
	// JSON-encoded when non-nil.
	Do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error)

	// ListRecords fetches records from a table.
	ListRecords(ctx context.Context, table string, opts ListOptions) (json.RawMessage, error)

	// CreateRecord creates one record with the given fields.
	CreateRecord(ctx context.Context, table string, fields Fields) (json.RawMessage, error)

	// UpdateRecord merges fields into the record identified by id.
	UpdateRecord(ctx context.Context, table, id string, fields Fields) (json.RawMessage, error)

	// DeleteRecords deletes the records identified by ids.
	DeleteRecords(ctx context.Context, table string, ids ...string) (json.RawMessage, error)
}

// httpClient is the concrete implementation of the Client interface.
type httpClient struct {
	apiURL string
	baseID string
	token  string
	http   *http.Client
	logger *slog.Logger
}

// ClientOption is a functional option for configuring the HTTP client.
type ClientOption func(*httpClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a new Airtable HTTP client. A zero cfg.Timeout leaves
// upstream calls without a client-side deadline.
func NewClient(cfg config.AirtableConfig, logger *slog.Logger, opts ...ClientOption) Client {
	c := &httpClient{
		apiURL: cfg.APIURL,
		baseID: cfg.BaseID,
		token:  cfg.Token,
		logger: logger.With("component", "airtable-client"),
		http: &http.Client{
			Timeout: cfg.Timeout.Duration,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListRecords issues GET {api}/{base}/{table}?{params}.
func (c *httpClient) ListRecords(ctx context.Context, table string, opts ListOptions) (json.RawMessage, error) {
	path := url.PathEscape(table)
	if q := opts.Encode(); q != "" {
		path += "?" + q
	}
	return c.Do(ctx, http.MethodGet, path, nil)
}

// CreateRecord issues POST {api}/{base}/{table} with a one-record envelope.
func (c *httpClient) CreateRecord(ctx context.Context, table string, fields Fields) (json.RawMessage, error) {
	env := Envelope{Records: []Record{{Fields: nonNil(fields)}}}
	return c.Do(ctx, http.MethodPost, url.PathEscape(table), env)
}

// UpdateRecord issues PATCH {api}/{base}/{table} with a one-record envelope.
// Airtable merges the supplied fields into the existing record.
func (c *httpClient) UpdateRecord(ctx context.Context, table, id string, fields Fields) (json.RawMessage, error) {
	env := Envelope{Records: []Record{{ID: id, Fields: nonNil(fields)}}}
	return c.Do(ctx, http.MethodPatch, url.PathEscape(table), env)
}

// DeleteRecords issues DELETE {api}/{base}/{table}?records[]=id, repeating the
// parameter for each id.
func (c *httpClient) DeleteRecords(ctx context.Context, table string, ids ...string) (json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("delete requires at least one record id")
	}
	params := url.Values{"records[]": ids}
	return c.Do(ctx, http.MethodDelete, url.PathEscape(table)+"?"+params.Encode(), nil)
}

// Do builds and sends one upstream request.
func (c *httpClient) Do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	reqURL := c.apiURL + "/" + c.baseID + "/" + path
	op := operation(method)

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("calling upstream", "method", method, "path", path)

	requestStart := time.Now()
	resp, err := c.http.Do(req)
	observability.Metrics.UpstreamRequestsTotal.WithLabelValues(method, op).Inc()
	observability.Metrics.UpstreamLatency.WithLabelValues(method, op).Observe(time.Since(requestStart).Seconds())
	if err != nil {
		observability.Metrics.UpstreamErrorsTotal.WithLabelValues(method, "network").Inc()
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.Metrics.UpstreamErrorsTotal.WithLabelValues(method, "read").Inc()
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	payload := parseBody(text)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.Metrics.UpstreamErrorsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
		c.logger.Warn("upstream rejected request",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", truncateBody(payload),
		)
		return nil, &UpstreamError{Status: resp.StatusCode, Body: payload}
	}

	return payload, nil
}

// parseBody returns text unchanged when it is valid JSON and {"raw": text}
// otherwise.
func parseBody(text []byte) json.RawMessage {
	if len(bytes.TrimSpace(text)) > 0 && json.Valid(text) {
		return json.RawMessage(text)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(text)})
	return wrapped
}

func operation(method string) string {
	switch method {
	case http.MethodGet:
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "other"
	}
}

func nonNil(f Fields) Fields {
	if f == nil {
		return Fields{}
	}
	return f
}

// truncateBody returns the first 500 bytes of a response body for logging.
func truncateBody(body []byte) string {
	if len(body) > 500 {
		return string(body[:500]) + "..."
	}
	return string(body)
}
