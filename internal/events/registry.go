package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hamba/avro/v2"
)

// SchemaRegistryClient resolves schema ids from a Confluent-compatible
// Schema Registry.
type SchemaRegistryClient interface {
	// GetSchemaID returns the ID for the given subject's schema, registering
	// it if needed.
	GetSchemaID(ctx context.Context, subject string, schema avro.Schema) (int, error)
}

// HTTPRegistryClient implements SchemaRegistryClient using the Confluent HTTP
// API. Ids are cached per subject after the first successful lookup.
type HTTPRegistryClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	cache map[string]int
}

// NewHTTPRegistryClient creates a registry client for baseURL.
func NewHTTPRegistryClient(baseURL string) *HTTPRegistryClient {
	return &HTTPRegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[string]int),
	}
}

// GetSchemaID registers schema under subject via
// POST /subjects/{subject}/versions and returns its id.
func (c *HTTPRegistryClient) GetSchemaID(ctx context.Context, subject string, schema avro.Schema) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.cache[subject]; ok {
		return id, nil
	}

	reqBody, err := json.Marshal(struct {
		Schema string `json:"schema"`
	}{Schema: schema.String()})
	if err != nil {
		return 0, fmt.Errorf("encoding schema: %w", err)
	}

	reqURL := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("registry error (status %d): %s", resp.StatusCode, string(body))
	}

	var registerResp struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registerResp); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}

	c.cache[subject] = registerResp.ID
	return registerResp.ID, nil
}
