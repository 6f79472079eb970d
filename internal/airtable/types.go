// Package airtable provides types for records exchanged with the Airtable REST API.
package airtable

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Fields maps Airtable field names to values.
type Fields map[string]interface{}

// Record is a single table row. ID is empty on create.
type Record struct {
	ID     string `json:"id,omitempty"`
	Fields Fields `json:"fields"`
}

// Envelope is the batch wrapper Airtable requires around every mutation,
// even when it carries a single record.
type Envelope struct {
	Records []Record `json:"records"`
}

// UpstreamError is returned when Airtable answers with a non-2xx status.
// Body is the upstream JSON, or {"raw": text} when the body was not JSON.
type UpstreamError struct {
	Status int
	Body   json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("airtable returned %d: %s", e.Status, truncateBody(e.Body))
}

// ListOptions are the query parameters forwarded on a list call. Empty values
// are omitted.
type ListOptions struct {
	View            string
	MaxRecords      string
	FilterByFormula string
}

// Encode returns the form-encoded query string, or "" when no option is set.
func (o ListOptions) Encode() string {
	params := url.Values{}
	if o.View != "" {
		params.Set("view", o.View)
	}
	if o.MaxRecords != "" {
		params.Set("maxRecords", o.MaxRecords)
	}
	if o.FilterByFormula != "" {
		params.Set("filterByFormula", o.FilterByFormula)
	}
	return params.Encode()
}
