package airtable

import "encoding/json"

// ExtractFields normalizes a decoded request body into a field map.
//
// Callers may send either {"fields": {...}} or the bare field object. The
// "fields" member wins when it is an object; otherwise the whole body is the
// field map. Anything that is not an object yields an empty map.
func ExtractFields(body interface{}) Fields {
	m, ok := body.(map[string]interface{})
	if !ok {
		return Fields{}
	}
	if inner, ok := m["fields"].(map[string]interface{}); ok {
		return Fields(inner)
	}
	return Fields(m)
}

// RecordIDs returns the ids of the records in an Airtable response body.
// Both the batch shape {"records":[{"id":...}]} and a single {"id":...}
// object are understood. Unparseable bodies yield nil.
func RecordIDs(body json.RawMessage) []string {
	var resp struct {
		ID      string `json:"id"`
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}

	var ids []string
	for _, r := range resp.Records {
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	if len(ids) == 0 && resp.ID != "" {
		ids = append(ids, resp.ID)
	}
	return ids
}
