package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/airtable"
	"github.com/RaikaSurendra/airtable-gateway/internal/audit"
	"github.com/RaikaSurendra/airtable-gateway/internal/events"
	"github.com/gin-gonic/gin"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	// healthTimeFormat is ISO-8601 in UTC with millisecond precision.
	healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

type handlers struct {
	client airtable.Client
	audit  audit.Logger
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time

	// sideEffects tracks audit and publish work still running after the
	// response was written.
	sideEffects sync.WaitGroup
}

// health answers liveness probes without touching Airtable.
func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"time": h.now().UTC().Format(healthTimeFormat),
	})
}

func (h *handlers) listRecords(c *gin.Context) {
	opts := airtable.ListOptions{
		View:            c.Query("view"),
		MaxRecords:      c.Query("maxRecords"),
		FilterByFormula: c.Query("filterByFormula"),
	}
	body, err := h.client.ListRecords(upstreamContext(c), c.Param("table"), opts)
	h.writeResult(c, http.StatusOK, body, err)
}

func (h *handlers) createRecord(c *gin.Context) {
	fields, ok := h.bindFields(c)
	if !ok {
		return
	}
	table := c.Param("table")

	start := time.Now()
	body, err := h.client.CreateRecord(upstreamContext(c), table, fields)
	status := h.writeResult(c, http.StatusCreated, body, err)
	h.recordMutation(c, mutation{
		op:      events.OpCreate,
		table:   table,
		fields:  fields,
		body:    body,
		err:     err,
		status:  status,
		started: start,
	})
}

func (h *handlers) updateRecord(c *gin.Context) {
	fields, ok := h.bindFields(c)
	if !ok {
		return
	}
	table, id := c.Param("table"), c.Param("id")

	start := time.Now()
	body, err := h.client.UpdateRecord(upstreamContext(c), table, id, fields)
	status := h.writeResult(c, http.StatusOK, body, err)
	h.recordMutation(c, mutation{
		op:      events.OpUpdate,
		table:   table,
		id:      id,
		fields:  fields,
		body:    body,
		err:     err,
		status:  status,
		started: start,
	})
}

func (h *handlers) deleteRecord(c *gin.Context) {
	table, id := c.Param("table"), c.Param("id")

	start := time.Now()
	body, err := h.client.DeleteRecords(upstreamContext(c), table, id)
	status := h.writeResult(c, http.StatusOK, body, err)
	h.recordMutation(c, mutation{
		op:      events.OpDelete,
		table:   table,
		id:      id,
		body:    body,
		err:     err,
		status:  status,
		started: start,
	})
}

// bindFields decodes the request body and normalizes it with
// airtable.ExtractFields. An empty body yields an empty field map. Malformed
// JSON is answered with 400 and ok=false.
func (h *handlers) bindFields(c *gin.Context) (airtable.Fields, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return airtable.Fields{}, true
	}

	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		h.logger.Debug("rejecting malformed body", "error", err, "request_id", c.GetString(ctxRequestID))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return nil, false
	}
	return airtable.ExtractFields(body), true
}

// writeResult turns an upstream result into the HTTP response and returns
// the status written. It is the only place upstream errors are mapped.
func (h *handlers) writeResult(c *gin.Context, okStatus int, body json.RawMessage, err error) int {
	if err == nil {
		c.Data(okStatus, contentTypeJSON, body)
		return okStatus
	}

	var upErr *airtable.UpstreamError
	if errors.As(err, &upErr) && upErr.Status != 0 {
		if emptyJSON(upErr.Body) {
			c.JSON(upErr.Status, gin.H{"error": "unknown"})
			return upErr.Status
		}
		c.Data(upErr.Status, contentTypeJSON, upErr.Body)
		return upErr.Status
	}

	h.logger.Error("upstream call failed",
		"error", err,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString(ctxRequestID),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown"})
	return http.StatusInternalServerError
}

// emptyJSON reports whether body carries nothing useful to pass on:
// null, false, 0, "" or no bytes at all.
func emptyJSON(body json.RawMessage) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	}
	return false
}

type mutation struct {
	op      string
	table   string
	id      string // from the route; empty on create
	fields  airtable.Fields
	body    json.RawMessage
	err     error
	status  int
	started time.Time
}

// recordMutation audits every mutation and publishes the successful ones.
// Both run after the handler returns so the response is never held up by
// the audit file or the event publisher.
func (h *handlers) recordMutation(c *gin.Context, m mutation) {
	ids := airtable.RecordIDs(m.body)
	if len(ids) == 0 && m.id != "" {
		ids = []string{m.id}
	}

	// gin recycles c once the handler returns, so copy what is needed now.
	requestID := c.GetString(ctxRequestID)
	entry := audit.Entry{
		Timestamp:  h.now().UTC(),
		RequestID:  requestID,
		RemoteAddr: c.ClientIP(),
		Action:     m.op,
		Table:      m.table,
		RecordIDs:  ids,
		Status:     m.status,
		LatencyMS:  time.Since(m.started).Milliseconds(),
	}
	ctx := upstreamContext(c)

	h.sideEffects.Add(1)
	go func() {
		defer h.sideEffects.Done()
		h.audit.Log(entry)
		if m.err != nil {
			return
		}
		h.events.Publish(ctx, events.MutationEvent{
			Table:      m.table,
			Operation:  m.op,
			RecordIDs:  ids,
			Fields:     m.fields,
			RequestID:  requestID,
			OccurredAt: entry.Timestamp,
		})
	}()
}

// upstreamContext keeps request values but drops cancellation, so a client
// that disconnects does not abort the Airtable call already in flight.
func upstreamContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
