// Package events publishes a change feed of successful record mutations to
// Kafka.
//
// # Architecture
//
// After the gateway relays a create, update or delete that Airtable accepted,
// it hands a [MutationEvent] to a [Publisher]. The Kafka publisher encodes
// the event and produces it asynchronously: the HTTP response never waits for
// the broker, and failures are logged and counted rather than surfaced to the
// caller.
//
//	handler ──▶ Publisher.Publish ──▶ Encoder (JSON | Avro) ──▶ kgo.Produce
//	                                                         └─▶ callback: metrics/log
//
// # Encodings
//
//   - json (default): the event as a JSON object.
//   - avro: hamba/avro binary using [MutationSchema]. The field map is carried
//     as a JSON string because its shape differs per table. With a schema
//     registry configured, payloads use the Confluent wire format:
//     [magic byte 0][4-byte big-endian schema id][avro data].
//
// # franz-go Client
//
// We use github.com/twmb/franz-go as the Kafka client: pure Go, no CGo
// dependency on librdkafka, and context-aware methods.
package events

import (
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/airtable"
)

// Mutation operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// MutationEvent describes one successful record mutation.
type MutationEvent struct {
	Table      string          `json:"table"`
	Operation  string          `json:"operation"`
	RecordIDs  []string        `json:"record_ids"`
	Fields     airtable.Fields `json:"fields,omitempty"`
	RequestID  string          `json:"request_id"`
	OccurredAt time.Time       `json:"occurred_at"`
}
