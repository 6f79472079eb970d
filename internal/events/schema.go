package events

import (
	"encoding/json"
	"fmt"

	"github.com/hamba/avro/v2"
)

// avroEvent is the Avro shape of a MutationEvent.
type avroEvent struct {
	Table      string   `avro:"table"`
	Operation  string   `avro:"operation"`
	RecordIDs  []string `avro:"record_ids"`
	Fields     string   `avro:"fields"`
	RequestID  string   `avro:"request_id"`
	OccurredAt int64    `avro:"occurred_at"`
}

// MutationSchema builds the Avro record schema for mutation events.
// occurred_at is milliseconds since the Unix epoch.
func MutationSchema() (avro.Schema, error) {
	str := func() avro.Schema { return avro.NewPrimitiveSchema(avro.String, nil) }

	specs := []struct {
		name string
		typ  avro.Schema
	}{
		{"table", str()},
		{"operation", str()},
		{"record_ids", avro.NewArraySchema(str())},
		{"fields", str()},
		{"request_id", str()},
		{"occurred_at", avro.NewPrimitiveSchema(avro.Long, nil)},
	}

	fields := make([]*avro.Field, 0, len(specs))
	for _, s := range specs {
		field, err := avro.NewField(s.name, s.typ)
		if err != nil {
			return nil, fmt.Errorf("creating field %s: %w", s.name, err)
		}
		fields = append(fields, field)
	}

	schema, err := avro.NewRecordSchema("MutationEvent", "io.airtable.gateway", fields)
	if err != nil {
		return nil, fmt.Errorf("creating record schema: %w", err)
	}
	return schema, nil
}

func toAvro(ev MutationEvent) (avroEvent, error) {
	fields := "{}"
	if len(ev.Fields) > 0 {
		b, err := json.Marshal(ev.Fields)
		if err != nil {
			return avroEvent{}, fmt.Errorf("encoding fields: %w", err)
		}
		fields = string(b)
	}
	ids := ev.RecordIDs
	if ids == nil {
		ids = []string{}
	}
	return avroEvent{
		Table:      ev.Table,
		Operation:  ev.Operation,
		RecordIDs:  ids,
		Fields:     fields,
		RequestID:  ev.RequestID,
		OccurredAt: ev.OccurredAt.UnixMilli(),
	}, nil
}
