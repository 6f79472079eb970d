package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hamba/avro/v2"
)

// Encoder turns a MutationEvent into a Kafka record value.
type Encoder interface {
	Encode(ctx context.Context, ev MutationEvent) ([]byte, error)
	// ContentType is sent as the content-type record header.
	ContentType() string
}

// NewEncoder returns the encoder for format ("json" or "avro"). registry may
// be nil; it is only used by the avro encoder.
func NewEncoder(format, topic string, registry SchemaRegistryClient) (Encoder, error) {
	switch format {
	case "", "json":
		return JSONEncoder{}, nil
	case "avro":
		return NewAvroEncoder(topic, registry)
	default:
		return nil, fmt.Errorf("unsupported event format %q", format)
	}
}

// JSONEncoder encodes events as JSON objects.
type JSONEncoder struct{}

func (JSONEncoder) Encode(_ context.Context, ev MutationEvent) ([]byte, error) {
	if ev.RecordIDs == nil {
		ev.RecordIDs = []string{}
	}
	return json.Marshal(ev)
}

func (JSONEncoder) ContentType() string { return "application/json" }

// AvroEncoder encodes events with MutationSchema. When a registry is set the
// output follows the Confluent wire format under subject "<topic>-value".
type AvroEncoder struct {
	schema   avro.Schema
	subject  string
	registry SchemaRegistryClient

	mu       sync.Mutex
	schemaID int
	resolved bool
}

// NewAvroEncoder builds an AvroEncoder for topic.
func NewAvroEncoder(topic string, registry SchemaRegistryClient) (*AvroEncoder, error) {
	schema, err := MutationSchema()
	if err != nil {
		return nil, err
	}
	return &AvroEncoder{
		schema:   schema,
		subject:  topic + "-value",
		registry: registry,
	}, nil
}

// Encode serializes ev. With a registry the layout is:
// [Magic Byte (0)] [Schema ID (4 bytes)] [Avro Data]
func (e *AvroEncoder) Encode(ctx context.Context, ev MutationEvent) ([]byte, error) {
	rec, err := toAvro(ev)
	if err != nil {
		return nil, err
	}

	data, err := avro.Marshal(e.schema, rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling avro: %w", err)
	}
	if e.registry == nil {
		return data, nil
	}

	schemaID, err := e.resolveSchemaID(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 5+len(data))
	result[0] = 0 // Magic byte
	binary.BigEndian.PutUint32(result[1:5], uint32(schemaID))
	copy(result[5:], data)
	return result, nil
}

// Prepare registers the schema so later Encode calls need no registry
// round trip. It is a no-op without a registry.
func (e *AvroEncoder) Prepare(ctx context.Context) error {
	if e.registry == nil {
		return nil
	}
	_, err := e.resolveSchemaID(ctx)
	return err
}

func (e *AvroEncoder) resolveSchemaID(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.resolved {
		return e.schemaID, nil
	}
	id, err := e.registry.GetSchemaID(ctx, e.subject, e.schema)
	if err != nil {
		return 0, fmt.Errorf("getting schema ID for subject %s: %w", e.subject, err)
	}
	e.schemaID, e.resolved = id, true
	return id, nil
}

func (e *AvroEncoder) ContentType() string { return "application/avro" }
