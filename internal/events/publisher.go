package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RaikaSurendra/airtable-gateway/internal/config"
	"github.com/RaikaSurendra/airtable-gateway/internal/observability"
	"github.com/RaikaSurendra/airtable-gateway/internal/partition"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher emits mutation events. Publish must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, ev MutationEvent)
	// Close flushes pending events and releases resources.
	Close(ctx context.Context) error
}

// producer is the subset of *kgo.Client used by KafkaPublisher.
type producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher produces events to a single topic.
type KafkaPublisher struct {
	client      producer
	topic       string
	encoder     Encoder
	partitioner partition.Partitioner
	logger      *slog.Logger
}

// New returns a KafkaPublisher for cfg, or a Noop publisher when no brokers
// are configured.
func New(cfg config.EventsConfig, logger *slog.Logger) (Publisher, error) {
	if !cfg.Enabled() {
		return Noop{}, nil
	}

	var registry SchemaRegistryClient
	if cfg.SchemaRegistryURL != "" {
		registry = NewHTTPRegistryClient(cfg.SchemaRegistryURL)
	}
	enc, err := NewEncoder(cfg.Format, cfg.Topic, registry)
	if err != nil {
		return nil, err
	}
	prepareEncoder(enc, logger)

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()), // -1: wait for all in-sync replicas
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordRetries(5),
		kgo.RetryTimeout(30 * time.Second),
		kgo.ProducerBatchMaxBytes(1 << 20), // 1 MiB
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka producer client: %w", err)
	}

	return newKafkaPublisher(client, cfg.Topic, enc, partition.New(cfg.Partitioner), logger), nil
}

// schemaResolveTimeout bounds the startup schema registration.
const schemaResolveTimeout = 10 * time.Second

// prepareEncoder registers the Avro schema before the first event so the
// lookup does not happen while producing. A failure is retried on the first
// Encode.
func prepareEncoder(enc Encoder, logger *slog.Logger) {
	avroEnc, ok := enc.(*AvroEncoder)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaResolveTimeout)
	defer cancel()
	if err := avroEnc.Prepare(ctx); err != nil {
		logger.Warn("schema registration failed, retrying on first event", "subject", avroEnc.subject, "error", err)
	}
}

func newKafkaPublisher(client producer, topic string, enc Encoder, p partition.Partitioner, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		client:      client,
		topic:       topic,
		encoder:     enc,
		partitioner: p,
		logger:      logger.With("component", "event-publisher", "topic", topic),
	}
}

// Publish encodes ev and hands it to the producer without waiting for buffer
// space: when the producer buffer is full the event is dropped and counted.
// Delivery results are reported through metrics and logs only.
func (p *KafkaPublisher) Publish(ctx context.Context, ev MutationEvent) {
	rec, err := p.buildRecord(ctx, ev)
	if err != nil {
		observability.Metrics.EventsErrorsTotal.WithLabelValues(p.topic, "encode").Inc()
		p.logger.Error("encoding mutation event failed",
			"error", err,
			"table", ev.Table,
			"operation", ev.Operation,
			"request_id", ev.RequestID,
		)
		return
	}

	p.client.TryProduce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			errType := "produce"
			if errors.Is(err, kgo.ErrMaxBuffered) {
				errType = "buffer_full"
			}
			observability.Metrics.EventsErrorsTotal.WithLabelValues(p.topic, errType).Inc()
			p.logger.Error("producing mutation event failed",
				"error", err,
				"table", ev.Table,
				"operation", ev.Operation,
				"request_id", ev.RequestID,
			)
			return
		}
		observability.Metrics.EventsPublishedTotal.WithLabelValues(p.topic, ev.Operation).Inc()
		p.logger.Debug("mutation event produced",
			"partition", r.Partition,
			"offset", r.Offset,
			"request_id", ev.RequestID,
		)
	})
}

func (p *KafkaPublisher) buildRecord(ctx context.Context, ev MutationEvent) (*kgo.Record, error) {
	value, err := p.encoder.Encode(ctx, ev)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"table":        ev.Table,
		"operation":    ev.Operation,
		"request_id":   ev.RequestID,
		"content-type": p.encoder.ContentType(),
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   p.partitioner.Key(ev.Table, ev.RecordIDs),
		Value: value,
	}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{
			Key:   k,
			Value: []byte(v),
		})
	}
	return rec, nil
}

// Close flushes buffered events, bounded by ctx, then closes the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("flushing mutation events: %w", err)
	}
	return nil
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, MutationEvent) {}
func (Noop) Close(context.Context) error           { return nil }
