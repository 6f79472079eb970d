// Package partition provides pluggable message key strategies for mutation
// events published to Kafka.
//
// # Why Does the Key Matter?
//
// Kafka only guarantees ordering within a partition, and the message key
// decides the partition:
//
//   - Ordering: events with the same key land on the same partition and reach
//     consumers in the order they were produced.
//   - Parallelism: events spread across partitions can be consumed in parallel.
//
// # Available Strategies
//
//   - [RecordPartitioner]: Uses the first record id as the key, so every change
//     to one record stays ordered. This is the default.
//
//   - [TablePartitioner]: Hashes the table name, so all changes to a table are
//     consumed in order by a single consumer.
//
//   - [RoundRobinPartitioner]: Returns a nil key, letting franz-go spread
//     events across partitions. Best throughput, no ordering guarantee.
//
// # Usage
//
//	p := partition.New(cfg.Events.Partitioner)
//	key := p.Key(event.Table, event.RecordIDs)
package partition

import (
	"crypto/sha256"
	"encoding/hex"
)

// Strategy names accepted by New.
const (
	StrategyRecordID   = "record_id"
	StrategyTable      = "table"
	StrategyRoundRobin = "round_robin"
)

// Partitioner determines the Kafka message key for a mutation.
type Partitioner interface {
	// Key returns the message key for a change to recordIDs in table.
	// Returns nil for round-robin distribution (no key).
	Key(table string, recordIDs []string) []byte
}

// New creates a Partitioner from its strategy name. Unknown names fall back
// to the record id strategy.
func New(strategy string) Partitioner {
	switch strategy {
	case StrategyRoundRobin:
		return &RoundRobinPartitioner{}
	case StrategyTable:
		return &TablePartitioner{}
	default:
		return &RecordPartitioner{}
	}
}

// ----- Record Partitioner -----

// RecordPartitioner keys events by the first affected record id.
//
// For example, a change to "recABC" gets the key []byte("recABC"). A mutation
// without any known id gets a nil key.
type RecordPartitioner struct{}

// Key returns the first record id.
func (p *RecordPartitioner) Key(_ string, recordIDs []string) []byte {
	for _, id := range recordIDs {
		if id != "" {
			return []byte(id)
		}
	}
	return nil
}

// ----- Table Partitioner -----

// TablePartitioner keys events by the SHA-256 hex digest of the table name.
// Hashing gives a fixed-length key however long or unusual the table name is.
type TablePartitioner struct{}

// Key returns the hex-encoded SHA-256 of table.
func (p *TablePartitioner) Key(table string, _ []string) []byte {
	hash := sha256.Sum256([]byte(table))
	return []byte(hex.EncodeToString(hash[:]))
}

// ----- Round Robin Partitioner -----

// RoundRobinPartitioner returns a nil key, causing the Kafka client to
// distribute events evenly across all partitions.
type RoundRobinPartitioner struct{}

// Key always returns nil for round-robin distribution.
func (r *RoundRobinPartitioner) Key(string, []string) []byte {
	return nil
}
