// Package store holds the accumulated columnar batches and the live
// ingestion cursor, and answers SQL-shaped questions about them.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"solana-tx-agg/internal/columnar"
	"solana-tx-agg/internal/query"
)

// ErrQuery wraps invalid SQL and engine-side failures.
var ErrQuery = errors.New("query failed")

// Store is the mutable aggregate of ingested batches plus cursor metadata.
// It is not internally synchronized: the owner serializes access, holding its
// lock in write mode for Append and cursor mutation and in read mode for
// queries.
type Store struct {
	batches []arrow.Record
	engine  query.Engine

	// CurrentSlot is the highest slot processed by the live pipeline.
	CurrentSlot uint64
	// InitSlot is the slot the live pipeline began at, fixed at creation.
	InitSlot uint64
	// Mocked selects the short bootstrap window over a full-epoch range.
	Mocked bool
}

// New creates a store seeded with batches and both cursors at slot.
func New(engine query.Engine, batches []arrow.Record, slot uint64, mocked bool) *Store {
	return &Store{
		batches:     batches,
		engine:      engine,
		CurrentSlot: slot,
		InitSlot:    slot,
		Mocked:      mocked,
	}
}

// Append adds a batch to the collection. Batches arrive in ingestion order,
// which is not necessarily slot order; queries needing slot order must sort.
func (s *Store) Append(batch arrow.Record) {
	s.batches = append(s.batches, batch)
}

// RowCount returns the total rows across all held batches.
func (s *Store) RowCount() int {
	n := 0
	for _, b := range s.batches {
		n += int(b.NumRows())
	}
	return n
}

// BatchCount returns the number of held batches.
func (s *Store) BatchCount() int {
	return len(s.batches)
}

// Batches exposes the held collection in ingestion order. Callers must hold
// the owner's lock and must not mutate or release the records.
func (s *Store) Batches() []arrow.Record {
	return s.batches
}

// Query registers the current batch collection under tableName and executes
// sql against it, returning the engine's result batches unchanged.
func (s *Store) Query(ctx context.Context, sql, tableName string) ([]arrow.Record, error) {
	out, err := s.engine.Query(ctx, sql, tableName, s.batches)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// QueryToJSON runs Query and renders the result as a JSON array of row
// objects keyed by field name. An empty result renders as "[]".
func (s *Store) QueryToJSON(ctx context.Context, sql, tableName string) (string, error) {
	batches, err := s.Query(ctx, sql, tableName)
	if err != nil {
		return "", err
	}
	defer func() {
		for _, b := range batches {
			b.Release()
		}
	}()
	out, err := columnar.RecordsToJSON(batches)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}
