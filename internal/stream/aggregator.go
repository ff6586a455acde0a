// Package stream runs the live ingestion pipeline: a watcher subscribed to
// slot finalization notifications and a processor that fetches finalized
// slots and appends them to the shared store.
package stream

import (
	"context"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"solana-tx-agg/internal/store"
)

// Aggregator owns the reader-writer lock around the store. The store itself
// is unsynchronized; every access goes through here. Queries hold the lock in
// read mode and observe a consistent snapshot of whatever batches existed at
// acquisition; the processor holds it in write mode only for the cursor read
// and batch append, never across a network fetch.
type Aggregator struct {
	mu    sync.RWMutex
	store *store.Store
}

// NewAggregator wraps a loaded store.
func NewAggregator(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Query executes sql against the current batch collection under a read lock.
func (a *Aggregator) Query(ctx context.Context, sql, tableName string) ([]arrow.Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.Query(ctx, sql, tableName)
}

// QueryToJSON executes sql under a read lock and renders the result as JSON.
func (a *Aggregator) QueryToJSON(ctx context.Context, sql, tableName string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.QueryToJSON(ctx, sql, tableName)
}

// RowCount returns the store's total row count under a read lock.
func (a *Aggregator) RowCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.RowCount()
}

// cursor reads the live cursor pair under a read lock.
func (a *Aggregator) cursor() (current, init uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store.CurrentSlot, a.store.InitSlot
}

// appendProcessed commits one processed notification in a single critical
// section: gap batches first in ascending slot order, then the cursor
// advance, then the triggering batch. A concurrent query sees either none or
// all of it.
func (a *Aggregator) appendProcessed(gap []arrow.Record, slot uint64, batch arrow.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range gap {
		a.store.Append(b)
	}
	a.store.CurrentSlot = slot
	a.store.Append(batch)
}
