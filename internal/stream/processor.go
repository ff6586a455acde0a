package stream

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// process consumes slot numbers in arrival order, fetches each slot's batch
// in retrying mode, and appends it to the store. Remote fetches happen with
// no lock held. The loop ends normally when the watcher closes the channel.
func (p *Pipeline) process(ctx context.Context, slots <-chan uint64) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case slot, ok := <-slots:
			if !ok {
				p.logger.Printf("slot queue closed, processor exiting")
				return nil
			}
			if err := p.handleSlot(ctx, slot); err != nil {
				return err
			}
		}
	}
}

func (p *Pipeline) handleSlot(ctx context.Context, slot uint64) error {
	batch, err := p.fetcher.FetchBatch(ctx, slot, true)
	if err != nil {
		return fmt.Errorf("process slot %d: %w", slot, err)
	}

	// One-time seam repair between the historical snapshot's cursor and the
	// first live notification. Once the cursor has advanced past its initial
	// value the stream is contiguous and this never fires again.
	current, init := p.agg.cursor()
	var gap []arrow.Record
	if current == init && slot > current+1 {
		for g := current + 1; g < slot; g++ {
			p.logger.Printf("init slot gap backfill: cursor %d, inserting slot %d", current, g)
			gb, err := p.fetcher.FetchBatch(ctx, g, true)
			if err != nil {
				batch.Release()
				releaseAll(gap)
				return fmt.Errorf("backfill slot %d: %w", g, err)
			}
			gap = append(gap, gb)
		}
	}

	rows := batch.NumRows()
	for _, b := range gap {
		rows += b.NumRows()
	}
	p.agg.appendProcessed(gap, slot, batch)

	if p.metrics != nil {
		p.metrics.SlotsProcessed.Inc()
		p.metrics.BatchesAppended.Add(float64(1 + len(gap)))
		p.metrics.GapSlotsBackfilled.Add(float64(len(gap)))
		p.metrics.RowsIngested.Add(float64(rows))
		p.metrics.CurrentSlot.Set(float64(slot))
	}
	return nil
}

func releaseAll(batches []arrow.Record) {
	for _, b := range batches {
		b.Release()
	}
}
