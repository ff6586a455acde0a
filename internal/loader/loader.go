// Package loader populates the store once at startup by fetching the
// historical slot range in rate-limited windows.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"solana-tx-agg/internal/query"
	"solana-tx-agg/internal/solana"
	"solana-tx-agg/internal/store"
)

// Default configuration values.
const (
	DefaultRPSLimit     = 25
	DefaultBootstrapLen = 25
	DefaultPaceInterval = time.Second
)

// ErrLoadFailed is returned when any fetch in the historical range fails.
// The load is all-or-nothing: there is no partially populated store.
var ErrLoadFailed = errors.New("historical load failed")

// Fetcher is the slice of the fetch client the loader needs.
type Fetcher interface {
	CurrentEpoch(ctx context.Context) (solana.EpochCursor, error)
	FetchBatch(ctx context.Context, slot uint64, retrying bool) (arrow.Record, error)
}

// Options configures a historical load.
type Options struct {
	Fetcher Fetcher
	Engine  query.Engine
	// RPSLimit is both the window size in slots and the request-per-second
	// ceiling: one window of fetches is issued per PaceInterval.
	RPSLimit int
	// BootstrapLen is the mocked-mode window length in slots.
	BootstrapLen uint64
	// Mocked selects the short bootstrap window over the full epoch range.
	Mocked bool
	// PaceInterval is the minimum time between window starts.
	PaceInterval time.Duration
	Logger       *log.Logger
}

// Load computes the historical slot range, fetches it window by window, and
// returns a store seeded with the collected batches and both cursors at the
// epoch's current slot. Any fetch failure fails the whole load.
func Load(ctx context.Context, opts Options) (*store.Store, error) {
	if opts.RPSLimit <= 0 {
		opts.RPSLimit = DefaultRPSLimit
	}
	if opts.BootstrapLen == 0 {
		opts.BootstrapLen = DefaultBootstrapLen
	}
	if opts.PaceInterval <= 0 {
		opts.PaceInterval = DefaultPaceInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	epoch, err := opts.Fetcher.CurrentEpoch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	currentSlot := epoch.AbsoluteSlot
	startSlot := epoch.StartSlot()
	if opts.Mocked {
		startSlot = currentSlot - opts.BootstrapLen
	}

	total := currentSlot - startSlot + 1
	logger.Printf("historical load: slots [%d, %d] (%d slots, windows of %d)",
		startSlot, currentSlot, total, opts.RPSLimit)

	batches := make([]arrow.Record, 0, total)
	windowStart := startSlot
	for windowStart <= currentSlot {
		windowEnd := windowStart + uint64(opts.RPSLimit) - 1
		if windowEnd > currentSlot {
			windowEnd = currentSlot
		}

		began := time.Now()
		window, err := fetchWindow(ctx, opts.Fetcher, windowStart, windowEnd)
		if err != nil {
			releaseAll(batches)
			return nil, fmt.Errorf("%w: window [%d, %d]: %v", ErrLoadFailed, windowStart, windowEnd, err)
		}
		batches = append(batches, window...)

		windowStart = windowEnd + 1
		if windowStart > currentSlot {
			break
		}
		// Keep the aggregate request rate at or below RPSLimit per interval
		// no matter how fast the node answered.
		if elapsed := time.Since(began); elapsed < opts.PaceInterval {
			select {
			case <-ctx.Done():
				releaseAll(batches)
				return nil, fmt.Errorf("%w: %v", ErrLoadFailed, ctx.Err())
			case <-time.After(opts.PaceInterval - elapsed):
			}
		}
	}

	logger.Printf("historical load complete: %d batches", len(batches))
	return store.New(opts.Engine, batches, currentSlot, opts.Mocked), nil
}

// fetchWindow fetches every slot in [from, to] concurrently in non-retrying
// mode and returns the batches in slot order. The first failure fails the
// window.
func fetchWindow(ctx context.Context, fetcher Fetcher, from, to uint64) ([]arrow.Record, error) {
	n := int(to - from + 1)
	results := make([]arrow.Record, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = fetcher.FetchBatch(ctx, from+uint64(i), false)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			releaseAll(results)
			return nil, err
		}
	}
	return results, nil
}

func releaseAll(batches []arrow.Record) {
	for _, b := range batches {
		if b != nil {
			b.Release()
		}
	}
}
