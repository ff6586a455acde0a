package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/gorilla/websocket"

	"solana-tx-agg/internal/observability"
)

// DefaultQueueSize is the watcher-to-processor queue capacity. Slots arrive
// roughly every 400 ms, so this absorbs hours of processor lag before the
// watcher blocks.
const DefaultQueueSize = 65536

// Fetcher is the slice of the fetch client the processor needs.
type Fetcher interface {
	FetchBatch(ctx context.Context, slot uint64, retrying bool) (arrow.Record, error)
}

// Options configures a Pipeline.
type Options struct {
	// WSEndpoint is the node's websocket notification endpoint.
	WSEndpoint string
	Fetcher    Fetcher
	Aggregator *Aggregator
	// QueueSize overrides DefaultQueueSize when positive.
	QueueSize int
	Metrics   *observability.Metrics
	Logger    *log.Logger
}

// Pipeline couples the watcher and the processor over one slot-number queue.
type Pipeline struct {
	wsEndpoint string
	fetcher    Fetcher
	agg        *Aggregator
	queueSize  int
	metrics    *observability.Metrics
	logger     *log.Logger
}

// NewPipeline creates a live ingestion pipeline.
func NewPipeline(opts Options) *Pipeline {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		wsEndpoint: opts.WSEndpoint,
		fetcher:    opts.Fetcher,
		agg:        opts.Aggregator,
		queueSize:  queueSize,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Run dials the subscription endpoint and runs the watcher and processor
// until both finish. A failure on either side cancels the other; the watcher
// ending normally drains the queue and ends the processor normally.
func (p *Pipeline) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.wsEndpoint, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// Unblocks the watcher's read when the processor fails.
		<-ctx.Done()
		conn.Close()
	}()

	return p.run(ctx, cancel, conn)
}

// run is Run minus the dialing, for tests that bring their own connection.
func (p *Pipeline) run(ctx context.Context, cancel context.CancelFunc, conn wsConn) error {
	slots := make(chan uint64, p.queueSize)

	var wg sync.WaitGroup
	var watchErr, procErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(slots)
		watchErr = p.watch(ctx, conn, slots)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		procErr = p.process(ctx, slots)
	}()
	wg.Wait()

	if procErr != nil && !errors.Is(procErr, context.Canceled) {
		return procErr
	}
	if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
		return watchErr
	}
	return nil
}
