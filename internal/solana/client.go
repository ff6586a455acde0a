package solana

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"solana-tx-agg/internal/columnar"
	"solana-tx-agg/internal/observability"
)

// Default configuration values.
const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = 50 * time.Millisecond
)

// ErrFetchExhausted is returned when a retrying fetch runs out of attempts.
var ErrFetchExhausted = errors.New("fetch retries exhausted")

var maxTxVersion uint64 = 0

// Config controls retry behavior of the fetch client.
type Config struct {
	// MaxRetries is the attempt ceiling in retrying mode.
	MaxRetries int
	// InitialBackoff is the delay before the second attempt; it doubles on
	// each subsequent attempt.
	InitialBackoff time.Duration
}

// Client retrieves per-slot transaction sets from a remote node and
// normalizes them into columnar batches.
type Client struct {
	rpc     RPCClient
	cfg     Config
	metrics *observability.Metrics
	logger  *log.Logger
}

// NewClient creates a fetch client. metrics may be nil.
func NewClient(rpcClient RPCClient, cfg Config, m *observability.Metrics, logger *log.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		rpc:     rpcClient,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// CurrentEpoch queries the node for its current epoch progress.
func (c *Client) CurrentEpoch(ctx context.Context) (EpochCursor, error) {
	info, err := c.rpc.GetEpochInfo(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return EpochCursor{}, fmt.Errorf("get epoch info: %w", err)
	}
	if info == nil {
		return EpochCursor{}, errors.New("get epoch info: empty result")
	}
	return EpochCursor{
		Epoch:        info.Epoch,
		AbsoluteSlot: info.AbsoluteSlot,
		SlotIndex:    info.SlotIndex,
		SlotsInEpoch: info.SlotsInEpoch,
	}, nil
}

// FetchTransactions retrieves the block at slot and normalizes its
// transactions. Transactions that do not fit the two-account balance-delta
// shape are dropped, not errors; a missing or empty block yields an empty
// slice.
//
// In retrying mode remote failures are retried with exponential backoff up
// to the configured ceiling; otherwise a single attempt is made. The
// non-retrying mode exists for high-volume historical fetching where retry
// storms would break the rate ceiling.
func (c *Client) FetchTransactions(ctx context.Context, slot uint64, retrying bool) ([]columnar.Transaction, error) {
	block, err := c.fetchBlock(ctx, slot, retrying)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}

	var blockTime *int64
	if block.BlockTime != nil {
		v := int64(*block.BlockTime)
		blockTime = &v
	}

	txs := make([]columnar.Transaction, 0, len(block.Transactions))
	skipped := 0
	for i := range block.Transactions {
		tx, ok := normalizeTransaction(&block.Transactions[i], slot, blockTime)
		if !ok {
			skipped++
			continue
		}
		txs = append(txs, tx)
	}
	if skipped > 0 {
		if c.metrics != nil {
			c.metrics.DecodeSkips.Add(float64(skipped))
		}
		c.logger.Printf("slot %d: skipped %d undecodable transactions", slot, skipped)
	}
	return txs, nil
}

// FetchBatch retrieves and normalizes one slot as a columnar batch. An empty
// transaction set yields a zero-row batch with the full schema.
func (c *Client) FetchBatch(ctx context.Context, slot uint64, retrying bool) (arrow.Record, error) {
	txs, err := c.FetchTransactions(ctx, slot, retrying)
	if err != nil {
		return nil, err
	}
	return columnar.BuildBatch(txs), nil
}

// fetchBlock retrieves the raw block. A nil result with nil error means the
// slot was skipped by the cluster and holds no block.
func (c *Client) fetchBlock(ctx context.Context, slot uint64, retrying bool) (*rpc.GetBlockResult, error) {
	opts := &rpc.GetBlockOpts{
		Encoding:                       solana.EncodingBase64,
		TransactionDetails:             rpc.TransactionDetailsFull,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxTxVersion,
	}

	if !retrying {
		block, err := c.rpc.GetBlockWithOpts(ctx, slot, opts)
		if err != nil {
			if isSlotSkipped(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("get block %d: %w", slot, err)
		}
		return block, nil
	}

	backoff := c.cfg.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if c.metrics != nil {
				c.metrics.FetchRetries.Inc()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		block, err := c.rpc.GetBlockWithOpts(ctx, slot, opts)
		if err == nil {
			return block, nil
		}
		if isSlotSkipped(err) {
			return nil, nil
		}
		lastErr = err
		c.logger.Printf("get block %d attempt %d/%d: %v", slot, attempt+1, c.cfg.MaxRetries, err)
	}

	return nil, fmt.Errorf("get block %d: %w: %v", slot, ErrFetchExhausted, lastErr)
}

// Slot-skipped and block-not-available RPC errors; such slots simply hold no
// block and are not fetch failures.
func isSlotSkipped(err error) bool {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case -32004, -32007, -32009:
		return true
	}
	return false
}
