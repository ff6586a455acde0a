package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPC implements RPCClient. failBlocks is the number of GetBlockWithOpts
// calls that fail before calls start succeeding.
type mockRPC struct {
	epoch      *rpc.GetEpochInfoResult
	epochErr   error
	blocks     map[uint64]*rpc.GetBlockResult
	blockErr   error
	failBlocks int
	blockCalls int
}

func (m *mockRPC) GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetEpochInfoResult, error) {
	if m.epochErr != nil {
		return nil, m.epochErr
	}
	return m.epoch, nil
}

func (m *mockRPC) GetBlockWithOpts(ctx context.Context, slot uint64, opts *rpc.GetBlockOpts) (*rpc.GetBlockResult, error) {
	m.blockCalls++
	if m.blockCalls <= m.failBlocks {
		return nil, errors.New("node unavailable")
	}
	if m.blockErr != nil {
		return nil, m.blockErr
	}
	return m.blocks[slot], nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestClient(m *mockRPC, cfg Config) *Client {
	return NewClient(m, cfg, nil, testLogger())
}

// keyBytes returns a deterministic 32-byte key seeded by b.
func keyBytes(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}
	return out
}

// encodedTx builds a binary-encoded transaction the way the node returns it
// with base64 block encoding.
func encodedTx(t *testing.T, keys []solana.PublicKey) *rpc.DataBytesOrJSON {
	t.Helper()

	tx := &solana.Transaction{
		Signatures: []solana.Signature{solana.SignatureFromBytes(make([]byte, 64))},
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: keys,
		},
	}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)

	var d rpc.DataBytesOrJSON
	require.NoError(t, json.Unmarshal(payload, &d))
	return &d
}

func transferKeys() []solana.PublicKey {
	return []solana.PublicKey{
		solana.PublicKeyFromBytes(keyBytes(0x11)),
		solana.PublicKeyFromBytes(keyBytes(0x22)),
	}
}

func testBlock(t *testing.T, blockTime int64) *rpc.GetBlockResult {
	t.Helper()

	bt := solana.UnixTimeSeconds(blockTime)
	return &rpc.GetBlockResult{
		BlockTime: &bt,
		Transactions: []rpc.TransactionWithMeta{
			{
				Transaction: encodedTx(t, transferKeys()),
				Meta: &rpc.TransactionMeta{
					Fee:          5000,
					PreBalances:  []uint64{1_000_000, 0},
					PostBalances: []uint64{900_000, 95_000},
				},
			},
		},
	}
}

func TestCurrentEpoch(t *testing.T) {
	m := &mockRPC{epoch: &rpc.GetEpochInfoResult{
		Epoch:        720,
		AbsoluteSlot: 311_516_666,
		SlotIndex:    666,
		SlotsInEpoch: 432_000,
	}}

	cur, err := newTestClient(m, Config{}).CurrentEpoch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 311_516_666, cur.AbsoluteSlot)
	assert.EqualValues(t, 311_516_000, cur.StartSlot())
}

func TestCurrentEpochRemoteError(t *testing.T) {
	m := &mockRPC{epochErr: errors.New("connection refused")}

	_, err := newTestClient(m, Config{}).CurrentEpoch(context.Background())
	require.Error(t, err)
}

func TestFetchTransactions(t *testing.T) {
	const slot = 311_516_666
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: testBlock(t, 1720310400)}}
	c := newTestClient(m, Config{})

	txs, err := c.FetchTransactions(context.Background(), slot, false)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	tx := txs[0]
	assert.EqualValues(t, slot, tx.Slot)
	assert.Equal(t, base58.Encode(keyBytes(0x11)), tx.Sender)
	assert.Equal(t, base58.Encode(keyBytes(0x22)), tx.Receiver)
	assert.EqualValues(t, 5000, tx.Fee)
	assert.EqualValues(t, 100_000, tx.Amount)
	require.NotNil(t, tx.BlockTime)
	assert.EqualValues(t, 1720310400, *tx.BlockTime)
	assert.Nil(t, tx.Err)
}

func TestFetchTransactionsIdempotent(t *testing.T) {
	const slot = 42
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: testBlock(t, 1720310400)}}
	c := newTestClient(m, Config{})

	first, err := c.FetchTransactions(context.Background(), slot, false)
	require.NoError(t, err)
	second, err := c.FetchTransactions(context.Background(), slot, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFetchTransactionsDropRule(t *testing.T) {
	const slot = 7
	bt := solana.UnixTimeSeconds(1720310400)
	block := &rpc.GetBlockResult{
		BlockTime: &bt,
		Transactions: []rpc.TransactionWithMeta{
			// No metadata.
			{Transaction: encodedTx(t, transferKeys())},
			// Single account key.
			{
				Transaction: encodedTx(t, transferKeys()[:1]),
				Meta: &rpc.TransactionMeta{
					PreBalances:  []uint64{10},
					PostBalances: []uint64{5},
				},
			},
			// No balance pair.
			{
				Transaction: encodedTx(t, transferKeys()),
				Meta:        &rpc.TransactionMeta{Fee: 5000},
			},
			// Well-formed.
			{
				Transaction: encodedTx(t, transferKeys()),
				Meta: &rpc.TransactionMeta{
					Fee:          5000,
					PreBalances:  []uint64{10},
					PostBalances: []uint64{5},
				},
			},
		},
	}
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: block}}
	c := newTestClient(m, Config{})

	txs, err := c.FetchTransactions(context.Background(), slot, false)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.EqualValues(t, 5, txs[0].Amount)
}

func TestFetchTransactionsFailedTx(t *testing.T) {
	const slot = 9
	block := &rpc.GetBlockResult{
		Transactions: []rpc.TransactionWithMeta{
			{
				Transaction: encodedTx(t, transferKeys()),
				Meta: &rpc.TransactionMeta{
					Err:          map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
					Fee:          5000,
					PreBalances:  []uint64{10},
					PostBalances: []uint64{5},
				},
			},
		},
	}
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: block}}
	c := newTestClient(m, Config{})

	txs, err := c.FetchTransactions(context.Background(), slot, false)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.NotNil(t, txs[0].Err)
	assert.Contains(t, *txs[0].Err, "InstructionError")
	require.Nil(t, txs[0].BlockTime)
}

func TestFetchTransactionsMissingBlock(t *testing.T) {
	tests := []struct {
		name string
		mock *mockRPC
	}{
		{"nil result", &mockRPC{}},
		{"slot skipped", &mockRPC{blockErr: &jsonrpc.RPCError{Code: -32007, Message: "slot was skipped"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(tt.mock, Config{})
			txs, err := c.FetchTransactions(context.Background(), 5, true)
			require.NoError(t, err)
			assert.Empty(t, txs)
			assert.Equal(t, 1, tt.mock.blockCalls)
		})
	}
}

func TestFetchBatch(t *testing.T) {
	const slot = 11
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: testBlock(t, 1720310400)}}
	c := newTestClient(m, Config{})

	rec, err := c.FetchBatch(context.Background(), slot, false)
	require.NoError(t, err)
	defer rec.Release()
	assert.EqualValues(t, 1, rec.NumRows())
}

func TestFetchBatchEmptySchema(t *testing.T) {
	const slot = 12
	m := &mockRPC{blocks: map[uint64]*rpc.GetBlockResult{slot: {}}}
	c := newTestClient(m, Config{})

	rec, err := c.FetchBatch(context.Background(), slot, false)
	require.NoError(t, err)
	defer rec.Release()
	assert.EqualValues(t, 0, rec.NumRows())
	assert.Equal(t, 8, len(rec.Schema().Fields()))
}

func TestFetchRetrySucceedsAfterFailures(t *testing.T) {
	const slot, failures = 13, 2
	backoff := 5 * time.Millisecond
	m := &mockRPC{
		blocks:     map[uint64]*rpc.GetBlockResult{slot: testBlock(t, 1720310400)},
		failBlocks: failures,
	}
	c := newTestClient(m, Config{InitialBackoff: backoff})

	start := time.Now()
	txs, err := c.FetchTransactions(context.Background(), slot, true)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, failures+1, m.blockCalls)
	// Backoff doubles per attempt: b*(2^failures - 1) total.
	assert.GreaterOrEqual(t, elapsed, backoff*(1<<failures-1))
}

func TestFetchRetryExhausted(t *testing.T) {
	m := &mockRPC{failBlocks: 100}
	c := newTestClient(m, Config{InitialBackoff: time.Millisecond})

	_, err := c.FetchTransactions(context.Background(), 14, true)
	require.ErrorIs(t, err, ErrFetchExhausted)
	assert.Equal(t, DefaultMaxRetries, m.blockCalls)
}

func TestFetchNonRetryingSingleAttempt(t *testing.T) {
	m := &mockRPC{failBlocks: 1}
	c := newTestClient(m, Config{InitialBackoff: time.Millisecond})

	_, err := c.FetchTransactions(context.Background(), 15, false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFetchExhausted)
	assert.Equal(t, 1, m.blockCalls)
}
