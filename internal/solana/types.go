// Package solana wraps remote block and epoch retrieval and normalizes raw
// chain records into the fixed transactions schema.
package solana

import (
	"context"

	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is the subset of the Solana RPC surface the fetch client needs.
// It allows tests to stub the node.
type RPCClient interface {
	GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetEpochInfoResult, error)
	GetBlockWithOpts(ctx context.Context, slot uint64, opts *rpc.GetBlockOpts) (*rpc.GetBlockResult, error)
}

// EpochCursor is a point-in-time view of the chain's epoch progress, used
// only to compute the historical load range.
type EpochCursor struct {
	Epoch        uint64
	AbsoluteSlot uint64
	SlotIndex    uint64
	SlotsInEpoch uint64
}

// StartSlot returns the first slot of the cursor's epoch.
func (e EpochCursor) StartSlot() uint64 {
	return e.AbsoluteSlot - e.SlotIndex
}
