package solana

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"

	"solana-tx-agg/internal/columnar"
)

// normalizeTransaction converts one raw block transaction into a normalized
// record. It reports false when the transaction does not fit the model: no
// metadata, an undecodable message, fewer than two static account keys, or
// no pre/post balance pair for the first account. Vote and other non-transfer
// transactions fall out here routinely, so a false return is not an error.
func normalizeTransaction(txm *rpc.TransactionWithMeta, slot uint64, blockTime *int64) (columnar.Transaction, bool) {
	meta := txm.Meta
	if meta == nil {
		return columnar.Transaction{}, false
	}

	tx, err := txm.GetTransaction()
	if err != nil || tx == nil {
		return columnar.Transaction{}, false
	}
	if len(tx.Signatures) == 0 {
		return columnar.Transaction{}, false
	}

	keys := tx.Message.AccountKeys
	if len(keys) < 2 {
		return columnar.Transaction{}, false
	}
	if len(meta.PreBalances) == 0 || len(meta.PostBalances) == 0 {
		return columnar.Transaction{}, false
	}

	var txErr *string
	if meta.Err != nil {
		rendered := renderTxErr(meta.Err)
		txErr = &rendered
	}

	return columnar.Transaction{
		Signature: tx.Signatures[0].String(),
		Slot:      slot,
		Err:       txErr,
		BlockTime: blockTime,
		Fee:       meta.Fee,
		Sender:    keys[0].String(),
		Receiver:  keys[1].String(),
		Amount:    int64(meta.PreBalances[0]) - int64(meta.PostBalances[0]),
	}, true
}

// renderTxErr renders the node's structured transaction error as its JSON
// text so the stored form is deterministic.
func renderTxErr(err interface{}) string {
	data, merr := json.Marshal(err)
	if merr != nil {
		return fmt.Sprintf("%v", err)
	}
	return string(data)
}
