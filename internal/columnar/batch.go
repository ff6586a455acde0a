package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Transaction is one normalized ledger transaction, the row type behind the
// transactions schema.
type Transaction struct {
	Signature string  `json:"signature"`
	Slot      uint64  `json:"slot"`
	Err       *string `json:"err"`
	BlockTime *int64  `json:"block_time"` // unix seconds, nil when the node has no timestamp
	Fee       uint64  `json:"fee"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    int64   `json:"amount"` // pre minus post balance of the first account, may be negative
}

// BuildBatch serializes records into an immutable batch conforming to
// Schema. An empty input yields a zero-row batch, never a nil one.
func BuildBatch(txs []Transaction) arrow.Record {
	b := array.NewRecordBuilder(Pool, schema)
	defer b.Release()

	sigB := b.Field(0).(*array.StringBuilder)
	slotB := b.Field(1).(*array.Uint64Builder)
	errB := b.Field(2).(*array.StringBuilder)
	timeB := b.Field(3).(*array.TimestampBuilder)
	feeB := b.Field(4).(*array.Uint64Builder)
	senderB := b.Field(5).(*array.StringBuilder)
	receiverB := b.Field(6).(*array.StringBuilder)
	amountB := b.Field(7).(*array.Int64Builder)

	for _, tx := range txs {
		sigB.Append(tx.Signature)
		slotB.Append(tx.Slot)
		if tx.Err != nil {
			errB.Append(*tx.Err)
		} else {
			errB.AppendNull()
		}
		if tx.BlockTime != nil {
			timeB.Append(arrow.Timestamp(*tx.BlockTime))
		} else {
			timeB.AppendNull()
		}
		feeB.Append(tx.Fee)
		senderB.Append(tx.Sender)
		receiverB.Append(tx.Receiver)
		amountB.Append(tx.Amount)
	}

	return b.NewRecord()
}
