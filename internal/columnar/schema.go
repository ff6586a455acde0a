// Package columnar defines the fixed Arrow schema for normalized
// transactions and helpers to build and render batches of them.
package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Pool is the Arrow allocator shared by all batch builders.
var Pool = memory.NewGoAllocator()

// TableName is the virtual table the batch collection is registered under.
const TableName = "transactions"

var schema = arrow.NewSchema([]arrow.Field{
	{Name: "signature", Type: arrow.BinaryTypes.String},
	{Name: "slot", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "err", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "block_time", Type: arrow.FixedWidthTypes.Timestamp_s, Nullable: true},
	{Name: "fee", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "sender", Type: arrow.BinaryTypes.String},
	{Name: "receiver", Type: arrow.BinaryTypes.String},
	{Name: "amount", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// Schema returns the transactions table schema. All batches produced by this
// package conform to it, including zero-row batches.
func Schema() *arrow.Schema {
	return schema
}
