// Package query defines the SQL execution capability the store delegates to,
// plus its DuckDB-backed implementation.
package query

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// Engine executes SQL over a set of columnar batches registered as a named
// table and returns the result batches. Implementations must not retain the
// input batches past the call.
type Engine interface {
	Query(ctx context.Context, sql, tableName string, batches []arrow.Record) ([]arrow.Record, error)
}
