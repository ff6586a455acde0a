package query

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	duckdb "github.com/marcboeker/go-duckdb/v2"

	"solana-tx-agg/internal/columnar"
)

// DuckDB is an Engine backed by an in-memory DuckDB instance per query. The
// batch set is exposed to the engine as a named Arrow view, so no data is
// copied on the way in.
type DuckDB struct{}

// NewDuckDB creates a DuckDB query engine.
func NewDuckDB() *DuckDB {
	return &DuckDB{}
}

// Query registers batches under tableName and executes sql against them.
// Result records are retained and owned by the caller.
func (e *DuckDB) Query(ctx context.Context, sql, tableName string, batches []arrow.Record) ([]arrow.Record, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer connector.Close()

	conn, err := connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect duckdb: %w", err)
	}
	defer conn.Close()

	ar, err := duckdb.NewArrowFromConn(conn)
	if err != nil {
		return nil, fmt.Errorf("arrow interface: %w", err)
	}

	reader, err := array.NewRecordReader(columnar.Schema(), batches)
	if err != nil {
		return nil, fmt.Errorf("batch reader: %w", err)
	}
	defer reader.Release()

	release, err := ar.RegisterView(reader, tableName)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", tableName, err)
	}
	defer release()

	res, err := ar.QueryContext(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer res.Release()

	var out []arrow.Record
	for res.Next() {
		rec := res.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := res.Err(); err != nil {
		for _, rec := range out {
			rec.Release()
		}
		return nil, fmt.Errorf("read results: %w", err)
	}
	return out, nil
}
