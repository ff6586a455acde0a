package columnar

import (
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// RecordsToJSON renders batches as a JSON array of row objects keyed by the
// schema field names. An empty input renders as "[]".
func RecordsToJSON(recs []arrow.Record) (string, error) {
	rows := make([]json.RawMessage, 0)
	for _, rec := range recs {
		if rec.NumRows() == 0 {
			continue
		}
		st := array.RecordToStructArray(rec)
		data, err := st.MarshalJSON()
		st.Release()
		if err != nil {
			return "", fmt.Errorf("marshal batch: %w", err)
		}
		var part []json.RawMessage
		if err := json.Unmarshal(data, &part); err != nil {
			return "", fmt.Errorf("reshape batch rows: %w", err)
		}
		rows = append(rows, part...)
	}

	out, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(out), nil
}
