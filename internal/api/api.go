// Package api exposes the HTTP query surface over the aggregated store.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"solana-tx-agg/internal/columnar"
	"solana-tx-agg/internal/datetime"
	"solana-tx-agg/internal/observability"
)

// Queryer answers SQL against the aggregated transaction set. Implemented by
// stream.Aggregator.
type Queryer interface {
	QueryToJSON(ctx context.Context, sql, tableName string) (string, error)
}

// Options configures the API handler.
type Options struct {
	Queryer Queryer
	Metrics *observability.Metrics
	Logger  *log.Logger
}

// Handler serves the transaction query endpoints.
type Handler struct {
	queryer Queryer
	metrics *observability.Metrics
	logger  *log.Logger
}

// NewHandler creates the API handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		queryer: opts.Queryer,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Mux returns the route table.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transactions", h.transactions)
	mux.HandleFunc("GET /transactions/count", h.transactionsCount)
	mux.HandleFunc("POST /sql", h.rawSQL)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// transactions handles signature and day lookups.
func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("id") != "":
		sql := fmt.Sprintf("SELECT * FROM %s WHERE signature = '%s'", columnar.TableName, q.Get("id"))
		h.serve(w, r, sql)
	case q.Get("day") != "":
		day, err := datetime.NormalizeDate(q.Get("day"))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err)
			return
		}
		sql := fmt.Sprintf("SELECT * FROM %s WHERE cast(block_time as DATE) = '%s'", columnar.TableName, day)
		h.serve(w, r, sql)
	default:
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("missing id or day parameter"))
	}
}

func (h *Handler) transactionsCount(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, fmt.Sprintf("SELECT count(1) as count FROM %s", columnar.TableName))
}

// rawSQL executes the request body verbatim. Callers construct their own
// statements; there is no injection defense at this layer.
func (h *Handler) rawSQL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("read body: %w", err))
		return
	}
	if len(body) == 0 {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("empty SQL body"))
		return
	}
	h.serve(w, r, string(body))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, sql string) {
	out, err := h.queryer.QueryToJSON(r.Context(), sql, columnar.TableName)
	if err != nil {
		if h.metrics != nil {
			h.metrics.QueryErrors.Inc()
		}
		h.logger.Printf("query failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.QueriesServed.Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(out))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
