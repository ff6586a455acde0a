package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"solana-tx-agg/internal/api"
	"solana-tx-agg/internal/loader"
	"solana-tx-agg/internal/observability"
	"solana-tx-agg/internal/query"
	solanaclient "solana-tx-agg/internal/solana"
	"solana-tx-agg/internal/stream"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint")
	listen := flag.String("listen", ":3666", "Query API listen address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	mocked := flag.Bool("mocked", true, "Bootstrap from a short slot window instead of the full epoch")
	rpsLimit := flag.Int("rps-limit", loader.DefaultRPSLimit, "Historical fetch requests per second")

	flag.Parse()

	logger := log.New(os.Stdout, "[aggd] ", log.LstdFlags)

	if *rpcEndpoint == "" || *wsEndpoint == "" {
		logger.Fatal("both --rpc-endpoint and --ws-endpoint are required")
	}

	metrics := observability.NewMetrics("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down", sig)
		cancel()
	}()

	fetcher := solanaclient.NewClient(rpc.New(*rpcEndpoint), solanaclient.Config{}, metrics, logger)
	engine := query.NewDuckDB()

	logger.Printf("Starting historical load (mocked=%v)", *mocked)
	st, err := loader.Load(ctx, loader.Options{
		Fetcher:  fetcher,
		Engine:   engine,
		RPSLimit: *rpsLimit,
		Mocked:   *mocked,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("Historical load failed: %v", err)
	}
	logger.Printf("Historical load done: %d batches, %d rows, cursor at slot %d",
		st.BatchCount(), st.RowCount(), st.CurrentSlot)

	agg := stream.NewAggregator(st)
	pipeline := stream.NewPipeline(stream.Options{
		WSEndpoint: *wsEndpoint,
		Fetcher:    fetcher,
		Aggregator: agg,
		Metrics:    metrics,
		Logger:     logger,
	})

	// Ingestion failure leaves the store static but still queryable, so the
	// API keeps serving until shutdown.
	go func() {
		if err := pipeline.Run(ctx); err != nil {
			logger.Printf("Ingestion pipeline stopped: %v", err)
			return
		}
		logger.Printf("Ingestion pipeline exited")
	}()

	handler := api.NewHandler(api.Options{
		Queryer: agg,
		Metrics: metrics,
		Logger:  logger,
	})
	server := &http.Server{Addr: *listen, Handler: handler.Mux()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Printf("Query API listening on %s", *listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("API server error: %v", err)
	}
	logger.Printf("Shutdown complete")
}
