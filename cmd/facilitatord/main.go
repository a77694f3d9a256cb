// Command facilitatord serves the x402 facilitator API: structural proof
// verification on /verify, full ledger-backed settlement on /settle, and
// capability discovery on /supported.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paylith/x402-solana"
	"github.com/paylith/x402-solana/facilitator"
	x402http "github.com/paylith/x402-solana/http"
	"github.com/paylith/x402-solana/ledger"
	"github.com/paylith/x402-solana/replay"
	"github.com/paylith/x402-solana/verify"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilitatord",
		Short: "x402 payment facilitator for the Solana ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.String("listen", ":8402", "address to serve the facilitator API on")
	flags.String("network", x402.NetworkSolanaMainnet, "ledger network (solana-mainnet or solana-devnet)")
	flags.String("rpc-endpoint", "", "ledger JSON-RPC endpoint (defaults to the network's public endpoint)")
	flags.Duration("rpc-timeout", ledger.DefaultRequestTimeout, "per-request ledger RPC timeout")
	flags.String("redis-addr", "", "Redis address for the shared replay cache (empty means in-memory)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("FACILITATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	return cmd
}

func run(ctx context.Context) error {
	log := newLogger(viper.GetString("log-level"))

	network, err := x402.NetworkByID(viper.GetString("network"))
	if err != nil {
		return err
	}
	endpoint := viper.GetString("rpc-endpoint")
	if endpoint == "" {
		endpoint = network.RPCEndpoint
	}

	cache, err := newReplayCache(ctx, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	client := ledger.NewRPCClient(endpoint, viper.GetDuration("rpc-timeout"))
	verifier := verify.NewVerifier(client, cache, verify.Options{Logger: log})
	server := x402http.NewFacilitatorServer(facilitator.NewLocal(verifier, log), log)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Mount("/", server.Routes())

	httpServer := &http.Server{
		Addr:              viper.GetString("listen"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("facilitator listening",
			"addr", httpServer.Addr,
			"network", network.ID,
			"endpoint", endpoint)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newReplayCache(ctx context.Context, log *slog.Logger) (replay.Cache, error) {
	addr := viper.GetString("redis-addr")
	if addr == "" {
		log.Info("using in-memory replay cache; run Redis for multi-instance deployments")
		return replay.NewMemoryCache(0), nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis at %s: %w", addr, err)
	}
	log.Info("using Redis replay cache", "addr", addr)
	return replay.NewRedisCache(rdb, ""), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}
