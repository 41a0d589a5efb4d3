package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentbazaar/bazaar/internal/api"
	"github.com/agentbazaar/bazaar/internal/app/content"
	"github.com/agentbazaar/bazaar/internal/app/identity"
	"github.com/agentbazaar/bazaar/internal/app/review"
	"github.com/agentbazaar/bazaar/internal/app/stats"
	"github.com/agentbazaar/bazaar/internal/app/trade"
	"github.com/agentbazaar/bazaar/internal/infra/chain"
	"github.com/agentbazaar/bazaar/internal/infra/kv"
	"github.com/agentbazaar/bazaar/internal/infra/ratelimit"
	"github.com/agentbazaar/bazaar/internal/infra/wallet"
)

const shutdownGrace = 10 * time.Second

// Daemon owns the wired services and the HTTP listener.
type Daemon struct {
	cfg    Config
	store  kv.Store
	server *http.Server
	feed   *api.FeedHub
}

// New wires the full service graph from the configuration.
func New(cfg Config) (*Daemon, error) {
	configureLogging(cfg.Log)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	oracle := chain.New(cfg.Chain.RPCURL, cfg.ChainTimeout())
	limiter := ratelimit.New(store, cfg.Limits.RatePerMinute, cfg.Cooldown())

	agents := identity.New(store, wallet.New())
	posts := content.New(store)
	trades := trade.New(store, oracle)
	reviews := review.New(store)
	statsSvc := stats.New(store)

	server := api.NewServer(agents, posts, trades, reviews, statsSvc, limiter, oracle)
	if cfg.API.EnableMetrics {
		server.EnableMetrics()
	}

	d := &Daemon{cfg: cfg, store: store}
	if cfg.API.EnableFeed {
		d.feed = api.NewFeedHub()
		server.SetFeed(d.feed)
	}
	d.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d, nil
}

// Run serves until the context is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d.feed != nil {
		go d.feed.Run()
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_listening", "addr", d.cfg.Addr(), "storage", d.cfg.Storage.Driver)
		if err := d.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		d.close()
		return err
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := d.server.Shutdown(shutdownCtx)
	d.close()
	return err
}

func (d *Daemon) close() {
	if d.feed != nil {
		d.feed.Stop()
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("store_close_failed", "error", err)
	}
}

// openStore builds the configured backend.
func openStore(cfg StorageConfig) (kv.Store, error) {
	switch cfg.Driver {
	case "memory":
		return kv.NewMemory(), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return kv.OpenSQLite(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// configureLogging installs the process-wide slog handler.
func configureLogging(cfg LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
