package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franklinacm/synapse/internal/backfill"
	"github.com/franklinacm/synapse/internal/config"
	"github.com/franklinacm/synapse/internal/gateway"
	"github.com/franklinacm/synapse/internal/ingest"
	"github.com/franklinacm/synapse/internal/reconcile"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/ruleset"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// readyTimeout bounds the wait for the guild to appear after connecting.
const readyTimeout = 30 * time.Second

func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	slog.Info("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "open database", err, nil)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// pipeline is an ingester feeding a running rule engine.
type pipeline struct {
	engine   *rules.Engine
	ingester *ingest.Ingester
	done     chan error
}

// startPipeline starts the engine on its own goroutine. Cancelling ctx
// stops it after the backlog drains; so does shutdown.
func startPipeline(ctx context.Context, st *store.Store, cfg config.Config) *pipeline {
	eng := rules.New(st, st, rules.WithQueueWarnDepth(cfg.QueueWarnDepth))
	p := &pipeline{
		engine:   eng,
		ingester: ingest.New(st, eng),
		done:     make(chan error, 1),
	}
	go func() { p.done <- eng.Run(ctx) }()
	return p
}

// shutdown closes the queue and waits for the engine to drain it.
func (p *pipeline) shutdown() error {
	p.engine.Stop()
	err := <-p.done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// backgroundScan is a backfill running beside live ingestion.
type backgroundScan struct {
	done chan struct{}
}

// startBackfill runs scanner on its own goroutine until it finishes or ctx
// is cancelled.
func startBackfill(ctx context.Context, scanner *backfill.Scanner) *backgroundScan {
	b := &backgroundScan{done: make(chan struct{})}
	go func() {
		defer close(b.done)
		rep, err := scanner.Run(ctx)
		if err != nil {
			slog.Error("backfill incomplete", "error", err)
		}
		slog.Info("backfill finished", "channels", rep.Channels, "created", rep.Created, "updated", rep.Updated)
	}()
	return b
}

// wait blocks until the scan has returned. A nil scan is already done.
func (b *backgroundScan) wait() {
	if b == nil {
		return
	}
	<-b.done
}

// startupReconcile reconciles the store before live delivery starts. A
// snapshot that cannot be fetched aborts startup; failed phases do not.
func startupReconcile(ctx context.Context, f *OutputFormatter, st *store.Store, in *ingest.Ingester, fetcher source.SnapshotFetcher) (reconcile.Report, error) {
	rep, err := reconcile.New(st, in, rules.SystemClock{}).Run(ctx, fetcher)
	if errors.Is(err, reconcile.ErrSnapshot) {
		return rep, f.Fail(ExitCommandError, ErrCodeDiscord, "startup reconciliation", err, nil)
	}
	if err != nil {
		slog.Error("startup reconciliation incomplete", "failed_phases", rep.FailedPhases, "error", err)
	}
	return rep, nil
}

// connect opens a gateway and waits until the guild's state is loaded.
// in may be nil for read-only use.
func connect(ctx context.Context, f *OutputFormatter, cfg config.Config, in gateway.Ingester) (*gateway.Gateway, error) {
	if err := cfg.ValidateDiscord(); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeConfig, "discord is not configured", err, nil)
	}
	gw, err := gateway.New(cfg.DiscordToken, cfg.GuildID, in)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDiscord, "create gateway", err, nil)
	}
	if err := gw.Open(ctx); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeDiscord, "connect to discord", err, nil)
	}

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := gw.WaitReady(waitCtx); err != nil {
		_ = gw.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeDiscord, "guild did not become available", err, nil)
	}
	return gw, nil
}

func closeGateway(gw *gateway.Gateway) {
	if err := gw.Close(); err != nil {
		slog.Error("error closing discord connection", "error", err)
	}
}

// importRules loads path and writes it into st.
func importRules(ctx context.Context, st *store.Store, path string) (ruleset.ImportReport, error) {
	f, err := ruleset.Load(path)
	if err != nil {
		return ruleset.ImportReport{}, err
	}
	rep, err := ruleset.Import(ctx, st, f)
	if err != nil {
		return rep, fmt.Errorf("import %s: %w", path, err)
	}
	return rep, nil
}
