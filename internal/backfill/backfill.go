// Package backfill scans channel history into the store on the historic
// ingestion path.
//
// Each text channel is paged forward from its persisted checkpoint, so an
// interrupted scan resumes where it stopped and a completed one only picks
// up messages posted since. Messages already stored are refreshed in place
// and never re-evaluated.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/franklinacm/synapse/internal/ingest"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// DefaultPageSize is the number of messages requested per history page.
const DefaultPageSize = 100

// Report summarizes one scan.
type Report struct {
	Channels int
	Pages    int
	Created  int
	Updated  int
	Failed   int
}

// Scanner pages history from a HistorySource into the store.
type Scanner struct {
	history  source.HistorySource
	ingester *ingest.Ingester
	store    *store.Store
	clock    rules.Clock
	pageSize int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPageSize sets the history page size. Values below 1 are ignored.
func WithPageSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithClock sets the clock used to stamp checkpoints.
func WithClock(c rules.Clock) Option {
	return func(s *Scanner) {
		s.clock = c
	}
}

// New creates a Scanner.
func New(h source.HistorySource, in *ingest.Ingester, st *store.Store, opts ...Option) *Scanner {
	s := &Scanner{
		history:  h,
		ingester: in,
		store:    st,
		clock:    rules.SystemClock{},
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans every text channel. A channel that fails is logged and the scan
// moves on; the returned error joins the per-channel failures.
func (s *Scanner) Run(ctx context.Context) (Report, error) {
	channels, err := s.history.TextChannels(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list text channels: %w", err)
	}

	var (
		rep  Report
		errs []error
	)
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.scanChannel(ctx, ch, &rep); err != nil {
			slog.Error("backfill channel failed", "channel", ch.ID, "name", ch.Name, "error", err)
			errs = append(errs, fmt.Errorf("channel %d: %w", ch.ID, err))
			continue
		}
		rep.Channels++
	}

	slog.Info("backfill finished",
		"channels", rep.Channels,
		"pages", rep.Pages,
		"created", rep.Created,
		"updated", rep.Updated,
		"failed", rep.Failed)
	return rep, errors.Join(errs...)
}

func (s *Scanner) scanChannel(ctx context.Context, ch source.Channel, rep *Report) error {
	after, err := s.store.BackfillCheckpoint(ctx, ch.ID)
	if err != nil {
		return err
	}

	// A fetched page is always written in full; cancellation is only
	// observed between pages.
	work := context.WithoutCancel(ctx)
	for {
		page, err := s.history.MessagesAfter(ctx, ch, after, s.pageSize)
		if err != nil {
			return fmt.Errorf("fetch after %d: %w", after, err)
		}
		if len(page) == 0 {
			return nil
		}
		rep.Pages++

		created := 0
		for _, m := range page {
			res, err := s.ingester.IngestMessage(work, m, rules.PathHistoric)
			switch {
			case err != nil:
				slog.Warn("backfill message failed", "channel", ch.ID, "message", m.ID, "error", err)
				rep.Failed++
			case res.Created:
				created++
			default:
				rep.Updated++
			}
			if m.ID > after {
				after = m.ID
			}
		}
		rep.Created += created

		if err := s.store.SaveBackfillCheckpoint(work, ch.ID, after, s.clock.Now()); err != nil {
			return err
		}
		if err := s.store.AddBackfilledMessages(work, created); err != nil {
			return err
		}
		slog.Debug("backfill page", "channel", ch.ID, "messages", len(page), "checkpoint", after)

		if len(page) < s.pageSize {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
