package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/ledger"
)

const snapshotTimeout = 30 * time.Second

// liveLedger serves the in-memory ledger to the status API.
type liveLedger struct {
	l *ledger.Ledger
}

func (v liveLedger) LoadLedger(context.Context) ([]domain.LedgerRecord, error) {
	return v.l.Records(), nil
}

// snapshotter saves the ledger every interval and, when an archiver is set,
// copies the ledger and transfer history to cold storage every
// archiveInterval. A final snapshot is written on shutdown.
type snapshotter struct {
	ledger          *ledger.Ledger
	store           domain.StateStore
	archiver        domain.Archiver
	interval        time.Duration
	archiveInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger

	lastArchive time.Time
}

func newSnapshotter(l *ledger.Ledger, store domain.StateStore, archiver domain.Archiver, interval, archiveInterval time.Duration, logger *slog.Logger) *snapshotter {
	return &snapshotter{
		ledger:          l,
		store:           store,
		archiver:        archiver,
		interval:        interval,
		archiveInterval: archiveInterval,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.With(slog.String("component", "snapshotter")),
	}
}

// Run snapshots until ctx is done.
func (s *snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
			s.tick(fctx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			tctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
			s.tick(tctx)
			cancel()
		}
	}
}

// tick saves one snapshot and archives when due. Failures are logged; the
// next tick tries again.
func (s *snapshotter) tick(ctx context.Context) {
	records := s.ledger.Records()
	if err := s.store.SaveLedger(ctx, records); err != nil {
		s.logger.Error("snapshotter: save ledger failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Debug("snapshotter: ledger saved", slog.Int("entries", len(records)))

	if s.archiver == nil {
		return
	}
	now := s.now()
	if !s.lastArchive.IsZero() && now.Sub(s.lastArchive) < s.archiveInterval {
		return
	}

	path, err := s.archiver.ArchiveLedger(ctx, records, now)
	if err != nil {
		s.logger.Error("snapshotter: archive ledger failed", slog.String("error", err.Error()))
		return
	}
	transfers, err := s.store.ListTransfers(ctx, domain.ListOpts{Limit: domain.MaxTransferHistory})
	if err != nil {
		s.logger.Error("snapshotter: list transfers failed", slog.String("error", err.Error()))
		return
	}
	tpath, err := s.archiver.ArchiveTransfers(ctx, transfers, now)
	if err != nil {
		s.logger.Error("snapshotter: archive transfers failed", slog.String("error", err.Error()))
		return
	}
	s.lastArchive = now
	s.logger.Info("snapshotter: archived",
		slog.String("ledger", path),
		slog.String("transfers", tpath),
		slog.Int("transfer_count", len(transfers)),
	)
}
