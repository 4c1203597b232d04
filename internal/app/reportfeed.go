package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

const backfillPage = 200

// reportFeed mirrors the cycle reports another process publishes. It
// backfills from the report stream, then follows the live channel, keeping
// the newest keep reports.
type reportFeed struct {
	bus     domain.ReportBus
	channel string
	stream  string
	keep    int
	logger  *slog.Logger

	mu      sync.RWMutex
	reports []domain.CycleReport
}

func newReportFeed(bus domain.ReportBus, channel, stream string, keep int, logger *slog.Logger) *reportFeed {
	if keep <= 0 {
		keep = 100
	}
	return &reportFeed{
		bus:     bus,
		channel: channel,
		stream:  stream,
		keep:    keep,
		logger:  logger.With(slog.String("component", "report_feed")),
	}
}

// Reports returns the mirrored reports, oldest first.
func (f *reportFeed) Reports() []domain.CycleReport {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.CycleReport, len(f.reports))
	copy(out, f.reports)
	return out
}

// Run subscribes before backfilling so no report falls between the two;
// a report seen in both is kept once.
func (f *reportFeed) Run(ctx context.Context) error {
	live, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	if err := f.backfill(ctx); err != nil {
		f.logger.Warn("report_feed: backfill failed", slog.String("error", err.Error()))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-live:
			if !ok {
				return ctx.Err()
			}
			f.add(payload)
		}
	}
}

func (f *reportFeed) backfill(ctx context.Context) error {
	lastID := "0"
	for {
		msgs, err := f.bus.StreamRead(ctx, f.stream, lastID, backfillPage)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			f.add(m.Payload)
			lastID = m.ID
		}
		if len(msgs) < backfillPage {
			return nil
		}
	}
}

func (f *reportFeed) add(payload []byte) {
	var rep domain.CycleReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		f.logger.Warn("report_feed: bad payload", slog.String("error", err.Error()))
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reports {
		if r.CycleID == rep.CycleID {
			return
		}
	}
	f.reports = append(f.reports, rep)
	sort.SliceStable(f.reports, func(i, j int) bool {
		return f.reports[i].StartedAt.Before(f.reports[j].StartedAt)
	})
	if over := len(f.reports) - f.keep; over > 0 {
		f.reports = append([]domain.CycleReport(nil), f.reports[over:]...)
	}
}
