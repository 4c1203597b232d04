package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// dust is the quantity below which an entry counts as closed.
const dust = 1e-12

// Config holds the profitability gate threshold.
type Config struct {
	// MinProfitAbsolute is the smallest net profit, in quote currency, that
	// allows a sell. It is an absolute amount, not a percentage.
	MinProfitAbsolute float64
}

// Ledger tracks cost basis per (venue, instrument). All mutation goes through
// RecordBuy and RecordSell; Restore and Rebuild replay through the same path.
type Ledger struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*domain.LedgerEntry
}

// New creates an empty Ledger.
func New(cfg Config, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "ledger")),
		entries: make(map[string]*domain.LedgerEntry),
	}
}

// RecordBuy blends a buy into the entry's weighted-average cost, creating the
// entry on first buy.
func (l *Ledger) RecordBuy(venue string, inst domain.Instrument, qty, price, fee float64) error {
	if err := validBuy(qty, price, fee); err != nil {
		return fmt.Errorf("ledger: record buy %s: %w", domain.PairKey(venue, inst), err)
	}
	l.mu.Lock()
	e := applyBuy(l.entries, venue, inst, qty, price, fee, l.now())
	l.mu.Unlock()

	l.logger.Debug("ledger: buy recorded",
		slog.String("pair", domain.PairKey(venue, inst)),
		slog.Float64("qty", qty),
		slog.Float64("price", price),
		slog.Float64("avg_entry", e.AvgEntryPrice()),
	)
	return nil
}

// RecordSell reduces quantity, cost basis and fees proportionally, leaving
// the average entry price unchanged. The entry is removed at zero. Selling
// more than is held closes the entry.
func (l *Ledger) RecordSell(venue string, inst domain.Instrument, qty float64) error {
	key := domain.PairKey(venue, inst)
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return fmt.Errorf("ledger: record sell %s: invalid quantity %v", key, qty)
	}
	l.mu.Lock()
	held, closed, err := applySell(l.entries, key, qty, l.now())
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ledger: record sell %s: %w", key, err)
	}
	if qty > held+dust {
		l.logger.Warn("ledger: sell exceeds tracked quantity",
			slog.String("pair", key),
			slog.Float64("sold", qty),
			slog.Float64("held", held),
		)
	}
	l.logger.Debug("ledger: sell recorded",
		slog.String("pair", key),
		slog.Float64("qty", qty),
		slog.Bool("closed", closed),
	)
	return nil
}

// Get returns a copy of the entry for (venue, inst).
func (l *Ledger) Get(venue string, inst domain.Instrument) (domain.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[domain.PairKey(venue, inst)]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries ordered by (venue, instrument).
func (l *Ledger) Entries() []domain.LedgerEntry {
	l.mu.RLock()
	out := make([]domain.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Instrument.Key() < out[j].Instrument.Key()
	})
	return out
}

// Len returns the number of open entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// CanSellProfitably reports whether selling qty at price realizes at least
// the configured absolute profit after pro-rated entry fees and the exit fee.
// A missing entry is never profitable.
func (l *Ledger) CanSellProfitably(venue string, inst domain.Instrument, qty, price, exitFeeRate float64) (bool, domain.ProfitDetail) {
	d := domain.ProfitDetail{
		Quantity:  qty,
		Price:     price,
		MinProfit: l.cfg.MinProfitAbsolute,
	}
	if qty <= 0 || price <= 0 || exitFeeRate < 0 {
		d.Reason = "invalid quantity, price or fee rate"
		return false, d
	}

	e, ok := l.Get(venue, inst)
	if !ok || e.Quantity <= dust {
		d.Reason = domain.ErrInsufficientCostBasisData.Error()
		return false, d
	}
	d.HasCostBasis = true
	if qty > e.Quantity+dust {
		d.Reason = "quantity exceeds tracked holding"
		return false, d
	}

	share := qty / e.Quantity
	d.GrossValue = qty * price
	d.CostBasis = qty * e.AvgEntryPrice()
	d.EntryFees = e.TotalFees * share
	d.ExitFee = d.GrossValue * exitFeeRate
	d.NetProfit = d.GrossValue - d.CostBasis - d.EntryFees - d.ExitFee

	if d.NetProfit < l.cfg.MinProfitAbsolute {
		d.Reason = "net profit below threshold"
		return false, d
	}
	return true, d
}

// Records returns the persisted form of every entry.
func (l *Ledger) Records() []domain.LedgerRecord {
	entries := l.Entries()
	out := make([]domain.LedgerRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.LedgerRecord{
			Venue:       e.Venue,
			Instrument:  e.Instrument.Key(),
			Quantity:    e.Quantity,
			CostBasis:   e.CostBasis,
			TotalFees:   e.TotalFees,
			LastUpdated: e.LastUpdated,
		})
	}
	return out
}

// ErrNotEmpty is returned when Restore or Rebuild is called on a ledger that
// already holds entries.
var ErrNotEmpty = errors.New("ledger: not empty")

// Restore loads a persisted snapshot into an empty ledger. Each record is
// replayed as a single buy at its average price.
func (l *Ledger) Restore(records []domain.LedgerRecord) error {
	next := make(map[string]*domain.LedgerEntry, len(records))
	for _, r := range records {
		inst, ok := domain.ParseInstrument(r.Instrument)
		if !ok {
			return fmt.Errorf("ledger: restore %s:%s: %w", r.Venue, r.Instrument, domain.ErrUnknownInstrument)
		}
		if r.Quantity <= dust {
			continue
		}
		price := r.CostBasis / r.Quantity
		if err := validBuy(r.Quantity, price, r.TotalFees); err != nil {
			return fmt.Errorf("ledger: restore %s: %w", domain.PairKey(r.Venue, inst), err)
		}
		at := r.LastUpdated
		if at.IsZero() {
			at = l.now()
		}
		applyBuy(next, r.Venue, inst, r.Quantity, price, r.TotalFees, at)
	}
	return l.swapIn(next)
}

// Rebuild reconstructs the ledger from venue fill history, replayed in
// execution order. Sells with no prior buy are skipped and counted.
func (l *Ledger) Rebuild(fills []domain.Fill) (skipped int, err error) {
	ordered := make([]domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExecutedAt.Equal(ordered[j].ExecutedAt) {
			return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	next := make(map[string]*domain.LedgerEntry)
	for _, f := range ordered {
		key := domain.PairKey(f.Venue, f.Instrument)
		switch f.Side {
		case domain.OrderSideBuy:
			if err := validBuy(f.Quantity, f.Price, f.Fee); err != nil {
				return skipped, fmt.Errorf("ledger: rebuild fill %s: %w", f.ID, err)
			}
			applyBuy(next, f.Venue, f.Instrument, f.Quantity, f.Price, f.Fee, f.ExecutedAt)
		case domain.OrderSideSell:
			if f.Quantity <= 0 {
				return skipped, fmt.Errorf("ledger: rebuild fill %s: invalid quantity %v", f.ID, f.Quantity)
			}
			if _, _, err := applySell(next, key, f.Quantity, f.ExecutedAt); err != nil {
				skipped++
				continue
			}
		default:
			return skipped, fmt.Errorf("ledger: rebuild fill %s: unknown side %q", f.ID, f.Side)
		}
	}
	if err := l.swapIn(next); err != nil {
		return skipped, err
	}
	if skipped > 0 {
		l.logger.Warn("ledger: rebuild skipped sells without cost basis", slog.Int("skipped", skipped))
	}
	l.logger.Info("ledger: rebuilt from fills",
		slog.Int("fills", len(fills)),
		slog.Int("entries", len(next)),
	)
	return skipped, nil
}

func (l *Ledger) swapIn(next map[string]*domain.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) > 0 {
		return ErrNotEmpty
	}
	l.entries = next
	return nil
}

func validBuy(qty, price, fee float64) error {
	for _, v := range []float64{qty, price, fee} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("non-finite value")
		}
	}
	if qty <= 0 {
		return fmt.Errorf("invalid quantity %v", qty)
	}
	if price <= 0 {
		return fmt.Errorf("invalid price %v", price)
	}
	if fee < 0 {
		return fmt.Errorf("invalid fee %v", fee)
	}
	return nil
}

func applyBuy(m map[string]*domain.LedgerEntry, venue string, inst domain.Instrument, qty, price, fee float64, at time.Time) domain.LedgerEntry {
	key := domain.PairKey(venue, inst)
	e, ok := m[key]
	if !ok {
		e = &domain.LedgerEntry{Venue: venue, Instrument: inst}
		m[key] = e
	}
	e.Quantity += qty
	e.CostBasis += qty * price
	e.TotalFees += fee
	e.LastUpdated = at
	return *e
}

// applySell returns the quantity held before the sell and whether the entry
// was closed.
func applySell(m map[string]*domain.LedgerEntry, key string, qty float64, at time.Time) (float64, bool, error) {
	e, ok := m[key]
	if !ok {
		return 0, false, domain.ErrInsufficientCostBasisData
	}
	held := e.Quantity
	if qty >= held-dust {
		delete(m, key)
		return held, true, nil
	}
	keep := (held - qty) / held
	e.Quantity = held - qty
	e.CostBasis *= keep
	e.TotalFees *= keep
	e.LastUpdated = at
	return held, false, nil
}
