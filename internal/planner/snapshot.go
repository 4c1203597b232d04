package planner

import (
	"sort"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// Snapshot values a ledger entry at price. Extractable is the gain above the
// safety buffer, so extraction alone can never take the position below
// entry_value * (1 - safetyBuffer).
func Snapshot(e domain.LedgerEntry, price, safetyBuffer float64) domain.PositionSnapshot {
	s := domain.PositionSnapshot{
		Entry:        e,
		Price:        price,
		CurrentValue: e.Quantity * price,
		EntryValue:   e.Quantity * e.AvgEntryPrice(),
	}
	s.Power = s.CurrentValue - s.EntryValue
	if s.EntryValue > 0 {
		s.PowerPercent = s.Power / s.EntryValue
	}
	if x := s.Power - s.EntryValue*safetyBuffer; x > 0 {
		s.Extractable = x
	}
	return s
}

// Snapshots values every entry with a known positive price, ordered by pair
// key. prices is keyed by domain.PairKey.
func Snapshots(entries []domain.LedgerEntry, prices map[string]float64, safetyBuffer float64) []domain.PositionSnapshot {
	out := make([]domain.PositionSnapshot, 0, len(entries))
	for _, e := range entries {
		p, ok := prices[e.Key()]
		if !ok || p <= 0 {
			continue
		}
		out = append(out, Snapshot(e, p, safetyBuffer))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
