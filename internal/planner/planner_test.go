package planner

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/fees"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func entry(venue, base string, qty, basis float64) domain.LedgerEntry {
	return domain.LedgerEntry{
		Venue:      venue,
		Instrument: domain.Instrument{Base: base, Quote: "USD"},
		Quantity:   qty,
		CostBasis:  basis,
	}
}

func TestSnapshotRoundTripExample(t *testing.T) {
	s := Snapshot(entry("kraken", "BTC", 10, 950), 100, 0.01)
	if !approx(s.CurrentValue, 1000, 1e-9) || !approx(s.EntryValue, 950, 1e-9) {
		t.Fatalf("current=%v entry=%v, expected 1000 and 950", s.CurrentValue, s.EntryValue)
	}
	if !approx(s.Power, 50, 1e-9) {
		t.Fatalf("power=%v, expected 50", s.Power)
	}
	if !approx(s.Extractable, 40.5, 1e-9) {
		t.Fatalf("extractable=%v, expected 40.5", s.Extractable)
	}
	if !approx(s.PowerPercent, 50.0/950.0, 1e-12) {
		t.Fatalf("power percent=%v", s.PowerPercent)
	}
}

func TestSnapshotSafetyBufferInvariant(t *testing.T) {
	const buffer = 0.01
	for _, price := range []float64{50, 90, 95, 95.9, 96, 100, 150, 1000} {
		s := Snapshot(entry("kraken", "BTC", 10, 950), price, buffer)
		if s.Extractable < 0 {
			t.Fatalf("price %v: extractable=%v < 0", price, s.Extractable)
		}
		if s.Extractable > math.Max(s.Power, 0) {
			t.Fatalf("price %v: extractable=%v > power %v", price, s.Extractable, s.Power)
		}
		if s.CurrentValue-s.Extractable < s.EntryValue*(1-buffer)-1e-9 {
			t.Fatalf("price %v: extraction breaches safety floor", price)
		}
	}
}

func TestSnapshotsSkipsMissingPrices(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry("kraken", "ETH", 1, 100),
		entry("alpaca", "BTC", 1, 100),
		entry("coinbase", "SOL", 1, 100),
	}
	prices := map[string]float64{
		entries[0].Key(): 120,
		entries[1].Key(): 130,
		entries[2].Key(): 0,
	}
	snaps := Snapshots(entries, prices, 0.01)
	if len(snaps) != 2 {
		t.Fatalf("len=%d, expected 2", len(snaps))
	}
	if snaps[0].Entry.Venue != "alpaca" || snaps[1].Entry.Venue != "kraken" {
		t.Fatalf("order=%s,%s, expected alpaca,kraken", snaps[0].Entry.Venue, snaps[1].Entry.Venue)
	}
}

func allocationPlanner() *Planner {
	cfg := DefaultConfig()
	cfg.MaxExtractionRate = 1
	cfg.FeeOverheadMargin = 0
	return New(cfg, fees.New(map[string]fees.Schedule{"kraken": {Taker: 0.002}}))
}

func withExtractable(venue, base string, x float64) domain.PositionSnapshot {
	return domain.PositionSnapshot{
		Entry:       entry(venue, base, 1, 100),
		Price:       100 + x,
		Extractable: x,
	}
}

func TestPlanAllocationExample(t *testing.T) {
	p := allocationPlanner()
	snaps := []domain.PositionSnapshot{
		withExtractable("kraken", "ETH", 40),
		withExtractable("kraken", "BTC", 50),
	}
	plan, err := p.Plan(domain.Destination{Venue: "kraken", Asset: "SOL"}, 80, snaps)
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if !plan.Feasible {
		t.Fatal("expected feasible plan")
	}
	if len(plan.Entries) != 2 {
		t.Fatalf("entries=%d, expected 2", len(plan.Entries))
	}
	a, b := plan.Entries[0], plan.Entries[1]
	if a.Instrument.Base != "BTC" || !approx(a.ExtractValue, 50, 1e-9) || !approx(a.Net, 49.9, 1e-9) {
		t.Fatalf("first entry=%+v, expected BTC extract 50 net 49.9", a)
	}
	if b.Instrument.Base != "ETH" || !approx(b.ExtractValue, 30.1, 1e-9) {
		t.Fatalf("second entry=%+v, expected ETH extract 30.1", b)
	}
	if !approx(plan.Delivered, 49.9+30.1*0.998, 1e-9) {
		t.Fatalf("delivered=%v", plan.Delivered)
	}
	if !approx(plan.Requested, plan.Delivered+plan.Fees, 1e-9) {
		t.Fatalf("requested=%v delivered=%v fees=%v do not add up", plan.Requested, plan.Delivered, plan.Fees)
	}
	if !approx(a.Quantity, 50/150.0, 1e-12) {
		t.Fatalf("quantity=%v, expected extract/price", a.Quantity)
	}
}

func TestPlanInfeasibleEarly(t *testing.T) {
	p := allocationPlanner()
	snaps := []domain.PositionSnapshot{withExtractable("kraken", "BTC", 30)}
	plan, err := p.Plan(domain.Destination{Venue: "kraken", Asset: "USD"}, 80, snaps)
	if !errors.Is(err, domain.ErrPlanInfeasible) {
		t.Fatalf("err=%v, expected ErrPlanInfeasible", err)
	}
	if plan.Feasible || len(plan.Entries) != 0 {
		t.Fatalf("plan=%+v, expected empty infeasible plan", plan)
	}
}

func TestPlanInfeasibleAfterCap(t *testing.T) {
	cfg := DefaultConfig()
	p := New(cfg, fees.New(nil))
	snaps := []domain.PositionSnapshot{
		withExtractable("kraken", "BTC", 50),
		withExtractable("kraken", "ETH", 40),
	}
	// Surplus covers the need, but the 50% per-cycle cap does not.
	plan, err := p.Plan(domain.Destination{Venue: "kraken", Asset: "USD"}, 80, snaps)
	if !errors.Is(err, domain.ErrPlanInfeasible) {
		t.Fatalf("err=%v, expected ErrPlanInfeasible", err)
	}
	if plan.Feasible {
		t.Fatal("plan should be infeasible")
	}
	for _, e := range plan.Entries {
		if e.ExtractValue > e.Extractable*cfg.MaxExtractionRate+1e-9 {
			t.Fatalf("entry %s extracts %v above cap", e.Key(), e.ExtractValue)
		}
	}
}

func TestPlanFeasibilityTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExtractionRate = 1
	cfg.FeeOverheadMargin = 0
	p := New(cfg, fees.New(map[string]fees.Schedule{"kraken": {Taker: 0.05}}))
	// 100 extracted at 5% delivers 95 against a need of 100: within 90%.
	snaps := []domain.PositionSnapshot{withExtractable("kraken", "BTC", 200)}
	plan, err := p.Plan(domain.Destination{Venue: "kraken", Asset: "USD"}, 100, snaps)
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if !plan.Feasible || !approx(plan.Delivered, 95, 1e-9) {
		t.Fatalf("feasible=%v delivered=%v", plan.Feasible, plan.Delivered)
	}
}

func TestCandidatesOrdering(t *testing.T) {
	p := New(DefaultConfig(), fees.New(nil))
	snaps := []domain.PositionSnapshot{
		withExtractable("kraken", "ETH", 50),
		withExtractable("coinbase", "BTC", 120),
		withExtractable("alpaca", "ETH", 50),
		withExtractable("alpaca", "BTC", 50),
		withExtractable("kraken", "DOGE", 5),
		withExtractable("kraken", "SOL", 50),
	}
	got := p.Candidates(domain.Destination{Venue: "kraken", Asset: "SOL"}, snaps)
	want := []string{
		"kraken:ETH/USD",   // same venue: 100 + 50
		"coinbase:BTC/USD", // 120
		"alpaca:BTC/USD",   // 50, lexical tie-break
		"alpaca:ETH/USD",
	}
	if len(got) != len(want) {
		t.Fatalf("len=%d, expected %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key() != want[i] {
			t.Fatalf("candidate %d=%s, expected %s", i, got[i].Key(), want[i])
		}
	}
	if got[0].CrossVenue || !got[1].CrossVenue {
		t.Fatal("cross venue flags wrong")
	}
}

func TestPlanCrossVenueChargesWithdrawal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExtractionRate = 1
	cfg.FeeOverheadMargin = 0
	p := New(cfg, fees.New(map[string]fees.Schedule{"kraken": {Taker: 0.002}}))
	snaps := []domain.PositionSnapshot{withExtractable("kraken", "BTC", 100)}

	plan, err := p.Plan(domain.Destination{Venue: "coinbase", Asset: "ETH"}, 50, snaps)
	if err != nil {
		t.Fatal(err)
	}
	// 0.2% taker plus Kraken's 4 USD withdrawal.
	if !approx(plan.Fees, 50*0.002+4, 1e-9) {
		t.Fatalf("fees=%v, expected %v", plan.Fees, 50*0.002+4)
	}
	if !plan.Entries[0].CrossVenue {
		t.Fatal("expected cross-venue entry")
	}
}

func TestPlanDeterministic(t *testing.T) {
	p := New(DefaultConfig(), fees.New(nil))
	snaps := []domain.PositionSnapshot{
		withExtractable("kraken", "ETH", 80),
		withExtractable("alpaca", "BTC", 80),
		withExtractable("coinbase", "SOL", 80),
		withExtractable("binanceus", "DOGE", 80),
	}
	dst := domain.Destination{Venue: "kraken", Asset: "USD"}

	first, err1 := p.Plan(dst, 100, snaps)
	// Reverse input order; the plan must not depend on it.
	rev := make([]domain.PositionSnapshot, len(snaps))
	for i := range snaps {
		rev[len(snaps)-1-i] = snaps[i]
	}
	second, err2 := p.Plan(dst, 100, rev)
	if (err1 == nil) != (err2 == nil) {
		t.Fatalf("errors differ: %v vs %v", err1, err2)
	}
	a, _ := json.Marshal(first.Entries)
	b, _ := json.Marshal(second.Entries)
	if string(a) != string(b) {
		t.Fatalf("plans differ:\n%s\n%s", a, b)
	}
}

func TestPlanRejectsNonPositiveNeed(t *testing.T) {
	p := New(DefaultConfig(), fees.New(nil))
	if _, err := p.Plan(domain.Destination{Venue: "kraken", Asset: "USD"}, 0, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.MaxExtractionRate = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero extraction rate")
	}
}
