package ledger

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

var btc = domain.Instrument{Base: "BTC", Quote: "USD"}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRecordBuyWeightedAverage(t *testing.T) {
	l := New(Config{}, nil)
	if err := l.RecordBuy("kraken", btc, 4, 100, 0.4); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordBuy("kraken", btc, 6, 90, 0.6); err != nil {
		t.Fatal(err)
	}
	e, ok := l.Get("kraken", btc)
	if !ok {
		t.Fatal("entry missing")
	}
	if !approx(e.Quantity, 10) || !approx(e.CostBasis, 940) || !approx(e.TotalFees, 1) {
		t.Fatalf("entry=%+v, expected qty 10 basis 940 fees 1", e)
	}
	if !approx(e.AvgEntryPrice(), 94) {
		t.Fatalf("avg=%v, expected 94", e.AvgEntryPrice())
	}
}

func TestRecordSellProportional(t *testing.T) {
	l := New(Config{}, nil)
	_ = l.RecordBuy("kraken", btc, 10, 95, 2)

	if err := l.RecordSell("kraken", btc, 4); err != nil {
		t.Fatal(err)
	}
	e, _ := l.Get("kraken", btc)
	if !approx(e.Quantity, 6) || !approx(e.CostBasis, 570) || !approx(e.TotalFees, 1.2) {
		t.Fatalf("entry=%+v, expected qty 6 basis 570 fees 1.2", e)
	}
	if !approx(e.AvgEntryPrice(), 95) {
		t.Fatalf("avg=%v, expected unchanged 95", e.AvgEntryPrice())
	}

	if err := l.RecordSell("kraken", btc, 6); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.Get("kraken", btc); ok {
		t.Fatal("entry should be removed at zero quantity")
	}
}

func TestRecordSellErrors(t *testing.T) {
	l := New(Config{}, nil)
	if err := l.RecordSell("kraken", btc, 1); !errors.Is(err, domain.ErrInsufficientCostBasisData) {
		t.Fatalf("err=%v, expected ErrInsufficientCostBasisData", err)
	}
	_ = l.RecordBuy("kraken", btc, 1, 100, 0)
	if err := l.RecordSell("kraken", btc, 0); err == nil {
		t.Fatal("expected error for zero quantity")
	}
	// Overselling closes the entry.
	if err := l.RecordSell("kraken", btc, 2); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Fatalf("len=%d, expected 0", l.Len())
	}
}

func TestRecordBuyValidation(t *testing.T) {
	l := New(Config{}, nil)
	tests := []struct {
		name            string
		qty, price, fee float64
	}{
		{"zero qty", 0, 100, 0},
		{"negative price", 1, -1, 0},
		{"negative fee", 1, 100, -1},
		{"nan", math.NaN(), 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.RecordBuy("kraken", btc, tt.qty, tt.price, tt.fee); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if l.Len() != 0 {
		t.Fatalf("invalid buys mutated ledger: len=%d", l.Len())
	}
}

func TestCanSellProfitably(t *testing.T) {
	l := New(Config{MinProfitAbsolute: 0.01}, nil)
	_ = l.RecordBuy("kraken", btc, 10, 95, 0)

	tests := []struct {
		name    string
		qty     float64
		price   float64
		rate    float64
		allowed bool
		net     float64
	}{
		{"loss after exit fee", 10, 94, 0.001, false, -10.94},
		{"gain", 10, 100, 0.001, true, 49},
		{"break even below threshold", 10, 95, 0, false, 0},
		{"partial", 5, 100, 0, true, 25},
		{"exceeds holding", 11, 200, 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, d := l.CanSellProfitably("kraken", btc, tt.qty, tt.price, tt.rate)
			if ok != tt.allowed {
				t.Fatalf("allowed=%v, expected %v (detail %+v)", ok, tt.allowed, d)
			}
			if d.HasCostBasis && tt.net != 0 && !approx(d.NetProfit, tt.net) {
				t.Fatalf("net=%v, expected %v", d.NetProfit, tt.net)
			}
		})
	}
}

func TestCanSellProfitablyGateExample(t *testing.T) {
	l := New(Config{MinProfitAbsolute: 0.01}, nil)
	_ = l.RecordBuy("kraken", btc, 10, 95, 0)

	ok, d := l.CanSellProfitably("kraken", btc, 10, 94, 0.001)
	if ok {
		t.Fatal("expected not allowed")
	}
	if !approx(d.GrossValue, 940) || !approx(d.CostBasis, 950) {
		t.Fatalf("gross=%v basis=%v, expected 940 and 950", d.GrossValue, d.CostBasis)
	}
	if !approx(d.NetProfit, -10.94) {
		t.Fatalf("net=%v, expected -10.94", d.NetProfit)
	}
}

func TestCanSellProfitablyProRatesEntryFees(t *testing.T) {
	l := New(Config{}, nil)
	_ = l.RecordBuy("kraken", btc, 10, 100, 10)

	_, d := l.CanSellProfitably("kraken", btc, 4, 110, 0)
	if !approx(d.EntryFees, 4) {
		t.Fatalf("entry fees=%v, expected 4", d.EntryFees)
	}
	if !approx(d.NetProfit, 36) {
		t.Fatalf("net=%v, expected 36", d.NetProfit)
	}
}

func TestCanSellProfitablyNoEntry(t *testing.T) {
	l := New(Config{MinProfitAbsolute: -1e9}, nil)
	ok, d := l.CanSellProfitably("kraken", btc, 1, 1e9, 0)
	if ok {
		t.Fatal("missing entry must never be profitable")
	}
	if d.HasCostBasis || d.Reason != domain.ErrInsufficientCostBasisData.Error() {
		t.Fatalf("detail=%+v", d)
	}
}

func TestCanSellProfitablyHasNoSideEffects(t *testing.T) {
	l := New(Config{}, nil)
	_ = l.RecordBuy("kraken", btc, 10, 95, 1)
	before, _ := l.Get("kraken", btc)
	for i := 0; i < 10; i++ {
		l.CanSellProfitably("kraken", btc, 5, 120, 0.002)
	}
	after, _ := l.Get("kraken", btc)
	if before != after {
		t.Fatalf("entry changed: %+v -> %+v", before, after)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	l := New(Config{}, nil)
	_ = l.RecordBuy("kraken", btc, 1, 100, 0)
	e, _ := l.Get("kraken", btc)
	e.Quantity = 999
	again, _ := l.Get("kraken", btc)
	if again.Quantity != 1 {
		t.Fatalf("Get leaked internal state: qty=%v", again.Quantity)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	src := New(Config{}, nil)
	_ = src.RecordBuy("kraken", btc, 10, 95, 2)
	_ = src.RecordBuy("coinbase", domain.Instrument{Base: "ETH", Quote: "USD"}, 3, 2000, 1.5)

	dst := New(Config{}, nil)
	if err := dst.Restore(src.Records()); err != nil {
		t.Fatal(err)
	}
	want := src.Entries()
	got := dst.Entries()
	if len(got) != len(want) {
		t.Fatalf("len=%d, expected %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Key() != want[i].Key() || !approx(got[i].Quantity, want[i].Quantity) ||
			!approx(got[i].CostBasis, want[i].CostBasis) || !approx(got[i].TotalFees, want[i].TotalFees) ||
			!got[i].LastUpdated.Equal(want[i].LastUpdated) {
			t.Fatalf("entry %d=%+v, expected %+v", i, got[i], want[i])
		}
	}

	if err := dst.Restore(src.Records()); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("second Restore err=%v, expected ErrNotEmpty", err)
	}
}

func TestRebuildFromFills(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []domain.Fill{
		{ID: "3", Venue: "kraken", Instrument: btc, Side: domain.OrderSideSell, Quantity: 5, Price: 120, ExecutedAt: t0.Add(2 * time.Hour)},
		{ID: "1", Venue: "kraken", Instrument: btc, Side: domain.OrderSideBuy, Quantity: 10, Price: 100, Fee: 1, ExecutedAt: t0},
		{ID: "2", Venue: "kraken", Instrument: btc, Side: domain.OrderSideBuy, Quantity: 10, Price: 80, Fee: 1, ExecutedAt: t0.Add(time.Hour)},
		{ID: "0", Venue: "alpaca", Instrument: btc, Side: domain.OrderSideSell, Quantity: 1, Price: 100, ExecutedAt: t0},
	}
	l := New(Config{}, nil)
	skipped, err := l.Rebuild(fills)
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 1 {
		t.Fatalf("skipped=%d, expected 1", skipped)
	}
	e, ok := l.Get("kraken", btc)
	if !ok {
		t.Fatal("kraken entry missing")
	}
	if !approx(e.Quantity, 15) || !approx(e.CostBasis, 1350) || !approx(e.TotalFees, 1.5) {
		t.Fatalf("entry=%+v, expected qty 15 basis 1350 fees 1.5", e)
	}
	if !e.LastUpdated.Equal(t0.Add(2 * time.Hour)) {
		t.Fatalf("last updated=%v", e.LastUpdated)
	}
}

func TestConcurrentMutation(t *testing.T) {
	l := New(Config{}, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordBuy("kraken", btc, 1, 100, 0)
			l.CanSellProfitably("kraken", btc, 1, 101, 0)
			_ = l.Entries()
		}()
	}
	wg.Wait()
	e, _ := l.Get("kraken", btc)
	if !approx(e.Quantity, 50) {
		t.Fatalf("qty=%v, expected 50", e.Quantity)
	}
}
