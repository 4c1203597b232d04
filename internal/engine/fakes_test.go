package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

type fakeVenue struct {
	name string

	mu         sync.Mutex
	balances   map[string]float64
	prices     map[string]float64
	feeRate    float64
	balanceErr error
	tickerErr  error
	orderErr   error
	reject     bool
	block      bool
	onSubmit   func(ctx context.Context)
	orders     []string
	inFlight   int
	maxFlight  int
}

func newFakeVenue(name string) *fakeVenue {
	return &fakeVenue{
		name:     name,
		balances: make(map[string]float64),
		prices:   make(map[string]float64),
		feeRate:  0.0026,
	}
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) GetBalances(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	block, err := f.block, f.balanceErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeVenue) GetTicker(ctx context.Context, native string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tickerErr != nil {
		return 0, f.tickerErr
	}
	p, ok := f.prices[native]
	if !ok {
		return 0, fmt.Errorf("no price for %s", native)
	}
	return p, nil
}

func (f *fakeVenue) SubmitMarketOrder(ctx context.Context, native string, side domain.OrderSide, qty string) (domain.OrderResult, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	hook := f.onSubmit
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if hook != nil {
		hook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, native+" "+string(side)+" "+qty)
	if f.orderErr != nil {
		return domain.OrderResult{}, f.orderErr
	}
	if f.reject {
		return domain.OrderResult{Status: domain.OrderStatusRejected, Message: "LOT_SIZE"}, nil
	}
	var q float64
	if _, err := fmt.Sscan(qty, &q); err != nil {
		return domain.OrderResult{}, err
	}
	price := f.prices[native]
	return domain.OrderResult{
		OrderID:        uuid.New().String(),
		Status:         domain.OrderStatusFilled,
		FilledQuantity: q,
		FilledPrice:    price,
		Fee:            q * price * f.feeRate,
		SubmittedAt:    time.Now(),
	}, nil
}

func (f *fakeVenue) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakeResolver struct {
	rules map[string]domain.VenueInstrumentRule // venue|canonical

	mu        sync.Mutex
	refreshed []string
}

func (r *fakeResolver) add(venue, canonical, native string) {
	if r.rules == nil {
		r.rules = make(map[string]domain.VenueInstrumentRule)
	}
	inst, _ := domain.ParseInstrument(canonical)
	r.rules[venue+"|"+canonical] = domain.VenueInstrumentRule{
		Venue:        venue,
		Instrument:   inst,
		NativeSymbol: native,
		MinQty:       0.0001,
		StepSize:     0.0001,
		MinNotional:  1,
		QtyPrecision: 4,
		Tradable:     true,
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, canonical, venue string) (string, domain.VenueInstrumentRule, error) {
	rule, ok := r.rules[venue+"|"+canonical]
	if !ok {
		return "", domain.VenueInstrumentRule{}, domain.ErrUnknownInstrument
	}
	return rule.NativeSymbol, rule, nil
}

func (r *fakeResolver) Refresh(ctx context.Context, venue string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshed = append(r.refreshed, venue)
	return nil
}

func (r *fakeResolver) refreshes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.refreshed...)
}

type memStore struct {
	mu        sync.Mutex
	ledger    []domain.LedgerRecord
	transfers []domain.TransferRecord
}

func (m *memStore) SaveLedger(ctx context.Context, recs []domain.LedgerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = recs
	return nil
}

func (m *memStore) LoadLedger(ctx context.Context) ([]domain.LedgerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger, nil
}

func (m *memStore) AppendTransfer(ctx context.Context, rec domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, rec)
	return nil
}

func (m *memStore) ListTransfers(ctx context.Context, opts domain.ListOpts) ([]domain.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubFees struct{ rate float64 }

func (s stubFees) SingleTradeCost(string, bool) float64         { return s.rate }
func (s stubFees) WithdrawalFee(string, string) (float64, bool) { return 0, false }

type heldLocks struct{}

func (heldLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

var errBoom = errors.New("boom")
