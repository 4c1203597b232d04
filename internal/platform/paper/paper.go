// Package paper is an in-memory venue that fills market orders at live
// public prices. It stands in for authenticated trading accounts.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/symbol"
)

// Resolver maps between canonical instruments and venue symbols.
type Resolver interface {
	Resolve(ctx context.Context, canonical, venue string) (string, domain.VenueInstrumentRule, error)
	ResolveNative(ctx context.Context, venue, native string) (domain.Instrument, domain.VenueInstrumentRule, error)
}

// FeeRates supplies the taker rate charged on paper fills.
type FeeRates interface {
	SingleTradeCost(venue string, isTaker bool) float64
}

// dust absorbs float drift when a transfer withdraws a whole balance.
const dust = 1e-9

// Options configures a paper venue.
type Options struct {
	// Slippage is applied against the taker: sells fill below the ticker,
	// buys above it.
	Slippage float64
	Now      func() time.Time
	Network  *Network
}

// Venue is one paper account.
type Venue struct {
	name     string
	md       domain.TickerSource
	resolver Resolver
	fees     FeeRates
	slippage float64
	now      func() time.Time
	network  *Network

	mu       sync.Mutex
	balances map[string]float64
	fills    []domain.Fill
}

// New creates a paper venue over a market-data source.
func New(name string, md domain.TickerSource, resolver Resolver, fees FeeRates, opts Options) *Venue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := &Venue{
		name:     name,
		md:       md,
		resolver: resolver,
		fees:     fees,
		slippage: opts.Slippage,
		now:      opts.Now,
		network:  opts.Network,
		balances: make(map[string]float64),
	}
	if opts.Network != nil {
		opts.Network.add(v)
	}
	return v
}

// Name returns the venue name the account was created with.
func (v *Venue) Name() string { return v.name }

// Deposit credits an asset balance without a trade.
func (v *Venue) Deposit(asset string, amount float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[symbol.NormalizeAsset(asset)] += amount
}

// Seed records a historical buy: it credits the base asset and appends a
// buy fill so the ledger can be rebuilt from Fills.
func (v *Venue) Seed(inst domain.Instrument, qty, price, fee float64, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[inst.Base] += qty
	v.fills = append(v.fills, domain.Fill{
		ID:         uuid.NewString(),
		Venue:      v.name,
		Instrument: inst,
		Side:       domain.OrderSideBuy,
		Quantity:   qty,
		Price:      price,
		Fee:        fee,
		ExecutedAt: at,
	})
}

// GetBalances returns a copy of all non-zero balances.
func (v *Venue) GetBalances(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]float64, len(v.balances))
	for a, b := range v.balances {
		if b != 0 {
			out[a] = b
		}
	}
	return out, nil
}

// GetTicker returns the underlying market-data price for nativeSymbol.
func (v *Venue) GetTicker(ctx context.Context, nativeSymbol string) (float64, error) {
	return v.md.Ticker(ctx, nativeSymbol)
}

// Fills returns every seeded and executed fill in execution order.
func (v *Venue) Fills(ctx context.Context) ([]domain.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Fill, len(v.fills))
	copy(out, v.fills)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

// SubmitMarketOrder fills the whole quantity at the current ticker, less
// slippage, and charges the venue's taker fee in the quote asset. Orders the
// real venue would refuse come back rejected.
func (v *Venue) SubmitMarketOrder(ctx context.Context, nativeSymbol string, side domain.OrderSide, quantity string) (domain.OrderResult, error) {
	res := domain.OrderResult{OrderID: uuid.NewString(), SubmittedAt: v.now()}

	inst, rule, err := v.resolver.ResolveNative(ctx, v.name, nativeSymbol)
	if err != nil {
		return v.reject(res, fmt.Sprintf("unknown symbol %s", nativeSymbol))
	}
	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return v.reject(res, fmt.Sprintf("invalid quantity %q", quantity))
	}
	if rule.StepSize > 0 && !qty.Mod(decimal.NewFromFloat(rule.StepSize)).IsZero() {
		return v.reject(res, fmt.Sprintf("quantity %s is not a multiple of step %v", quantity, rule.StepSize))
	}

	ticker, err := v.md.Ticker(ctx, nativeSymbol)
	if err != nil {
		res.Status = domain.OrderStatusFailed
		res.Message = err.Error()
		return res, fmt.Errorf("paper: %s: ticker: %w", v.name, err)
	}
	if err := symbol.CheckOrder(qty, ticker, rule); err != nil {
		return v.reject(res, err.Error())
	}

	price := ticker * (1 - v.slippage)
	if side == domain.OrderSideBuy {
		price = ticker * (1 + v.slippage)
	}
	q := qty.InexactFloat64()
	notional := q * price
	fee := notional * v.fees.SingleTradeCost(v.name, true)

	v.mu.Lock()
	switch side {
	case domain.OrderSideSell:
		if v.balances[inst.Base] < q {
			v.mu.Unlock()
			return v.reject(res, fmt.Sprintf("insufficient %s balance", inst.Base))
		}
		v.balances[inst.Base] -= q
		v.balances[inst.Quote] += notional - fee
	case domain.OrderSideBuy:
		if v.balances[inst.Quote] < notional+fee {
			v.mu.Unlock()
			return v.reject(res, fmt.Sprintf("insufficient %s balance", inst.Quote))
		}
		v.balances[inst.Quote] -= notional + fee
		v.balances[inst.Base] += q
	default:
		v.mu.Unlock()
		return v.reject(res, fmt.Sprintf("invalid side %q", side))
	}
	v.fills = append(v.fills, domain.Fill{
		ID:           res.OrderID,
		Venue:        v.name,
		NativeSymbol: nativeSymbol,
		Instrument:   inst,
		Side:         side,
		Quantity:     q,
		Price:        price,
		Fee:          fee,
		ExecutedAt:   res.SubmittedAt,
	})
	v.mu.Unlock()

	res.Status = domain.OrderStatusFilled
	res.FilledQuantity = q
	res.FilledPrice = price
	res.Fee = fee
	return res, nil
}

func (v *Venue) reject(res domain.OrderResult, msg string) (domain.OrderResult, error) {
	res.Status = domain.OrderStatusRejected
	res.Message = msg
	return res, fmt.Errorf("paper: %s: %s: %w", v.name, msg, domain.ErrOrderRejected)
}

func (v *Venue) debit(asset string, amount float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	have := v.balances[asset]
	if have < amount-dust {
		return fmt.Errorf("paper: %s: insufficient %s for transfer: have %v, need %v", v.name, asset, have, amount)
	}
	v.balances[asset] = max(have-amount, 0)
	return nil
}

var (
	_ domain.VenueAdapter = (*Venue)(nil)
	_ domain.FillHistory  = (*Venue)(nil)
	_ domain.LegExecutor  = (*Venue)(nil)
)
