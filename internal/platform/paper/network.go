package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/symbol"
)

// Network links paper venues so proceeds can move between them.
type Network struct {
	mu     sync.RWMutex
	venues map[string]*Venue
	onBuy  func(domain.Fill)
}

// NewNetwork creates an empty network. onBuy, when set, is called with the
// fill of every destination buy a leg places, so the caller can open a cost
// basis entry for it.
func NewNetwork(onBuy func(domain.Fill)) *Network {
	return &Network{venues: make(map[string]*Venue), onBuy: onBuy}
}

func (n *Network) add(v *Venue) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.venues[v.name] = v
}

// Venue returns a member venue by name.
func (n *Network) Venue(name string) (*Venue, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.venues[name]
	return v, ok
}

// ExecuteLeg withdraws Amount+Fee of the leg asset from this venue, credits
// Amount at the destination and, when BuyAsset is set, spends it on a market
// buy there. A failed buy leaves the funds at the destination.
func (v *Venue) ExecuteLeg(ctx context.Context, leg domain.PlannedLeg) error {
	if leg.FromVenue != v.name {
		return fmt.Errorf("paper: %s: leg from %s", v.name, leg.FromVenue)
	}
	dst := v
	if leg.ToVenue != v.name {
		if v.network == nil {
			return fmt.Errorf("paper: %s: no network for transfer to %s", v.name, leg.ToVenue)
		}
		var ok bool
		if dst, ok = v.network.Venue(leg.ToVenue); !ok {
			return fmt.Errorf("paper: %s: unknown destination %s", v.name, leg.ToVenue)
		}
	}

	asset := symbol.NormalizeAsset(leg.Asset)
	if err := v.debit(asset, leg.Amount+leg.Fee); err != nil {
		return err
	}
	dst.Deposit(asset, leg.Amount)

	if leg.BuyAsset == "" {
		return nil
	}
	fill, err := dst.buyWith(ctx, symbol.NormalizeAsset(leg.BuyAsset), asset, leg.Amount)
	if err != nil {
		return fmt.Errorf("paper: %s: buy %s: %w", dst.name, leg.BuyAsset, err)
	}
	if v.network != nil && v.network.onBuy != nil {
		v.network.onBuy(fill)
	}
	return nil
}

// buyWith spends up to funds of quote on base, sized so price plus fee fits.
func (v *Venue) buyWith(ctx context.Context, base, quote string, funds float64) (domain.Fill, error) {
	native, rule, err := v.resolver.Resolve(ctx, base+"/"+quote, v.name)
	if err != nil {
		return domain.Fill{}, err
	}
	price, err := v.md.Ticker(ctx, native)
	if err != nil {
		return domain.Fill{}, err
	}
	cost := price * (1 + v.slippage) * (1 + v.fees.SingleTradeCost(v.name, true))
	text, _, ok := symbol.FormatQuantity(funds/cost, rule)
	if !ok {
		return domain.Fill{}, fmt.Errorf("funds %v too small", funds)
	}
	res, err := v.SubmitMarketOrder(ctx, native, domain.OrderSideBuy, text)
	if err != nil {
		return domain.Fill{}, err
	}
	return domain.Fill{
		ID:           res.OrderID,
		Venue:        v.name,
		NativeSymbol: native,
		Instrument:   domain.Instrument{Base: base, Quote: quote},
		Side:         domain.OrderSideBuy,
		Quantity:     res.FilledQuantity,
		Price:        res.FilledPrice,
		Fee:          res.Fee,
		ExecutedAt:   res.SubmittedAt,
	}, nil
}
