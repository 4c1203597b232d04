package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

type scanResult struct {
	entries     []domain.LedgerEntry
	prices      map[string]float64
	rules       map[string]domain.VenueInstrumentRule
	unavailable []string
	notes       []string
}

type venueScan struct {
	entries []domain.LedgerEntry
	prices  map[string]float64
	rules   map[string]domain.VenueInstrumentRule
	notes   []string
}

// scan prices every ledger entry, one worker per venue. A venue that errors
// or outruns its timeout contributes nothing and is listed as unavailable.
func (e *Engine) scan(ctx context.Context, entries []domain.LedgerEntry) scanResult {
	byVenue := make(map[string][]domain.LedgerEntry)
	for _, en := range entries {
		byVenue[en.Venue] = append(byVenue[en.Venue], en)
	}

	res := scanResult{
		prices: make(map[string]float64),
		rules:  make(map[string]domain.VenueInstrumentRule),
	}
	var mu sync.Mutex
	var g errgroup.Group

	for venue, list := range byVenue {
		adapter, ok := e.venues[venue]
		if !ok {
			res.unavailable = append(res.unavailable, venue)
			res.notes = append(res.notes, fmt.Sprintf("%s: no adapter configured", venue))
			continue
		}
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(ctx, e.cfg.VenueTimeout)
			defer cancel()

			vs, err := e.scanVenue(vctx, adapter, list)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("engine: venue unavailable",
					slog.String("venue", venue),
					slog.String("error", err.Error()),
				)
				res.unavailable = append(res.unavailable, venue)
				res.notes = append(res.notes, err.Error())
				if e.metrics != nil {
					e.metrics.VenueUnavailable(venue)
				}
				return nil
			}
			res.entries = append(res.entries, vs.entries...)
			for k, p := range vs.prices {
				res.prices[k] = p
			}
			for k, r := range vs.rules {
				res.rules[k] = r
			}
			res.notes = append(res.notes, vs.notes...)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(res.unavailable)
	sort.Strings(res.notes)
	if len(res.unavailable) > 0 && e.notifier != nil {
		msg := fmt.Sprintf("venues excluded this cycle: %v", res.unavailable)
		if err := e.notifier.Notify(ctx, EventVenueDown, "Venue unavailable", msg); err != nil {
			e.logger.Debug("engine: notify failed", slog.String("error", err.Error()))
		}
	}
	return res
}

func (e *Engine) scanVenue(ctx context.Context, a domain.VenueAdapter, list []domain.LedgerEntry) (venueScan, error) {
	venue := a.Name()
	out := venueScan{
		prices: make(map[string]float64, len(list)),
		rules:  make(map[string]domain.VenueInstrumentRule, len(list)),
	}

	balances, err := a.GetBalances(ctx)
	if err != nil {
		return out, fmt.Errorf("%s: balances: %w: %w", venue, domain.ErrVenueUnavailable, err)
	}

	// Entries sharing a base asset draw down one balance, in instrument order.
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Instrument.Key() < list[j].Instrument.Key()
	})
	remaining := make(map[string]float64, len(balances))
	for asset, qty := range balances {
		remaining[asset] = qty
	}

	for _, en := range list {
		key := en.Key()
		native, rule, err := e.registry.Resolve(ctx, en.Instrument.Key(), venue)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownInstrument) {
				out.notes = append(out.notes, fmt.Sprintf("%s: %v", key, err))
				continue
			}
			return out, fmt.Errorf("%s: resolve %s: %w", venue, en.Instrument.Key(), err)
		}

		price, err := a.GetTicker(ctx, native)
		if err != nil {
			return out, fmt.Errorf("%s: ticker %s: %w: %w", venue, native, domain.ErrVenueUnavailable, err)
		}
		if price <= 0 {
			out.notes = append(out.notes, fmt.Sprintf("%s: non-positive price %v", key, price))
			continue
		}

		held := remaining[en.Instrument.Base]
		if held <= 0 {
			out.notes = append(out.notes, fmt.Sprintf("%s: no balance on venue", key))
			continue
		}
		if held < en.Quantity {
			// Value only what the venue still holds, at the same average cost.
			share := held / en.Quantity
			en.Quantity = held
			en.CostBasis *= share
			en.TotalFees *= share
		}
		remaining[en.Instrument.Base] = held - en.Quantity

		out.entries = append(out.entries, en)
		out.prices[key] = price
		out.rules[key] = rule

		if e.prices != nil {
			if err := e.prices.SetPrice(ctx, key, price, e.now()); err != nil {
				e.logger.Debug("engine: price cache write failed", slog.String("pair", key), slog.String("error", err.Error()))
			}
		}
	}
	return out, nil
}
