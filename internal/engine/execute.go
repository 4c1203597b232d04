package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/fees"
	"github.com/alanyoungcy/reallocbot/internal/symbol"
)

// execute runs every plan entry. Entries on different pairs run
// concurrently; entries on the same pair run in plan order under the pair
// lock. Results keep plan order.
func (e *Engine) execute(ctx context.Context, plan domain.TransferPlan, rules map[string]domain.VenueInstrumentRule, cycleID string) []domain.ExecutedTransfer {
	// Orders already decided on must finish and reconcile even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	results := make([]domain.ExecutedTransfer, len(plan.Entries))
	groups := make(map[string][]int)
	var order []string
	for i, en := range plan.Entries {
		k := en.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	var g errgroup.Group
	for _, key := range order {
		idxs := groups[key]
		g.Go(func() error {
			unlock, err := acquire(ctx, e.locks, key, e.cfg.LockTTL, e.cfg.LockWait)
			if err != nil {
				for _, i := range idxs {
					results[i] = skipped(plan.Entries[i], fmt.Sprintf("pair lock: %v", err))
				}
				return nil
			}
			defer unlock()
			for _, i := range idxs {
				results[i] = e.executeEntry(ctx, plan, plan.Entries[i], rules[key], cycleID)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func skipped(en domain.PlanEntry, reason string) domain.ExecutedTransfer {
	return domain.ExecutedTransfer{
		Venue:      en.Venue,
		Instrument: en.Instrument,
		Status:     domain.ExecSkipped,
		Reason:     reason,
	}
}

func (e *Engine) executeEntry(ctx context.Context, plan domain.TransferPlan, en domain.PlanEntry, rule domain.VenueInstrumentRule, cycleID string) domain.ExecutedTransfer {
	log := e.logger.With(
		slog.String("cycle_id", cycleID),
		slog.String("pair", en.Key()),
	)
	out := skipped(en, "")
	out.NativeSymbol = rule.NativeSymbol

	adapter, ok := e.venues[en.Venue]
	if !ok || rule.NativeSymbol == "" {
		out.Reason = "venue or instrument not resolved this cycle"
		return out
	}

	text, qty, ok := symbol.FormatQuantity(en.ExtractValue/en.Price, rule)
	out.Quantity = text
	if !ok {
		out.Reason = "quantity rounds to zero"
		return out
	}
	if err := symbol.CheckOrder(qty, en.Price, rule); err != nil {
		out.Reason = err.Error()
		return out
	}
	qtyF := qty.InexactFloat64()

	exitRate := e.fees.SingleTradeCost(en.Venue, true)
	allowed, detail := e.ledger.CanSellProfitably(en.Venue, en.Instrument, qtyF, en.Price, exitRate)
	if !allowed {
		out.Reason = "profit gate: " + detail.Reason
		log.Info("engine: sell blocked by profit gate",
			slog.String("qty", text),
			slog.Float64("net", detail.NetProfit),
			slog.String("reason", detail.Reason),
		)
		return out
	}

	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()
	res, err := adapter.SubmitMarketOrder(octx, rule.NativeSymbol, domain.OrderSideSell, text)
	out.OrderID = res.OrderID

	// Any reported fill is reconciled, even alongside an error.
	if res.FilledQuantity > 0 {
		if rerr := e.ledger.RecordSell(en.Venue, en.Instrument, res.FilledQuantity); rerr != nil {
			log.Error("engine: ledger reconcile failed", slog.String("error", rerr.Error()))
		}
		out.FilledQuantity = res.FilledQuantity
		out.FilledPrice = res.FilledPrice
		out.Fee = res.Fee
		out.Proceeds = res.FilledQuantity*res.FilledPrice - res.Fee
		e.cooldown.mark(en.Key())
	}

	switch {
	case err != nil && errors.Is(err, domain.ErrOrderRejected), err == nil && res.Status == domain.OrderStatusRejected:
		out.Status = domain.ExecRejected
		out.Reason = rejectReason(err, res)
		// The registry should have caught this before submission.
		log.Error("engine: order rejected by venue",
			slog.String("native", rule.NativeSymbol),
			slog.String("qty", text),
			slog.String("reason", out.Reason),
		)
		if rerr := e.registry.Refresh(ctx, en.Venue); rerr != nil {
			log.Warn("engine: catalog refresh after rejection failed", slog.String("error", rerr.Error()))
		}
		if e.notifier != nil {
			msg := fmt.Sprintf("%s %s qty %s: %s", en.Venue, rule.NativeSymbol, text, out.Reason)
			if nerr := e.notifier.Notify(ctx, EventOrderRejected, "Order rejected", msg); nerr != nil {
				log.Debug("engine: notify failed", slog.String("error", nerr.Error()))
			}
		}
	case err != nil:
		out.Status = domain.ExecFailed
		out.Reason = fmt.Errorf("%w: %w", domain.ErrVenueUnavailable, err).Error()
		log.Warn("engine: order submission failed", slog.String("error", err.Error()))
	case res.FilledQuantity <= 0:
		out.Status = domain.ExecFailed
		out.Reason = "no fill: " + res.Message
	default:
		out.Status = domain.ExecFilled
		log.Info("engine: extraction filled",
			slog.String("order_id", res.OrderID),
			slog.Float64("qty", res.FilledQuantity),
			slog.Float64("price", res.FilledPrice),
			slog.Float64("proceeds", out.Proceeds),
		)
		out.DepositLeg = e.depositLeg(ctx, adapter, plan.Destination, en, out.Proceeds)
	}
	if out.FilledQuantity > 0 && out.Status != domain.ExecFilled {
		// Partially reconciled; keep the numbers but say what went wrong.
		out.Reason = fmt.Sprintf("%s (filled %v)", out.Reason, out.FilledQuantity)
	}

	if e.metrics != nil {
		e.metrics.TransferExecuted(en.Venue, out.Status, out.Proceeds, out.Fee)
	}
	return out
}

func rejectReason(err error, res domain.OrderResult) string {
	if err != nil {
		return err.Error()
	}
	if res.Message != "" {
		return res.Message
	}
	return domain.ErrOrderRejected.Error()
}

// depositLeg plans the move of proceeds to the destination and hands it to
// the adapter when it can carry it out. Same-venue proceeds already in the
// destination asset need no leg.
func (e *Engine) depositLeg(ctx context.Context, a domain.VenueAdapter, dst domain.Destination, en domain.PlanEntry, proceeds float64) *domain.PlannedLeg {
	if !en.CrossVenue && dst.Asset == en.Instrument.Quote {
		return nil
	}
	leg := &domain.PlannedLeg{
		FromVenue: en.Venue,
		ToVenue:   dst.Venue,
		Asset:     en.Instrument.Quote,
		Amount:    proceeds,
	}
	if dst.Asset != en.Instrument.Quote {
		leg.BuyAsset = dst.Asset
	}
	if en.CrossVenue {
		w, ok := e.fees.WithdrawalFee(en.Venue, en.Instrument.Quote)
		if !ok {
			w = fees.UnknownWithdrawalValue
		}
		leg.Fee = w
		leg.Amount = proceeds - w
	}
	if leg.Amount <= 0 {
		leg.Error = "proceeds do not cover withdrawal fee"
		return leg
	}

	lx, ok := a.(domain.LegExecutor)
	if !ok {
		return leg
	}
	lctx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()
	if err := lx.ExecuteLeg(lctx, *leg); err != nil {
		leg.Error = err.Error()
		e.logger.Warn("engine: deposit leg failed",
			slog.String("from", leg.FromVenue),
			slog.String("to", leg.ToVenue),
			slog.String("error", err.Error()),
		)
		return leg
	}
	leg.Executed = true
	return leg
}
