// Package planner turns position snapshots into transfer plans. Everything
// here is pure computation; it performs no I/O and holds no locks.
package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// Config holds the planning knobs.
type Config struct {
	SafetyBufferRatio float64
	MaxExtractionRate float64
	MinTransferValue  float64
	FeeOverheadMargin float64
	FeasibilityRatio  float64
	SameVenueWeight   float64
	ExtractableWeight float64
}

// DefaultConfig returns the stock planning parameters.
func DefaultConfig() Config {
	return Config{
		SafetyBufferRatio: 0.01,
		MaxExtractionRate: 0.5,
		MinTransferValue:  10,
		FeeOverheadMargin: 0.01,
		FeasibilityRatio:  0.9,
		SameVenueWeight:   100,
		ExtractableWeight: 1,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	switch {
	case c.SafetyBufferRatio < 0 || c.SafetyBufferRatio >= 1:
		return fmt.Errorf("planner: safety buffer ratio %v out of [0,1)", c.SafetyBufferRatio)
	case c.MaxExtractionRate <= 0 || c.MaxExtractionRate > 1:
		return fmt.Errorf("planner: max extraction rate %v out of (0,1]", c.MaxExtractionRate)
	case c.MinTransferValue < 0:
		return fmt.Errorf("planner: negative min transfer value")
	case c.FeeOverheadMargin < 0:
		return fmt.Errorf("planner: negative fee overhead margin")
	case c.FeasibilityRatio <= 0 || c.FeasibilityRatio > 1:
		return fmt.Errorf("planner: feasibility ratio %v out of (0,1]", c.FeasibilityRatio)
	}
	return nil
}

// FeeEstimator prices an extraction. fees.Model satisfies it.
type FeeEstimator interface {
	TransferFee(srcVenue, dstVenue, asset string, value float64) float64
	MinOrderValue(venue string) float64
}

// Planner builds transfer plans.
type Planner struct {
	cfg  Config
	fees FeeEstimator
}

// New creates a Planner.
func New(cfg Config, fees FeeEstimator) *Planner {
	return &Planner{cfg: cfg, fees: fees}
}

// Snapshots values entries with this planner's safety buffer.
func (p *Planner) Snapshots(entries []domain.LedgerEntry, prices map[string]float64) []domain.PositionSnapshot {
	return Snapshots(entries, prices, p.cfg.SafetyBufferRatio)
}

// Candidates filters snapshots to usable sources for dst and orders them by
// descending priority, then by (venue, instrument).
func (p *Planner) Candidates(dst domain.Destination, snaps []domain.PositionSnapshot) []domain.PlanEntry {
	out := make([]domain.PlanEntry, 0, len(snaps))
	for _, s := range snaps {
		if s.Extractable <= p.cfg.MinTransferValue {
			continue
		}
		// Selling the destination asset to buy it back is pointless.
		if s.Entry.Instrument.Base == dst.Asset {
			continue
		}
		same := s.Entry.Venue == dst.Venue
		bonus := 0.0
		if same {
			bonus = 1
		}
		out = append(out, domain.PlanEntry{
			Venue:       s.Entry.Venue,
			Instrument:  s.Entry.Instrument,
			Price:       s.Price,
			Extractable: s.Extractable,
			CrossVenue:  !same,
			Priority:    p.cfg.SameVenueWeight*bonus + p.cfg.ExtractableWeight*s.Extractable,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].Venue != out[j].Venue {
			return out[i].Venue < out[j].Venue
		}
		return out[i].Instrument.Key() < out[j].Instrument.Key()
	})
	return out
}

// Plan greedily draws from the highest-priority sources until the net value
// delivered covers need. The returned plan carries its entries even when it
// is infeasible; in that case the error wraps domain.ErrPlanInfeasible and
// the plan must not be executed. ID and CreatedAt are left to the caller so
// identical inputs yield identical plans.
func (p *Planner) Plan(dst domain.Destination, need float64, snaps []domain.PositionSnapshot) (domain.TransferPlan, error) {
	plan := domain.TransferPlan{Destination: dst, Need: need}
	if need <= 0 {
		return plan, errors.New("planner: need must be positive")
	}

	var surplus float64
	for _, s := range snaps {
		surplus += s.Extractable
	}
	if surplus < need {
		return plan, fmt.Errorf("planner: surplus %.2f below need %.2f: %w", surplus, need, domain.ErrPlanInfeasible)
	}

	for _, c := range p.Candidates(dst, snaps) {
		if plan.Delivered >= need {
			break
		}
		remaining := need - plan.Delivered
		extract := min(c.Extractable*p.cfg.MaxExtractionRate, remaining*(1+p.cfg.FeeOverheadMargin))
		if extract < p.fees.MinOrderValue(c.Venue) {
			continue
		}
		fee := p.fees.TransferFee(c.Venue, dst.Venue, c.Instrument.Quote, extract)
		net := extract - fee
		if net <= 0 {
			continue
		}
		c.ExtractValue = extract
		c.Quantity = extract / c.Price
		c.Fee = fee
		c.Net = net
		plan.Entries = append(plan.Entries, c)
		plan.Requested += extract
		plan.Fees += fee
		plan.Delivered += net
	}

	plan.Feasible = plan.Delivered >= need*p.cfg.FeasibilityRatio
	if !plan.Feasible {
		return plan, fmt.Errorf("planner: delivered %.2f of need %.2f: %w", plan.Delivered, need, domain.ErrPlanInfeasible)
	}
	return plan, nil
}
