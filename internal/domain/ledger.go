package domain

import "time"

// LedgerEntry is the cost-basis record for one (venue, instrument) holding.
// CostBasis is the sum of quantity*price paid across buys, net of
// proportional reductions from sells. TotalFees are the entry fees paid for
// the quantity still held.
type LedgerEntry struct {
	Venue       string     `json:"venue"`
	Instrument  Instrument `json:"instrument"`
	Quantity    float64    `json:"quantity"`
	CostBasis   float64    `json:"cost_basis"`
	TotalFees   float64    `json:"total_fees"`
	LastUpdated time.Time  `json:"last_updated"`
}

// AvgEntryPrice returns CostBasis / Quantity, or zero for an empty entry.
func (e LedgerEntry) AvgEntryPrice() float64 {
	if e.Quantity <= 0 {
		return 0
	}
	return e.CostBasis / e.Quantity
}

// Key returns the pair key for the entry.
func (e LedgerEntry) Key() string {
	return PairKey(e.Venue, e.Instrument)
}

// LedgerRecord is the persisted shape of a ledger entry.
type LedgerRecord struct {
	Venue       string    `json:"venue"`
	Instrument  string    `json:"instrument"`
	Quantity    float64   `json:"quantity"`
	CostBasis   float64   `json:"cost_basis"`
	TotalFees   float64   `json:"total_fees"`
	LastUpdated time.Time `json:"last_updated"`
}

// Fill is one executed trade reported by a venue. Fills are replayed through
// the ledger to reconstruct cost basis at startup.
type Fill struct {
	ID           string     `json:"id"`
	Venue        string     `json:"venue"`
	NativeSymbol string     `json:"native_symbol"`
	Instrument   Instrument `json:"instrument"`
	Side         OrderSide  `json:"side"`
	Quantity     float64    `json:"quantity"`
	Price        float64    `json:"price"`
	Fee          float64    `json:"fee"`
	ExecutedAt   time.Time  `json:"executed_at"`
}

// ProfitDetail explains a profitability gate decision.
type ProfitDetail struct {
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price"`
	GrossValue   float64 `json:"gross_value"`
	CostBasis    float64 `json:"cost_basis"`
	EntryFees    float64 `json:"entry_fees"`
	ExitFee      float64 `json:"exit_fee"`
	NetProfit    float64 `json:"net_profit"`
	MinProfit    float64 `json:"min_profit"`
	HasCostBasis bool    `json:"has_cost_basis"`
	Reason       string  `json:"reason,omitempty"`
}
