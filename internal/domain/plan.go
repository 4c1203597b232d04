package domain

import "time"

// PositionSnapshot is a derived view of a ledger entry at a live price. It is
// computed per cycle and never stored.
type PositionSnapshot struct {
	Entry        LedgerEntry `json:"entry"`
	Price        float64     `json:"price"`
	CurrentValue float64     `json:"current_value"`
	EntryValue   float64     `json:"entry_value"`
	Power        float64     `json:"power"`
	PowerPercent float64     `json:"power_percent"`
	Extractable  float64     `json:"extractable"`
}

// Key returns the pair key of the underlying entry.
func (s PositionSnapshot) Key() string {
	return s.Entry.Key()
}

// Destination is where a plan delivers value: a venue and the asset that
// should receive it (a target holding or a reserve currency).
type Destination struct {
	Venue string `json:"venue"`
	Asset string `json:"asset"`
}

// CycleState is the planning cycle lifecycle.
type CycleState string

const (
	CycleScanning   CycleState = "scanning"
	CyclePlanning   CycleState = "planning"
	CycleExecuting  CycleState = "executing"
	CycleSettled    CycleState = "settled"
	CycleInfeasible CycleState = "infeasible"
	CycleAborted    CycleState = "aborted"
)

// PlanEntry is one extraction in a transfer plan.
type PlanEntry struct {
	Venue        string     `json:"venue"`
	Instrument   Instrument `json:"instrument"`
	Price        float64    `json:"price"`
	Extractable  float64    `json:"extractable"`
	ExtractValue float64    `json:"extract_value"`
	Quantity     float64    `json:"quantity"`
	Fee          float64    `json:"fee"`
	Net          float64    `json:"net"`
	CrossVenue   bool       `json:"cross_venue"`
	Priority     float64    `json:"priority"`
}

// Key returns the pair key of the source.
func (e PlanEntry) Key() string {
	return PairKey(e.Venue, e.Instrument)
}

// TransferPlan is the ordered extraction schedule for one destination need.
type TransferPlan struct {
	ID          string      `json:"id"`
	Destination Destination `json:"destination"`
	Need        float64     `json:"need"`
	Entries     []PlanEntry `json:"entries"`
	Requested   float64     `json:"requested"`
	Delivered   float64     `json:"delivered"`
	Fees        float64     `json:"fees"`
	Feasible    bool        `json:"feasible"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ExecStatus is the outcome of executing one plan entry.
type ExecStatus string

const (
	ExecFilled   ExecStatus = "filled"
	ExecSkipped  ExecStatus = "skipped"
	ExecRejected ExecStatus = "rejected"
	ExecFailed   ExecStatus = "failed"
)

// ExecutedTransfer records what happened to one plan entry.
type ExecutedTransfer struct {
	Venue          string      `json:"venue"`
	Instrument     Instrument  `json:"instrument"`
	NativeSymbol   string      `json:"native_symbol"`
	Quantity       string      `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	FilledPrice    float64     `json:"filled_price"`
	Proceeds       float64     `json:"proceeds"`
	Fee            float64     `json:"fee"`
	OrderID        string      `json:"order_id,omitempty"`
	Status         ExecStatus  `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	DepositLeg     *PlannedLeg `json:"deposit_leg,omitempty"`
}

// PlannedLeg is the deposit/buy leg of a cross-venue move. It is planned by
// the engine and carried out by the venue adapter.
type PlannedLeg struct {
	FromVenue string  `json:"from_venue"`
	ToVenue   string  `json:"to_venue"`
	Asset     string  `json:"asset"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	BuyAsset  string  `json:"buy_asset,omitempty"`
	Executed  bool    `json:"executed"`
	Error     string  `json:"error,omitempty"`
}

// TransferRecord is one executed plan kept in the transfer history.
type TransferRecord struct {
	CycleID    string             `json:"cycle_id"`
	Plan       TransferPlan       `json:"plan"`
	Executed   []ExecutedTransfer `json:"executed"`
	Moved      float64            `json:"moved"`
	FeesPaid   float64            `json:"fees_paid"`
	ExecutedAt time.Time          `json:"executed_at"`
}

// CycleReport summarises one planning cycle. A report is produced for every
// cycle whether or not anything executed.
type CycleReport struct {
	CycleID           string             `json:"cycle_id"`
	State             CycleState         `json:"state"`
	DryRun            bool               `json:"dry_run,omitempty"`
	StartedAt         time.Time          `json:"started_at"`
	FinishedAt        time.Time          `json:"finished_at"`
	SnapshotsScanned  int                `json:"snapshots_scanned"`
	Opportunities     int                `json:"opportunities"`
	UnavailableVenues []string           `json:"unavailable_venues,omitempty"`
	Plan              *TransferPlan      `json:"plan,omitempty"`
	Executed          []ExecutedTransfer `json:"executed,omitempty"`
	Moved             float64            `json:"moved"`
	FeesPaid          float64            `json:"fees_paid"`
	Errors            []string           `json:"errors,omitempty"`
}
