package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownInstrument means a symbol could not be resolved on a venue.
	// Callers skip that venue for the instrument and never guess a symbol.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrInsufficientCostBasisData means no ledger entry exists; the
	// profitability gate treats this as "could be a loss".
	ErrInsufficientCostBasisData = errors.New("insufficient cost basis data")
	// ErrVenueUnavailable means an adapter call failed or timed out. The venue
	// is excluded from the cycle; it is never read as a zero balance.
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrPlanInfeasible means total surplus cannot cover the need.
	ErrPlanInfeasible = errors.New("plan infeasible")
	// ErrOrderRejected means the venue refused an order on precision or
	// minimum-size grounds, which should have been caught before submission.
	ErrOrderRejected = errors.New("order rejected")
)
