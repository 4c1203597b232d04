package domain

import "context"

// VenueAdapter is the narrow surface the engine uses to talk to a venue.
// Implementations own authentication, retries and backoff; the engine treats
// every error from this boundary as ErrVenueUnavailable for the cycle.
type VenueAdapter interface {
	Name() string
	GetBalances(ctx context.Context) (map[string]float64, error)
	GetTicker(ctx context.Context, nativeSymbol string) (float64, error)
	SubmitMarketOrder(ctx context.Context, nativeSymbol string, side OrderSide, quantity string) (OrderResult, error)
}

// FillHistory is implemented by adapters that can report past fills, used to
// rebuild the ledger at startup.
type FillHistory interface {
	Fills(ctx context.Context) ([]Fill, error)
}

// CatalogSource fetches a venue's tradable instrument catalog.
type CatalogSource interface {
	FetchCatalog(ctx context.Context) ([]VenueInstrumentRule, error)
}

// TickerSource fetches last-trade prices by native symbol.
type TickerSource interface {
	Ticker(ctx context.Context, nativeSymbol string) (float64, error)
}

// MarketData is a public market-data client for one venue.
type MarketData interface {
	CatalogSource
	TickerSource
	Venue() string
}

// LegExecutor is implemented by adapters that can carry out the deposit/buy
// leg of a cross-venue move. Adapters without it leave the leg planned.
type LegExecutor interface {
	ExecuteLeg(ctx context.Context, leg PlannedLeg) error
}
