package domain

import (
	"strings"
	"time"
)

// Venue identifiers. Each venue publishes symbols in its own native form:
//
//	kraken     XBTUSD
//	binanceus  BTCUSD
//	coinbase   BTC-USD
//	alpaca     BTC/USD
const (
	VenueKraken    = "kraken"
	VenueBinanceUS = "binanceus"
	VenueCoinbase  = "coinbase"
	VenueAlpaca    = "alpaca"
)

// Instrument identifies a tradable pair independent of any venue.
type Instrument struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Key returns the canonical BASE/QUOTE form.
func (i Instrument) Key() string {
	return i.Base + "/" + i.Quote
}

// IsZero reports whether the instrument is unset.
func (i Instrument) IsZero() bool {
	return i.Base == "" && i.Quote == ""
}

// ParseInstrument splits a canonical BASE/QUOTE key. It returns false when
// the key is not in canonical form.
func ParseInstrument(key string) (Instrument, bool) {
	base, quote, ok := strings.Cut(key, "/")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "/") {
		return Instrument{}, false
	}
	return Instrument{Base: base, Quote: quote}, true
}

// VenueInstrumentRule carries the order constraints a venue enforces for one
// instrument. Any quantity submitted must be a multiple of StepSize (rounded
// down) and clear both MinQty and MinNotional.
type VenueInstrumentRule struct {
	Venue          string     `json:"venue"`
	Instrument     Instrument `json:"instrument"`
	NativeSymbol   string     `json:"native_symbol"`
	MinQty         float64    `json:"min_qty"`
	StepSize       float64    `json:"step_size"`
	MinNotional    float64    `json:"min_notional"`
	PricePrecision int        `json:"price_precision"`
	QtyPrecision   int        `json:"qty_precision"`
	Tradable       bool       `json:"tradable"`
}

// Catalog is one venue's instrument list as fetched at a point in time.
type Catalog struct {
	Venue     string                `json:"venue"`
	Rules     []VenueInstrumentRule `json:"rules"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// PairKey identifies a (venue, instrument) pair. It is the unit of mutual
// exclusion for ledger mutation.
func PairKey(venue string, inst Instrument) string {
	return venue + ":" + inst.Key()
}
