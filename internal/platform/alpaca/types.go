package alpaca

import (
	"encoding/json"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

// minNotionalUSD is Alpaca's documented crypto order floor.
const minNotionalUSD = 1.0

// Asset is one entry of the trading API's /v2/assets list. The numeric
// fields are JSON numbers for crypto assets.
type Asset struct {
	ID                string      `json:"id"`
	Class             string      `json:"class"`
	Symbol            string      `json:"symbol"`
	Status            string      `json:"status"`
	Tradable          bool        `json:"tradable"`
	MinOrderSize      json.Number `json:"min_order_size"`
	MinTradeIncrement json.Number `json:"min_trade_increment"`
	PriceIncrement    json.Number `json:"price_increment"`
}

// ToRule converts the asset into an order rule.
func (a Asset) ToRule() domain.VenueInstrumentRule {
	base, quote, _ := strings.Cut(a.Symbol, "/")
	return domain.VenueInstrumentRule{
		Venue:          domain.VenueAlpaca,
		Instrument:     domain.Instrument{Base: base, Quote: quote},
		NativeSymbol:   a.Symbol,
		MinQty:         platform.Float(a.MinOrderSize.String()),
		StepSize:       platform.Float(a.MinTradeIncrement.String()),
		MinNotional:    minNotionalUSD,
		PricePrecision: platform.Decimals(a.PriceIncrement.String()),
		QtyPrecision:   platform.Decimals(a.MinTradeIncrement.String()),
		Tradable:       a.Tradable && a.Status == "active",
	}
}

// LatestTrades is the response of /v1beta3/crypto/us/latest/trades.
type LatestTrades struct {
	Trades map[string]Trade `json:"trades"`
}

// Trade is a single crypto trade print.
type Trade struct {
	Price float64 `json:"p"`
	Size  float64 `json:"s"`
	Time  string  `json:"t"`
}
