package binanceus

import (
	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

// ExchangeInfo is the response of /api/v3/exchangeInfo.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one trading pair.
type SymbolInfo struct {
	Symbol              string   `json:"symbol"`
	Status              string   `json:"status"`
	BaseAsset           string   `json:"baseAsset"`
	QuoteAsset          string   `json:"quoteAsset"`
	BaseAssetPrecision  int      `json:"baseAssetPrecision"`
	QuoteAssetPrecision int      `json:"quoteAssetPrecision"`
	Filters             []Filter `json:"filters"`
}

// Filter is one entry of a symbol's filter list. Only the fields the rule
// conversion reads are declared.
type Filter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

// ToRule converts the symbol into an order rule using its LOT_SIZE,
// PRICE_FILTER and NOTIONAL filters.
func (s SymbolInfo) ToRule() domain.VenueInstrumentRule {
	r := domain.VenueInstrumentRule{
		Venue:        domain.VenueBinanceUS,
		Instrument:   domain.Instrument{Base: s.BaseAsset, Quote: s.QuoteAsset},
		NativeSymbol: s.Symbol,
		Tradable:     s.Status == "TRADING",
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			r.MinQty = platform.Float(f.MinQty)
			r.StepSize = platform.Float(f.StepSize)
			r.QtyPrecision = platform.Decimals(f.StepSize)
		case "PRICE_FILTER":
			r.PricePrecision = platform.Decimals(f.TickSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			if v := platform.Float(f.MinNotional); v > r.MinNotional {
				r.MinNotional = v
			}
		}
	}
	return r
}

// TickerPrice is the response of /api/v3/ticker/price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}
