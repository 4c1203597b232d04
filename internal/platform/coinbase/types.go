package coinbase

import (
	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

// Product is one entry of the Exchange /products list.
type Product struct {
	ID              string `json:"id"`
	BaseCurrency    string `json:"base_currency"`
	QuoteCurrency   string `json:"quote_currency"`
	BaseIncrement   string `json:"base_increment"`
	QuoteIncrement  string `json:"quote_increment"`
	MinMarketFunds  string `json:"min_market_funds"`
	Status          string `json:"status"`
	TradingDisabled bool   `json:"trading_disabled"`
	CancelOnly      bool   `json:"cancel_only"`
	PostOnly        bool   `json:"post_only"`
}

// ToRule converts the product into an order rule. Coinbase has no minimum
// base size, so MinQty is one increment.
func (p Product) ToRule() domain.VenueInstrumentRule {
	step := platform.Float(p.BaseIncrement)
	return domain.VenueInstrumentRule{
		Venue:          domain.VenueCoinbase,
		Instrument:     domain.Instrument{Base: p.BaseCurrency, Quote: p.QuoteCurrency},
		NativeSymbol:   p.ID,
		MinQty:         step,
		StepSize:       step,
		MinNotional:    platform.Float(p.MinMarketFunds),
		PricePrecision: platform.Decimals(p.QuoteIncrement),
		QtyPrecision:   platform.Decimals(p.BaseIncrement),
		Tradable:       p.Status == "online" && !p.TradingDisabled && !p.CancelOnly && !p.PostOnly,
	}
}

// ProductTicker is the response of /products/{id}/ticker.
type ProductTicker struct {
	TradeID int64  `json:"trade_id"`
	Price   string `json:"price"`
	Bid     string `json:"bid"`
	Ask     string `json:"ask"`
	Volume  string `json:"volume"`
	Time    string `json:"time"`
}
