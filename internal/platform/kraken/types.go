package kraken

import (
	"encoding/json"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

// envelope is Kraken's response wrapper for every public endpoint.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// AssetPair is one entry of /0/public/AssetPairs.
type AssetPair struct {
	Altname      string `json:"altname"`
	WSName       string `json:"wsname"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	PairDecimals int    `json:"pair_decimals"`
	LotDecimals  int    `json:"lot_decimals"`
	OrderMin     string `json:"ordermin"`
	CostMin      string `json:"costmin"`
	Status       string `json:"status"`
}

// ToRule converts the pair into an order rule. The instrument carries
// Kraken's raw asset codes (XXBT, ZUSD); the registry normalizes them.
func (p AssetPair) ToRule() domain.VenueInstrumentRule {
	base, quote := p.Base, p.Quote
	// wsname carries the modern codes when present ("XBT/USD").
	if b, q, ok := strings.Cut(p.WSName, "/"); ok && b != "" && q != "" {
		base, quote = b, q
	}
	return domain.VenueInstrumentRule{
		Venue:          domain.VenueKraken,
		Instrument:     domain.Instrument{Base: base, Quote: quote},
		NativeSymbol:   p.Altname,
		MinQty:         platform.Float(p.OrderMin),
		StepSize:       platform.Pow10Step(p.LotDecimals),
		MinNotional:    platform.Float(p.CostMin),
		PricePrecision: p.PairDecimals,
		QtyPrecision:   p.LotDecimals,
		Tradable:       p.Status == "" || p.Status == "online",
	}
}

// Ticker is one entry of /0/public/Ticker. C is [last price, lot volume].
type Ticker struct {
	C []string `json:"c"`
	A []string `json:"a"`
	B []string `json:"b"`
}
