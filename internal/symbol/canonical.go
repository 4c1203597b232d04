package symbol

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// quoteAssets is checked in order when a native symbol carries no separator.
// Longer codes come first so USDT wins over USD.
var quoteAssets = []string{
	"FDUSD",
	"USDT", "USDC", "BUSD",
	"USD", "EUR", "GBP", "BTC", "XBT", "ETH",
}

// krakenAssets maps Kraken's legacy X/Z-prefixed asset codes.
var krakenAssets = map[string]string{
	"XXBT": "BTC",
	"XETH": "ETH",
	"XXDG": "DOGE",
	"XLTC": "LTC",
	"XXRP": "XRP",
	"XXLM": "XLM",
	"XETC": "ETC",
	"XZEC": "ZEC",
	"XXMR": "XMR",
	"XMLN": "MLN",
	"XREP": "REP",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
	"ZCAD": "CAD",
	"ZJPY": "JPY",
}

// krakenFiat are the Z-prefixed quote codes in krakenAssets.
var krakenFiat = []string{"ZUSD", "ZEUR", "ZGBP", "ZCAD", "ZJPY"}

var aliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// NormalizeAsset maps a venue asset code to its canonical code.
func NormalizeAsset(asset string) string {
	a := strings.ToUpper(strings.TrimSpace(asset))
	if c, ok := krakenAssets[a]; ok {
		return c
	}
	if c, ok := aliases[a]; ok {
		return c
	}
	return a
}

// Canonicalize converts any supported symbol form (BTC/USD, BTC-USD, BTCUSD,
// XBTUSD, XXBTZUSD) into the canonical BASE/QUOTE key. It is idempotent.
func Canonicalize(s string) (string, error) {
	inst, err := ParseSymbol(s)
	if err != nil {
		return "", err
	}
	return inst.Key(), nil
}

// ParseSymbol is Canonicalize returning the split instrument.
func ParseSymbol(s string) (domain.Instrument, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return domain.Instrument{}, fmt.Errorf("symbol: parse %q: %w", s, domain.ErrUnknownInstrument)
	}

	if i := strings.IndexAny(raw, "/-_"); i >= 0 {
		base, quote := raw[:i], raw[i+1:]
		if base == "" || quote == "" || strings.ContainsAny(quote, "/-_") {
			return domain.Instrument{}, fmt.Errorf("symbol: parse %q: %w", s, domain.ErrUnknownInstrument)
		}
		return domain.Instrument{Base: NormalizeAsset(base), Quote: NormalizeAsset(quote)}, nil
	}

	// Kraken legacy pair names are two prefixed 4-letter codes.
	if len(raw) == 8 {
		if b, ok := krakenAssets[raw[:4]]; ok {
			if q, ok := krakenAssets[raw[4:]]; ok {
				return domain.Instrument{Base: b, Quote: q}, nil
			}
		}
	}

	// Newer Kraken pair keys pair a plain base with a Z-prefixed fiat quote
	// (USDTZUSD). A short remainder is a base ending in Z, as in XTZUSD.
	for _, q := range krakenFiat {
		if base, ok := strings.CutSuffix(raw, q); ok && len(base) >= 4 {
			return domain.Instrument{Base: NormalizeAsset(base), Quote: krakenAssets[q]}, nil
		}
	}

	for _, q := range quoteAssets {
		if len(raw) > len(q) && strings.HasSuffix(raw, q) {
			base := raw[:len(raw)-len(q)]
			return domain.Instrument{Base: NormalizeAsset(base), Quote: NormalizeAsset(q)}, nil
		}
	}
	return domain.Instrument{}, fmt.Errorf("symbol: parse %q: no known quote asset: %w", s, domain.ErrUnknownInstrument)
}
