// Package fees holds the static, versioned venue fee schedule.
package fees

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// Version identifies the fee table below. Bump it when rates change.
const Version = "2024-06"

// Schedule is one venue's fee schedule. Rates are fractions (0.0026 is
// 0.26%). Withdrawal fees are in units of the withdrawn asset.
type Schedule struct {
	Maker         float64            `json:"maker" toml:"maker"`
	Taker         float64            `json:"taker" toml:"taker"`
	Spread        float64            `json:"spread" toml:"spread"`
	MinOrderValue float64            `json:"min_order_value" toml:"min_order_value"`
	Withdrawal    map[string]float64 `json:"withdrawal" toml:"withdrawal"`
}

// Default is applied to venues missing from the table. It errs high.
var Default = Schedule{
	Maker:         0.004,
	Taker:         0.006,
	Spread:        0.002,
	MinOrderValue: 10,
}

// UnknownWithdrawalValue is charged, in quote currency, for a withdrawal of
// an asset the table does not list.
const UnknownWithdrawalValue = 25.0

var table = map[string]Schedule{
	domain.VenueKraken: {
		Maker: 0.0016, Taker: 0.0026, Spread: 0.0010, MinOrderValue: 5,
		Withdrawal: map[string]float64{
			"BTC": 0.00015, "ETH": 0.0025, "USDT": 2.5, "USDC": 2.5, "USD": 4, "SOL": 0.01, "DOGE": 4,
		},
	},
	domain.VenueBinanceUS: {
		Maker: 0.0040, Taker: 0.0060, Spread: 0.0015, MinOrderValue: 10,
		Withdrawal: map[string]float64{
			"BTC": 0.0002, "ETH": 0.0025, "USDT": 3, "USDC": 3, "USD": 15, "SOL": 0.01, "DOGE": 5,
		},
	},
	domain.VenueCoinbase: {
		Maker: 0.0040, Taker: 0.0060, Spread: 0.0010, MinOrderValue: 1,
		Withdrawal: map[string]float64{
			"BTC": 0.0001, "ETH": 0.002, "USDT": 2, "USDC": 0, "USD": 0, "SOL": 0.01, "DOGE": 3,
		},
	},
	domain.VenueAlpaca: {
		Maker: 0.0015, Taker: 0.0025, Spread: 0.0020, MinOrderValue: 1,
		Withdrawal: map[string]float64{
			"BTC": 0.0002, "ETH": 0.003, "USDT": 5, "USDC": 5, "USD": 0,
		},
	},
}

// Model answers fee questions from the static table plus overrides. It makes
// no network calls.
type Model struct {
	venues map[string]Schedule
}

// New returns a Model over the built-in table. Non-zero fields in overrides
// replace the table value; a venue only present in overrides starts from
// Default.
func New(overrides map[string]Schedule) *Model {
	venues := make(map[string]Schedule, len(table)+len(overrides))
	for v, s := range table {
		venues[v] = s.clone()
	}
	for v, o := range overrides {
		v = strings.ToLower(v)
		base, ok := venues[v]
		if !ok {
			base = Default.clone()
		}
		venues[v] = merge(base, o)
	}
	return &Model{venues: venues}
}

// Version returns the table version.
func (m *Model) Version() string { return Version }

// Venues lists venues with an explicit schedule.
func (m *Model) Venues() []string {
	out := make([]string, 0, len(m.venues))
	for v := range m.venues {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (m *Model) schedule(venue string) Schedule {
	if s, ok := m.venues[strings.ToLower(venue)]; ok {
		return s
	}
	return Default
}

// SingleTradeCost returns the fee rate for one order.
func (m *Model) SingleTradeCost(venue string, isTaker bool) float64 {
	s := m.schedule(venue)
	if isTaker {
		return s.Taker
	}
	return s.Maker
}

// RoundTripCost is the rate lost buying then selling with market orders,
// spread included.
func (m *Model) RoundTripCost(venue string) float64 {
	s := m.schedule(venue)
	return 2*s.Taker + s.Spread
}

// Spread returns the estimated bid/ask spread as a fraction of price.
func (m *Model) Spread(venue string) float64 {
	return m.schedule(venue).Spread
}

// MinOrderValue returns the smallest order value, in quote currency, worth
// submitting on the venue.
func (m *Model) MinOrderValue(venue string) float64 {
	return m.schedule(venue).MinOrderValue
}

// WithdrawalFee returns the flat fee, in asset units, to withdraw asset from
// venue. ok is false when the asset is not listed.
func (m *Model) WithdrawalFee(venue, asset string) (float64, bool) {
	fee, ok := m.schedule(venue).Withdrawal[strings.ToUpper(asset)]
	return fee, ok
}

// TransferFee estimates the cost, in quote currency, of extracting value
// from srcVenue by market sell and delivering it to dstVenue. The proceeds
// are in asset (the quote currency of the sold instrument), so a listed
// withdrawal fee is already in quote units. Cross-venue moves add the
// withdrawal fee; an unlisted asset is charged UnknownWithdrawalValue.
func (m *Model) TransferFee(srcVenue, dstVenue, asset string, value float64) float64 {
	if value <= 0 {
		return 0
	}
	fee := value * m.SingleTradeCost(srcVenue, true)
	if strings.EqualFold(srcVenue, dstVenue) {
		return fee
	}
	if w, ok := m.WithdrawalFee(srcVenue, asset); ok {
		return fee + w
	}
	return fee + UnknownWithdrawalValue
}

func (s Schedule) clone() Schedule {
	out := s
	out.Withdrawal = make(map[string]float64, len(s.Withdrawal))
	for k, v := range s.Withdrawal {
		out.Withdrawal[k] = v
	}
	return out
}

func merge(base, o Schedule) Schedule {
	if o.Maker > 0 {
		base.Maker = o.Maker
	}
	if o.Taker > 0 {
		base.Taker = o.Taker
	}
	if o.Spread > 0 {
		base.Spread = o.Spread
	}
	if o.MinOrderValue > 0 {
		base.MinOrderValue = o.MinOrderValue
	}
	for k, v := range o.Withdrawal {
		if v >= 0 {
			base.Withdrawal[strings.ToUpper(k)] = v
		}
	}
	return base
}
