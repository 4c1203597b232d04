package symbol

import (
	"errors"
	"testing"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC/USD", "BTC/USD"},
		{"BTCUSD", "BTC/USD"},
		{"XBTUSD", "BTC/USD"},
		{"BTC-USD", "BTC/USD"},
		{"XXBTZUSD", "BTC/USD"},
		{"btc_usd", "BTC/USD"},
		{" XBT/USD ", "BTC/USD"},
		{"ETHUSDT", "ETH/USDT"},
		{"ETHUSDC", "ETH/USDC"},
		{"SOLFDUSD", "SOL/FDUSD"},
		{"XDGUSD", "DOGE/USD"},
		{"XXDGZUSD", "DOGE/USD"},
		{"ETHXBT", "ETH/BTC"},
		{"ETHBTC", "ETH/BTC"},
		{"XETHZEUR", "ETH/EUR"},
		{"USDTUSD", "USDT/USD"},
		{"XRPUSD", "XRP/USD"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("Canonicalize(%q)=%q, expected %q", tt.in, got, tt.want)
			}
			again, err := Canonicalize(got)
			if err != nil {
				t.Fatalf("Canonicalize(%q) error: %v", got, err)
			}
			if again != got {
				t.Fatalf("not idempotent: %q -> %q -> %q", tt.in, got, again)
			}
		})
	}
}

func TestCanonicalizeAllVenueFormsAgree(t *testing.T) {
	groups := [][]string{
		{"BTC/USD", "BTCUSD", "XBTUSD", "BTC-USD", "XXBTZUSD"},
		{"USDT/USD", "USDTUSD", "USDTZUSD", "USDT-USD"},
		{"XTZ/USD", "XTZUSD", "XTZ-USD"},
		{"ETH/EUR", "ETHEUR", "XETHZEUR"},
	}
	for _, forms := range groups {
		t.Run(forms[0], func(t *testing.T) {
			first, err := Canonicalize(forms[0])
			if err != nil {
				t.Fatal(err)
			}
			for _, f := range forms[1:] {
				got, err := Canonicalize(f)
				if err != nil {
					t.Fatalf("Canonicalize(%q) error: %v", f, err)
				}
				if got != first {
					t.Fatalf("Canonicalize(%q)=%q, expected %q", f, got, first)
				}
			}
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "BTC", "BTC/", "/USD", "A/B/C", "FOOBAR"} {
		t.Run(in, func(t *testing.T) {
			_, err := Canonicalize(in)
			if !errors.Is(err, domain.ErrUnknownInstrument) {
				t.Fatalf("Canonicalize(%q) err=%v, expected ErrUnknownInstrument", in, err)
			}
		})
	}
}

func TestNormalizeAsset(t *testing.T) {
	tests := map[string]string{
		"XBT":  "BTC",
		"XXBT": "BTC",
		"ZUSD": "USD",
		"xdg":  "DOGE",
		"XRP":  "XRP",
		"ETH":  "ETH",
	}
	for in, want := range tests {
		if got := NormalizeAsset(in); got != want {
			t.Fatalf("NormalizeAsset(%q)=%q, expected %q", in, got, want)
		}
	}
}
