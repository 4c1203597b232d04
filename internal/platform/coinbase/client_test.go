package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCoinbaseClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			http.Error(w, "missing UA", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[
 {"id":"BTC-USD","base_currency":"BTC","quote_currency":"USD","base_increment":"0.00000001","quote_increment":"0.01","min_market_funds":"1","status":"online","trading_disabled":false},
 {"id":"OLD-USD","base_currency":"OLD","quote_currency":"USD","base_increment":"0.1","quote_increment":"0.0001","min_market_funds":"1","status":"delisted","trading_disabled":true}
]`))
	})
	mux.HandleFunc("/products/BTC-USD/ticker", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"trade_id":1,"price":"60500.12","bid":"60500","ask":"60501","volume":"10","time":"2024-06-01T00:00:00Z"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewClient(srv.URL, nil)

	t.Run("catalog", func(t *testing.T) {
		rules, err := c.FetchCatalog(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(rules) != 2 {
			t.Fatalf("rules=%d, expected 2", len(rules))
		}
		r := rules[0]
		if r.NativeSymbol != "BTC-USD" || r.StepSize != 0.00000001 || r.QtyPrecision != 8 || r.PricePrecision != 2 {
			t.Fatalf("rule=%+v", r)
		}
		if r.MinNotional != 1 || !r.Tradable {
			t.Fatalf("rule=%+v", r)
		}
		if rules[1].Tradable {
			t.Fatal("delisted product should not be tradable")
		}
	})

	t.Run("ticker", func(t *testing.T) {
		p, err := c.Ticker(context.Background(), "BTC-USD")
		if err != nil {
			t.Fatal(err)
		}
		if p != 60500.12 {
			t.Fatalf("price=%v, expected 60500.12", p)
		}
		if _, err := c.Ticker(context.Background(), "NOPE-USD"); err == nil {
			t.Fatal("expected error for unknown product")
		}
	})
}
