package alpaca

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAlpacaClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/assets", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("APCA-API-KEY-ID") != "key" || r.Header.Get("APCA-API-SECRET-KEY") != "secret" {
			http.Error(w, `{"message":"forbidden"}`, http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("asset_class") != "crypto" {
			http.Error(w, "bad class", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[
 {"id":"a","class":"crypto","symbol":"BTC/USD","status":"active","tradable":true,"min_order_size":0.0001,"min_trade_increment":0.000000001,"price_increment":1},
 {"id":"b","class":"crypto","symbol":"BTCUSD","status":"active","tradable":true,"min_order_size":0.0001,"min_trade_increment":0.000000001,"price_increment":1},
 {"id":"c","class":"crypto","symbol":"SUSHI/USD","status":"active","tradable":false,"min_order_size":0.5,"min_trade_increment":0.01,"price_increment":0.0001}
]`))
	})
	mux.HandleFunc("/v1beta3/crypto/us/latest/trades", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbols") != "BTC/USD" {
			_, _ = w.Write([]byte(`{"trades":{}}`))
			return
		}
		_, _ = w.Write([]byte(`{"trades":{"BTC/USD":{"p":60123.5,"s":0.01,"t":"2024-06-01T00:00:00Z"}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL, Credentials{KeyID: "key", SecretKey: "secret"}, nil)

	t.Run("catalog", func(t *testing.T) {
		rules, err := c.FetchCatalog(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(rules) != 2 {
			t.Fatalf("rules=%d, expected 2 (legacy symbol dropped)", len(rules))
		}
		r := rules[0]
		if r.NativeSymbol != "BTC/USD" || r.Instrument.Base != "BTC" || r.Instrument.Quote != "USD" {
			t.Fatalf("rule=%+v", r)
		}
		if r.MinQty != 0.0001 || r.QtyPrecision != 9 || r.PricePrecision != 0 || r.MinNotional != 1 || !r.Tradable {
			t.Fatalf("rule=%+v", r)
		}
		if rules[1].Tradable {
			t.Fatal("non-tradable asset marked tradable")
		}
	})

	t.Run("ticker", func(t *testing.T) {
		p, err := c.Ticker(context.Background(), "BTC/USD")
		if err != nil {
			t.Fatal(err)
		}
		if p != 60123.5 {
			t.Fatalf("price=%v, expected 60123.5", p)
		}
		if _, err := c.Ticker(context.Background(), "ETH/USD"); err == nil {
			t.Fatal("expected missing price error")
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		anon := NewClient(srv.URL, srv.URL, Credentials{}, nil)
		if _, err := anon.FetchCatalog(context.Background()); err == nil {
			t.Fatal("expected credentials error")
		}
	})
}
