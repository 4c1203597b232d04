package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const assetPairsJSON = `{"error":[],"result":{
 "XXBTZUSD":{"altname":"XBTUSD","wsname":"XBT/USD","base":"XXBT","quote":"ZUSD","pair_decimals":1,"lot_decimals":8,"ordermin":"0.0001","costmin":"0.5","status":"online"},
 "XXBTZUSD.d":{"altname":"XBTUSD.d","base":"XXBT","quote":"ZUSD","lot_decimals":8},
 "XETHZEUR":{"altname":"ETHEUR","wsname":"ETH/EUR","base":"XETH","quote":"ZEUR","pair_decimals":2,"lot_decimals":8,"ordermin":"0.002","costmin":"0.45","status":"reduce_only"}
}}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/0/public/AssetPairs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(assetPairsJSON))
	})
	mux.HandleFunc("/0/public/Ticker", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pair") != "XBTUSD" {
			_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"]}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"a":["60001.0","1","1.000"],"b":["60000.0","1","1.000"],"c":["60000.5","0.01"]}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCatalog(t *testing.T) {
	c := NewClient(newServer(t).URL, nil)
	rules, err := c.FetchCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules=%d, expected 2 (dark pool skipped)", len(rules))
	}
	r := rules[1] // sorted by pair key: XETHZEUR, XXBTZUSD
	if r.NativeSymbol != "XBTUSD" || r.Instrument.Base != "XBT" || r.Instrument.Quote != "USD" {
		t.Fatalf("rule=%+v", r)
	}
	if r.MinQty != 0.0001 || r.StepSize != 0.00000001 || r.MinNotional != 0.5 || r.QtyPrecision != 8 || !r.Tradable {
		t.Fatalf("rule=%+v", r)
	}
	if rules[0].Tradable {
		t.Fatal("reduce_only pair should not be tradable")
	}
}

func TestTicker(t *testing.T) {
	c := NewClient(newServer(t).URL, nil)
	p, err := c.Ticker(context.Background(), "XBTUSD")
	if err != nil {
		t.Fatal(err)
	}
	if p != 60000.5 {
		t.Fatalf("price=%v, expected 60000.5", p)
	}
	if _, err := c.Ticker(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected API error")
	}
}

func TestHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := NewClient(srv.URL, nil).FetchCatalog(context.Background()); err == nil {
		t.Fatal("expected error on 503")
	}
}
