// Package alpaca is a crypto market-data client for Alpaca. The asset list
// needs API keys; latest trades come from the public data API.
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

const (
	DefaultTradingURL = "https://paper-api.alpaca.markets"
	DefaultDataURL    = "https://data.alpaca.markets"
)

// Credentials are the APCA key pair.
type Credentials struct {
	KeyID     string
	SecretKey string
}

// Client reads Alpaca's crypto asset list and latest trades.
type Client struct {
	tradingURL string
	dataURL    string
	creds      Credentials
	httpClient *http.Client
}

// NewClient creates an Alpaca client. Empty URLs use the defaults.
func NewClient(tradingURL, dataURL string, creds Credentials, httpClient *http.Client) *Client {
	if tradingURL == "" {
		tradingURL = DefaultTradingURL
	}
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	if httpClient == nil {
		httpClient = platform.NewHTTPClient()
	}
	return &Client{
		tradingURL: strings.TrimRight(tradingURL, "/"),
		dataURL:    strings.TrimRight(dataURL, "/"),
		creds:      creds,
		httpClient: httpClient,
	}
}

func (c *Client) Venue() string { return domain.VenueAlpaca }

// FetchCatalog lists active crypto assets. Without credentials the call is
// refused up front.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.VenueInstrumentRule, error) {
	if c.creds.KeyID == "" || c.creds.SecretKey == "" {
		return nil, fmt.Errorf("alpaca: assets: missing API credentials")
	}
	q := url.Values{}
	q.Set("asset_class", "crypto")
	q.Set("status", "active")
	var assets []Asset
	if err := c.doGet(ctx, c.tradingURL+"/v2/assets?"+q.Encode(), true, &assets); err != nil {
		return nil, fmt.Errorf("alpaca: assets: %w", err)
	}
	rules := make([]domain.VenueInstrumentRule, 0, len(assets))
	for _, a := range assets {
		if !strings.Contains(a.Symbol, "/") {
			continue
		}
		rules = append(rules, a.ToRule())
	}
	return rules, nil
}

// Ticker returns the latest trade price for a symbol such as BTC/USD.
func (c *Client) Ticker(ctx context.Context, nativeSymbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbols", nativeSymbol)
	var lt LatestTrades
	if err := c.doGet(ctx, c.dataURL+"/v1beta3/crypto/us/latest/trades?"+q.Encode(), false, &lt); err != nil {
		return 0, fmt.Errorf("alpaca: latest trade %s: %w", nativeSymbol, err)
	}
	tr, ok := lt.Trades[nativeSymbol]
	if !ok || tr.Price <= 0 {
		return 0, fmt.Errorf("alpaca: latest trade %s: no price", nativeSymbol)
	}
	return tr.Price, nil
}

func (c *Client) doGet(ctx context.Context, u string, auth bool, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth || c.creds.KeyID != "" {
		req.Header.Set("APCA-API-KEY-ID", c.creds.KeyID)
		req.Header.Set("APCA-API-SECRET-KEY", c.creds.SecretKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(domain.VenueAlpaca, resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.MarketData = (*Client)(nil)
