// Package coinbase is a public market-data client for the Coinbase Exchange
// REST API.
package coinbase

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

// DefaultBaseURL is the Coinbase Exchange public REST root.
const DefaultBaseURL = "https://api.exchange.coinbase.com"

// Client reads Coinbase products and tickers.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Coinbase client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = platform.NewHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Venue() string { return domain.VenueCoinbase }

// FetchCatalog lists all products.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.VenueInstrumentRule, error) {
	var products []Product
	if err := c.doGet(ctx, "/products", &products); err != nil {
		return nil, fmt.Errorf("coinbase: products: %w", err)
	}
	rules := make([]domain.VenueInstrumentRule, 0, len(products))
	for _, p := range products {
		rules = append(rules, p.ToRule())
	}
	return rules, nil
}

// Ticker returns the last trade price for a product id such as BTC-USD.
func (c *Client) Ticker(ctx context.Context, nativeSymbol string) (float64, error) {
	var t ProductTicker
	if err := c.doGet(ctx, "/products/"+url.PathEscape(nativeSymbol)+"/ticker", &t); err != nil {
		return 0, fmt.Errorf("coinbase: ticker %s: %w", nativeSymbol, err)
	}
	p := platform.Float(t.Price)
	if p <= 0 {
		return 0, fmt.Errorf("coinbase: ticker %s: invalid price %q", nativeSymbol, t.Price)
	}
	return p, nil
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// The Exchange API rejects requests without a User-Agent.
	req.Header.Set("User-Agent", "reallocbot/1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(domain.VenueCoinbase, resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.MarketData = (*Client)(nil)
