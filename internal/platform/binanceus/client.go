// Package binanceus is a public market-data client for the Binance.US REST
// API.
package binanceus

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

// DefaultBaseURL is the Binance.US REST root.
const DefaultBaseURL = "https://api.binance.us"

// Client reads Binance.US exchange info and prices.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Binance.US client. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = platform.NewHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) Venue() string { return domain.VenueBinanceUS }

// FetchCatalog returns every symbol in exchangeInfo.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.VenueInstrumentRule, error) {
	var info ExchangeInfo
	if err := c.doGet(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("binanceus: exchange info: %w", err)
	}
	rules := make([]domain.VenueInstrumentRule, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		rules = append(rules, s.ToRule())
	}
	return rules, nil
}

// Ticker returns the latest price for a symbol such as BTCUSD.
func (c *Client) Ticker(ctx context.Context, nativeSymbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", nativeSymbol)
	var tp TickerPrice
	if err := c.doGet(ctx, "/api/v3/ticker/price", q, &tp); err != nil {
		return 0, fmt.Errorf("binanceus: ticker %s: %w", nativeSymbol, err)
	}
	p := platform.Float(tp.Price)
	if p <= 0 {
		return 0, fmt.Errorf("binanceus: ticker %s: invalid price %q", nativeSymbol, tp.Price)
	}
	return p, nil
}

func (c *Client) doGet(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(domain.VenueBinanceUS, resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ domain.MarketData = (*Client)(nil)
