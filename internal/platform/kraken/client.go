// Package kraken is a public market-data client for the Kraken REST API.
package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/platform"
)

// DefaultBaseURL is Kraken's public REST root.
const DefaultBaseURL = "https://api.kraken.com"

// Client reads Kraken's instrument catalog and tickers.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Kraken client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = platform.NewHTTPClient()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Venue returns the venue identifier.
func (c *Client) Venue() string { return domain.VenueKraken }

// FetchCatalog returns every spot pair Kraken lists. Dark-pool pairs are
// skipped.
func (c *Client) FetchCatalog(ctx context.Context) ([]domain.VenueInstrumentRule, error) {
	var pairs map[string]AssetPair
	if err := c.get(ctx, "/0/public/AssetPairs", nil, &pairs); err != nil {
		return nil, fmt.Errorf("kraken: asset pairs: %w", err)
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		if strings.HasSuffix(k, ".d") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rules := make([]domain.VenueInstrumentRule, 0, len(keys))
	for _, k := range keys {
		p := pairs[k]
		if p.Altname == "" {
			p.Altname = k
		}
		rules = append(rules, p.ToRule())
	}
	return rules, nil
}

// Ticker returns the last trade price for a pair (altname or pair key).
func (c *Client) Ticker(ctx context.Context, nativeSymbol string) (float64, error) {
	q := url.Values{}
	q.Set("pair", nativeSymbol)
	var res map[string]Ticker
	if err := c.get(ctx, "/0/public/Ticker", q, &res); err != nil {
		return 0, fmt.Errorf("kraken: ticker %s: %w", nativeSymbol, err)
	}
	// Kraken keys the result by its legacy pair name, not the one asked for.
	for _, t := range res {
		if len(t.C) == 0 {
			break
		}
		if p := platform.Float(t.C[0]); p > 0 {
			return p, nil
		}
	}
	return 0, fmt.Errorf("kraken: ticker %s: no last price", nativeSymbol)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := platform.ReadBody(domain.VenueKraken, resp)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Error) > 0 {
		return errors.New(strings.Join(env.Error, "; "))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

var _ domain.MarketData = (*Client)(nil)
