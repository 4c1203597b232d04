// Package platform holds helpers shared by the per-venue market-data
// clients in its subpackages.
package platform

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTimeout is the HTTP timeout for venue clients.
const DefaultTimeout = 15 * time.Second

// maxBody caps response bodies; catalogs run to a few MB at most.
const maxBody = 32 << 20

// NewHTTPClient returns the HTTP client venue clients use by default.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// StatusError is a non-2xx response from a venue.
type StatusError struct {
	Venue  string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Venue, e.Status, e.Body)
}

// ReadBody reads a response body and turns non-2xx statuses into a
// *StatusError carrying a trimmed copy of the body.
func ReadBody(venue string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", venue, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &StatusError{Venue: venue, Status: resp.StatusCode, Body: msg}
	}
	return body, nil
}

// Float parses a numeric string, treating empty or malformed input as 0.
func Float(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// Decimals returns the number of significant decimals in a step string:
// "0.00001000" -> 5, "1" -> 0, "" -> 0.
func Decimals(step string) int {
	d, err := decimal.NewFromString(strings.TrimSpace(step))
	if err != nil || !d.IsPositive() {
		return 0
	}
	s := d.String()
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

// Pow10Step returns 10^-decimals as a step size.
func Pow10Step(decimals int) float64 {
	if decimals <= 0 {
		return 1
	}
	return decimal.New(1, int32(-decimals)).InexactFloat64()
}
