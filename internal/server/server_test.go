package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
	"github.com/alanyoungcy/reallocbot/internal/server/handler"
)

type fakeLedger struct {
	records []domain.LedgerRecord
	err     error
}

func (f fakeLedger) LoadLedger(context.Context) ([]domain.LedgerRecord, error) {
	return f.records, f.err
}

type fakeReports []domain.CycleReport

func (f fakeReports) Reports() []domain.CycleReport { return f }

type fakeTransfers struct {
	got domain.ListOpts
	out []domain.TransferRecord
}

func (f *fakeTransfers) AppendTransfer(context.Context, domain.TransferRecord) error { return nil }

func (f *fakeTransfers) ListTransfers(_ context.Context, opts domain.ListOpts) ([]domain.TransferRecord, error) {
	f.got = opts
	return f.out, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config, checks map[string]handler.Pinger, transfers *fakeTransfers) http.Handler {
	t.Helper()
	logger := discard()
	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	reports := fakeReports{
		{CycleID: "c1", State: domain.CycleInfeasible, StartedAt: t0},
		{CycleID: "c2", State: domain.CycleSettled, StartedAt: t0.Add(time.Minute), Moved: 80},
		{CycleID: "c3", State: domain.CycleSettled, StartedAt: t0.Add(2 * time.Minute), Moved: 20},
	}
	ledger := fakeLedger{records: []domain.LedgerRecord{
		{Venue: "kraken", Instrument: "BTC/USD", Quantity: 2, CostBasis: 100000},
		{Venue: "coinbase", Instrument: "ETH/USD", Quantity: 4, CostBasis: 8000},
	}}
	if transfers == nil {
		transfers = &fakeTransfers{}
	}
	srv := NewServer(cfg, Handlers{
		Health:    handler.NewHealthHandler(checks, logger),
		Status:    &handler.StatusHandler{Mode: "paper", Destination: "kraken:USD", Venues: []string{"kraken"}, StartedAt: t0},
		Ledger:    handler.NewLedgerHandler(ledger, logger),
		Reports:   handler.NewReportHandler(reports, logger),
		Transfers: handler.NewTransferHandler(transfers, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "realloc_cycles_total 3\n")
		}),
	}, logger)
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestLedgerEndpoint(t *testing.T) {
	h := newTestServer(t, Config{}, nil, nil)

	rec := get(t, h, "/api/ledger", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}
	var body struct {
		Entries []handler.LedgerEntry `json:"entries"`
		Count   int                   `json:"count"`
	}
	decode(t, rec, &body)
	if body.Count != 2 || body.Entries[0].AvgEntryPrice != 50000 {
		t.Fatalf("body=%+v, expected 2 entries with BTC avg 50000", body)
	}

	rec = get(t, h, "/api/ledger?venue=coinbase", nil)
	decode(t, rec, &body)
	if body.Count != 1 || body.Entries[0].Instrument != "ETH/USD" {
		t.Fatalf("filtered body=%+v, expected only ETH/USD", body)
	}
}

func TestReportsEndpoint(t *testing.T) {
	h := newTestServer(t, Config{}, nil, nil)

	tests := []struct {
		path string
		want []string
	}{
		{"/api/reports", []string{"c3", "c2", "c1"}},
		{"/api/reports?state=settled", []string{"c3", "c2"}},
		{"/api/reports?limit=1&offset=1", []string{"c2"}},
		{"/api/reports?since=2024-06-01T12:01:00Z", []string{"c3", "c2"}},
		{"/api/reports?offset=10", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status=%d, expected 200", rec.Code)
			}
			var body struct {
				Reports []domain.CycleReport `json:"reports"`
			}
			decode(t, rec, &body)
			if len(body.Reports) != len(tt.want) {
				t.Fatalf("got %d reports, expected %v", len(body.Reports), tt.want)
			}
			for i, id := range tt.want {
				if body.Reports[i].CycleID != id {
					t.Fatalf("reports[%d]=%s, expected %s", i, body.Reports[i].CycleID, id)
				}
			}
		})
	}

	// Listing must not reorder the source.
	rec := get(t, h, "/api/reports/latest", nil)
	var latest domain.CycleReport
	decode(t, rec, &latest)
	if latest.CycleID != "c3" {
		t.Fatalf("latest=%s, expected c3", latest.CycleID)
	}

	if rec := get(t, h, "/api/reports?until=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400 for bad until", rec.Code)
	}
}

func TestLatestReportEmpty(t *testing.T) {
	logger := discard()
	h := NewServer(Config{}, Handlers{
		Health:  handler.NewHealthHandler(nil, logger),
		Status:  &handler.StatusHandler{},
		Reports: handler.NewReportHandler(fakeReports(nil), logger),
	}, logger).Handler()

	if rec := get(t, h, "/api/reports/latest", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, expected 404", rec.Code)
	}
	// Unregistered optional routes are 404 too.
	if rec := get(t, h, "/api/transfers", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, expected 404", rec.Code)
	}
}

func TestTransfersEndpoint(t *testing.T) {
	transfers := &fakeTransfers{out: []domain.TransferRecord{{CycleID: "c2", Moved: 80}}}
	h := newTestServer(t, Config{}, nil, transfers)

	rec := get(t, h, "/api/transfers?limit=900&offset=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}
	if transfers.got.Limit != 500 || transfers.got.Offset != 2 {
		t.Fatalf("opts=%+v, expected limit capped at 500 and offset 2", transfers.got)
	}
	var body struct {
		Transfers []domain.TransferRecord `json:"transfers"`
	}
	decode(t, rec, &body)
	if len(body.Transfers) != 1 || body.Transfers[0].Moved != 80 {
		t.Fatalf("transfers=%+v", body.Transfers)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, Config{}, map[string]handler.Pinger{"redis": fakePinger{}}, nil)
	if rec := get(t, h, "/api/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", rec.Code)
	}

	h = newTestServer(t, Config{}, map[string]handler.Pinger{
		"redis":    fakePinger{},
		"postgres": fakePinger{err: errors.New("connection refused")},
	}, nil)
	rec := get(t, h, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, expected 503", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decode(t, rec, &body)
	if body.Status != "degraded" || body.Checks["redis"] != "ok" || body.Checks["postgres"] != "connection refused" {
		t.Fatalf("body=%+v", body)
	}
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, Config{APIKey: "secret"}, nil, nil)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing token", "/api/ledger", nil, http.StatusUnauthorized},
		{"wrong token", "/api/ledger", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer", "/api/ledger", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key header", "/api/status", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"health is open", "/api/health", nil, http.StatusOK},
		{"metrics is open", "/metrics", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := get(t, h, tt.path, tt.header); rec.Code != tt.want {
				t.Fatalf("status=%d, expected %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	h := newTestServer(t, Config{RateLimiter: limiter, RateLimit: 10, RateWindow: time.Minute}, nil, nil)

	rec := get(t, h, "/api/status", map[string]string{"X-Forwarded-For": "10.0.0.7, 10.0.0.1"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, expected 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After=%q, expected 60", rec.Header().Get("Retry-After"))
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "api:10.0.0.7" {
		t.Fatalf("keys=%v, expected [api:10.0.0.7]", limiter.keys)
	}

	limiter.err = errors.New("redis down")
	if rec := get(t, h, "/api/status", nil); rec.Code != http.StatusOK {
		t.Fatalf("status=%d, expected limiter errors to fail open", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigins: []string{"https://ops.example"}}, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/ledger", nil)
	req.Header.Set("Origin", "https://ops.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d, expected 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("Allow-Origin=%q", got)
	}

	rec = get(t, h, "/api/status", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin=%q, expected none for unlisted origin", got)
	}
}
