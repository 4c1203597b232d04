package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (m *memStore) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.puts++
	return nil
}

func (m *memStore) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memStore) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func TestArchiveLedger(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := NewArchiver(store, ArchiverConfig{Prefix: "/realloc/archive/"}, slog.New(slog.DiscardHandler))

	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	recs := []domain.LedgerRecord{
		{Venue: "kraken", Instrument: "BTC/USD", Quantity: 0.5, CostBasis: 30000},
		{Venue: "coinbase", Instrument: "ETH/USD", Quantity: 2, CostBasis: 6000},
	}
	path, err := a.ArchiveLedger(ctx, recs, at)
	if err != nil {
		t.Fatal(err)
	}
	want := "realloc/archive/ledger/2024/06/01/ledger-20240601T123000Z.jsonl"
	if path != want {
		t.Fatalf("path=%q, expected %q", path, want)
	}

	rc, err := store.Get(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	sc := bufio.NewScanner(rc)
	var lines int
	for sc.Scan() {
		var r domain.LedgerRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if r.Venue != recs[lines].Venue {
			t.Fatalf("line %d venue=%s, expected %s", lines, r.Venue, recs[lines].Venue)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines=%d, expected 2", lines)
	}

	// Same timestamp is not re-uploaded.
	if _, err := a.ArchiveLedger(ctx, recs, at); err != nil {
		t.Fatal(err)
	}
	if store.puts != 1 {
		t.Fatalf("puts=%d, expected 1", store.puts)
	}
}

func TestArchivePrunesOldest(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	a := NewArchiver(store, ArchiverConfig{Keep: 2}, slog.New(slog.DiscardHandler))

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		p, err := a.ArchiveTransfers(ctx, []domain.TransferRecord{{CycleID: fmt.Sprint(i)}}, base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	left, _ := store.List(ctx, "archive/transfers/")
	if len(left) != 2 {
		t.Fatalf("kept %d objects, expected 2", len(left))
	}
	if left[0].Path != paths[2] || left[1].Path != paths[3] {
		t.Fatalf("kept %v, expected the two newest", left)
	}
	// Ledger snapshots are pruned separately.
	if _, err := a.ArchiveLedger(ctx, nil, base); err != nil {
		t.Fatal(err)
	}
	if l, _ := store.List(ctx, "archive/"); len(l) != 3 {
		t.Fatalf("total objects=%d, expected 3", len(l))
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.useSSL); got != tt.want {
			t.Fatalf("normaliseEndpoint(%q)=%q, expected %q", tt.in, got, tt.want)
		}
	}
}

func TestLatestLedger(t *testing.T) {
	ctx := context.Background()
	a := NewArchiver(newMemStore(), ArchiverConfig{}, slog.New(slog.DiscardHandler))

	if _, err := a.LatestLedger(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v, expected ErrNotFound", err)
	}

	base := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	older := []domain.LedgerRecord{{Venue: "kraken", Instrument: "BTC/USD", Quantity: 1, CostBasis: 95}}
	newer := []domain.LedgerRecord{
		{Venue: "kraken", Instrument: "BTC/USD", Quantity: 0.8, CostBasis: 76},
		{Venue: "coinbase", Instrument: "ETH/USD", Quantity: 2, CostBasis: 6000},
	}
	if _, err := a.ArchiveLedger(ctx, newer, base.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.ArchiveLedger(ctx, older, base); err != nil {
		t.Fatal(err)
	}

	got, err := a.LatestLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Quantity != 0.8 || got[1].Venue != "coinbase" {
		t.Fatalf("latest=%+v, expected the 2-record snapshot", got)
	}
}
