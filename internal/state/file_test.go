package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if recs, _ := f.LoadLedger(ctx); len(recs) != 0 {
		t.Fatalf("fresh ledger=%v, expected empty", recs)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	recs := []domain.LedgerRecord{
		{Venue: "kraken", Instrument: "BTC/USD", Quantity: 0.5, CostBasis: 30000, TotalFees: 78, LastUpdated: at},
		{Venue: "coinbase", Instrument: "ETH/USD", Quantity: 2, CostBasis: 6000, TotalFees: 36, LastUpdated: at},
	}
	if err := f.SaveLedger(ctx, recs); err != nil {
		t.Fatal(err)
	}
	if err := f.AppendTransfer(ctx, domain.TransferRecord{CycleID: "c1", Moved: 20, ExecutedAt: at}); err != nil {
		t.Fatal(err)
	}

	g, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := g.LoadLedger(ctx)
	if len(got) != 2 {
		t.Fatalf("ledger=%+v, expected 2 records", got)
	}
	for i := range got {
		r, w := got[i], recs[i]
		if r.Venue != w.Venue || r.Instrument != w.Instrument || r.Quantity != w.Quantity ||
			r.CostBasis != w.CostBasis || r.TotalFees != w.TotalFees || !r.LastUpdated.Equal(w.LastUpdated) {
			t.Fatalf("record %d=%+v, expected %+v", i, r, w)
		}
	}
	tr, _ := g.ListTransfers(ctx, domain.ListOpts{})
	if len(tr) != 1 || tr[0].CycleID != "c1" || tr[0].Moved != 20 {
		t.Fatalf("transfers=%+v", tr)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestTransferHistoryCapped(t *testing.T) {
	ctx := context.Background()
	f, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	// Seed directly to avoid a thousand file writes.
	base := time.Unix(0, 0).UTC()
	for i := 0; i < domain.MaxTransferHistory; i++ {
		f.doc.Transfers = append(f.doc.Transfers, domain.TransferRecord{CycleID: "old", ExecutedAt: base.Add(time.Duration(i) * time.Second)})
	}
	f.doc.Transfers[0].CycleID = "first"
	if err := f.AppendTransfer(ctx, domain.TransferRecord{CycleID: "newest", ExecutedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	all, _ := f.ListTransfers(ctx, domain.ListOpts{})
	if len(all) != domain.MaxTransferHistory {
		t.Fatalf("len=%d, expected %d", len(all), domain.MaxTransferHistory)
	}
	if all[0].CycleID != "newest" {
		t.Fatalf("first=%s, expected newest first", all[0].CycleID)
	}
	for _, r := range all {
		if r.CycleID == "first" {
			t.Fatal("oldest record should have been dropped")
		}
	}
}

func TestListTransfersPaging(t *testing.T) {
	ctx := context.Background()
	f, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := f.AppendTransfer(ctx, domain.TransferRecord{CycleID: id, ExecutedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	since := base.Add(time.Hour)

	tests := []struct {
		name string
		opts domain.ListOpts
		want []string
	}{
		{"all", domain.ListOpts{}, []string{"d", "c", "b", "a"}},
		{"limit", domain.ListOpts{Limit: 2}, []string{"d", "c"}},
		{"offset", domain.ListOpts{Offset: 3}, []string{"a"}},
		{"offset past end", domain.ListOpts{Offset: 9}, nil},
		{"since", domain.ListOpts{Since: &since}, []string{"d", "c", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := f.ListTransfers(ctx, tt.opts)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, expected %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].CycleID != tt.want[i] {
					t.Fatalf("got[%d]=%s, expected %s", i, got[i].CycleID, tt.want[i])
				}
			}
		})
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected decode error")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{not json" {
		t.Fatal("corrupt file was modified")
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"version":99}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected version error")
	}
}

func TestReaderSeesOtherWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	reader, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := writer.SaveLedger(ctx, []domain.LedgerRecord{{Venue: "kraken", Instrument: "BTC/USD", Quantity: 1, CostBasis: 95, LastUpdated: at}}); err != nil {
		t.Fatal(err)
	}
	if err := writer.AppendTransfer(ctx, domain.TransferRecord{CycleID: "c1", ExecutedAt: at}); err != nil {
		t.Fatal(err)
	}

	ledger, err := reader.LoadLedger(ctx)
	if err != nil {
		t.Fatal(err)
	}
	transfers, err := reader.ListTransfers(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 1 || len(transfers) != 1 {
		t.Fatalf("ledger=%d transfers=%d, expected 1 and 1", len(ledger), len(transfers))
	}

	// A later write grows the file and is picked up as well.
	if err := writer.AppendTransfer(ctx, domain.TransferRecord{CycleID: "c2", ExecutedAt: at.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	transfers, err = reader.ListTransfers(ctx, domain.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(transfers) != 2 || transfers[0].CycleID != "c2" {
		t.Fatalf("transfers=%+v, expected c2 then c1", transfers)
	}

	// Writing through the reader keeps the writer's records.
	if err := reader.AppendTransfer(ctx, domain.TransferRecord{CycleID: "c3", ExecutedAt: at.Add(2 * time.Minute)}); err != nil {
		t.Fatal(err)
	}
	transfers, _ = writer.ListTransfers(ctx, domain.ListOpts{})
	if len(transfers) != 3 {
		t.Fatalf("transfers=%d, expected 3", len(transfers))
	}
}
