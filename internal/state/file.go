// Package state persists the ledger snapshot and transfer history to a
// single JSON file.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// schemaVersion is written into every file.
const schemaVersion = 1

type document struct {
	Version   int                     `json:"version"`
	SavedAt   time.Time               `json:"saved_at"`
	Ledger    []domain.LedgerRecord   `json:"ledger"`
	Transfers []domain.TransferRecord `json:"transfers"`
}

// File is a domain.StateStore over one JSON file. Every write replaces the
// file through a temp file and rename, so a crash leaves either the old or
// the new contents. Reads pick up changes another process wrote since the
// last load.
type File struct {
	path string

	mu      sync.Mutex
	doc     document
	modTime time.Time
	size    int64
}

// Open loads path, or starts empty when it does not exist. A file that
// exists but cannot be parsed is an error; it is never silently replaced.
func Open(path string) (*File, error) {
	f := &File{path: path, doc: document{Version: schemaVersion}}
	if err := f.refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

// refresh reloads the file when its mtime or size differs from the last
// load or write. Must be called with mu held.
func (f *File) refresh() error {
	fh, err := os.Open(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("state: open %s: %w", f.path, err)
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return fmt.Errorf("state: stat %s: %w", f.path, err)
	}
	if info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return nil
	}

	var doc document
	if err := json.NewDecoder(fh).Decode(&doc); err != nil {
		return fmt.Errorf("state: decode %s: %w", f.path, err)
	}
	if doc.Version > schemaVersion {
		return fmt.Errorf("state: %s has schema version %d, newer than %d", f.path, doc.Version, schemaVersion)
	}
	doc.Version = schemaVersion
	f.doc = doc
	f.modTime, f.size = info.ModTime(), info.Size()
	return nil
}

// SaveLedger replaces the ledger snapshot.
func (f *File) SaveLedger(ctx context.Context, records []domain.LedgerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refresh(); err != nil {
		return err
	}
	prev := f.doc.Ledger
	f.doc.Ledger = append([]domain.LedgerRecord(nil), records...)
	if err := f.flush(); err != nil {
		f.doc.Ledger = prev
		return err
	}
	return nil
}

// LoadLedger returns the ledger snapshot as last written by any process.
func (f *File) LoadLedger(ctx context.Context) ([]domain.LedgerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refresh(); err != nil {
		return nil, err
	}
	return append([]domain.LedgerRecord(nil), f.doc.Ledger...), nil
}

// AppendTransfer adds a record, dropping the oldest beyond
// domain.MaxTransferHistory.
func (f *File) AppendTransfer(ctx context.Context, rec domain.TransferRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refresh(); err != nil {
		return err
	}
	prev := f.doc.Transfers
	next := append(append([]domain.TransferRecord(nil), prev...), rec)
	if over := len(next) - domain.MaxTransferHistory; over > 0 {
		next = next[over:]
	}
	f.doc.Transfers = next
	if err := f.flush(); err != nil {
		f.doc.Transfers = prev
		return err
	}
	return nil
}

// ListTransfers returns records newest first.
func (f *File) ListTransfers(ctx context.Context, opts domain.ListOpts) ([]domain.TransferRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.refresh(); err != nil {
		return nil, err
	}
	out := make([]domain.TransferRecord, 0, len(f.doc.Transfers))
	for i := len(f.doc.Transfers) - 1; i >= 0; i-- {
		rec := f.doc.Transfers[i]
		if opts.Since != nil && rec.ExecutedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && rec.ExecutedAt.After(*opts.Until) {
			continue
		}
		out = append(out, rec)
	}
	return page(out, opts), nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// flush must be called with mu held.
func (f *File) flush() error {
	f.doc.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(f.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("state: rename: %w", err)
	}
	if info, err := os.Stat(f.path); err == nil {
		f.modTime, f.size = info.ModTime(), info.Size()
	}
	return nil
}

var _ domain.StateStore = (*File)(nil)
