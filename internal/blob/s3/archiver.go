package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// Store is the object-store surface the archiver needs.
type Store interface {
	domain.BlobWriter
	domain.BlobReader
	Delete(ctx context.Context, path string) error
}

// ArchiverConfig controls archive layout and retention.
type ArchiverConfig struct {
	// Prefix is the root for all archive objects, e.g. "realloc/archive".
	Prefix string
	// Keep is how many snapshots of each kind to retain. Zero keeps all.
	Keep int
}

// Archiver writes ledger and transfer snapshots as JSONL objects:
//
//	{prefix}/ledger/2024/06/01/ledger-20240601T120000Z.jsonl
//	{prefix}/transfers/2024/06/01/transfers-20240601T120000Z.jsonl
//
// Object names sort chronologically, which retention relies on.
type Archiver struct {
	store  Store
	cfg    ArchiverConfig
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing under cfg.Prefix in store.
func NewArchiver(store Store, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = "archive"
	}
	return &Archiver{store: store, cfg: cfg, logger: logger.With(slog.String("component", "archiver"))}
}

// ArchiveLedger uploads a ledger snapshot and returns its path.
func (a *Archiver) ArchiveLedger(ctx context.Context, records []domain.LedgerRecord, at time.Time) (string, error) {
	return archive(ctx, a, "ledger", records, at)
}

// ArchiveTransfers uploads a transfer history snapshot and returns its path.
func (a *Archiver) ArchiveTransfers(ctx context.Context, recs []domain.TransferRecord, at time.Time) (string, error) {
	return archive(ctx, a, "transfers", recs, at)
}

// LatestLedger downloads and decodes the newest ledger snapshot. It returns
// domain.ErrNotFound when none has been archived.
func (a *Archiver) LatestLedger(ctx context.Context) ([]domain.LedgerRecord, error) {
	infos, err := a.store.List(ctx, a.cfg.Prefix+"/ledger/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list ledger archives: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("s3blob: no ledger archive: %w", domain.ErrNotFound)
	}
	latest := infos[0].Path
	for _, info := range infos[1:] {
		if info.Path > latest {
			latest = info.Path
		}
	}

	rc, err := a.store.Get(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", latest, err)
	}
	defer rc.Close()

	var out []domain.LedgerRecord
	dec := json.NewDecoder(rc)
	for {
		var rec domain.LedgerRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("s3blob: decode %s record %d: %w", latest, len(out), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func archive[T any](ctx context.Context, a *Archiver, kind string, records []T, at time.Time) (string, error) {
	path := a.path(kind, at)
	exists, err := a.store.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	if exists {
		return path, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	if int64(len(buf)) > minPartSize {
		err = a.store.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.store.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	a.logger.Info("s3blob: archived snapshot",
		slog.String("path", path),
		slog.Int("records", len(records)),
	)

	if err := a.prune(ctx, kind); err != nil {
		a.logger.Warn("s3blob: prune failed", slog.String("kind", kind), slog.String("error", err.Error()))
	}
	return path, nil
}

// prune deletes the oldest snapshots of kind beyond cfg.Keep.
func (a *Archiver) prune(ctx context.Context, kind string) error {
	if a.cfg.Keep <= 0 {
		return nil
	}
	infos, err := a.store.List(ctx, a.cfg.Prefix+"/"+kind+"/")
	if err != nil {
		return err
	}
	if len(infos) <= a.cfg.Keep {
		return nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	for _, info := range infos[:len(infos)-a.cfg.Keep] {
		if err := a.store.Delete(ctx, info.Path); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) path(kind string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%s/%s-%s.jsonl", a.cfg.Prefix, kind, at.Format("2006/01/02"), kind, at.Format("20060102T150405Z"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// BucketStore joins a Writer and Reader over one client.
type BucketStore struct {
	*Writer
	*Reader
}

// NewBucketStore creates a BucketStore over c.
func NewBucketStore(c *Client) *BucketStore {
	return &BucketStore{Writer: NewWriter(c), Reader: NewReader(c)}
}

var (
	_ domain.Archiver = (*Archiver)(nil)
	_ Store           = (*BucketStore)(nil)
)
