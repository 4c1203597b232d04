package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies persisted state to cold storage. It returns the object
// path written.
type Archiver interface {
	ArchiveLedger(ctx context.Context, records []LedgerRecord, at time.Time) (string, error)
	ArchiveTransfers(ctx context.Context, recs []TransferRecord, at time.Time) (string, error)
	// LatestLedger reads back the newest ledger archive, or ErrNotFound.
	LatestLedger(ctx context.Context) ([]LedgerRecord, error)
}
