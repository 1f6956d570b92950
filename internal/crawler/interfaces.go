package crawler

import (
	"context"
	"io"
	"time"
)

// Ledger records crawl attempts and harvested items.
type Ledger interface {
	EnsureSchema(ctx context.Context) error
	OpenCrawl(ctx context.Context, begin time.Time) (Crawl, error)
	CloseCrawl(ctx context.Context, crawlID int64, end time.Time) error
	AddItem(ctx context.Context, item Item) error
}

// LedgerReader exposes read access for the status surface and CLI.
type LedgerReader interface {
	ListCrawls(ctx context.Context, limit int) ([]Crawl, error)
	ListItems(ctx context.Context, crawlID int64) ([]Item, error)
	Ping(ctx context.Context) error
}

// Store is a full ledger backend.
type Store interface {
	Ledger
	LedgerReader
	Close()
}

// Source produces the ranked board and enriches single entries.
type Source interface {
	FetchBoard(ctx context.Context) (Board, error)
	Enrich(ctx context.Context, entry BoardEntry) (Item, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes crawl notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
