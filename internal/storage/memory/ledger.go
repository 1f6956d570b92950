package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

// Ledger provides an in-memory crawl ledger for development/testing. It
// enforces the same constraints as the relational backends.
type Ledger struct {
	mu     sync.RWMutex
	nextID int64
	crawls map[int64]crawler.Crawl
	items  map[int64][]crawler.Item
}

var _ crawler.Store = (*Ledger)(nil)

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		crawls: make(map[int64]crawler.Crawl),
		items:  make(map[int64][]crawler.Item),
	}
}

// EnsureSchema is a no-op.
func (l *Ledger) EnsureSchema(context.Context) error {
	return nil
}

// OpenCrawl records a new open crawl.
func (l *Ledger) OpenCrawl(_ context.Context, begin time.Time) (crawler.Crawl, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	crawl := crawler.Crawl{ID: l.nextID, Begin: begin}
	l.crawls[crawl.ID] = crawl
	return crawl, nil
}

// CloseCrawl sets the end time of an open crawl.
func (l *Ledger) CloseCrawl(_ context.Context, crawlID int64, end time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	crawl, ok := l.crawls[crawlID]
	if !ok || crawl.Closed() {
		return fmt.Errorf("close crawl %d: %w", crawlID, crawler.ErrCrawlNotOpen)
	}
	if end.Before(crawl.Begin) {
		return fmt.Errorf("close crawl %d: end %s precedes begin %s", crawlID, end, crawl.Begin)
	}
	crawl.End.V, crawl.End.Valid = end, true
	l.crawls[crawlID] = crawl
	return nil
}

// AddItem appends an item to its crawl.
func (l *Ledger) AddItem(_ context.Context, item crawler.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.crawls[item.CrawlID]; !ok {
		return fmt.Errorf("insert record: crawl %d does not exist", item.CrawlID)
	}
	for _, existing := range l.items[item.CrawlID] {
		if existing.Ranking == item.Ranking {
			return fmt.Errorf("insert record: ranking %d already stored for crawl %d", item.Ranking, item.CrawlID)
		}
	}
	item.Unresolved = nil
	l.items[item.CrawlID] = append(l.items[item.CrawlID], item)
	return nil
}

// ListCrawls returns the most recent crawls, newest first.
func (l *Ledger) ListCrawls(_ context.Context, limit int) ([]crawler.Crawl, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	crawls := make([]crawler.Crawl, 0, len(l.crawls))
	for _, crawl := range l.crawls {
		crawls = append(crawls, crawl)
	}
	slices.SortFunc(crawls, func(a, b crawler.Crawl) int {
		return int(b.ID - a.ID)
	})
	if limit > 0 && len(crawls) > limit {
		crawls = crawls[:limit]
	}
	return crawls, nil
}

// ListItems returns the items of a crawl in ranking order.
func (l *Ledger) ListItems(_ context.Context, crawlID int64) ([]crawler.Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	items := slices.Clone(l.items[crawlID])
	slices.SortFunc(items, func(a, b crawler.Item) int {
		return a.Ranking - b.Ranking
	})
	return items, nil
}

// Ping always succeeds.
func (l *Ledger) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (l *Ledger) Close() {}
