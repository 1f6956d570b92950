// Package sqlite provides an embedded crawl ledger backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

const defaultBusyTimeoutMS = 5000

const schemaStatements = `
CREATE TABLE IF NOT EXISTS crawl (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	"begin" TIMESTAMP NOT NULL,
	"end"   TIMESTAMP,
	CHECK ("end" IS NULL OR "end" >= "begin")
);

CREATE TABLE IF NOT EXISTS record (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	qid           VARCHAR(64),
	crawl_id      INTEGER NOT NULL REFERENCES crawl (id),
	ranking       INTEGER NOT NULL,
	title         TEXT NOT NULL,
	heat          VARCHAR(32) NOT NULL,
	created       TIMESTAMP,
	visitCount    INTEGER,
	followerCount INTEGER,
	answerCount   INTEGER,
	raw           TEXT,
	url           TEXT,
	hit_at        TIMESTAMP,
	UNIQUE (crawl_id, ranking)
);

CREATE INDEX IF NOT EXISTS record_crawl_id_idx ON record (crawl_id);
`

const (
	insertCrawlSQL = `INSERT INTO crawl ("begin") VALUES (?)`
	closeCrawlSQL  = `UPDATE crawl SET "end" = ? WHERE id = ? AND "end" IS NULL`
	insertItemSQL  = `
INSERT INTO record (qid, crawl_id, ranking, title, heat, created, visitCount, followerCount, answerCount, raw, url, hit_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	listCrawlsSQL = `SELECT id, "begin", "end" FROM crawl ORDER BY id DESC LIMIT ?`
	listItemsSQL  = `
SELECT qid, crawl_id, ranking, title, heat, created, visitCount, followerCount, answerCount, raw, url, hit_at
FROM record
WHERE crawl_id = ?
ORDER BY ranking`
)

// Config describes the database file.
type Config struct {
	Path          string
	BusyTimeoutMS int
}

// Ledger records crawls and items in a local SQLite file.
type Ledger struct {
	db   *sqlx.DB
	exec *Executor
}

var _ crawler.Store = (*Ledger)(nil)

type itemRow struct {
	QID           sql.Null[string]    `db:"qid"`
	CrawlID       int64               `db:"crawl_id"`
	Ranking       int                 `db:"ranking"`
	Title         string              `db:"title"`
	Heat          string              `db:"heat"`
	Created       sql.Null[time.Time] `db:"created"`
	VisitCount    sql.Null[int64]     `db:"visitCount"`
	FollowerCount sql.Null[int64]     `db:"followerCount"`
	AnswerCount   sql.Null[int64]     `db:"answerCount"`
	Raw           sql.Null[string]    `db:"raw"`
	URL           sql.Null[string]    `db:"url"`
	HitAt         sql.Null[time.Time] `db:"hit_at"`
}

// NewLedger opens (creating if needed) the database file.
func NewLedger(cfg Config, logger *zap.Logger) (*Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=1&_journal=WAL&_busy_timeout=%d", cfg.Path, busy)

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	return &Ledger{db: db, exec: NewExecutor(db, logger.Named("sqlite"))}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() {
	if l == nil || l.db == nil {
		return
	}
	_ = l.db.Close() //nolint:errcheck // nothing to do on close failure
}

// Ping checks that the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates the crawl and record tables when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if _, err := l.exec.Execute(ctx, schemaStatements); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// OpenCrawl inserts a crawl row with only its begin time.
func (l *Ledger) OpenCrawl(ctx context.Context, begin time.Time) (crawler.Crawl, error) {
	res, err := l.exec.Execute(ctx, insertCrawlSQL, begin.UTC())
	if err != nil {
		return crawler.Crawl{}, fmt.Errorf("open crawl: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return crawler.Crawl{}, fmt.Errorf("open crawl: read id: %w", err)
	}
	return crawler.Crawl{ID: id, Begin: begin}, nil
}

// CloseCrawl sets the end time of an open crawl.
func (l *Ledger) CloseCrawl(ctx context.Context, crawlID int64, end time.Time) error {
	res, err := l.exec.Execute(ctx, closeCrawlSQL, end.UTC(), crawlID)
	if err != nil {
		return fmt.Errorf("close crawl %d: %w", crawlID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close crawl %d: rows affected: %w", crawlID, err)
	}
	if n == 0 {
		return fmt.Errorf("close crawl %d: %w", crawlID, crawler.ErrCrawlNotOpen)
	}
	return nil
}

// AddItem inserts a record row.
func (l *Ledger) AddItem(ctx context.Context, item crawler.Item) error {
	if item.CrawlID == 0 {
		return fmt.Errorf("crawl id is required")
	}
	created := item.CreatedAt
	if created.Valid {
		created.V = created.V.UTC()
	}
	_, err := l.exec.Execute(ctx, insertItemSQL,
		item.ExternalID,
		item.CrawlID,
		item.Ranking,
		item.Title,
		item.Heat,
		created,
		item.ViewCount,
		item.FollowerCount,
		item.AnswerCount,
		item.RawExcerpt,
		item.URL,
		item.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ListCrawls returns the most recent crawls, newest first. A limit <= 0
// returns every crawl.
func (l *Ledger) ListCrawls(ctx context.Context, limit int) ([]crawler.Crawl, error) {
	if limit <= 0 {
		limit = -1
	}
	var crawls []crawler.Crawl
	if err := l.exec.Select(ctx, &crawls, listCrawlsSQL, limit); err != nil {
		return nil, fmt.Errorf("list crawls: %w", err)
	}
	return crawls, nil
}

// ListItems returns the items of a crawl in ranking order.
func (l *Ledger) ListItems(ctx context.Context, crawlID int64) ([]crawler.Item, error) {
	var rows []itemRow
	if err := l.exec.Select(ctx, &rows, listItemsSQL, crawlID); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items := make([]crawler.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, crawler.Item{
			ExternalID:    row.QID,
			CrawlID:       row.CrawlID,
			Ranking:       row.Ranking,
			Title:         row.Title,
			Heat:          row.Heat,
			CreatedAt:     row.Created,
			ViewCount:     row.VisitCount,
			FollowerCount: row.FollowerCount,
			AnswerCount:   row.AnswerCount,
			RawExcerpt:    row.Raw.V,
			URL:           row.URL.V,
			FetchedAt:     row.HitAt.V,
		})
	}
	return items, nil
}
