// Package postgres provides the Postgres-backed crawl ledger.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

// Config controls the Postgres connection pool used by the ledger.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Ledger records crawls and items in Postgres.
type Ledger struct {
	exec *Executor
}

var _ crawler.Store = (*Ledger)(nil)

// NewLedger creates a Postgres-backed Ledger using the provided config.
func NewLedger(ctx context.Context, cfg Config, logger *zap.Logger) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{exec: NewExecutor(p, logger.Named("postgres"))}, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(p pool, logger *zap.Logger) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Ledger{exec: NewExecutor(p, logger)}, nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() {
	if l == nil || l.exec == nil {
		return
	}
	l.exec.Close()
}

// Ping checks that the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.exec.Ping(ctx)
}

// EnsureSchema creates the crawl and record tables when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	if err := l.exec.Execute(ctx, schemaStatements, nil, nil); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// OpenCrawl inserts a crawl row with only its begin time.
func (l *Ledger) OpenCrawl(ctx context.Context, begin time.Time) (crawler.Crawl, error) {
	crawl := crawler.Crawl{Begin: begin}
	err := l.exec.Execute(ctx, insertCrawlSQL, []any{begin}, func(row pgx.Row) error {
		return row.Scan(&crawl.ID)
	})
	if err != nil {
		return crawler.Crawl{}, fmt.Errorf("open crawl: %w", err)
	}
	return crawl, nil
}

// CloseCrawl sets the end time of an open crawl.
func (l *Ledger) CloseCrawl(ctx context.Context, crawlID int64, end time.Time) error {
	var id int64
	err := l.exec.Execute(ctx, closeCrawlSQL, []any{end, crawlID}, func(row pgx.Row) error {
		return row.Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("close crawl %d: %w", crawlID, crawler.ErrCrawlNotOpen)
	}
	if err != nil {
		return fmt.Errorf("close crawl %d: %w", crawlID, err)
	}
	return nil
}

// AddItem inserts a record row.
func (l *Ledger) AddItem(ctx context.Context, item crawler.Item) error {
	if item.CrawlID == 0 {
		return fmt.Errorf("crawl id is required")
	}
	if err := l.exec.Execute(ctx, insertItemSQL, itemArgs(item), nil); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ListCrawls returns the most recent crawls, newest first. A limit <= 0
// returns every crawl.
func (l *Ledger) ListCrawls(ctx context.Context, limit int) ([]crawler.Crawl, error) {
	var limitArg any = limit
	if limit <= 0 {
		limitArg = nil
	}
	var crawls []crawler.Crawl
	err := l.exec.Query(ctx, listCrawlsSQL, []any{limitArg}, func(row pgx.Row) error {
		var c crawler.Crawl
		if err := row.Scan(&c.ID, &c.Begin, &c.End); err != nil {
			return err
		}
		c.Begin = c.Begin.UTC()
		if c.End.Valid {
			c.End.V = c.End.V.UTC()
		}
		crawls = append(crawls, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list crawls: %w", err)
	}
	return crawls, nil
}

// ListItems returns the items of a crawl in ranking order.
func (l *Ledger) ListItems(ctx context.Context, crawlID int64) ([]crawler.Item, error) {
	var items []crawler.Item
	err := l.exec.Query(ctx, listItemsSQL, []any{crawlID}, func(row pgx.Row) error {
		var (
			item crawler.Item
			raw  sql.Null[string]
			url  sql.Null[string]
			hit  sql.Null[time.Time]
		)
		if err := row.Scan(
			&item.ExternalID,
			&item.CrawlID,
			&item.Ranking,
			&item.Title,
			&item.Heat,
			&item.CreatedAt,
			&item.ViewCount,
			&item.FollowerCount,
			&item.AnswerCount,
			&raw,
			&url,
			&hit,
		); err != nil {
			return err
		}
		item.RawExcerpt = raw.V
		item.URL = url.V
		item.FetchedAt = hit.V.UTC()
		if item.CreatedAt.Valid {
			item.CreatedAt.V = item.CreatedAt.V.UTC()
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func itemArgs(item crawler.Item) []any {
	return []any{
		item.ExternalID,
		item.CrawlID,
		item.Ranking,
		item.Title,
		item.Heat,
		item.CreatedAt,
		item.ViewCount,
		item.FollowerCount,
		item.AnswerCount,
		item.RawExcerpt,
		item.URL,
		item.FetchedAt,
	}
}
