package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

func newTestLedger(t *testing.T, logger *zap.Logger) *Ledger {
	t.Helper()
	ledger, err := NewLedger(Config{Path: filepath.Join(t.TempDir(), "ledger", "boardwatch.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(ledger.Close)
	require.NoError(t, ledger.EnsureSchema(context.Background()))
	return ledger
}

func TestNewLedgerRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := NewLedger(Config{Path: " "}, nil)
	require.Error(t, err)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t, zap.NewNop())
	require.NoError(t, ledger.EnsureSchema(context.Background()))

	var tables []string
	require.NoError(t, ledger.db.Select(&tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('crawl', 'record') ORDER BY name`))
	require.Equal(t, []string{"crawl", "record"}, tables)
	require.NoError(t, ledger.Ping(context.Background()))
}

func TestCrawlLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t, zap.NewNop())
	begin := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)

	first, err := ledger.OpenCrawl(ctx, begin)
	require.NoError(t, err)
	second, err := ledger.OpenCrawl(ctx, begin.Add(10*time.Minute))
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	require.NoError(t, ledger.CloseCrawl(ctx, first.ID, begin.Add(time.Minute)))
	err = ledger.CloseCrawl(ctx, first.ID, begin.Add(2*time.Minute))
	require.ErrorIs(t, err, crawler.ErrCrawlNotOpen)

	crawls, err := ledger.ListCrawls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, crawls, 2)
	require.Equal(t, second.ID, crawls[0].ID)
	require.False(t, crawls[0].Closed())
	require.True(t, crawls[1].Closed())
	require.True(t, crawls[1].End.V.Equal(begin.Add(time.Minute)))
	require.True(t, crawls[1].Begin.Equal(begin))
}

func TestCloseCrawlRejectsEndBeforeBegin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t, zap.NewNop())
	begin := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)

	crawl, err := ledger.OpenCrawl(ctx, begin)
	require.NoError(t, err)
	require.Error(t, ledger.CloseCrawl(ctx, crawl.ID, begin.Add(-time.Minute)))
}

func TestItemsRoundTripWithUnresolvedFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t, zap.NewNop())
	begin := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)
	crawl, err := ledger.OpenCrawl(ctx, begin)
	require.NoError(t, err)

	resolved := crawler.Item{
		ExternalID:    sql.Null[string]{V: "541234", Valid: true},
		CrawlID:       crawl.ID,
		Ranking:       0,
		Title:         "first",
		Heat:          "1200",
		URL:           "https://www.zhihu.com/question/541234",
		CreatedAt:     sql.Null[time.Time]{V: begin.Add(-time.Hour), Valid: true},
		ViewCount:     sql.Null[int64]{V: 2139067, Valid: true},
		FollowerCount: sql.Null[int64]{V: 5980, Valid: true},
		AnswerCount:   sql.Null[int64]{V: 2512, Valid: true},
		RawExcerpt:    "excerpt",
		FetchedAt:     begin.Add(time.Second),
	}
	partial := crawler.Item{
		CrawlID:    crawl.ID,
		Ranking:    1,
		Title:      "second",
		Heat:       "800",
		URL:        "https://www.zhihu.com/question/unknown",
		RawExcerpt: crawler.ExcerptUnavailable,
		FetchedAt:  begin.Add(2 * time.Second),
	}
	// Persist out of order to show reads sort by ranking.
	require.NoError(t, ledger.AddItem(ctx, partial))
	require.NoError(t, ledger.AddItem(ctx, resolved))

	items, err := ledger.ListItems(ctx, crawl.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, 0, items[0].Ranking)
	require.Equal(t, resolved.ExternalID, items[0].ExternalID)
	require.Equal(t, resolved.ViewCount, items[0].ViewCount)
	require.True(t, items[0].CreatedAt.V.Equal(resolved.CreatedAt.V))
	require.True(t, items[0].FetchedAt.Equal(resolved.FetchedAt))

	require.Equal(t, 1, items[1].Ranking)
	require.False(t, items[1].ExternalID.Valid)
	require.False(t, items[1].CreatedAt.Valid)
	require.False(t, items[1].ViewCount.Valid)
	require.Equal(t, crawler.ExcerptUnavailable, items[1].RawExcerpt)
}

func TestAddItemDuplicateRankingFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := newTestLedger(t, zap.NewNop())
	crawl, err := ledger.OpenCrawl(ctx, time.Now().UTC())
	require.NoError(t, err)

	item := crawler.Item{CrawlID: crawl.ID, Ranking: 0, Title: "t", Heat: "1", FetchedAt: time.Now().UTC()}
	require.NoError(t, ledger.AddItem(ctx, item))
	require.Error(t, ledger.AddItem(ctx, item))
}

func TestAddItemUnknownCrawlLogsStatement(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	ledger := newTestLedger(t, zap.New(core))

	item := crawler.Item{CrawlID: 999, Ranking: 0, Title: "orphan", Heat: "1", FetchedAt: time.Now().UTC()}
	err := ledger.AddItem(context.Background(), item)
	require.ErrorContains(t, err, "FOREIGN KEY")

	entries := logs.FilterMessage("statement failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Contains(t, fields["statement"], "INSERT INTO record")
	args, ok := fields["args"].([]any)
	require.True(t, ok)
	require.Len(t, args, 12)
}

func TestAddItemRequiresCrawlID(t *testing.T) {
	t.Parallel()

	ledger := newTestLedger(t, zap.NewNop())
	require.Error(t, ledger.AddItem(context.Background(), crawler.Item{Title: "t"}))
}
