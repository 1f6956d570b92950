package crawler

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItemMarksUnresolvedFields(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2024, 7, 8, 12, 0, 0, 0, time.UTC)
	entry := BoardEntry{Title: "title", Heat: "120", URL: "https://example.org/question/1"}
	detail := Detail{
		ViewCount:  sql.Null[int64]{V: 10, Valid: true},
		RawExcerpt: sql.Null[string]{V: "text", Valid: true},
	}

	item := NewItem(entry, detail, fetched)
	assert.Equal(t, "text", item.RawExcerpt)
	assert.Equal(t, int64(10), item.ViewCount.V)
	assert.Equal(t, fetched, item.FetchedAt)
	assert.Equal(t, []string{FieldExternalID, FieldCreatedAt, FieldFollowerCount, FieldAnswerCount}, item.Unresolved)
}

func TestNewItemUsesExcerptSentinel(t *testing.T) {
	t.Parallel()

	entry := BoardEntry{ExternalID: sql.Null[string]{V: "42", Valid: true}, Title: "t"}
	item := NewItem(entry, Detail{}, time.Now())
	assert.Equal(t, ExcerptUnavailable, item.RawExcerpt)
	assert.Equal(t, DetailFields, item.Unresolved)
}

func TestLedgerTimeDropsMonotonicReading(t *testing.T) {
	t.Parallel()

	local := time.FixedZone("UTC+8", 8*60*60)
	now := time.Now().In(local)
	stamped := LedgerTime(now)

	assert.Equal(t, time.UTC, stamped.Location())
	assert.Zero(t, stamped.Nanosecond()%int(time.Microsecond))
	assert.NotContains(t, stamped.String(), "m=")
	assert.True(t, stamped.Equal(now.Truncate(time.Microsecond)))
}

func TestDetailUnresolvedFollowsFieldOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DetailFields, Detail{}.Unresolved())
	full := Detail{
		CreatedAt:     sql.Null[time.Time]{V: time.Unix(1, 0), Valid: true},
		ViewCount:     sql.Null[int64]{Valid: true},
		FollowerCount: sql.Null[int64]{Valid: true},
		AnswerCount:   sql.Null[int64]{Valid: true},
		RawExcerpt:    sql.Null[string]{Valid: true},
	}
	assert.Empty(t, full.Unresolved())
	full.AnswerCount.Valid = false
	assert.Equal(t, []string{FieldAnswerCount}, full.Unresolved())
}

func TestDetailMergePrefersResolvedValues(t *testing.T) {
	t.Parallel()

	primary := Detail{AnswerCount: sql.Null[int64]{V: 5, Valid: true}}
	fallback := Detail{
		AnswerCount:   sql.Null[int64]{V: 99, Valid: true},
		FollowerCount: sql.Null[int64]{V: 7, Valid: true},
	}
	merged := primary.Merge(fallback)
	assert.Equal(t, int64(5), merged.AnswerCount.V)
	assert.Equal(t, int64(7), merged.FollowerCount.V)
	assert.False(t, merged.ViewCount.Valid)
}

func TestBoardTitlesTruncatesRunes(t *testing.T) {
	t.Parallel()

	board := Board{Entries: []BoardEntry{{Title: "日本前首相安倍晋三胸部中枪已无生命体征嫌疑人被控制"}, {Title: "short"}}}
	titles := board.Titles(20)
	require.Len(t, titles, 2)
	assert.Len(t, []rune(titles[0]), 20)
	assert.Equal(t, "short", titles[1])
}

func TestBoardUnavailableLiftsStatus(t *testing.T) {
	t.Parallel()

	statusErr := &StatusError{URL: "https://example.org/board", StatusCode: 403, Body: []byte("denied")}
	err := NewBoardUnavailable(fmt.Errorf("fetch board: %w", statusErr))

	assert.Equal(t, 403, err.StatusCode)
	assert.Equal(t, []byte("denied"), err.Body)
	assert.Contains(t, err.Error(), "status 403")

	var target *StatusError
	require.True(t, errors.As(err, &target))
}

func TestBoardUnavailableWithoutResponse(t *testing.T) {
	t.Parallel()

	err := NewBoardUnavailable(ErrMalformedBoard)
	assert.Zero(t, err.StatusCode)
	assert.ErrorIs(t, err, ErrMalformedBoard)
	assert.Equal(t, "board unavailable: malformed board payload", err.Error())
}

func TestPersistenceErrorUnwraps(t *testing.T) {
	t.Parallel()

	base := errors.New("duplicate key")
	err := &PersistenceError{CrawlID: 3, Ranking: 1, Err: base}
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "persist item 1 of crawl 3: duplicate key", err.Error())
}

func TestCycleReportStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "open_failed", CycleReport{}.Status())
	assert.Equal(t, "board_unavailable", CycleReport{Opened: true, BoardError: true}.Status())
	assert.Equal(t, "failed", CycleReport{Opened: true, Err: errors.New("boom")}.Status())
	assert.Equal(t, "ok", CycleReport{Opened: true}.Status())
}

func TestBodySnippet(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc...", BodySnippet([]byte("abcdef"), 3))
	assert.Equal(t, "abc", BodySnippet([]byte("abc"), 10))
}
