package crawler

import (
	"database/sql"
	"net/http"
	"time"
)

// ExcerptUnavailable is stored in place of the detail excerpt when the page
// did not contain one or could not be fetched.
const ExcerptUnavailable = "unavailable"

// Field names reported in Item.Unresolved.
const (
	FieldExternalID    = "external_id"
	FieldCreatedAt     = "created_at"
	FieldViewCount     = "view_count"
	FieldFollowerCount = "follower_count"
	FieldAnswerCount   = "answer_count"
	FieldRawExcerpt    = "raw_excerpt"
)

// DetailFields lists the fields populated by the per-item detail fetch.
var DetailFields = []string{
	FieldCreatedAt,
	FieldViewCount,
	FieldFollowerCount,
	FieldAnswerCount,
	FieldRawExcerpt,
}

// LedgerTime normalizes t for storage: UTC, microsecond precision and no
// monotonic reading. Elapsed time must be measured on the original value.
func LedgerTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Crawl is one harvest attempt. End stays invalid while the crawl is open.
type Crawl struct {
	ID    int64               `json:"id" db:"id"`
	Begin time.Time           `json:"begin" db:"begin"`
	End   sql.Null[time.Time] `json:"end" db:"end"`
}

// Closed reports whether the crawl has an end timestamp.
func (c Crawl) Closed() bool {
	return c.End.Valid
}

// BoardEntry is one ranked row of the board, in board order.
type BoardEntry struct {
	ExternalID sql.Null[string]
	Title      string
	Heat       string
	URL        string
	// Hints carries counters the board itself reports. They back-fill detail
	// fields the detail page does not expose.
	Hints Detail
}

// Board is a parsed board snapshot.
type Board struct {
	Entries   []BoardEntry
	Raw       []byte
	FetchedAt time.Time
}

// Titles returns the entry titles truncated to limit runes.
func (b Board) Titles(limit int) []string {
	titles := make([]string, 0, len(b.Entries))
	for _, entry := range b.Entries {
		titles = append(titles, truncateRunes(entry.Title, limit))
	}
	return titles
}

// Detail holds the fields extracted from a detail page. Each field resolves
// independently.
type Detail struct {
	CreatedAt     sql.Null[time.Time]
	ViewCount     sql.Null[int64]
	FollowerCount sql.Null[int64]
	AnswerCount   sql.Null[int64]
	RawExcerpt    sql.Null[string]
}

// Merge fills fields unresolved in d from fallback.
func (d Detail) Merge(fallback Detail) Detail {
	if !d.CreatedAt.Valid {
		d.CreatedAt = fallback.CreatedAt
	}
	if !d.ViewCount.Valid {
		d.ViewCount = fallback.ViewCount
	}
	if !d.FollowerCount.Valid {
		d.FollowerCount = fallback.FollowerCount
	}
	if !d.AnswerCount.Valid {
		d.AnswerCount = fallback.AnswerCount
	}
	if !d.RawExcerpt.Valid {
		d.RawExcerpt = fallback.RawExcerpt
	}
	return d
}

// Unresolved returns the names of the detail fields that are not valid, in
// DetailFields order.
func (d Detail) Unresolved() []string {
	valid := map[string]bool{
		FieldCreatedAt:     d.CreatedAt.Valid,
		FieldViewCount:     d.ViewCount.Valid,
		FieldFollowerCount: d.FollowerCount.Valid,
		FieldAnswerCount:   d.AnswerCount.Valid,
		FieldRawExcerpt:    d.RawExcerpt.Valid,
	}
	var missing []string
	for _, name := range DetailFields {
		if !valid[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// Item is one harvested board entry, enriched and ready to persist.
type Item struct {
	ExternalID    sql.Null[string]    `json:"external_id"`
	CrawlID       int64               `json:"crawl_id"`
	Ranking       int                 `json:"ranking"`
	Title         string              `json:"title"`
	Heat          string              `json:"heat"`
	URL           string              `json:"url"`
	CreatedAt     sql.Null[time.Time] `json:"created_at"`
	ViewCount     sql.Null[int64]     `json:"view_count"`
	FollowerCount sql.Null[int64]     `json:"follower_count"`
	AnswerCount   sql.Null[int64]     `json:"answer_count"`
	RawExcerpt    string              `json:"raw_excerpt"`
	FetchedAt     time.Time           `json:"fetched_at"`
	// Unresolved names the fields that could not be resolved. It is not
	// persisted.
	Unresolved []string `json:"-"`
}

// NewItem builds an item from a board entry and its detail. The crawl id and
// ranking are stamped later by the orchestrator.
func NewItem(entry BoardEntry, detail Detail, fetchedAt time.Time) Item {
	item := Item{
		ExternalID:    entry.ExternalID,
		Title:         entry.Title,
		Heat:          entry.Heat,
		URL:           entry.URL,
		CreatedAt:     detail.CreatedAt,
		ViewCount:     detail.ViewCount,
		FollowerCount: detail.FollowerCount,
		AnswerCount:   detail.AnswerCount,
		RawExcerpt:    ExcerptUnavailable,
		FetchedAt:     LedgerTime(fetchedAt),
	}
	if detail.RawExcerpt.Valid {
		item.RawExcerpt = detail.RawExcerpt.V
	}
	if !entry.ExternalID.Valid {
		item.Unresolved = append(item.Unresolved, FieldExternalID)
	}
	item.Unresolved = append(item.Unresolved, detail.Unresolved()...)
	return item
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// CycleReport summarizes one cycle for logs, metrics, and notifications.
type CycleReport struct {
	RunID      string        `json:"run_id"`
	CrawlID    int64         `json:"crawl_id"`
	Begin      time.Time     `json:"begin"`
	End        time.Time     `json:"end"`
	Entries    int           `json:"entries"`
	Persisted  int           `json:"persisted"`
	Failed     int           `json:"failed"`
	Unparsed   int           `json:"unparsed"`
	Duration   time.Duration `json:"-"`
	Err        error         `json:"-"`
	Opened     bool          `json:"-"`
	BoardError bool          `json:"-"`
}

// Status labels the cycle outcome.
func (r CycleReport) Status() string {
	switch {
	case !r.Opened:
		return "open_failed"
	case r.BoardError:
		return "board_unavailable"
	case r.Err != nil:
		return "failed"
	default:
		return "ok"
	}
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
