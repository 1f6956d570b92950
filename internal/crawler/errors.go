package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedBoard is returned when a board payload has the wrong shape.
	ErrMalformedBoard = errors.New("malformed board payload")
	// ErrCrawlNotOpen is returned when closing a crawl that is missing or
	// already closed.
	ErrCrawlNotOpen = errors.New("crawl not found or already closed")
)

// StatusError reports an upstream response with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// BoardUnavailableError means the board could not be retrieved or parsed.
// StatusCode and Body are set when the upstream answered.
type BoardUnavailableError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *BoardUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("board unavailable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("board unavailable: %v", e.Err)
}

func (e *BoardUnavailableError) Unwrap() error {
	return e.Err
}

// NewBoardUnavailable wraps err, lifting status and body from a StatusError.
func NewBoardUnavailable(err error) *BoardUnavailableError {
	out := &BoardUnavailableError{Err: err}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		out.StatusCode = statusErr.StatusCode
		out.Body = statusErr.Body
	}
	return out
}

// PersistenceError reports a failed item write.
type PersistenceError struct {
	CrawlID int64
	Ranking int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist item %d of crawl %d: %v", e.Ranking, e.CrawlID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// BodySnippet trims an upstream body for logging.
func BodySnippet(body []byte, limit int) string {
	if limit > 0 && len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
