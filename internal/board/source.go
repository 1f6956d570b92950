// Package board retrieves the ranked board and enriches its entries with a
// per-item detail fetch. Field extraction is delegated to a Parser.
package board

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

// Parser extracts typed data from upstream payloads.
type Parser interface {
	// ParseBoard returns the entries in board order. An error means the
	// payload could not be interpreted as a board at all.
	ParseBoard(body []byte) ([]crawler.BoardEntry, error)
	// ParseDetail extracts what it can from a detail page. Fields it cannot
	// find stay invalid.
	ParseDetail(body []byte) (crawler.Detail, error)
}

// Config describes the board endpoint.
type Config struct {
	BoardURL string
}

var (
	boardHeaders  = http.Header{"Accept": {"application/json, text/plain, */*"}}
	detailHeaders = http.Header{"Accept": {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"}}
)

// Source implements crawler.Source over a Fetcher and a Parser.
type Source struct {
	fetcher crawler.Fetcher
	parser  Parser
	clock   crawler.Clock
	cfg     Config
	logger  *zap.Logger
}

var _ crawler.Source = (*Source)(nil)

// NewSource wires a board source.
func NewSource(fetcher crawler.Fetcher, parser Parser, clock crawler.Clock, cfg Config, logger *zap.Logger) (*Source, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.BoardURL == "" {
		return nil, fmt.Errorf("board url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{fetcher: fetcher, parser: parser, clock: clock, cfg: cfg, logger: logger}, nil
}

// FetchBoard retrieves and parses the board. Every failure is reported as a
// *crawler.BoardUnavailableError carrying the upstream status and body when
// a response was received.
func (s *Source) FetchBoard(ctx context.Context) (crawler.Board, error) {
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: s.cfg.BoardURL, Headers: boardHeaders.Clone()})
	if err != nil {
		return crawler.Board{}, crawler.NewBoardUnavailable(fmt.Errorf("fetch board: %w", err))
	}
	entries, err := s.parser.ParseBoard(resp.Body)
	if err != nil {
		return crawler.Board{}, &crawler.BoardUnavailableError{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Err:        fmt.Errorf("parse board: %w", err),
		}
	}
	s.logger.Debug("board fetched",
		zap.Int("entries", len(entries)),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	return crawler.Board{Entries: entries, Raw: resp.Body, FetchedAt: crawler.LedgerTime(s.clock.Now())}, nil
}

// Enrich fetches the entry's detail page. It always returns a usable item:
// when the detail fetch fails every detail field is left unresolved and the
// error is returned alongside for the caller to log.
func (s *Source) Enrich(ctx context.Context, entry crawler.BoardEntry) (crawler.Item, error) {
	fetchedAt := s.clock.Now()
	if entry.URL == "" {
		return crawler.NewItem(entry, crawler.Detail{}, fetchedAt), fmt.Errorf("entry has no detail url")
	}
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: entry.URL, Headers: detailHeaders.Clone()})
	if err != nil {
		return crawler.NewItem(entry, crawler.Detail{}, fetchedAt), fmt.Errorf("fetch detail %s: %w", entry.URL, err)
	}
	detail, err := s.parser.ParseDetail(resp.Body)
	if err != nil {
		return crawler.NewItem(entry, crawler.Detail{}, fetchedAt), fmt.Errorf("parse detail %s: %w", entry.URL, err)
	}
	return crawler.NewItem(entry, detail.Merge(entry.Hints), fetchedAt), nil
}
