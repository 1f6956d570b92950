package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/crawler"
	"github.com/JakeFAU/boardwatch/internal/metrics"
	"github.com/JakeFAU/boardwatch/internal/middleware"
)

const (
	defaultCrawlLimit = 20
	maxCrawlLimit     = 500
	readyTimeout      = 2 * time.Second
)

// Server wires HTTP handlers to the ledger.
type Server struct {
	router chi.Router
	ledger crawler.LedgerReader
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(ledger crawler.LedgerReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{ledger: ledger, logger: logger}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1/crawls", func(r chi.Router) {
		r.Get("/", s.listCrawls)
		r.Get("/{crawl_id}/items", s.listItems)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	limit := defaultCrawlLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCrawlLimit)
	}
	crawls, err := s.ledger.ListCrawls(r.Context(), limit)
	if err != nil {
		s.logger.Error("list crawls failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list crawls")
		return
	}
	out := make([]crawlResponse, 0, len(crawls))
	for _, crawl := range crawls {
		out = append(out, toCrawlResponse(crawl))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawls": out})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	crawlID, err := strconv.ParseInt(chi.URLParam(r, "crawl_id"), 10, 64)
	if err != nil || crawlID <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid crawl id")
		return
	}
	items, err := s.ledger.ListItems(r.Context(), crawlID)
	if err != nil {
		s.logger.Error("list items failed", zap.Int64("crawl_id", crawlID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"crawl_id": crawlID, "items": out})
}

type crawlResponse struct {
	ID     int64      `json:"id"`
	Begin  time.Time  `json:"begin"`
	End    *time.Time `json:"end"`
	Status string     `json:"status"`
}

func toCrawlResponse(crawl crawler.Crawl) crawlResponse {
	resp := crawlResponse{ID: crawl.ID, Begin: crawl.Begin, Status: "open"}
	if crawl.Closed() {
		end := crawl.End.V
		resp.End = &end
		resp.Status = "closed"
	}
	return resp
}

type itemResponse struct {
	ExternalID    *string    `json:"external_id"`
	Ranking       int        `json:"ranking"`
	Title         string     `json:"title"`
	Heat          string     `json:"heat"`
	URL           string     `json:"url"`
	CreatedAt     *time.Time `json:"created_at"`
	ViewCount     *int64     `json:"view_count"`
	FollowerCount *int64     `json:"follower_count"`
	AnswerCount   *int64     `json:"answer_count"`
	RawExcerpt    string     `json:"raw_excerpt"`
	FetchedAt     time.Time  `json:"fetched_at"`
}

func toItemResponse(item crawler.Item) itemResponse {
	return itemResponse{
		ExternalID:    nullable(item.ExternalID.V, item.ExternalID.Valid),
		Ranking:       item.Ranking,
		Title:         item.Title,
		Heat:          item.Heat,
		URL:           item.URL,
		CreatedAt:     nullable(item.CreatedAt.V, item.CreatedAt.Valid),
		ViewCount:     nullable(item.ViewCount.V, item.ViewCount.Valid),
		FollowerCount: nullable(item.FollowerCount.V, item.FollowerCount.Valid),
		AnswerCount:   nullable(item.AnswerCount.V, item.AnswerCount.Valid),
		RawExcerpt:    item.RawExcerpt,
		FetchedAt:     item.FetchedAt,
	}
}

func nullable[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
