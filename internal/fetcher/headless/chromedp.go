// Package headless provides the browser-session fetcher: requests run inside
// a Chrome profile that already holds the upstream login.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

const defaultNavTimeout = 45 * time.Second

// Config controls the browser session.
type Config struct {
	// UserDataDir is a Chrome profile directory with a signed-in session.
	UserDataDir       string
	Headless          bool
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
}

// Fetcher implements crawler.Fetcher by navigating a long-lived browser.
type Fetcher struct {
	cfg Config

	// mu serializes navigations; the session is a single browser.
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	started       bool
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// NewSession creates a browser-backed fetcher. Chrome starts on first use.
func NewSession(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.UserDataDir) == "" {
		return nil, fmt.Errorf("user data dir is required")
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	return &Fetcher{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browser:       browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(cfg.UserDataDir),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.browserCancel()
	f.allocCancel()
}

// Fetch navigates a fresh tab of the session browser. JSON documents are
// returned as their text; HTML documents as the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.start(); err != nil {
		return crawler.FetchResponse{}, err
	}
	tabCtx, tabCancel := chromedp.NewContext(f.browser)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()
	page, err := f.navigate(tabCtx, request)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.FetchResponse{}, fmt.Errorf("browser fetch canceled: %w", ctx.Err())
		}
		return crawler.FetchResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, page.finalURL)
	resp := crawler.FetchResponse{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(page.body()),
		Duration:   time.Since(start),
	}
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: request.URL, StatusCode: status, Body: resp.Body}
	}
	return resp, nil
}

// start launches Chrome so later tabs share one browser and its cookies.
func (f *Fetcher) start() error {
	if f.started {
		return nil
	}
	if err := chromedp.Run(f.browser); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	f.started = true
	return nil
}

type renderedPage struct {
	finalURL    string
	contentType string
	html        string
	text        string
}

// body picks the representation a parser expects for the document type.
func (p renderedPage) body() string {
	if strings.Contains(p.contentType, "json") {
		return p.text
	}
	return p.html
}

func (f *Fetcher) navigate(ctx context.Context, request crawler.FetchRequest) (renderedPage, error) {
	var page renderedPage
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&page.finalURL),
		chromedp.Evaluate(`document.contentType`, &page.contentType),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &page.text),
		chromedp.OuterHTML("html", &page.html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return renderedPage{}, fmt.Errorf("chromedp run: %w", err)
	}
	return page, nil
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	merged := cloneHeader(f.cfg.Headers)
	for key, values := range headers {
		merged[key] = append([]string(nil), values...)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(merged) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(merged)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, cloneHeader(m.headers), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return http.Header{}
	}
	return src.Clone()
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		// CDP takes one value per header; repeated values are comma-joined.
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
