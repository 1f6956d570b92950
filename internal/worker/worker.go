// Package worker runs the periodic harvest loop: open a crawl, read the board,
// enrich and persist every entry in ranking order, close the crawl, then wait
// for the next cycle.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

const (
	titleLogLimit    = 20
	bodySnippetLimit = 512
)

// Item outcomes reported to the Observer.
const (
	OutcomePersisted = "persisted"
	OutcomeFailed    = "failed"
)

// Config controls Worker behavior.
type Config struct {
	// ItemCap limits how many leading board entries are harvested. Zero
	// harvests the whole board.
	ItemCap int
	// Topic receives a crawl-closed notification when a Publisher is set.
	Topic string
}

// Observer receives cycle telemetry.
type Observer interface {
	ObserveCycle(report crawler.CycleReport)
	ObserveBoard(entries int)
	ObserveItem(outcome string, unresolved []string)
	ObserveNextCycleDelay(delay time.Duration)
}

// Deps are the collaborators of a Worker. Archive, Publisher and Observer are
// optional.
type Deps struct {
	Ledger    crawler.Ledger
	Source    crawler.Source
	Pacer     *crawler.Pacer
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Archive   crawler.BlobStore
	Publisher crawler.Publisher
	Observer  Observer
}

// Worker is the crawl orchestrator.
type Worker struct {
	ledger    crawler.Ledger
	source    crawler.Source
	pacer     *crawler.Pacer
	clock     crawler.Clock
	ids       crawler.IDGenerator
	archive   crawler.BlobStore
	publisher crawler.Publisher
	observer  Observer
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("ledger is required")
	case deps.Source == nil:
		return nil, errors.New("source is required")
	case deps.Pacer == nil:
		return nil, errors.New("pacer is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.ItemCap < 0 {
		return nil, fmt.Errorf("item cap must be >= 0, got %d", cfg.ItemCap)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := deps.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Worker{
		ledger:    deps.Ledger,
		source:    deps.Source,
		pacer:     deps.Pacer,
		clock:     deps.Clock,
		ids:       deps.IDs,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		observer:  observer,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Run harvests until ctx is canceled. A cycle in progress always finishes;
// cancellation is observed while waiting for the next cycle.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("harvest loop started",
		zap.Duration("interval", w.pacer.Interval()),
		zap.Int("item_cap", w.cfg.ItemCap),
	)
	for {
		if ctx.Err() != nil {
			w.logger.Info("harvest loop stopped")
			return nil
		}
		cycleStart := w.clock.Now()
		w.runCycle(context.WithoutCancel(ctx), cycleStart)

		delay, err := w.pacer.WaitForNextCycle(ctx, cycleStart)
		w.observer.ObserveNextCycleDelay(delay)
		if err != nil {
			w.logger.Info("harvest loop stopped", zap.Error(err))
			return nil
		}
	}
}

// RunOnce runs a single cycle without the trailing wait.
func (w *Worker) RunOnce(ctx context.Context) crawler.CycleReport {
	return w.runCycle(context.WithoutCancel(ctx), w.clock.Now())
}

func (w *Worker) runCycle(ctx context.Context, cycleStart time.Time) (report crawler.CycleReport) {
	report.Begin = crawler.LedgerTime(cycleStart)
	runID, err := w.ids.NewID()
	if err != nil {
		w.logger.Warn("run id generation failed", zap.Error(err))
	}
	report.RunID = runID
	logger := w.logger.With(zap.String("run_id", runID))

	defer func() {
		if r := recover(); r != nil {
			report.Err = fmt.Errorf("cycle panic: %v", r)
			logger.Error("cycle aborted",
				crawlIDField(report),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
		report.Duration = w.elapsed(cycleStart)
		report.End = crawler.LedgerTime(report.Begin.Add(report.Duration))
		w.observer.ObserveCycle(report)
		logger.Info("cycle finished",
			crawlIDField(report),
			zap.String("status", report.Status()),
			zap.Int("entries", report.Entries),
			zap.Int("persisted", report.Persisted),
			zap.Int("failed", report.Failed),
			zap.Int("unparsed", report.Unparsed),
			zap.Duration("duration", report.Duration),
		)
	}()

	crawl, err := w.ledger.OpenCrawl(ctx, report.Begin)
	if err != nil {
		report.Err = fmt.Errorf("open crawl: %w", err)
		logger.Error("open crawl failed", crawlIDField(report), zap.Error(err))
		return report
	}
	report.Opened = true
	report.CrawlID = crawl.ID
	crawlLogger := logger.With(zap.Int64("crawl_id", crawl.ID))
	defer w.closeCrawl(ctx, crawlLogger, &report, cycleStart)

	w.harvest(ctx, crawlLogger, &report)
	return report
}

func (w *Worker) harvest(ctx context.Context, logger *zap.Logger, report *crawler.CycleReport) {
	board, err := w.source.FetchBoard(ctx)
	if err != nil {
		report.BoardError = true
		report.Err = err
		fields := []zap.Field{zap.Error(err)}
		var unavailable *crawler.BoardUnavailableError
		if errors.As(err, &unavailable) {
			fields = append(fields,
				zap.Int("status", unavailable.StatusCode),
				zap.String("body", crawler.BodySnippet(unavailable.Body, bodySnippetLimit)),
			)
		}
		logger.Error("board unavailable", fields...)
		return
	}
	w.archiveBoard(ctx, logger, report.CrawlID, board)

	if w.cfg.ItemCap > 0 && len(board.Entries) > w.cfg.ItemCap {
		board.Entries = board.Entries[:w.cfg.ItemCap]
	}
	report.Entries = len(board.Entries)
	w.observer.ObserveBoard(report.Entries)
	logger.Info("board fetched",
		zap.Int("entries", report.Entries),
		zap.Strings("titles", board.Titles(titleLogLimit)),
	)

	for ranking, entry := range board.Entries {
		if ranking > 0 {
			w.pacer.WaitBetweenItems(ctx)
		}
		w.harvestEntry(ctx, logger, report, ranking, entry)
	}
}

func (w *Worker) harvestEntry(
	ctx context.Context,
	logger *zap.Logger,
	report *crawler.CycleReport,
	ranking int,
	entry crawler.BoardEntry,
) {
	item, err := w.source.Enrich(ctx, entry)
	if err != nil {
		logger.Warn("detail fetch failed",
			zap.Int("ranking", ranking),
			zap.String("title", entry.Title),
			zap.String("url", entry.URL),
			zap.Error(err),
		)
	}
	item.CrawlID = report.CrawlID
	item.Ranking = ranking

	if !item.ExternalID.Valid {
		report.Unparsed++
		logger.Warn("unparsed url", zap.Int("ranking", ranking), zap.String("url", item.URL))
	}
	if len(item.Unresolved) > 0 {
		logger.Warn("unresolved fields",
			zap.Int("ranking", ranking),
			zap.String("title", item.Title),
			zap.Strings("fields", item.Unresolved),
		)
	}

	if err := w.ledger.AddItem(ctx, item); err != nil {
		report.Failed++
		w.observer.ObserveItem(OutcomeFailed, item.Unresolved)
		logger.Error("persist item failed",
			zap.Int("ranking", ranking),
			zap.String("title", item.Title),
			zap.String("url", item.URL),
			zap.Error(&crawler.PersistenceError{CrawlID: report.CrawlID, Ranking: ranking, Err: err}),
		)
		return
	}
	report.Persisted++
	w.observer.ObserveItem(OutcomePersisted, item.Unresolved)
}

func (w *Worker) closeCrawl(ctx context.Context, logger *zap.Logger, report *crawler.CycleReport, cycleStart time.Time) {
	end := crawler.LedgerTime(report.Begin.Add(w.elapsed(cycleStart)))
	if err := w.ledger.CloseCrawl(ctx, report.CrawlID, end); err != nil {
		logger.Error("close crawl failed", zap.Error(err))
		if report.Err == nil {
			report.Err = fmt.Errorf("close crawl: %w", err)
		}
		return
	}
	logger.Debug("crawl closed", zap.Time("end", end))
	w.notify(ctx, logger, *report, end)
}

func (w *Worker) archiveBoard(ctx context.Context, logger *zap.Logger, crawlID int64, board crawler.Board) {
	if w.archive == nil || len(board.Raw) == 0 {
		return
	}
	path := fmt.Sprintf("%d-%d.json", crawlID, board.FetchedAt.Unix())
	uri, err := w.archive.PutObject(ctx, path, "application/json", bytes.NewReader(board.Raw))
	if err != nil {
		logger.Warn("board archive failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("board archived", zap.String("uri", uri))
}

// crawlClosedMessage is the notification published after a crawl closes.
type crawlClosedMessage struct {
	RunID     string    `json:"run_id"`
	CrawlID   int64     `json:"crawl_id"`
	Begin     time.Time `json:"begin"`
	End       time.Time `json:"end"`
	Entries   int       `json:"entries"`
	Persisted int       `json:"persisted"`
	Failed    int       `json:"failed"`
	Status    string    `json:"status"`
}

func (w *Worker) notify(ctx context.Context, logger *zap.Logger, report crawler.CycleReport, end time.Time) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	msg := crawlClosedMessage{
		RunID:     report.RunID,
		CrawlID:   report.CrawlID,
		Begin:     report.Begin,
		End:       end,
		Entries:   report.Entries,
		Persisted: report.Persisted,
		Failed:    report.Failed,
		Status:    report.Status(),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, msg)
	if err != nil {
		logger.Warn("crawl notification failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("crawl notification published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}

// elapsed measures time since cycleStart on the clock's monotonic reading.
// The stored begin plus elapsed never precedes begin, whatever the wall clock
// does mid-cycle.
func (w *Worker) elapsed(cycleStart time.Time) time.Duration {
	return max(w.clock.Now().Sub(cycleStart), 0)
}

func crawlIDField(report crawler.CycleReport) zap.Field {
	if !report.Opened {
		return zap.Any("crawl_id", nil)
	}
	return zap.Int64("crawl_id", report.CrawlID)
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(crawler.CycleReport)    {}
func (nopObserver) ObserveBoard(int)                    {}
func (nopObserver) ObserveItem(string, []string)        {}
func (nopObserver) ObserveNextCycleDelay(time.Duration) {}
