// Package server assembles the harvester from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/boardwatch/internal/api"
	"github.com/JakeFAU/boardwatch/internal/board"
	"github.com/JakeFAU/boardwatch/internal/board/hotlist"
	"github.com/JakeFAU/boardwatch/internal/clock/system"
	"github.com/JakeFAU/boardwatch/internal/config"
	"github.com/JakeFAU/boardwatch/internal/crawler"
	collyfetcher "github.com/JakeFAU/boardwatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/boardwatch/internal/fetcher/headless"
	"github.com/JakeFAU/boardwatch/internal/id/uuid"
	"github.com/JakeFAU/boardwatch/internal/metrics"
	gcppublisher "github.com/JakeFAU/boardwatch/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/boardwatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/boardwatch/internal/storage/local"
	memorystorage "github.com/JakeFAU/boardwatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/boardwatch/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/boardwatch/internal/storage/sqlite"
	"github.com/JakeFAU/boardwatch/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        crawler.Store
	worker       *worker.Worker
	apiServer    *api.Server
	browser      *headlessfetcher.Fetcher
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client
}

// OpenStore connects the configured ledger backend without building the
// rest of the application.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Store, error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewLedger(ctx, pgstore.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres ledger init failed: %w", err)
		}
		logger.Info("using postgres ledger")
		return store, nil
	case config.DriverSQLite:
		store, err := sqlitestore.NewLedger(sqlitestore.Config{Path: cfg.DB.DSN}, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger init failed: %w", err)
		}
		logger.Info("using sqlite ledger", zap.String("path", cfg.DB.DSN))
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory ledger; crawls are lost on exit")
		return memorystorage.NewLedger(), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}
}

// Build creates the application's dependencies and applies the ledger
// schema. A schema failure is fatal.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	if err := app.build(ctx); err != nil {
		if cerr := app.Close(); cerr != nil {
			logger.Warn("cleanup after failed build", zap.Error(cerr))
		}
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	var err error
	a.store, err = OpenStore(ctx, a.cfg, a.logger.Named("ledger"))
	if err != nil {
		return err
	}
	if err := a.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	archive, err := a.setupArchive(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	fetcher, err := a.setupFetcher()
	if err != nil {
		return err
	}

	clock := system.New()
	source, err := board.NewSource(fetcher, hotlist.New(), clock, board.Config{
		BoardURL: a.cfg.Upstream.BoardURL,
	}, a.logger.Named("board"))
	if err != nil {
		return fmt.Errorf("board source init failed: %w", err)
	}

	workerCfg := worker.Config{ItemCap: a.cfg.Harvest.ItemCap, Topic: a.cfg.Notify.TopicName}
	deps := worker.Deps{
		Ledger:   a.store,
		Source:   source,
		Pacer:    crawler.NewPacer(a.cfg.PollInterval(), a.cfg.ItemDelay(), clock),
		Clock:    clock,
		IDs:      uuid.New(),
		Archive:  archive,
		Observer: metrics.NewRecorder(),
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	a.worker, err = worker.New(workerCfg, deps, a.logger.Named("worker"))
	if err != nil {
		return fmt.Errorf("worker init failed: %w", err)
	}
	a.logger.Info("worker config",
		zap.Duration("poll_interval", a.cfg.PollInterval()),
		zap.Duration("item_delay", a.cfg.ItemDelay()),
		zap.Int("item_cap", workerCfg.ItemCap),
		zap.String("topic", workerCfg.Topic),
	)

	if a.cfg.Server.Enabled {
		a.apiServer = api.NewServer(a.store, a.logger.Named("api"))
	}
	return nil
}

func (a *App) setupArchive(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		store, err := gcsstorage.New(a.storage, gcsstorage.Config{
			Bucket: a.cfg.Archive.Bucket,
			Prefix: a.cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving boards to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
		return store, nil
	case config.ArchiveLocal:
		store, err := localstorage.New(a.cfg.Archive.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving boards locally", zap.String("path", a.cfg.Archive.Local.BaseDir))
		return store, nil
	case config.ArchiveMemory:
		a.logger.Info("archiving boards in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("board archive disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (*gcppublisher.Publisher, error) {
	if !a.cfg.Notify.Enabled() {
		a.logger.Debug("crawl notifications disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.Notify.ProjectID),
		zap.String("topic", a.cfg.Notify.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupFetcher() (crawler.Fetcher, error) {
	headers := a.cfg.RequestHeaders()
	switch a.cfg.Session.Mode {
	case config.SessionBrowser:
		browser, err := headlessfetcher.NewSession(headlessfetcher.Config{
			UserDataDir:       a.cfg.Session.UserDataDir,
			Headless:          a.cfg.Session.Headless,
			UserAgent:         a.cfg.Upstream.UserAgent,
			Headers:           headers,
			NavigationTimeout: a.cfg.NavTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("browser session init failed: %w", err)
		}
		a.browser = browser
		a.logger.Info("using browser session", zap.String("user_data_dir", a.cfg.Session.UserDataDir))
		return browser, nil
	default:
		a.logger.Info("using http session", zap.String("user_agent", a.cfg.Upstream.UserAgent))
		return collyfetcher.New(collyfetcher.Config{
			UserAgent: a.cfg.Upstream.UserAgent,
			Headers:   headers,
			Timeout:   a.cfg.RequestTimeout(),
		}), nil
	}
}

// Store exposes the ledger for read-only commands.
func (a *App) Store() crawler.Store {
	return a.store
}

// RunOnce runs a single harvest cycle.
func (a *App) RunOnce(ctx context.Context) crawler.CycleReport {
	return a.worker.RunOnce(ctx)
}

// Run starts the harvest loop (and the status server when enabled) and
// blocks until SIGINT/SIGTERM or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if a.apiServer != nil {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	err := a.worker.Run(ctx)
	a.logger.Info("shutdown initiated")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.logger.Error("server shutdown error", zap.Error(serr))
		}
	}
	return err
}

// Close releases every external resource.
func (a *App) Close() error {
	var errs []error
	if a.browser != nil {
		a.browser.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("pubsub client close: %w", err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gcs client close: %w", err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
