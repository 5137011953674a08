package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/handlers"
	"github.com/ternarybob/scribo/internal/interfaces"
	"github.com/ternarybob/scribo/internal/processor"
	"github.com/ternarybob/scribo/internal/queue"
	"github.com/ternarybob/scribo/internal/scheduler"
	"github.com/ternarybob/scribo/internal/services/llm"
	badgerstore "github.com/ternarybob/scribo/internal/storage/badger"
	"github.com/ternarybob/scribo/internal/storage/filesystem"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage layer
	DB              *badgerstore.BadgerDB
	JobStorage      interfaces.JobStorage
	ArtifactStorage interfaces.ArtifactStorage
	KVStorage       interfaces.KeyValueStorage
	BlobStorage     interfaces.BlobStorage

	// Queue
	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool

	// Generation
	ProviderFactory *llm.ProviderFactory
	Generator       interfaces.ContentGenerator

	// Processing pipeline
	Processor *processor.Processor

	// Maintenance
	Scheduler *scheduler.Scheduler

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	PushHandler     *handlers.PushHandler
	JobHandler      *handlers.JobHandler
	ArtifactHandler *handlers.ArtifactHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("queue", cfg.Queue.QueueName).
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the storage layer (Badger plus filesystem blobs)
func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open badger database: %w", err)
	}
	a.DB = db

	a.JobStorage = badgerstore.NewJobStorage(db, a.Logger)
	a.ArtifactStorage = badgerstore.NewArtifactStorage(db, a.Logger)
	a.KVStorage = badgerstore.NewKVStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	blobs, err := filesystem.NewBlobStore(&a.Config.Storage.Filesystem, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	a.BlobStorage = blobs

	return nil
}

// initServices initializes the queue, generation, and processing services in
// dependency order.
func (a *App) initServices() error {
	queueMgr, err := queue.NewManager(
		a.DB.Badger(),
		a.Config.Queue.QueueName,
		common.ParseDuration(a.Config.Queue.VisibilityTimeout, 0),
		a.Config.Queue.MaxReceive,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")

	a.ProviderFactory = llm.NewProviderFactory(
		&a.Config.Gemini,
		&a.Config.Claude,
		&a.Config.LLM,
		a.KVStorage,
		a.Logger,
	)
	a.Generator = llm.NewArticleGenerator(a.ProviderFactory, a.Logger)

	a.Processor = processor.NewProcessor(
		a.Generator,
		a.JobStorage,
		a.ArtifactStorage,
		a.BlobStorage,
		processor.Options{
			AckGenerationErrors: a.Config.Processor.AckGenerationErrors,
			MaxRetries:          a.Config.Processor.MaxRetries,
			GenerationTimeout:   common.ParseDuration(a.Config.Processor.GenerationTimeout, 0),
		},
		a.Logger,
	)

	a.WorkerPool = queue.NewWorkerPool(
		a.QueueManager,
		a.Processor,
		common.ParseDuration(a.Config.Queue.PollInterval, 0),
		a.Config.Queue.Concurrency,
		a.Logger,
	)

	a.Scheduler = scheduler.NewScheduler(
		a.JobStorage,
		a.QueueManager,
		common.ParseDuration(a.Config.Processor.StaleAfter, 0),
		a.Logger,
	)

	return nil
}

// initHandlers initializes HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.PushHandler = handlers.NewPushHandler(a.Processor, a.Config.Processor.AckMalformed, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.JobStorage, a.QueueManager, a.Logger)
	a.ArtifactHandler = handlers.NewArtifactHandler(a.ArtifactStorage, a.Logger)
}

// Start begins background processing (workers and the maintenance sweep)
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	a.Logger.Debug().Msg("Worker pool started")

	if a.Config.Processor.SweepEnabled {
		if err := a.Scheduler.Start(a.Config.Processor.SweepSchedule); err != nil {
			return fmt.Errorf("failed to start sweep scheduler: %w", err)
		}
	}

	return nil
}

// Close shuts down background work and closes storage
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		}
	}
	if a.ProviderFactory != nil {
		a.ProviderFactory.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close badger database")
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
}
