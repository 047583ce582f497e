// Package app wires configuration into the long-lived components shared by
// the daemon and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/ape/internal/batch"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/cost"
	"github.com/joseph-ayodele/ape/internal/export"
	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/extract/textract"
	"github.com/joseph-ayodele/ape/internal/jobs"
	"github.com/joseph-ayodele/ape/internal/llm"
	"github.com/joseph-ayodele/ape/internal/llm/providers"
	"github.com/joseph-ayodele/ape/internal/metrics"
	"github.com/joseph-ayodele/ape/internal/repository"
	"github.com/joseph-ayodele/ape/internal/server"
	"github.com/joseph-ayodele/ape/internal/storage"
)

type App struct {
	Config        *common.Config
	Logger        *slog.Logger
	DB            *repository.DB
	Store         storage.Store
	Tracker       *jobs.Tracker
	Costs         *cost.Tracker
	Metrics       *metrics.Metrics
	Registry      *llm.Registry // nil when no provider could be built
	Dispatcher    *extract.Dispatcher
	Queue         *batch.PriorityQueue
	Batches       *batch.Controller
	Pool          *batch.Pool
	Exporter      *export.Service
	Conversations repository.ConversationRepository
}

type Options struct {
	// Registerer receives the Prometheus collectors; nil means the default.
	Registerer prometheus.Registerer
	// RequireLLM turns llm.ErrNoProviderConfigured into a startup error.
	RequireLLM bool
	// SkipLLM does not build any provider.
	SkipLLM bool
}

// Build opens the database, applies the schema and constructs every
// component. Close releases what Build opened.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Costs:   cost.NewTracker(),
		Metrics: metrics.New(opts.Registerer),
		Queue:   batch.NewPriorityQueue(),
	}
	a.Tracker = jobs.NewTracker(logger, jobs.WithCapacity(cfg.Batch.TrackerCap))

	db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		InMemory:         cfg.Database.InMemory,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	if err := db.Migrate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var awsCfg *aws.Config
	if cfg.AWS.Enabled || cfg.Storage.Backend == "s3" {
		c, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &c
	}

	if a.Store, err = a.buildStore(awsCfg); err != nil {
		a.Close()
		return nil, err
	}

	var extractOpts []extract.Option
	extractOpts = append(extractOpts, extract.WithPricer(a.Costs), extract.WithMetrics(a.Metrics))
	if awsCfg != nil && cfg.AWS.Enabled {
		if cfg.Extraction.EnableTextract {
			extractOpts = append(extractOpts, extract.WithBackend(textract.NewBackend(*awsCfg, logger)))
		}
		if cfg.Extraction.EnableComprehend {
			extractOpts = append(extractOpts, extract.WithAnalyzer(textract.NewAnalyzer(*awsCfg, logger)))
		}
	}
	a.Dispatcher = extract.NewDispatcher(extract.Config{
		Pdftotext: cfg.Extraction.Pdftotext,
		CacheTTL:  cfg.Extraction.ResultCacheTTL,
	}, a.Tracker, logger, extractOpts...)

	a.Batches = batch.NewController(repository.NewBatchRepository(db, logger), a.Store, a.Dispatcher, a.Tracker, logger,
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithQueue(a.Queue),
		batch.WithEnhancedEstimates(a.Dispatcher.HasBackend()),
		batch.WithMetrics(a.Metrics),
	)
	a.Pool = batch.NewPool(a.Batches, a.Queue, logger,
		batch.WithWorkers(cfg.Batch.Workers),
		batch.WithProcessTimeout(cfg.Batch.ProcessTimeout),
		batch.WithPoolMetrics(a.Metrics),
	)
	a.Exporter = export.NewService(a.Batches, logger)
	a.Conversations = repository.NewConversationRepository(db, logger)

	if !opts.SkipLLM {
		if err := a.buildRegistry(ctx, opts.RequireLLM); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) buildStore(awsCfg *aws.Config) (storage.Store, error) {
	sc := a.Config.Storage
	switch sc.Backend {
	case "s3":
		return storage.NewS3Store(*awsCfg, sc.S3Bucket, sc.S3Prefix, a.Logger,
			storage.WithTempDir(a.Config.Extraction.TempDir),
			storage.WithUsageRecorder(a.Costs),
		), nil
	default:
		return storage.NewFSStore(sc.Dir, a.Logger)
	}
}

func (a *App) buildRegistry(ctx context.Context, required bool) error {
	descs, err := common.LoadProviders(a.Config)
	if err != nil {
		return err
	}
	reg, err := providers.Build(ctx, descs, a.Logger, providers.WithRegistryOptions(
		llm.WithCallTimeout(a.Config.LLM.Timeout),
		llm.WithMetrics(a.Metrics),
	))
	if err != nil {
		if errors.Is(err, llm.ErrNoProviderConfigured) && !required {
			a.Logger.Warn("llm.providers.none", "detail", "assist routes will answer 502")
			return nil
		}
		return err
	}
	a.Registry = reg
	return nil
}

// ServerDeps adapts the components for server.New.
func (a *App) ServerDeps() server.Deps {
	deps := server.Deps{
		Extractor:     a.Dispatcher,
		Tracker:       a.Tracker,
		Batches:       a.Batches,
		Pool:          a.Pool,
		Queue:         a.Queue,
		Exporter:      a.Exporter,
		Conversations: a.Conversations,
		Costs:         a.Costs,
		DB:            a.DB,
	}
	// keep the interfaces nil rather than holding a nil *Registry
	if a.Registry != nil {
		deps.Generator = a.Registry
		deps.Providers = a.Registry
	}
	return deps
}

func (a *App) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
