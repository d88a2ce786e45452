package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"gearshed/catalogworker/config"
	"gearshed/catalogworker/helpers"
	"gearshed/catalogworker/internal/crawler"
	"gearshed/catalogworker/logger"
	"gearshed/catalogworker/metrics"
	"gearshed/catalogworker/services/cache"
	"gearshed/catalogworker/services/catalog"
	"gearshed/catalogworker/services/publisher"
	"gearshed/catalogworker/services/scaler"
	"gearshed/catalogworker/services/storage"
	"gearshed/catalogworker/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration; misconfiguration aborts before any work
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("crawl_workers", cfg.CrawlWorkers).
		Int("image_workers", cfg.ImageWorkers).
		Int("partition", cfg.PartitionIndex).
		Msg("Starting catalog worker")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		m.Serve(cfg.MetricsAddr)
		log.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics listener started")
	}

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	fetcher, err := helpers.NewFetcher(
		cfg.ProxyURL, cfg.FetchTimeout, cfg.DelayMin, cfg.DelayMax,
		services.Cache, cfg.BlockTime, m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetch client")
	}

	profile := crawler.DefaultProfile(cfg.SiteBaseURL, cfg.PartitionCount)

	// Crawl pass
	crawlWorker := worker.NewCrawlWorker(fetcher, profile, services.Catalog, services.Publisher, m, worker.CrawlOptions{
		Workers:        cfg.CrawlWorkers,
		StartPage:      cfg.StartPage,
		PageSize:       cfg.PageSize,
		MaxPages:       cfg.MaxPages,
		EmptyPageLimit: cfg.EmptyPageLimit,
		PartitionIndex: cfg.PartitionIndex,
		PartitionCount: cfg.PartitionCount,
		ItemLimit:      cfg.ItemLimit,
		RetryAttempts:  2,
		RetryDelay:     cfg.DetailRetryDelay,
	})

	crawlSummary := crawlWorker.Run(ctx)
	log.Info().
		Int("categories", crawlSummary.Categories).
		Int64("pages", crawlSummary.Pages).
		Int64("candidates", crawlSummary.Candidates).
		Int64("ingested", crawlSummary.Ingested).
		Int64("skipped", crawlSummary.Skipped).
		Int64("failed", crawlSummary.Failed).
		Interface("errors", crawlSummary.ByError).
		Msg("Crawl pass finished")

	if ctx.Err() != nil {
		log.Info().Msg("Shutting down before image pass")
		return
	}

	// Image reconciliation pass: one storage listing snapshot per run
	snapshot, err := storage.LoadSnapshot(ctx, services.Storage, "products/")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load storage snapshot")
	}
	log.Info().Int("objects", len(snapshot)).Msg("Storage snapshot loaded")

	imageWorker := worker.NewImageWorker(
		fetcher, profile, services.Catalog, services.Storage, snapshot,
		scaler.FromConfig(cfg.ScalerURL, cfg.ScalerToken), m, cfg.ImageWorkers,
	)

	imageSummary, err := imageWorker.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Image pass failed")
		return
	}
	log.Info().
		Int("queued", imageSummary.Queued).
		Int64("uploaded", imageSummary.Uploaded).
		Int64("failed", imageSummary.Failed).
		Msg("Image pass finished")

	log.Info().Msg("Run complete")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Catalog   *catalog.Store
	Storage   storage.ObjectStorage
	Publisher publisher.Publisher
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Catalog != nil {
		s.Catalog.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Rate-limit block cache
	services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	// Catalog database
	store, err := catalog.NewStore(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	services.Catalog = store
	logger.Info("Connected to catalog database")

	// Object storage
	objStore, err := storage.NewMinioStorage(ctx, storage.Options{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
		UseSSL:    cfg.StorageUseSSL,
		PublicURL: cfg.StoragePublicURL,
	})
	if err != nil {
		return nil, err
	}
	services.Storage = objStore
	logger.Info("Connected to object storage at %s (bucket: %s)", cfg.StorageEndpoint, cfg.StorageBucket)

	// Downstream publisher is optional
	if cfg.RedisAddr != "" {
		services.Publisher = publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Connected to Redis at %s (stream: %s)", cfg.RedisAddr, cfg.RedisStream)
	} else {
		services.Publisher = publisher.NoopPublisher{}
		logger.Info("No Redis configured; publishing disabled")
	}

	return services, nil
}
