package worker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"gearshed/catalogworker/internal/crawler"
	"gearshed/catalogworker/logger"
	"gearshed/catalogworker/metrics"
	pkgerrors "gearshed/catalogworker/pkg/errors"
	"gearshed/catalogworker/services/publisher"
)

// CrawlSummary is the end-of-run accounting for the crawl pool.
type CrawlSummary struct {
	Categories int
	Pages      int64
	Candidates int64
	Ingested   int64
	Skipped    int64
	Failed     int64
	ByError    map[string]int64
}

// CrawlOptions sizes and scopes one crawl run.
type CrawlOptions struct {
	Workers        int
	StartPage      int
	PageSize       int
	MaxPages       int
	EmptyPageLimit int
	PartitionIndex int
	PartitionCount int
	// ItemLimit caps ingested products for test runs; zero means unlimited.
	ItemLimit     int
	RetryAttempts int
	RetryDelay    time.Duration
}

// CrawlWorker runs the bounded crawl pool: each worker takes whole categories
// off a queue, walks their pagination, and ingests new products inline.
type CrawlWorker struct {
	profile   *crawler.SiteProfile
	walker    *crawler.Walker
	extractor *crawler.DetailExtractor
	gate      *crawler.Gate
	catalog   crawler.CatalogStore
	pub       publisher.Publisher
	metrics   *metrics.Metrics
	opts      CrawlOptions

	pages      atomic.Int64
	candidates atomic.Int64
	ingested   atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64

	mu      sync.Mutex
	byError map[string]int64
}

// NewCrawlWorker wires the crawl pool.
func NewCrawlWorker(
	fetcher crawler.PageFetcher,
	profile *crawler.SiteProfile,
	catalog crawler.CatalogStore,
	pub publisher.Publisher,
	m *metrics.Metrics,
	opts CrawlOptions,
) *CrawlWorker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 2
	}
	return &CrawlWorker{
		profile:   profile,
		walker:    crawler.NewWalker(fetcher, profile, opts.PageSize, opts.MaxPages, opts.EmptyPageLimit),
		extractor: crawler.NewDetailExtractor(fetcher, profile),
		gate:      crawler.NewGate(catalog),
		catalog:   catalog,
		pub:       pub,
		metrics:   m,
		opts:      opts,
		byError:   make(map[string]int64),
	}
}

func (w *CrawlWorker) recordError(err error) {
	errType := string(pkgerrors.TypeOf(err))
	w.mu.Lock()
	w.byError[errType]++
	w.mu.Unlock()
	w.metrics.IncError(errType)
}

// itemLimitReached reports whether the test-mode cap is exhausted.
func (w *CrawlWorker) itemLimitReached() bool {
	return w.opts.ItemLimit > 0 && w.ingested.Load() >= int64(w.opts.ItemLimit)
}

// Run seeds the category queue with this partition's targets and blocks until
// every category is walked or the context is cancelled.
func (w *CrawlWorker) Run(ctx context.Context) CrawlSummary {
	log := logger.ForWorker()

	var targets []crawler.CategoryTarget
	for _, t := range w.profile.Categories {
		if t.Partition == w.opts.PartitionIndex {
			targets = append(targets, t)
		}
	}

	queue := make(chan crawler.CategoryTarget, len(targets))
	for _, t := range targets {
		queue <- t
	}
	close(queue)

	log.Info().
		Int("categories", len(targets)).
		Int("workers", w.opts.Workers).
		Int("partition", w.opts.PartitionIndex).
		Msg("Starting crawl pool")

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range queue {
				if ctx.Err() != nil {
					return
				}
				w.walkCategory(ctx, target)
			}
		}()
	}
	wg.Wait()

	if err := w.pub.TrimStreams(); err != nil {
		log.Warn().Err(err).Msg("Stream trimming failed")
	}

	w.mu.Lock()
	byError := make(map[string]int64, len(w.byError))
	for k, v := range w.byError {
		byError[k] = v
	}
	w.mu.Unlock()

	return CrawlSummary{
		Categories: len(targets),
		Pages:      w.pages.Load(),
		Candidates: w.candidates.Load(),
		Ingested:   w.ingested.Load(),
		Skipped:    w.skipped.Load(),
		Failed:     w.failed.Load(),
		ByError:    byError,
	}
}

// walkCategory drives one category's full pagination, processing each
// product candidate inline before the next page is requested.
func (w *CrawlWorker) walkCategory(ctx context.Context, target crawler.CategoryTarget) {
	log := logger.ForCategory(target.Label)

	_, err := w.walker.Walk(ctx, target, w.opts.StartPage, func(page crawler.ListingPage) {
		w.pages.Add(1)
		w.metrics.IncPage()
		w.candidates.Add(int64(len(page.Candidates)))

		for _, candidate := range page.Candidates {
			if ctx.Err() != nil || w.itemLimitReached() {
				return
			}
			w.processCandidate(ctx, target, candidate)
		}
	})
	if err != nil && err != context.Canceled {
		log.Warn().Err(err).Msg("Category walk ended abnormally")
	}
}

// processCandidate gates one canonical product URL and, for new products,
// extracts and persists the detail record with a single local retry.
func (w *CrawlWorker) processCandidate(ctx context.Context, target crawler.CategoryTarget, canonicalURL string) {
	log := logger.ForCategory(target.Label)

	decision, externalID, err := w.gate.CheckProduct(ctx, canonicalURL)
	if err != nil {
		log.Warn().Str("url", canonicalURL).Err(err).Msg("Gate check failed")
		w.failed.Add(1)
		w.metrics.IncProduct("failed")
		w.recordError(err)
		return
	}
	if decision == crawler.DecisionSkip {
		log.Debug().Str("external_id", externalID).Msg("Already ingested; skipping")
		w.skipped.Add(1)
		w.metrics.IncProduct("skipped")
		return
	}

	var rec *crawler.ProductRecord
	err = crawler.WithRetry(ctx, w.opts.RetryAttempts, w.opts.RetryDelay, func() error {
		extracted, extractErr := w.extractor.Extract(ctx, canonicalURL, target.Label)
		if extractErr != nil {
			return extractErr
		}
		rec = extracted
		_, upsertErr := w.catalog.Upsert(ctx, rec)
		return upsertErr
	})
	if err != nil {
		log.Warn().
			Str("url", canonicalURL).
			Str("error_type", string(pkgerrors.TypeOf(err))).
			Err(err).
			Msg("Product skipped after retry")
		w.failed.Add(1)
		w.metrics.IncProduct("failed")
		w.recordError(err)
		return
	}

	w.ingested.Add(1)
	w.metrics.IncProduct("ingested")
	log.Info().
		Str("external_id", rec.ExternalID).
		Str("name", rec.Name).
		Msg("Product ingested")

	if data, marshalErr := json.Marshal(rec); marshalErr == nil {
		if pubErr := w.pub.Publish(target.Label, data); pubErr != nil {
			log.Warn().Err(pubErr).Msg("Publish failed")
		}
	}
}
