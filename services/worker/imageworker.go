package worker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gearshed/catalogworker/helpers"
	"gearshed/catalogworker/internal/crawler"
	"gearshed/catalogworker/logger"
	"gearshed/catalogworker/metrics"
	pkgerrors "gearshed/catalogworker/pkg/errors"
	"gearshed/catalogworker/services/scaler"
	"gearshed/catalogworker/services/storage"

	"github.com/PuerkitoBio/goquery"
)

// ImageFetcher is the fetch dependency of the image pipeline.
type ImageFetcher interface {
	FetchPage(ctx context.Context, url, referer string) (io.Reader, error)
	FetchImage(ctx context.Context, url, referer string) ([]byte, string, error)
}

// ImageSummary is the end-of-run accounting for the image pool.
type ImageSummary struct {
	Queued   int
	Uploaded int64
	Failed   int64
}

// ImageWorker drains the reconciliation queue with its own bounded pool:
// fetch product page, resolve the primary image, download it, upload to
// object storage and write the association back.
type ImageWorker struct {
	fetcher  ImageFetcher
	profile  *crawler.SiteProfile
	catalog  crawler.CatalogStore
	store    storage.ObjectStorage
	snapshot storage.Snapshot
	scaler   scaler.Scaler
	metrics  *metrics.Metrics
	workers  int

	uploaded atomic.Int64
	failed   atomic.Int64
}

// NewImageWorker wires the image acquisition pool.
func NewImageWorker(
	fetcher ImageFetcher,
	profile *crawler.SiteProfile,
	catalog crawler.CatalogStore,
	store storage.ObjectStorage,
	snapshot storage.Snapshot,
	sc scaler.Scaler,
	m *metrics.Metrics,
	workers int,
) *ImageWorker {
	if workers < 1 {
		workers = 1
	}
	return &ImageWorker{
		fetcher:  fetcher,
		profile:  profile,
		catalog:  catalog,
		store:    store,
		snapshot: snapshot,
		scaler:   sc,
		metrics:  m,
		workers:  workers,
	}
}

// extensionFor maps an image content type to an object key extension.
func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "avif"):
		return ".avif"
	default:
		return ".jpg"
	}
}

// objectKey namespaces assets by category and product, with an ingestion
// timestamp, so a storage listing alone reconstructs the product mapping.
func objectKey(rec *crawler.ProductRecord, ext string, now time.Time) string {
	category := helpers.Slugify(rec.Category)
	if category == "" {
		category = "uncategorized"
	}
	return fmt.Sprintf("products/%s/%s_%d%s", category, rec.ExternalID, now.Unix(), ext)
}

// Run queries the catalog for records needing image work, drains them through
// the pool, and fires the scale-down hook once the queue is exhausted.
func (w *ImageWorker) Run(ctx context.Context) (ImageSummary, error) {
	log := logger.ForImageWorker()

	items, err := w.catalog.ListNeedingImages(ctx, w.snapshot)
	if err != nil {
		return ImageSummary{}, err
	}

	log.Info().
		Int("queued", len(items)).
		Int("workers", w.workers).
		Msg("Starting image pool")

	queue := make(chan crawler.ProductRecord, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range queue {
				if ctx.Err() != nil {
					return
				}
				w.processItem(ctx, rec)
			}
		}()
	}
	wg.Wait()

	// Pool drained; let the hosting orchestrator wind the process down.
	w.scaler.ScaleToZero(ctx)

	return ImageSummary{
		Queued:   len(items),
		Uploaded: w.uploaded.Load(),
		Failed:   w.failed.Load(),
	}, nil
}

// processItem runs the full pipeline for one record. Any stage failure aborts
// this item only; repair happens on the next idempotent run.
func (w *ImageWorker) processItem(ctx context.Context, rec crawler.ProductRecord) {
	log := logger.ForImageWorker().WithField("external_id", rec.ExternalID)

	if err := w.acquire(ctx, &rec); err != nil {
		w.failed.Add(1)
		w.metrics.IncImage("failed")
		w.metrics.IncError(string(pkgerrors.TypeOf(err)))
		log.Warn().
			Str("error_type", string(pkgerrors.TypeOf(err))).
			Err(err).
			Msg("Image item aborted")
		return
	}

	w.uploaded.Add(1)
	w.metrics.IncImage("uploaded")
	log.Info().Str("key", rec.ImageKey).Msg("Image uploaded")
}

func (w *ImageWorker) acquire(ctx context.Context, rec *crawler.ProductRecord) error {
	// Arrive at the product page as if coming from the site's front page.
	body, err := w.fetcher.FetchPage(ctx, rec.SourceURL, w.profile.BaseURL)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return pkgerrors.NewParsing(rec.SourceURL, "failed to parse product page", err)
	}

	imageURL := crawler.ResolveImageURL(doc, w.profile)
	if imageURL == "" {
		imageURL = rec.ImageSourceURL
	}
	if imageURL == "" {
		return pkgerrors.NewParsing(rec.SourceURL, "no product image found", nil)
	}

	data, contentType, err := w.fetcher.FetchImage(ctx, imageURL, rec.SourceURL)
	if err != nil {
		return err
	}

	now := time.Now()
	key := objectKey(rec, extensionFor(contentType), now)
	storedURL, err := w.store.PutObject(ctx, key, data, contentType)
	if err != nil {
		return err
	}

	if err := w.catalog.SetImageAssociation(ctx, rec.ExternalID, imageURL, storedURL, key, now); err != nil {
		return pkgerrors.NewStorage(rec.ExternalID, "failed to write image association", err)
	}

	rec.ImageKey = key
	rec.ImageStoredURL = storedURL
	rec.ImageSourceURL = imageURL
	rec.ImageFetchedAt = now
	return nil
}
