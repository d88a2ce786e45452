package crawler

import (
	"context"
	"time"
)

// CatalogStore is the persistence contract consumed by the crawl and image
// pipelines; implemented by services/catalog, mocked in tests.
type CatalogStore interface {
	// Exists reports whether a record with this external identifier was
	// already ingested.
	Exists(ctx context.Context, externalID string) (bool, error)

	// Upsert inserts a record if its external identifier is new and returns
	// the identifier. Re-running against existing records is harmless.
	Upsert(ctx context.Context, rec *ProductRecord) (string, error)

	// ListNeedingImages returns records whose image association is missing or
	// whose stored key is absent from the storage-name snapshot.
	ListNeedingImages(ctx context.Context, existingKeys map[string]struct{}) ([]ProductRecord, error)

	// SetImageAssociation writes the stored object reference back onto a record.
	SetImageAssociation(ctx context.Context, externalID, sourceURL, storedURL, objectKey string, fetchedAt time.Time) error
}

// Decision is the gate's verdict for a candidate product URL.
type Decision int

const (
	// DecisionIngest means the product is new and should be fetched.
	DecisionIngest Decision = iota
	// DecisionSkip means the product was already ingested; detail text is not
	// re-fetched once captured.
	DecisionSkip
)

// Gate decides, per candidate URL, whether a crawl should fetch the product
// detail page at all. Dedup happens on the identifier derived from the URL,
// so no fetch is wasted on known products.
type Gate struct {
	catalog CatalogStore
}

// NewGate builds a gate over a catalog store.
func NewGate(catalog CatalogStore) *Gate {
	return &Gate{catalog: catalog}
}

// CheckProduct derives the external identifier from the canonical URL and
// consults the catalog. Concurrent duplicate attempts on the same product
// degrade to redundant upserts, so no locking is needed here.
func (g *Gate) CheckProduct(ctx context.Context, canonicalURL string) (Decision, string, error) {
	externalID, err := ExternalID(canonicalURL)
	if err != nil {
		return DecisionSkip, "", err
	}
	exists, err := g.catalog.Exists(ctx, externalID)
	if err != nil {
		return DecisionSkip, externalID, err
	}
	if exists {
		return DecisionSkip, externalID, nil
	}
	return DecisionIngest, externalID, nil
}

// NeedsImage reports whether a record requires image processing: no stored
// key at all, or a stored key missing from the storage snapshot. The snapshot
// is loaded once per run; an external deletion after snapshot time is treated
// as still-existing until the next run.
func NeedsImage(rec *ProductRecord, snapshot map[string]struct{}) bool {
	if rec.ImageKey == "" {
		return true
	}
	_, ok := snapshot[rec.ImageKey]
	return !ok
}
