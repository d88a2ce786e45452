package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gearshed/catalogworker/internal/crawler"
	"gearshed/catalogworker/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed persistence adapter for the product catalog.
// The pool is safe for use by both worker pools concurrently.
type Store struct {
	db *pgxpool.Pool
}

var _ crawler.CatalogStore = (*Store)(nil)

// NewStore connects to the catalog database.
func NewStore(ctx context.Context, connStr string) (*Store, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	logger.ForCatalog().Debug().Msg("Catalog connection pool ready")
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// Exists reports whether a product with this external identifier was already
// ingested.
func (s *Store) Exists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists check for %s: %w", externalID, err)
	}
	return exists, nil
}

// Upsert inserts a new product record. Records are immutable after first
// ingest, so a conflict on the external identifier is a no-op rather than an
// update; re-runs and concurrent duplicate attempts are harmless.
func (s *Store) Upsert(ctx context.Context, rec *crawler.ProductRecord) (string, error) {
	specs, err := json.Marshal(rec.Specs)
	if err != nil {
		return "", fmt.Errorf("marshal specs for %s: %w", rec.ExternalID, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO products
		   (external_id, name, brand, price, category, description, specs,
		    image_source_url, source_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		 ON CONFLICT (external_id) DO NOTHING`,
		rec.ExternalID, rec.Name, rec.Brand, rec.Price, rec.Category,
		rec.Description, specs, rec.ImageSourceURL, rec.SourceURL,
	)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", rec.ExternalID, err)
	}
	return rec.ExternalID, nil
}

// ListNeedingImages returns every record whose image association is missing
// or whose stored key is absent from the storage-name snapshot. The snapshot
// check runs here rather than per product to avoid an existence round trip
// for each row.
func (s *Store) ListNeedingImages(ctx context.Context, existingKeys map[string]struct{}) ([]crawler.ProductRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT external_id, name, category, source_url,
		        COALESCE(image_source_url, ''), COALESCE(image_key, '')
		 FROM products`,
	)
	if err != nil {
		return nil, fmt.Errorf("list products for image reconciliation: %w", err)
	}
	defer rows.Close()

	total := 0
	var needing []crawler.ProductRecord
	for rows.Next() {
		var rec crawler.ProductRecord
		if err := rows.Scan(&rec.ExternalID, &rec.Name, &rec.Category,
			&rec.SourceURL, &rec.ImageSourceURL, &rec.ImageKey); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		total++
		if crawler.NeedsImage(&rec, existingKeys) {
			needing = append(needing, rec)
		}
	}
	logger.ForCatalog().Info().
		Int("products", total).
		Int("needing_images", len(needing)).
		Msg("Image reconciliation scan")
	return needing, rows.Err()
}

// SetImageAssociation writes the stored object reference onto a record. This
// is the only mutation a record sees after first ingest.
func (s *Store) SetImageAssociation(ctx context.Context, externalID, sourceURL, storedURL, objectKey string, fetchedAt time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE products
		 SET image_source_url = $2, image_stored_url = $3, image_key = $4,
		     image_fetched_at = $5
		 WHERE external_id = $1`,
		externalID, sourceURL, storedURL, objectKey, fetchedAt,
	)
	if err != nil {
		return fmt.Errorf("set image association for %s: %w", externalID, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
