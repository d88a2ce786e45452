package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// memoryCatalog is an in-memory CatalogStore for tests.
type memoryCatalog struct {
	records     map[string]*ProductRecord
	existsErr   error
	existsCalls int
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{records: make(map[string]*ProductRecord)}
}

func (m *memoryCatalog) Exists(_ context.Context, externalID string) (bool, error) {
	m.existsCalls++
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.records[externalID]
	return ok, nil
}

func (m *memoryCatalog) Upsert(_ context.Context, rec *ProductRecord) (string, error) {
	if _, ok := m.records[rec.ExternalID]; !ok {
		clone := *rec
		m.records[rec.ExternalID] = &clone
	}
	return rec.ExternalID, nil
}

func (m *memoryCatalog) ListNeedingImages(_ context.Context, existingKeys map[string]struct{}) ([]ProductRecord, error) {
	var out []ProductRecord
	for _, rec := range m.records {
		if NeedsImage(rec, existingKeys) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memoryCatalog) SetImageAssociation(_ context.Context, externalID, sourceURL, storedURL, objectKey string, fetchedAt time.Time) error {
	rec, ok := m.records[externalID]
	if !ok {
		return errors.New("record not found")
	}
	rec.ImageSourceURL = sourceURL
	rec.ImageStoredURL = storedURL
	rec.ImageKey = objectKey
	rec.ImageFetchedAt = fetchedAt
	return nil
}

func TestGateNewProduct(t *testing.T) {
	gate := NewGate(newMemoryCatalog())

	decision, externalID, err := gate.CheckProduct(context.Background(), baseURL+"/prod_fender_strat_0144.html")
	assert.NoError(t, err)
	assert.Equal(t, DecisionIngest, decision)
	assert.Equal(t, "prod_fender_strat_0144", externalID)
}

func TestGateKnownProductSkipsWithoutFetch(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.records["prod_fender_strat_0144"] = &ProductRecord{ExternalID: "prod_fender_strat_0144"}
	gate := NewGate(catalog)

	decision, externalID, err := gate.CheckProduct(context.Background(), baseURL+"/prod_fender_strat_0144.html")
	assert.NoError(t, err)
	assert.Equal(t, DecisionSkip, decision)
	assert.Equal(t, "prod_fender_strat_0144", externalID)
}

func TestGateInvalidURL(t *testing.T) {
	gate := NewGate(newMemoryCatalog())

	decision, _, err := gate.CheckProduct(context.Background(), baseURL+"/")
	assert.Error(t, err)
	assert.Equal(t, DecisionSkip, decision)
}

func TestGateStoreError(t *testing.T) {
	catalog := newMemoryCatalog()
	catalog.existsErr = errors.New("connection refused")
	gate := NewGate(catalog)

	decision, externalID, err := gate.CheckProduct(context.Background(), baseURL+"/prod_fender_strat_0144.html")
	assert.Error(t, err)
	assert.Equal(t, DecisionSkip, decision)
	assert.Equal(t, "prod_fender_strat_0144", externalID)
}

func TestNeedsImage(t *testing.T) {
	snapshot := map[string]struct{}{
		"products/electric-guitars/prod_a_1700000000.jpg": {},
	}

	tests := []struct {
		name     string
		rec      ProductRecord
		expected bool
	}{
		{
			name:     "no stored key",
			rec:      ProductRecord{ExternalID: "prod_a"},
			expected: true,
		},
		{
			name:     "key present in snapshot",
			rec:      ProductRecord{ExternalID: "prod_a", ImageKey: "products/electric-guitars/prod_a_1700000000.jpg"},
			expected: false,
		},
		{
			name:     "key missing from snapshot",
			rec:      ProductRecord{ExternalID: "prod_b", ImageKey: "products/electric-guitars/prod_b_1700000000.jpg"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsImage(&tt.rec, snapshot))
		})
	}
}
