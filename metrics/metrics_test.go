package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.IncPage()
	m.IncPage()
	m.IncProduct("ingested")
	m.IncProduct("skipped")
	m.IncProduct("ingested")
	m.IncImage("uploaded")
	m.IncError("network")
	m.ObserveDuration(120 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PagesTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProductsTotal.WithLabelValues("ingested")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProductsTotal.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ImagesTotal.WithLabelValues("uploaded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("network")))
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	m.IncPage()
	m.IncProduct("ingested")
	m.IncImage("uploaded")
	m.IncError("network")
	m.ObserveDuration(time.Second)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncPage()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "harvester_listing_pages_total 1")
}
