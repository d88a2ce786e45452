package helpers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gearshed/catalogworker/metrics"
	pkgerrors "gearshed/catalogworker/pkg/errors"

	"github.com/stretchr/testify/assert"
)

// memoryCache is an in-memory BlockCache for tests
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.items[key]; ok {
		return val, nil
	}
	return nil, errors.New("cache miss")
}

func (m *memoryCache) Set(key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// newTestFetcher routes the fetcher through the test server itself as the
// upstream proxy, with a zero politeness window.
func newTestFetcher(t *testing.T, proxyURL string, cache BlockCache) *Fetcher {
	t.Helper()
	f, err := NewFetcher(proxyURL, 5*time.Second, 0, 0, cache, time.Minute, nil)
	assert.NoError(t, err)
	return f
}

func TestFetchPageSetsRandomizedIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		assert.Equal(t, "https://www.strumhouse.com", r.Header.Get("Referer"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, nil)
	reader, err := f.FetchPage(context.Background(), server.URL+"/listing", "https://www.strumhouse.com")
	assert.NoError(t, err)

	body, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "Hello, World!")
}

func TestFetchPageNonUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, nil)
	reader, err := f.FetchPage(context.Background(), server.URL, "")
	assert.NoError(t, err)

	body, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "Hello, World!")
}

func TestFetchPageErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, nil)
	_, err := f.FetchPage(context.Background(), server.URL, "")
	assert.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeNetwork, pkgerrors.TypeOf(err))
	assert.Contains(t, err.Error(), "unexpected status code: 500")
}

func TestFetchPageRateLimitBlocksHost(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cache := newMemoryCache()
	f := newTestFetcher(t, server.URL, cache)

	_, err := f.FetchPage(context.Background(), server.URL+"/a", "")
	assert.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeRateLimit, pkgerrors.TypeOf(err))
	assert.Equal(t, 1, requests)

	// Second fetch against the same host is refused locally for the block window
	_, err = f.FetchPage(context.Background(), server.URL+"/b", "")
	assert.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeRateLimit, pkgerrors.TypeOf(err))
	assert.Equal(t, 1, requests)
}

func TestFetchImage(t *testing.T) {
	payload := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "image/")
		assert.Contains(t, r.Header.Get("Referer"), "/prod_test")
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer server.Close()

	f := newTestFetcher(t, server.URL, nil)
	data, contentType, err := f.FetchImage(context.Background(), server.URL+"/img/1.jpg", server.URL+"/prod_test.html")
	assert.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestFetchPageInvalidURL(t *testing.T) {
	f := newTestFetcher(t, "http://127.0.0.1:1", nil)
	_, err := f.FetchPage(context.Background(), "http://invalid.url.that.does.not.exist", "")
	assert.Error(t, err)
}

func TestFetchRecordsRequestDuration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	m := metrics.New()
	f, err := NewFetcher(server.URL, 5*time.Second, 0, 0, nil, time.Minute, m)
	assert.NoError(t, err)

	_, err = f.FetchPage(context.Background(), server.URL, "")
	assert.NoError(t, err)
	_, _, err = f.FetchImage(context.Background(), server.URL+"/img.jpg", "")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "harvester_request_duration_seconds_count 2")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "electric-guitars", Slugify("Electric Guitars"))
	assert.Equal(t, "drums-percussion", Slugify("Drums & Percussion"))
	assert.Equal(t, "studio-recording", Slugify("  Studio / Recording  "))
	assert.Equal(t, "", Slugify("!!!"))
}
