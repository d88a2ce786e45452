package helpers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"gearshed/catalogworker/metrics"
	pkgerrors "gearshed/catalogworker/pkg/errors"

	"golang.org/x/net/html/charset"
)

// Browser-like identity pools; one entry is drawn per request, never cached
// on the shared client, so concurrent workers present independent identities.
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}

	acceptLanguages = []string{
		"en-US,en;q=0.9",
		"en-GB,en-US;q=0.9,en;q=0.8",
		"en-US,en;q=0.8,de;q=0.5",
	}
)

// BlockCache is the subset of the cache service used to honor upstream
// rate-limit windows across runs.
type BlockCache interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
}

// Fetcher issues GET requests through the configured upstream proxy with a
// randomized browser identity and a jittered politeness delay per request.
// The underlying client is shared and safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	cache     BlockCache
	metrics   *metrics.Metrics
	blockTime time.Duration
	delayMin  time.Duration
	delayMax  time.Duration

	mu  sync.Mutex
	rnd *mathrand.Rand
}

// NewFetcher builds a fetcher routing all traffic through proxyURL.
func NewFetcher(proxyURL string, timeout time.Duration, delayMin, delayMax time.Duration, cache BlockCache, blockTime time.Duration, m *metrics.Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyURL(parsed),
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		cache:     cache,
		metrics:   m,
		blockTime: blockTime,
		delayMin:  delayMin,
		delayMax:  delayMax,
		rnd:       mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}, nil
}

// do issues the request and records the upstream latency.
func (f *Fetcher) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := f.client.Do(req)
	f.metrics.ObserveDuration(time.Since(start))
	return resp, err
}

// intn is a locked draw from the fetcher's rand source
func (f *Fetcher) intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.Intn(n)
}

// Pause sleeps a random duration inside the configured politeness window,
// or until the context is cancelled.
func (f *Fetcher) Pause(ctx context.Context) {
	d := f.delayMin
	if span := f.delayMax - f.delayMin; span > 0 {
		d += time.Duration(f.intn(int(span)))
	}
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (f *Fetcher) blockKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return "blocked:" + parsed.Host
}

// checkBlocked returns a rate-limit error while the target host is inside a
// block window set by a previous 429.
func (f *Fetcher) checkBlocked(rawURL string) error {
	if f.cache == nil {
		return nil
	}
	key := f.blockKey(rawURL)
	if key == "" {
		return nil
	}
	if _, err := f.cache.Get(key); err == nil {
		return pkgerrors.NewRateLimit(rawURL, f.blockTime)
	}
	return nil
}

func (f *Fetcher) setBlocked(rawURL string) {
	if f.cache == nil {
		return
	}
	key := f.blockKey(rawURL)
	if key == "" {
		return
	}
	f.cache.Set(key, []byte(fmt.Sprintf("%d", int(f.blockTime.Seconds()))), f.blockTime)
}

// decorate sets the per-request randomized browser identity.
func (f *Fetcher) decorate(req *http.Request, referer string) {
	req.Header.Set("User-Agent", userAgents[f.intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguages[f.intn(len(acceptLanguages))])
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-User", "?1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

// FetchPage issues a GET for a page, waits out the politeness delay first,
// converts the body to UTF-8 and returns it as an io.Reader.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL, referer string) (io.Reader, error) {
	if err := f.checkBlocked(rawURL); err != nil {
		return nil, err
	}

	f.Pause(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pkgerrors.NewNetwork(rawURL, "failed to create request", err)
	}
	f.decorate(req, referer)

	resp, err := f.do(req)
	if err != nil {
		return nil, pkgerrors.NewNetwork(rawURL, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		f.setBlocked(rawURL)
		return nil, pkgerrors.NewRateLimit(rawURL, f.blockTime)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.NewNetwork(rawURL, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.NewNetwork(rawURL, "failed to read response body", err)
	}

	// Normalize to UTF-8 based on Content-Type and sniffed body content
	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))
	if name == "utf-8" || name == "UTF-8" {
		return bytes.NewReader(bodyBytes), nil
	}

	utf8Reader := encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, utf8Reader); err != nil {
		return nil, pkgerrors.NewParsing(rawURL, "failed to convert body to UTF-8", err)
	}
	return &buf, nil
}

// FetchImage downloads image bytes with the product page as referer and an
// image accept header. Returns the bytes and the reported content type.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL, referer string) ([]byte, string, error) {
	if err := f.checkBlocked(rawURL); err != nil {
		return nil, "", err
	}

	f.Pause(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", pkgerrors.NewNetwork(rawURL, "failed to create request", err)
	}
	req.Header.Set("User-Agent", userAgents[f.intn(len(userAgents))])
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", acceptLanguages[f.intn(len(acceptLanguages))])
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := f.do(req)
	if err != nil {
		return nil, "", pkgerrors.NewNetwork(rawURL, "failed to fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		f.setBlocked(rawURL)
		return nil, "", pkgerrors.NewRateLimit(rawURL, f.blockTime)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", pkgerrors.NewNetwork(rawURL, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", pkgerrors.NewNetwork(rawURL, "failed to read image body", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
