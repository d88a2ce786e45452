package scaler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPScalerPostsZeroReplicas(t *testing.T) {
	var gotBody string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sc := NewHTTPScaler(server.URL, "secret-token")
	sc.ScaleToZero(context.Background())

	assert.Equal(t, `{"replicas":0}`, gotBody)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestHTTPScalerWithoutToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	NewHTTPScaler(server.URL, "").ScaleToZero(context.Background())
	assert.Empty(t, gotAuth)
}

func TestHTTPScalerErrorsAreSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	// Best-effort contract: no panic, no error surface
	NewHTTPScaler(server.URL, "").ScaleToZero(context.Background())
	NewHTTPScaler("http://127.0.0.1:1", "").ScaleToZero(context.Background())
}

func TestFromConfig(t *testing.T) {
	assert.IsType(t, Noop{}, FromConfig("", ""))
	assert.IsType(t, (*HTTPScaler)(nil), FromConfig("http://orchestrator.local/scale", "tok"))
}
