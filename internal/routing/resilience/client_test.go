package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/routing/resilience"
)

// testClient returns a client with fast retries against the given server.
func testClient(registry *resilience.Registry) resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig("test-provider")
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	cfg.Registry = registry
	return cfg
}

func get(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return req
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.NewClient(testClient(nil))
	resp, err := client.Do(get(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := resilience.NewClient(testClient(nil))
	resp, err := client.Do(get(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientReturnsLastAnswerAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := resilience.NewClient(testClient(nil))
	resp, err := client.Do(get(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	// The provider's error body is handed back for mapping.
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestClientOpensCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := resilience.NewClient(testClient(registry))

	// Enough failing attempts to trip the breaker.
	for range 2 {
		if resp, err := client.Do(get(t, server.URL)); err == nil {
			resp.Body.Close()
		}
	}

	_, err := client.Do(get(t, server.URL))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	health, ok := registry.Health("test-provider")
	require.True(t, ok)
	assert.Equal(t, resilience.StateDown, health.State)
}

func TestClientHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := resilience.NewClient(testClient(nil))
	_, err := client.DoWithContext(ctx, get(t, server.URL))
	assert.Error(t, err)
}

func TestClientReportsToRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	client := resilience.NewClient(testClient(registry))

	resp, err := client.Do(get(t, server.URL))
	require.NoError(t, err)
	resp.Body.Close()

	health, ok := registry.Health("test-provider")
	require.True(t, ok)
	assert.Equal(t, resilience.StateOK, health.State)
	assert.NotNil(t, health.LastSuccess)
	assert.Nil(t, health.LastFailure)
}
