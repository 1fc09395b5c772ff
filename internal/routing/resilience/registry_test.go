package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motis-project/prima-dispatch/internal/routing/resilience"
)

// newProvider registers a client under name and sends one request so the
// registry has an outcome to report.
func newProvider(t *testing.T, registry *resilience.Registry, name, url string) {
	t.Helper()
	cfg := resilience.DefaultClientConfig(name)
	cfg.InitialInterval = 1
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if resp, err := client.Do(req); err == nil {
		resp.Body.Close()
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	_, ok := registry.Health("nobody")
	assert.False(t, ok)
	assert.Error(t, registry.Probe("nobody")())
}

func TestRegistryHealthAllSorted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	newProvider(t, registry, "valhalla", server.URL)
	newProvider(t, registry, "openrouteservice", server.URL)

	all := registry.HealthAll()
	require.Len(t, all, 2)
	assert.Equal(t, "openrouteservice", all[0].Name)
	assert.Equal(t, "valhalla", all[1].Name)
	for _, h := range all {
		assert.Equal(t, resilience.StateOK, h.State)
	}
}

func TestRegistryRecordsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	newProvider(t, registry, "openrouteservice", server.URL)

	health, ok := registry.Health("openrouteservice")
	require.True(t, ok)
	assert.NotNil(t, health.LastFailure)
	assert.Contains(t, health.LastError, "502")
}

func TestRegistryProbeHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	newProvider(t, registry, "openrouteservice", server.URL)

	assert.NoError(t, registry.Probe("openrouteservice")())
}
