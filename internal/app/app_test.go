package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyphercomp/pokefetch/internal/config"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		API:     config.APIConfig{BaseURL: baseURL, TimeoutSeconds: 5},
		Fetch:   config.FetchConfig{Concurrency: 2, QueueDepth: 8},
		Retry:   config.RetryConfig{MaxAttempts: 2, BackoffInitialMs: 1, BackoffMaxMs: 2},
		Storage: config.StorageConfig{Provider: "local", OutputDir: filepath.Join(dir, "out"), ErrorLog: filepath.Join(dir, "errors.txt")},
		Server:  config.ServerConfig{Port: 8080},
	}
}

func TestNewAppRunsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Base(r.URL.Path)
		fmt.Fprintf(w, `{"name":%q,"height":4,"weight":60,"types":[{"slot":1,"type":{"name":"electric"}}]}`, name)
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, srv.URL), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close(ctx)

	run, err := a.Dispatcher().Submit(ctx, pokedex.RunParameters{Names: []string{"pikachu", "eevee"}})
	require.NoError(t, err)

	counters, err := a.Dispatcher().Execute(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, pokedex.RunCounters{Succeeded: 2}, counters)

	stored, err := a.RunStore().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, pokedex.RunStatusSucceeded, stored.Status)
}

func TestNewAppUnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Storage.Provider = "tape"

	_, err := newApp(context.Background(), cfg, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestPerRunMaxAttemptsOverride(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, srv.URL), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close(ctx)

	run, err := a.Dispatcher().Submit(ctx, pokedex.RunParameters{Names: []string{"pikachu"}, MaxAttempts: 1})
	require.NoError(t, err)

	counters, err := a.Dispatcher().Execute(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, pokedex.RunCounters{Failed: 1}, counters)
	assert.Equal(t, 1, calls)
}
