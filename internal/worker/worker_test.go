package worker

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyphercomp/pokefetch/internal/clock/system"
	"github.com/Cyphercomp/pokefetch/internal/hash/sha256"
	"github.com/Cyphercomp/pokefetch/internal/metrics"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
	"github.com/Cyphercomp/pokefetch/internal/progress"
	queuememory "github.com/Cyphercomp/pokefetch/internal/queue/memory"
	storememory "github.com/Cyphercomp/pokefetch/internal/storage/memory"
)

const pikachuBody = `{"name":"pikachu","height":4,"weight":60,` +
	`"types":[{"slot":1,"type":{"name":"electric"}}]}`

type fetchResult struct {
	resp pokedex.FetchResponse
	err  error
}

// scriptedFetcher replays a fixed sequence of results per item name.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]fetchResult
	calls   map[string]int
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		scripts: make(map[string][]fetchResult),
		calls:   make(map[string]int),
	}
}

func (f *scriptedFetcher) script(name string, results ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[name] = results
}

func (f *scriptedFetcher) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *scriptedFetcher) Fetch(_ context.Context, req pokedex.FetchRequest) (pokedex.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls[req.Name]
	f.calls[req.Name]++
	script := f.scripts[req.Name]
	result := script[len(script)-1]
	if idx < len(script) {
		result = script[idx]
	}
	return result.resp, result.err
}

type noopPacer struct{}

func (noopPacer) Wait(context.Context) error { return nil }

type memFailureLog struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemFailureLog() *memFailureLog {
	return &memFailureLog{entries: make(map[string]string)}
}

func (l *memFailureLog) Append(_ context.Context, name, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[name] = reason
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]progress.Stage, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Stage)
	}
	return out
}

type workerFixture struct {
	queue      *queuememory.Queue
	runStore   *storememory.RunStore
	blobStore  *storememory.BlobStore
	failureLog *memFailureLog
	fetcher    *scriptedFetcher
	emitter    *captureEmitter
	worker     *Worker
}

func newWorkerFixture(t *testing.T, maxAttempts int) *workerFixture {
	t.Helper()
	metrics.Init()

	f := &workerFixture{
		queue:      queuememory.NewQueue(8),
		runStore:   storememory.NewRunStore(),
		blobStore:  storememory.NewBlobStore(),
		failureLog: newMemFailureLog(),
		fetcher:    newScriptedFetcher(),
		emitter:    &captureEmitter{},
	}
	f.worker = New(
		f.queue,
		f.runStore,
		f.blobStore,
		f.failureLog,
		f.fetcher,
		pokedex.NewExponentialRetryPolicy(maxAttempts, time.Millisecond, 2*time.Millisecond),
		noopPacer{},
		sha256.New(),
		system.New(),
		f.emitter,
		Config{},
		nil,
	)
	return f
}

func (f *workerFixture) runOne(t *testing.T, runID, name string) pokedex.RunCounters {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.queue.Enqueue(ctx, pokedex.QueueItem{RunID: runID, Name: name}))
	f.queue.Close()
	return f.worker.Run(ctx)
}

func okResult(name, body string) fetchResult {
	return fetchResult{resp: pokedex.FetchResponse{
		Name:       name,
		URL:        "https://pokeapi.co/api/v2/pokemon/" + name,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Duration:   5 * time.Millisecond,
	}}
}

func statusResult(code int) fetchResult {
	return fetchResult{err: &pokedex.StatusError{StatusCode: code, URL: "https://pokeapi.co/api/v2/pokemon/x"}}
}

func TestWorkerSuccess(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 3)
	f.fetcher.script("pikachu", okResult("pikachu", pikachuBody))
	runID := uuid.NewString()

	counters := f.runOne(t, runID, "Pikachu")

	assert.Equal(t, pokedex.RunCounters{Succeeded: 1}, counters)
	assert.Equal(t, 1, f.fetcher.callCount("pikachu"))

	body, ok := f.blobStore.Object("pikachu.json")
	require.True(t, ok)
	assert.JSONEq(t, pikachuBody, string(body))

	items, err := f.runStore.ListItems(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pokedex.ItemStatusSuccess, items[0].Status)
	assert.Equal(t, 1, items[0].Attempts)
	assert.NotEmpty(t, items[0].ContentHash)
	assert.Equal(t, "memory://pikachu.json", items[0].BlobURI)

	assert.Equal(t, []progress.Stage{progress.StageFetchStart, progress.StageFetchDone}, f.emitter.stages())
}

func TestWorkerRetryThenSuccess(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 3)
	f.fetcher.script("pikachu",
		statusResult(http.StatusTooManyRequests),
		statusResult(http.StatusServiceUnavailable),
		okResult("pikachu", pikachuBody),
	)
	runID := uuid.NewString()

	counters := f.runOne(t, runID, "pikachu")

	assert.Equal(t, pokedex.RunCounters{Succeeded: 1, Retries: 2}, counters)
	assert.Equal(t, 3, f.fetcher.callCount("pikachu"))

	items, err := f.runStore.ListItems(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Attempts)

	assert.Equal(t, []progress.Stage{
		progress.StageFetchStart,
		progress.StageFetchRetry,
		progress.StageFetchRetry,
		progress.StageFetchDone,
	}, f.emitter.stages())
}

func TestWorkerNotFoundNeverRetried(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 5)
	f.fetcher.script("missingno", statusResult(http.StatusNotFound))
	runID := uuid.NewString()

	counters := f.runOne(t, runID, "missingno")

	assert.Equal(t, pokedex.RunCounters{Failed: 1}, counters)
	assert.Equal(t, 1, f.fetcher.callCount("missingno"))
	assert.Contains(t, f.failureLog.entries, "missingno")

	items, err := f.runStore.ListItems(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pokedex.ItemStatusFailed, items[0].Status)
	assert.Equal(t, http.StatusNotFound, items[0].StatusCode)
	assert.Equal(t, 1, items[0].Attempts)

	last := f.emitter.events[len(f.emitter.events)-1]
	assert.Equal(t, progress.StageFetchDone, last.Stage)
	assert.Equal(t, progress.StatusNotFound, last.StatusClass)
}

func TestWorkerRetryExhausted(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 2)
	f.fetcher.script("pikachu", statusResult(http.StatusTooManyRequests))
	runID := uuid.NewString()

	counters := f.runOne(t, runID, "pikachu")

	assert.Equal(t, pokedex.RunCounters{Failed: 1, Retries: 1}, counters)
	assert.Equal(t, 2, f.fetcher.callCount("pikachu"))

	items, err := f.runStore.ListItems(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Attempts)
	assert.Contains(t, items[0].ErrorText, "retry attempts exhausted")
}

func TestWorkerMalformedBody(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 3)
	f.fetcher.script("pikachu", okResult("pikachu", `{"name":""}`))
	runID := uuid.NewString()

	counters := f.runOne(t, runID, "pikachu")

	assert.Equal(t, pokedex.RunCounters{Failed: 1}, counters)
	assert.Equal(t, 1, f.fetcher.callCount("pikachu"))

	_, ok := f.blobStore.Object("pikachu.json")
	assert.False(t, ok)

	last := f.emitter.events[len(f.emitter.events)-1]
	assert.Equal(t, progress.StatusError, last.StatusClass)
}

func TestWorkerBlobPrefix(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, 3)
	f.worker.cfg.BlobPrefix = "/runs/"
	f.fetcher.script("pikachu", okResult("pikachu", pikachuBody))

	f.runOne(t, uuid.NewString(), "pikachu")

	_, ok := f.blobStore.Object("runs/pikachu.json")
	assert.True(t, ok)
}
