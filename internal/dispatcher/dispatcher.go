// Package dispatcher manages worker fan-out over per-run work queues.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cyphercomp/pokefetch/internal/metrics"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
	"github.com/Cyphercomp/pokefetch/internal/progress"
	queuememory "github.com/Cyphercomp/pokefetch/internal/queue/memory"
	"github.com/Cyphercomp/pokefetch/internal/worker"
)

// WorkerFactory builds a worker bound to the given per-run queue. The run
// parameters allow per-run overrides such as the retry attempt budget.
type WorkerFactory func(queue pokedex.Queue, params pokedex.RunParameters) *worker.Worker

// Config controls Dispatcher behavior.
type Config struct {
	Concurrency int
	QueueDepth  int
	Topic       string
}

// Dispatcher executes fetch runs by fanning items out to a bounded pool of
// workers over a per-run queue. The queue is closed after the last item is
// enqueued; workers drain it and the dispatcher joins on their completion, so
// a run finishes without polling.
type Dispatcher struct {
	cfg       Config
	runStore  pokedex.RunStore
	publisher pokedex.Publisher
	clock     pokedex.Clock
	idGen     pokedex.IDGenerator
	emitter   progress.Emitter
	newWorker WorkerFactory
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Dispatcher.
func New(
	cfg Config,
	runStore pokedex.RunStore,
	publisher pokedex.Publisher,
	clock pokedex.Clock,
	idGen pokedex.IDGenerator,
	emitter progress.Emitter,
	newWorker WorkerFactory,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 2 * cfg.Concurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:       cfg,
		runStore:  runStore,
		publisher: publisher,
		clock:     clock,
		idGen:     idGen,
		emitter:   emitter,
		newWorker: newWorker,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit registers a new run in queued state and returns it.
func (d *Dispatcher) Submit(ctx context.Context, params pokedex.RunParameters) (pokedex.Run, error) {
	if len(params.Names) == 0 {
		return pokedex.Run{}, fmt.Errorf("at least one name is required")
	}
	id, err := d.idGen.NewID()
	if err != nil {
		return pokedex.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := pokedex.Run{
		ID:         id,
		Status:     pokedex.RunStatusQueued,
		Submitted:  d.clock.Now(),
		Parameters: params,
	}
	if err := d.runStore.CreateRun(ctx, run); err != nil {
		return pokedex.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Start executes the run asynchronously. Used by serve mode; Cancel stops it
// and Wait joins on all in-flight runs.
func (d *Dispatcher) Start(run pokedex.Run) {
	base := context.Background()
	var ctx context.Context
	var cancel context.CancelFunc
	if run.Parameters.BudgetSeconds > 0 {
		ctx, cancel = context.WithTimeout(base, time.Duration(run.Parameters.BudgetSeconds)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(base)
	}

	d.mu.Lock()
	d.cancels[run.ID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.cancels, run.ID)
			d.mu.Unlock()
			cancel()
		}()
		if _, err := d.Execute(ctx, run); err != nil {
			d.logger.Error("run execution failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()
}

// Cancel stops an in-flight run. It reports whether the run was found.
func (d *Dispatcher) Cancel(runID string) bool {
	d.mu.Lock()
	cancel, ok := d.cancels[runID]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every run started via Start.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.cancels {
		cancel()
	}
}

// Wait blocks until every asynchronously started run has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels all in-flight runs and waits for them to wind down,
// bounded by ctx. Canceled runs still land their terminal status and
// completion publish before the wait group releases.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.CancelAll()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

// Execute runs the fetch pipeline for a run and blocks until every item has
// been processed or the context ends. The returned counters reflect only the
// items that completed.
func (d *Dispatcher) Execute(ctx context.Context, run pokedex.Run) (pokedex.RunCounters, error) {
	started := d.clock.Now()
	runID := parseRunID(run.ID)

	if err := d.runStore.UpdateRunStatus(ctx, run.ID, pokedex.RunStatusRunning, "", pokedex.RunCounters{}); err != nil {
		return pokedex.RunCounters{}, fmt.Errorf("mark run running: %w", err)
	}
	d.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageRunStart})
	d.logger.Info("run started",
		zap.String("run_id", run.ID),
		zap.Int("items", len(run.Parameters.Names)),
		zap.Int("concurrency", d.cfg.Concurrency),
	)

	queue := queuememory.NewQueue(d.cfg.QueueDepth)
	results := make(chan pokedex.RunCounters, d.cfg.Concurrency)
	var wg sync.WaitGroup
	for range d.cfg.Concurrency {
		wk := d.newWorker(queue, run.Parameters)
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- wk.Run(ctx)
		}()
	}

	var enqueueErr error
	for _, name := range run.Parameters.Names {
		item := pokedex.QueueItem{
			RunID:     run.ID,
			Name:      name,
			Submitted: started.UnixMilli(),
		}
		if err := queue.Enqueue(ctx, item); err != nil {
			enqueueErr = err
			break
		}
	}
	queue.Close()
	wg.Wait()
	close(results)

	var counters pokedex.RunCounters
	for c := range results {
		counters.Add(c)
	}

	status, errText := d.finalStatus(ctx, counters, enqueueErr)
	finishCtx := context.WithoutCancel(ctx)
	if err := d.runStore.UpdateRunStatus(finishCtx, run.ID, status, errText, counters); err != nil {
		d.logger.Error("final run status update failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	metrics.ObserveRun(string(status))

	stage := progress.StageRunDone
	if status == pokedex.RunStatusFailed || status == pokedex.RunStatusCanceled {
		stage = progress.StageRunError
	}
	d.emit(progress.Event{
		RunID: runID,
		TS:    d.clock.Now(),
		Stage: stage,
		Dur:   d.clock.Now().Sub(started),
		Note:  errText,
	})

	d.publishCompletion(finishCtx, run.ID, status, counters)
	d.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("failed", counters.Failed),
		zap.Int("retries", counters.Retries),
	)
	return counters, nil
}

func (d *Dispatcher) finalStatus(
	ctx context.Context,
	counters pokedex.RunCounters,
	enqueueErr error,
) (pokedex.RunStatus, string) {
	errText := ""
	if enqueueErr != nil {
		errText = enqueueErr.Error()
	}
	switch {
	case ctx.Err() != nil:
		if errText == "" {
			errText = "run canceled before completion"
		}
		return pokedex.RunStatusCanceled, errText
	case counters.Total() == 0:
		if errText == "" {
			errText = "no items were fetched"
		}
		return pokedex.RunStatusFailed, errText
	default:
		return pokedex.StatusForCounters(counters), errText
	}
}

func (d *Dispatcher) publishCompletion(
	ctx context.Context,
	runID string,
	status pokedex.RunStatus,
	counters pokedex.RunCounters,
) {
	if d.cfg.Topic == "" || d.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":    runID,
		"status":    string(status),
		"succeeded": counters.Succeeded,
		"failed":    counters.Failed,
		"retries":   counters.Retries,
		"timestamp": d.clock.Now().Format(time.RFC3339),
	}
	if _, err := d.publisher.Publish(ctx, d.cfg.Topic, payload); err != nil {
		d.logger.Error("publish run completion failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func (d *Dispatcher) emit(evt progress.Event) {
	if d.emitter == nil {
		return
	}
	d.emitter.Emit(evt)
}

func parseRunID(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return progress.UUIDToBytes(parsed)
}
