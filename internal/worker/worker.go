// Package worker implements the fetch pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Cyphercomp/pokefetch/internal/metrics"
	"github.com/Cyphercomp/pokefetch/internal/pokedex"
	"github.com/Cyphercomp/pokefetch/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	ContentType string
	BlobPrefix  string
}

// Worker consumes queue items and executes the fetch pipeline.
type Worker struct {
	queue      pokedex.Queue
	runStore   pokedex.RunStore
	blobStore  pokedex.BlobStore
	failureLog pokedex.FailureLog
	fetcher    pokedex.Fetcher
	retry      pokedex.RetryPolicy
	pacer      pokedex.Pacer
	hasher     pokedex.Hasher
	clock      pokedex.Clock
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	queue pokedex.Queue,
	runStore pokedex.RunStore,
	blobStore pokedex.BlobStore,
	failureLog pokedex.FailureLog,
	fetcher pokedex.Fetcher,
	retry pokedex.RetryPolicy,
	pacer pokedex.Pacer,
	hasher pokedex.Hasher,
	clock pokedex.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	return &Worker{
		queue:      queue,
		runStore:   runStore,
		blobStore:  blobStore,
		failureLog: failureLog,
		fetcher:    fetcher,
		retry:      retry,
		pacer:      pacer,
		hasher:     hasher,
		clock:      clock,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run blocks, consuming queue items until the queue is closed and drained or
// the context finishes. It returns the counters for the items it processed.
func (w *Worker) Run(ctx context.Context) pokedex.RunCounters {
	var counters pokedex.RunCounters
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, pokedex.ErrQueueClosed) || ctx.Err() != nil {
				return counters
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued item", zap.String("run_id", item.RunID), zap.String("item", item.Name))
		counters.Add(w.processItem(ctx, item))
	}
}

func (w *Worker) processItem(ctx context.Context, item pokedex.QueueItem) pokedex.RunCounters {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	runID := parseRunID(item.RunID)
	name := pokedex.NormalizeName(item.Name)
	start := w.clock.Now()
	w.emit(progress.Event{
		RunID: runID,
		TS:    start,
		Stage: progress.StageFetchStart,
		Item:  name,
	})

	var counters pokedex.RunCounters
	resp, attempts, retries, err := w.fetchWithRetry(ctx, item, runID, name)
	counters.Retries = retries
	if err == nil {
		err = w.persistItem(ctx, item, name, resp, attempts)
	}
	if err != nil {
		w.recordFailure(ctx, item, runID, name, attempts, start, err)
		counters.Failed = 1
		return counters
	}
	counters.Succeeded = 1
	return counters
}

// fetchWithRetry executes the bounded retry loop for one item. It returns the
// number of attempts made and how many of those were retries.
func (w *Worker) fetchWithRetry(
	ctx context.Context,
	item pokedex.QueueItem,
	runID [16]byte,
	name string,
) (pokedex.FetchResponse, int, int, error) {
	request := pokedex.FetchRequest{RunID: item.RunID, Name: name}
	attempt := 0
	retries := 0
	for {
		attempt++
		if err := w.pacer.Wait(ctx); err != nil {
			return pokedex.FetchResponse{}, attempt, retries, err
		}

		resp, err := w.fetcher.Fetch(ctx, request)
		if err == nil {
			if _, parseErr := pokedex.ParsePokemon(resp.Body); parseErr != nil {
				return pokedex.FetchResponse{}, attempt, retries, parseErr
			}
			return resp, attempt, retries, nil
		}

		if !w.retry.ShouldRetry(err, attempt) {
			if pokedex.Retryable(err) {
				err = fmt.Errorf("%w after %d attempts: %w", pokedex.ErrRetryExhausted, attempt, err)
			}
			return pokedex.FetchResponse{}, attempt, retries, err
		}

		retries++
		metrics.ObserveRetry()
		backoff := w.retry.Backoff(attempt)
		w.emit(progress.Event{
			RunID:   runID,
			TS:      w.clock.Now(),
			Stage:   progress.StageFetchRetry,
			Item:    name,
			Attempt: attempt,
			Dur:     backoff,
			Note:    err.Error(),
		})
		w.logger.Warn("fetch attempt failed, backing off",
			zap.String("item", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return pokedex.FetchResponse{}, attempt, retries, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (w *Worker) persistItem(
	ctx context.Context,
	item pokedex.QueueItem,
	name string,
	resp pokedex.FetchResponse,
	attempts int,
) error {
	hash, err := w.hasher.Hash(resp.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}

	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(name), w.cfg.ContentType, resp.Body)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	record := pokedex.ItemRecord{
		RunID:       item.RunID,
		Name:        name,
		Status:      pokedex.ItemStatusSuccess,
		StatusCode:  resp.StatusCode,
		Attempts:    attempts,
		FetchedAt:   w.clock.Now(),
		Duration:    resp.Duration,
		ContentHash: hash,
		BlobURI:     uri,
	}
	if err := w.runStore.RecordItem(ctx, record); err != nil {
		return fmt.Errorf("record item: %w", err)
	}

	metrics.ObserveFetch(string(progress.StatusSuccess), len(resp.Body), resp.Duration)
	w.emit(progress.Event{
		RunID:       parseRunID(item.RunID),
		TS:          w.clock.Now(),
		Stage:       progress.StageFetchDone,
		Item:        name,
		Attempt:     attempts,
		Bytes:       int64(len(resp.Body)),
		StatusClass: progress.StatusSuccess,
		Dur:         resp.Duration,
	})
	w.logger.Info("item fetched",
		zap.String("run_id", item.RunID),
		zap.String("item", name),
		zap.Int("attempts", attempts),
		zap.String("blob_uri", uri),
	)
	return nil
}

func (w *Worker) recordFailure(
	ctx context.Context,
	item pokedex.QueueItem,
	runID [16]byte,
	name string,
	attempts int,
	start time.Time,
	cause error,
) {
	// Cancellation must not prevent the failure from being recorded.
	recordCtx := context.WithoutCancel(ctx)
	class := classifyFailure(cause)
	reason := cause.Error()
	duration := w.clock.Now().Sub(start)

	if err := w.failureLog.Append(recordCtx, name, reason); err != nil {
		w.logger.Error("failure log append failed", zap.String("item", name), zap.Error(err))
	}

	record := pokedex.ItemRecord{
		RunID:      item.RunID,
		Name:       name,
		Status:     pokedex.ItemStatusFailed,
		StatusCode: statusCodeOf(cause),
		Attempts:   attempts,
		FetchedAt:  w.clock.Now(),
		Duration:   duration,
		ErrorText:  reason,
	}
	if err := w.runStore.RecordItem(recordCtx, record); err != nil {
		w.logger.Error("record item failed", zap.String("item", name), zap.Error(err))
	}

	metrics.ObserveFetch(string(class), 0, duration)
	w.emit(progress.Event{
		RunID:       runID,
		TS:          w.clock.Now(),
		Stage:       progress.StageFetchDone,
		Item:        name,
		Attempt:     attempts,
		StatusClass: class,
		Dur:         duration,
		Note:        reason,
	})
	w.logger.Error("item failed",
		zap.String("run_id", item.RunID),
		zap.String("item", name),
		zap.Int("attempts", attempts),
		zap.String("class", string(class)),
		zap.Error(cause),
	)
}

func (w *Worker) buildBlobPath(name string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return name + ".json"
	}
	return prefix + "/" + name + ".json"
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}

func classifyFailure(err error) progress.StatusClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return progress.StatusCanceled
	}
	var statusErr *pokedex.StatusError
	if errors.As(err, &statusErr) {
		return progress.ClassifyStatus(statusErr.StatusCode)
	}
	return progress.StatusError
}

func statusCodeOf(err error) int {
	var statusErr *pokedex.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func parseRunID(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return progress.UUIDToBytes(parsed)
}
