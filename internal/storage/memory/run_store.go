package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStore provides the in-memory pokedex.RunStore implementation.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]pokedex.Run
	items map[string][]pokedex.ItemRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[string]pokedex.Run),
		items: make(map[string][]pokedex.ItemRecord),
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run pokedex.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus updates the status and counters for a run.
func (s *RunStore) UpdateRunStatus(
	_ context.Context,
	runID string,
	status pokedex.RunStatus,
	errText string,
	counters pokedex.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	now := time.Now().UTC()
	if status == pokedex.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if isTerminal(status) {
		run.Finished = pointerTime(now)
	}
	s.runs[runID] = run
	return nil
}

// RecordItem appends an item row for a run.
func (s *RunStore) RecordItem(_ context.Context, item pokedex.ItemRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.RunID] = append(s.items[item.RunID], item)
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (pokedex.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return pokedex.Run{}, ErrRunNotFound
	}
	return run, nil
}

// ListItems returns all recorded items for a run.
func (s *RunStore) ListItems(_ context.Context, runID string) ([]pokedex.ItemRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := s.items[runID]
	out := make([]pokedex.ItemRecord, len(items))
	copy(out, items)
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status pokedex.RunStatus) bool {
	switch status {
	case pokedex.RunStatusSucceeded, pokedex.RunStatusPartial, pokedex.RunStatusFailed, pokedex.RunStatusCanceled:
		return true
	default:
		return false
	}
}
