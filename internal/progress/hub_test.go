package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func validEvent(stage Stage) Event {
	evt := Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
	}
	if stage == StageFetchStart || stage == StageFetchRetry || stage == StageFetchDone {
		evt.Item = "pikachu"
	}
	if stage == StageFetchDone {
		evt.StatusClass = StatusSuccess
	}
	return evt
}

func TestHubDeliversBatches(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	for range 5 {
		hub.Emit(validEvent(StageRunStart))
	}

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 5
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	assert.True(t, sink.closed)
}

func TestHubFlushesOnClose(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: time.Hour}, sink)

	hub.Emit(validEvent(StageFetchDone))
	require.NoError(t, hub.Close(context.Background()))

	assert.Len(t, sink.snapshot(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{MaxBatchWait: 10 * time.Millisecond}, sink)

	hub.Emit(Event{}) // missing run id and timestamp
	hub.Emit(validEvent(StageRunDone))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Close(context.Background()))
}

func TestHubEmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent(StageRunStart))
	assert.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	t.Run("MissingItemOnFetchDone", func(t *testing.T) {
		evt := validEvent(StageFetchDone)
		evt.Item = ""
		assert.Error(t, evt.Validate())
	})
	t.Run("MissingStatusClass", func(t *testing.T) {
		evt := validEvent(StageFetchDone)
		evt.StatusClass = ""
		assert.Error(t, evt.Validate())
	})
	t.Run("UnknownStage", func(t *testing.T) {
		evt := validEvent(StageRunStart)
		evt.Stage = "BOGUS"
		assert.Error(t, evt.Validate())
	})
	t.Run("NegativeDuration", func(t *testing.T) {
		evt := validEvent(StageRunDone)
		evt.Dur = -time.Second
		assert.Error(t, evt.Validate())
	})
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusSuccess, ClassifyStatus(200))
	assert.Equal(t, StatusNotFound, ClassifyStatus(404))
	assert.Equal(t, StatusError, ClassifyStatus(429))
	assert.Equal(t, StatusError, ClassifyStatus(500))
}
