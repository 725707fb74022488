// Package progress defines the event structures emitted by the fetch workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageFetchStart Stage = "FETCH_START"
	StageFetchRetry Stage = "FETCH_RETRY"
	StageFetchDone  Stage = "FETCH_DONE"
)

// StatusClass is a coarse result grouping for fetch completions.
type StatusClass string

// Supported status classes tracked for fetch completions.
const (
	StatusSuccess  StatusClass = "success"
	StatusNotFound StatusClass = "not_found"
	StatusError    StatusClass = "error"
	StatusCanceled StatusClass = "canceled"
)

// Event captures a single milestone of fetch progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Item is the work item name; required for fetch stages.
	Item string
	// Attempt counts fetch attempts for retry events, starting at 1.
	Attempt int
	// Bytes carries the response size for completed fetches.
	Bytes int64
	// StatusClass groups fetch outcomes for completed fetches.
	StatusClass StatusClass
	// Dur captures execution latency for fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchStart, StageFetchRetry:
		if e.Item == "" {
			return fmt.Errorf("%s requires item", e.Stage)
		}
	case StageFetchDone:
		if e.Item == "" {
			return errors.New("fetch done requires item")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch completions.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return StatusSuccess
	case code == 404:
		return StatusNotFound
	default:
		return StatusError
	}
}
