// Package pokedex defines core types shared across subsystems.
package pokedex

import (
	"strings"
	"time"
)

// RunStatus represents the lifecycle state of a fetch run.
type RunStatus string

// Run status values tracked by the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// ItemStatus represents the state of a single work item within a run.
type ItemStatus string

// Item status values used for display and the serve API.
const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusRunning ItemStatus = "running"
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFailed  ItemStatus = "failed"
)

// RunParameters captures per-run knobs requested by the caller.
type RunParameters struct {
	Names         []string          `json:"names"`
	MaxAttempts   int               `json:"max_attempts"`
	BudgetSeconds int               `json:"budget_seconds"`
	Tags          map[string]string `json:"tags"`
}

// Run is the metadata tracked for each submitted fetch run.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters RunParameters `json:"parameters"`
	Counters   RunCounters   `json:"counters"`
}

// RunCounters tracks success/failure stats per run.
type RunCounters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retries   int `json:"retries"`
}

// Add accumulates another set of counters.
func (c *RunCounters) Add(other RunCounters) {
	c.Succeeded += other.Succeeded
	c.Failed += other.Failed
	c.Retries += other.Retries
}

// Total returns the number of completed items.
func (c RunCounters) Total() int {
	return c.Succeeded + c.Failed
}

// Exit codes reported by the fetch and batch commands.
const (
	ExitAllSucceeded = 0
	ExitAllFailed    = 1
	ExitPartial      = 2
)

// ExitCode maps run counters onto the process exit contract: 0 when every
// item succeeded, 1 when none did, 2 otherwise. Zero counters report
// all-failed, since a run that completed nothing (interrupted before its
// first item, for example) must not exit 0.
func ExitCode(c RunCounters) int {
	switch {
	case c.Succeeded > 0 && c.Failed == 0:
		return ExitAllSucceeded
	case c.Succeeded == 0:
		return ExitAllFailed
	default:
		return ExitPartial
	}
}

// StatusForCounters derives the terminal run status from the counters.
func StatusForCounters(c RunCounters) RunStatus {
	switch ExitCode(c) {
	case ExitAllSucceeded:
		return RunStatusSucceeded
	case ExitAllFailed:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// ItemRecord is recorded for each completed work item.
type ItemRecord struct {
	RunID       string        `json:"run_id"`
	Name        string        `json:"name"`
	Status      ItemStatus    `json:"status"`
	StatusCode  int           `json:"status_code,omitempty"`
	Attempts    int           `json:"attempts"`
	FetchedAt   time.Time     `json:"fetched_at"`
	Duration    time.Duration `json:"duration_ns"`
	ContentHash string        `json:"content_hash,omitempty"`
	BlobURI     string        `json:"blob_uri,omitempty"`
	ErrorText   string        `json:"error_text,omitempty"`
}

// FetchRequest captures everything needed to fetch one record.
type FetchRequest struct {
	RunID string
	Name  string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	Name       string
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// RunResult is returned by the serve API result endpoint.
type RunResult struct {
	Run   Run          `json:"run"`
	Items []ItemRecord `json:"items"`
}

// NormalizeName lowercases and trims a work item name so URLs and output
// filenames stay stable regardless of caller casing.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
