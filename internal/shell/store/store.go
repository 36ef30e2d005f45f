// Package store persists deploy-run history in SQLite. History is advisory:
// callers log store failures and keep going, a broken history file must
// never block a deployment.
package store

import (
	"context"
	"time"
)

// =============================================================================
// Run Types
// =============================================================================

// RunCommand identifies which operation produced a run record.
type RunCommand string

const (
	CommandDeploy  RunCommand = "deploy"
	CommandRestart RunCommand = "restart"
	CommandStop    RunCommand = "stop"
	// CommandWatchRestart marks restarts triggered by the health watcher.
	CommandWatchRestart RunCommand = "watch-restart"
)

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusStarted   RunStatus = "started"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run records one invocation of a lifecycle command.
type Run struct {
	ID         string     `db:"id"`
	Command    RunCommand `db:"command"`
	Status     RunStatus  `db:"status"`
	ImageTag   string     `db:"image_tag"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	Error      string     `db:"error"`
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deploy history.
type Store interface {
	// CreateRun inserts a new run in status "started".
	CreateRun(ctx context.Context, run *Run) error

	// FinishRun marks a run as succeeded or failed.
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg string, finishedAt time.Time) error

	// GetRun returns one run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRecentRuns returns the most recent runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]Run, error)

	// Close releases the underlying database handle.
	Close() error
}
