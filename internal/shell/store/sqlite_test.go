package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRun(command RunCommand) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Command:   command,
		ImageTag:  "sensor-map-app:latest",
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// =============================================================================
// Run CRUD Tests
// =============================================================================

func TestCreateRun_AndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newRun(CommandDeploy)
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, CommandDeploy, got.Command)
	assert.Equal(t, StatusStarted, got.Status)
	assert.Equal(t, "sensor-map-app:latest", got.ImageTag)
	assert.Nil(t, got.FinishedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRun(context.Background(), "missing-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestFinishRun_Success(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newRun(CommandDeploy)
	require.NoError(t, s.CreateRun(ctx, run))

	finishedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.FinishRun(ctx, run.ID, StatusSucceeded, "", finishedAt))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Error)
}

func TestFinishRun_Failed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newRun(CommandRestart)
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.FinishRun(ctx, run.ID, StatusFailed, "image build failed", time.Now().UTC()))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "image build failed", got.Error)
}

func TestFinishRun_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.FinishRun(context.Background(), "missing-run", StatusSucceeded, "", time.Now().UTC())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

// =============================================================================
// Listing Tests
// =============================================================================

func TestListRecentRuns_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		run := newRun(CommandDeploy)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[4], runs[0].ID)
	assert.Equal(t, ids[3], runs[1].ID)
	assert.Equal(t, ids[2], runs[2].ID)
}

func TestListRecentRuns_Empty(t *testing.T) {
	s := newTestStore(t)

	runs, err := s.ListRecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListRecentRuns_DefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newRun(CommandWatchRestart)
	require.NoError(t, s.CreateRun(ctx, run))

	runs, err := s.ListRecentRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, CommandWatchRestart, runs[0].Command)
}

// =============================================================================
// Migration Tests
// =============================================================================

func TestNewSQLiteStore_MigrationsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")

	s1, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s1.CreateRun(context.Background(), newRun(CommandDeploy)))
	require.NoError(t, s1.Close())

	// Reopening the same file must not re-run migrations destructively.
	s2, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
