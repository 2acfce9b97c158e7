package sqlite_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/robocin/framework/internal/geom"
	"github.com/robocin/framework/internal/storage/sqlite"
	"github.com/robocin/framework/internal/vision/robotfilter"
	"github.com/robocin/framework/internal/vision/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	states, err := store.RecentWorldStates(10)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestLogWorldState_PersistsRow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	snap := tracker.Snapshot{
		Time:        time.Unix(100, 0),
		Yellow:      map[int]robotfilter.Info{1: {Identifier: 1}},
		Blue:        map[int]robotfilter.Info{},
		BallTracked: true,
	}
	store.LogWorldState(snap)

	states, err := store.RecentWorldStates(10)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, int64(100), states[0].Unix())
}

func TestLogTrajectory_PersistsRow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	err = store.LogTrajectory("yellow", 3, time.Now(), []geom.Vec2{{X: 0, Y: 0}, {X: 1, Y: 1}})
	assert.NoError(t, err)
}

func TestNilStore_MethodsAreNoOps(t *testing.T) {
	t.Parallel()

	var store *sqlite.Store
	assert.NoError(t, store.Close())
	assert.NotPanics(t, func() { store.LogWorldState(tracker.Snapshot{}) })

	err := store.LogTrajectory("blue", 1, time.Now(), nil)
	assert.NoError(t, err)

	states, err := store.RecentWorldStates(5)
	assert.NoError(t, err)
	assert.Nil(t, states)
}
