package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerosum/internal/model"
)

func sampleSteps() []model.StepRecord {
	return []model.StepRecord{
		{
			VersionedRecord: Versioned(),
			Episode:         0,
			Tick:            0,
			Agents: []model.AgentStep{
				{ID: "p1", Team: 0, Raw: 1, Shaped: -1, ChildCalls: 1},
				{ID: "p2", Team: 1, Raw: 2, Shaped: 1, ChildCalls: 1},
			},
		},
		{
			VersionedRecord: Versioned(),
			Episode:         0,
			Tick:            1,
			Final:           true,
			Agents: []model.AgentStep{
				{ID: "p1", Team: 0, Raw: 0, Shaped: 0, ChildCalls: 1},
				{ID: "p2", Team: 1, Raw: 0, Shaped: 0, ChildCalls: 1},
			},
		},
	}
}

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	run := model.RunRecord{VersionedRecord: Versioned(), ID: "run-1", CreatedAtUTC: "2026-01-01T00:00:00Z"}
	require.NoError(t, store.SaveRun(ctx, run))

	got, ok, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run, got)

	_, ok, err = store.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	for _, run := range []model.RunRecord{
		{ID: "old", CreatedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "new", CreatedAtUTC: "2026-03-01T00:00:00Z"},
		{ID: "mid", CreatedAtUTC: "2026-02-01T00:00:00Z"},
	} {
		run.VersionedRecord = Versioned()
		require.NoError(t, store.SaveRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = store.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
}

func TestMemoryStoreStepsAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))

	input := sampleSteps()
	require.NoError(t, store.SaveSteps(ctx, "run-1", input))
	input[0].Agents[0].Shaped = 42

	got, ok, err := store.GetSteps(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, -1.0, got[0].Agents[0].Shaped)
	assert.True(t, got[1].Final)
}

func TestMemoryStoreDeleteAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Init(ctx))
	require.NoError(t, store.SaveRun(ctx, model.RunRecord{ID: "a"}))
	require.NoError(t, store.SaveSteps(ctx, "a", sampleSteps()))
	require.NoError(t, store.SaveRun(ctx, model.RunRecord{ID: "b"}))

	require.NoError(t, store.DeleteRun(ctx, "a"))
	_, ok, err := store.GetSteps(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Reset(ctx))
	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	assert.Error(t, store.SaveRun(context.Background(), model.RunRecord{ID: "a"}))
}
