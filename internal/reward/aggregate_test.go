package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamAggregatorAverages(t *testing.T) {
	var agg TeamAggregator
	require.NoError(t, agg.Add(TeamA, 1))
	require.NoError(t, agg.Add(TeamA, 3))
	require.NoError(t, agg.Add(TeamB, 4))
	require.NoError(t, agg.Add(TeamB, 8))

	assert.Equal(t, TeamAverages{2, 6}, agg.Averages())

	agg.Reset()
	assert.Equal(t, TeamAverages{0, 0}, agg.Averages())
}

func TestTeamAggregatorRejectsInvalidTeam(t *testing.T) {
	var agg TeamAggregator
	assert.ErrorIs(t, agg.Add(Team(-1), 1), ErrInvalidTeam)
	assert.ErrorIs(t, agg.Add(Team(2), 1), ErrInvalidTeam)
}

func TestCombinerFormula(t *testing.T) {
	c := Combiner{TeamSpirit: 0.25, OppScale: 2}
	averages := TeamAverages{1, -0.5}

	assert.InDelta(t, 4*0.75+1*0.25+0.5*2, c.Combine(4, TeamA, averages), 1e-12)
	assert.InDelta(t, 0*0.75-0.5*0.25-1*2, c.Combine(0, TeamB, averages), 1e-12)
}

func TestTeamHelpers(t *testing.T) {
	assert.Equal(t, TeamB, TeamA.Opponent())
	assert.Equal(t, TeamA, TeamB.Opponent())
	assert.False(t, Team(3).Valid())
	assert.Equal(t, "team_a", TeamA.String())
	assert.Equal(t, "team(5)", Team(5).String())
}

func TestStepCache(t *testing.T) {
	cache := NewStepCache()
	cache.Put("a", 1)
	value, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1.0, value)

	snapshot := cache.Snapshot()
	cache.Clear()
	_, ok = cache.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1.0, snapshot["a"])
}
