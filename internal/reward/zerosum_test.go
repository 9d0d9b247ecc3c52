package reward

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReward struct {
	values      map[AgentID]float64
	final       map[AgentID]float64
	calls       map[AgentID]int
	finalCalls  map[AgentID]int
	resets      int
	preSteps    int
	prevActions [][]float64
	failOn      AgentID
}

func newCountingReward(values map[AgentID]float64) *countingReward {
	return &countingReward{
		values:     values,
		final:      map[AgentID]float64{},
		calls:      map[AgentID]int{},
		finalCalls: map[AgentID]int{},
	}
}

func (r *countingReward) Reset(State) { r.resets++ }

func (r *countingReward) PreStep(State) {
	r.preSteps++
	clear(r.calls)
	clear(r.finalCalls)
}

func (r *countingReward) GetReward(player Player, _ State, prevAction []float64) (float64, error) {
	r.calls[player.ID]++
	r.prevActions = append(r.prevActions, prevAction)
	if player.ID == r.failOn {
		return 0, errors.New("boom")
	}
	return r.values[player.ID], nil
}

func (r *countingReward) GetFinalReward(player Player, _ State, prevAction []float64) (float64, error) {
	r.finalCalls[player.ID]++
	r.prevActions = append(r.prevActions, prevAction)
	return r.final[player.ID], nil
}

func twoVsTwo() Snapshot {
	return Snapshot{Roster: []Player{
		{ID: "p1", Team: TeamA},
		{ID: "p2", Team: TeamA},
		{ID: "p3", Team: TeamB},
		{ID: "p4", Team: TeamB},
	}}
}

func newZeroSum(t *testing.T, child Function, teamSpirit, oppScale float64) *ZeroSum {
	t.Helper()
	z, err := NewZeroSum(child, Config{TeamSpirit: teamSpirit, OppScale: oppScale})
	require.NoError(t, err)
	return z
}

func TestZeroSumTwoVsTwoScenario(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1, "p2": 3, "p3": 2, "p4": 4})
	z := newZeroSum(t, child, 0.5, 1)
	state := twoVsTwo()

	z.Reset(state)
	z.PreStep(state)

	want := map[AgentID]float64{"p1": -1.5, "p2": -0.5, "p3": 0.5, "p4": 1.5}
	sum := 0.0
	for _, player := range state.Roster {
		got, err := z.GetReward(player, state, nil)
		require.NoError(t, err)
		assert.InDelta(t, want[player.ID], got, 1e-12, "agent %s", player.ID)
		sum += got
	}
	assert.InDelta(t, 0, sum, 1e-12)

	last := z.LastStep()
	assert.False(t, last.Final)
	assert.Equal(t, TeamAverages{2, 3}, last.Averages)
	assert.Equal(t, 4, last.ChildCalls)
}

func TestZeroSumEvaluatesChildOncePerAgentPerStep(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1, "p2": 3, "p3": 2, "p4": 4})
	z := newZeroSum(t, child, 0.3, 1)
	state := twoVsTwo()

	z.Reset(state)
	for step := 0; step < 3; step++ {
		z.PreStep(state)
		for round := 0; round < 5; round++ {
			for _, player := range state.Roster {
				_, err := z.GetReward(player, state, []float64{1, 2})
				require.NoError(t, err)
			}
		}
		for _, player := range state.Roster {
			assert.Equal(t, 1, child.calls[player.ID], "step %d agent %s", step, player.ID)
		}
	}
	assert.Equal(t, 1, child.resets)
	assert.Equal(t, 3, child.preSteps)
}

func TestZeroSumNeverForwardsPreviousAction(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, []float64{0.5})
	require.NoError(t, err)

	require.Len(t, child.prevActions, 1)
	assert.Nil(t, child.prevActions[0])
}

func TestZeroSumRepeatedQueriesAreIdentical(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 0.1, "p2": 0.7, "p3": -0.2, "p4": 0.33})
	z := newZeroSum(t, child, 0.25, 1)
	state := twoVsTwo()

	z.Reset(state)
	z.PreStep(state)
	first, err := z.GetReward(state.Roster[2], state, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := z.GetReward(state.Roster[2], state, nil)
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(first), math.Float64bits(again))
	}
}

func TestZeroSumTeamAveragesCancel(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		var roster []Player
		values := map[AgentID]float64{}
		size := 1 + rng.Intn(6)
		for i := 0; i < size; i++ {
			id := AgentID(string(rune('a' + i)))
			roster = append(roster, Player{ID: id, Team: Team(rng.Intn(2))})
			values[id] = rng.NormFloat64() * 10
		}
		state := Snapshot{Roster: roster}
		spirit := rng.Float64()

		z := newZeroSum(t, newCountingReward(values), spirit, 1)
		z.Reset(state)
		z.PreStep(state)

		var sums [2]float64
		var counts [2]int
		for _, player := range roster {
			got, err := z.GetReward(player, state, nil)
			require.NoError(t, err)
			sums[player.Team] += got
			counts[player.Team]++
		}
		var means [2]float64
		for team := range means {
			if counts[team] > 0 {
				means[team] = sums[team] / float64(counts[team])
			}
		}
		if counts[0] > 0 && counts[1] > 0 {
			assert.InDelta(t, 0, means[0]+means[1], 1e-9, "trial %d spirit %v", trial, spirit)
		}
	}
}

func TestZeroSumEmptyTeamAveragesToZero(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 2, "p2": 4})
	z := newZeroSum(t, child, 0.5, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}, {ID: "p2", Team: TeamA}}}

	z.Reset(state)
	z.PreStep(state)
	got, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2*0.5+3*0.5-0, got, 1e-12)
	assert.Equal(t, TeamAverages{3, 0}, z.LastStep().Averages)
}

func TestZeroSumPassthroughWhenSpiritAndScaleAreZero(t *testing.T) {
	values := map[AgentID]float64{"p1": 1.25, "p2": -3, "p3": 8, "p4": 0}
	z := newZeroSum(t, newCountingReward(values), 0, 0)
	state := twoVsTwo()

	z.Reset(state)
	z.PreStep(state)
	for _, player := range state.Roster {
		got, err := z.GetReward(player, state, nil)
		require.NoError(t, err)
		assert.Equal(t, values[player.ID], got)
	}
}

func TestZeroSumFinalRewardUsesTerminalVariant(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 100, "p2": 100, "p3": 100, "p4": 100})
	child.final = map[AgentID]float64{"p1": 1, "p2": 1, "p3": 0, "p4": 0}
	z := newZeroSum(t, child, 0, 1)
	state := twoVsTwo()

	z.Reset(state)
	z.PreStep(state)
	got, err := z.GetFinalReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, got, 1e-12)
	assert.Empty(t, child.calls)
	assert.Equal(t, 1, child.finalCalls["p4"])
	assert.True(t, z.LastStep().Final)
}

func TestZeroSumStateTransitions(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}}}

	assert.Equal(t, NeedsRecompute, z.State())
	z.Reset(state)
	assert.Equal(t, NeedsRecompute, z.State())
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	assert.Equal(t, Computed, z.State())
	z.PreStep(state)
	assert.Equal(t, NeedsRecompute, z.State())
	_, err = z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	z.Reset(state)
	assert.Equal(t, NeedsRecompute, z.State())
}

func TestZeroSumQueryBeforeResetFails(t *testing.T) {
	z := newZeroSum(t, newCountingReward(nil), 0, 1)
	_, err := z.GetReward(Player{ID: "p1"}, Snapshot{}, nil)
	assert.ErrorIs(t, err, ErrNotReset)
}

func TestZeroSumMissingAgent(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)

	_, err = z.GetReward(Player{ID: "late", Team: TeamB}, state, nil)
	require.ErrorIs(t, err, ErrMissingAgent)
	assert.Contains(t, err.Error(), "late")
}

func TestZeroSumInvalidTeamFailsWholeStep(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1, "p2": 2})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}, {ID: "p2", Team: Team(2)}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.ErrorIs(t, err, ErrInvalidTeam)
	assert.Equal(t, NeedsRecompute, z.State())
	assert.Zero(t, z.cache.Len())

	_, again := z.GetReward(state.Roster[0], state, nil)
	assert.Equal(t, err, again)
	assert.Zero(t, child.calls["p1"])
	assert.Zero(t, child.calls["p2"])

	valid := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}, {ID: "p2", Team: TeamB}}}
	z.PreStep(valid)
	value, err := z.GetReward(valid.Roster[0], valid, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0-2.0, value)
	assert.Equal(t, 1, child.calls["p1"])
}

func TestZeroSumDuplicateAgent(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}, {ID: "p1", Team: TeamB}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	assert.ErrorIs(t, err, ErrDuplicateAgent)
	assert.Zero(t, child.calls["p1"])
}

func TestZeroSumPropagatesChildError(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1, "p2": 2})
	child.failOn = "p2"
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}, {ID: "p2", Team: TeamB}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent p2")
	assert.Equal(t, NeedsRecompute, z.State())

	_, again := z.GetReward(state.Roster[1], state, nil)
	assert.Equal(t, err, again)
	assert.Equal(t, 1, child.calls["p1"])
	assert.Equal(t, 1, child.calls["p2"])
}

func TestZeroSumResetClearsCache(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	z.Reset(state)
	assert.Zero(t, z.cache.Len())
	assert.Nil(t, z.LastStep().Shaped)
}

func TestZeroSumLastStepIsCopied(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	z := newZeroSum(t, child, 0, 1)
	state := Snapshot{Roster: []Player{{ID: "p1", Team: TeamA}}}

	z.Reset(state)
	z.PreStep(state)
	_, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)

	last := z.LastStep()
	last.Shaped["p1"] = 99
	got, err := z.GetReward(state.Roster[0], state, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, got, 1e-12)
}

func TestNewZeroSumValidation(t *testing.T) {
	child := newCountingReward(nil)

	_, err := NewZeroSum(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	for _, cfg := range []Config{
		{TeamSpirit: -0.1, OppScale: 1},
		{TeamSpirit: 1.1, OppScale: 1},
		{TeamSpirit: math.NaN(), OppScale: 1},
		{TeamSpirit: 0.5, OppScale: math.Inf(1)},
		{TeamSpirit: 0.5, OppScale: math.NaN()},
	} {
		_, err := NewZeroSum(child, cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "config %+v", cfg)
	}

	z, err := NewZeroSum(child, Config{TeamSpirit: 1, OppScale: -2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, z.TeamSpirit())
	assert.Equal(t, -2.0, z.OppScale())
	assert.Same(t, child, z.Child())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.0, cfg.TeamSpirit)
	assert.Equal(t, 1.0, cfg.OppScale)
	assert.NoError(t, cfg.Validate())
}
