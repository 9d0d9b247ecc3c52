package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildZeroSumFromRegistry(t *testing.T) {
	child := newCountingReward(map[AgentID]float64{"p1": 1})
	fn, err := Build(ZeroSumName, child, BuildOptions{Params: Params{"team_spirit": 0.4}})
	require.NoError(t, err)

	z, ok := fn.(*ZeroSum)
	require.True(t, ok)
	assert.Equal(t, 0.4, z.TeamSpirit())
	assert.Equal(t, 1.0, z.OppScale())
}

func TestBuildZeroSumRejectsBadParams(t *testing.T) {
	_, err := Build(ZeroSumName, newCountingReward(nil), BuildOptions{Params: Params{"team_spirit": 2}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildPassthroughReturnsChild(t *testing.T) {
	child := newCountingReward(nil)
	fn, err := Build(PassthroughName, child, BuildOptions{})
	require.NoError(t, err)
	assert.Same(t, child, fn)

	_, err = Build(PassthroughName, nil, BuildOptions{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildUnknown(t *testing.T) {
	_, err := Build("nope", newCountingReward(nil), BuildOptions{})
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestRegisterValidation(t *testing.T) {
	assert.Error(t, Register("", func(Function, BuildOptions) (Function, error) { return nil, nil }))
	assert.Error(t, Register("x", nil))
	assert.ErrorIs(t, Register(ZeroSumName, func(Function, BuildOptions) (Function, error) { return nil, nil }), ErrFunctionExists)
	assert.Contains(t, List(), ZeroSumName)
	assert.Contains(t, List(), PassthroughName)
}
