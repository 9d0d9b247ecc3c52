package replay

import (
	"errors"
	"fmt"

	"zerosum/internal/reward"
)

var ErrUnknownPosition = errors.New("state does not address a recorded tick")

// TableReward replays the raw rewards stored in a Trace. States must be
// reward.Snapshot values whose Episode and Tick index into the trace.
type TableReward struct {
	trace  *Trace
	resets int
	steps  int
	calls  map[callKey]int
}

type callKey struct {
	episode int
	tick    int
	agent   reward.AgentID
}

var _ reward.Function = (*TableReward)(nil)

func NewTableReward(trace *Trace) *TableReward {
	return &TableReward{trace: trace, calls: make(map[callKey]int)}
}

func (r *TableReward) Reset(reward.State) {
	r.resets++
}

func (r *TableReward) PreStep(reward.State) {
	r.steps++
}

func (r *TableReward) GetReward(player reward.Player, state reward.State, _ []float64) (float64, error) {
	score, err := r.lookup(player, state)
	if err != nil {
		return 0, err
	}
	return score.Reward, nil
}

func (r *TableReward) GetFinalReward(player reward.Player, state reward.State, _ []float64) (float64, error) {
	score, err := r.lookup(player, state)
	if err != nil {
		return 0, err
	}
	if score.FinalReward != nil {
		return *score.FinalReward, nil
	}
	return score.Reward, nil
}

// Calls reports how often an agent was scored at a given position.
func (r *TableReward) Calls(episode, tick int, id reward.AgentID) int {
	return r.calls[callKey{episode: episode, tick: tick, agent: id}]
}

func (r *TableReward) Resets() int { return r.resets }

func (r *TableReward) PreSteps() int { return r.steps }

func (r *TableReward) lookup(player reward.Player, state reward.State) (Score, error) {
	snapshot, ok := state.(reward.Snapshot)
	if !ok {
		return Score{}, fmt.Errorf("%w: unsupported state %T", ErrUnknownPosition, state)
	}
	tick, err := r.trace.tick(snapshot.Episode, snapshot.Tick)
	if err != nil {
		return Score{}, err
	}
	score, ok := tick.Find(player.ID)
	if !ok {
		return Score{}, fmt.Errorf("%w: agent %s not recorded at episode %d tick %d",
			ErrUnknownPosition, player.ID, snapshot.Episode, snapshot.Tick)
	}
	r.calls[callKey{episode: snapshot.Episode, tick: snapshot.Tick, agent: player.ID}]++
	return score, nil
}

func (t *Trace) tick(episode, tick int) (Tick, error) {
	if episode < 0 || episode >= len(t.Episodes) {
		return Tick{}, fmt.Errorf("%w: episode %d", ErrUnknownPosition, episode)
	}
	ticks := t.Episodes[episode].Ticks
	if tick < 0 || tick >= len(ticks) {
		return Tick{}, fmt.Errorf("%w: episode %d tick %d", ErrUnknownPosition, episode, tick)
	}
	return ticks[tick], nil
}
