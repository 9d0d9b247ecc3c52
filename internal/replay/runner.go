package replay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"

	"zerosum/internal/model"
	"zerosum/internal/reward"
)

type RunnerConfig struct {
	// RepeatQueries is how many times every agent is queried per tick. Values below 1 mean 1.
	RepeatQueries int
	// Seed drives the per-tick query order.
	Seed   int64
	Logger *slog.Logger
}

// Runner drives a reward function through a trace the way a training loop
// would: Reset per episode, PreStep per tick, then per-agent queries in a
// shuffled order. The last tick of each episode is queried as terminal.
type Runner struct {
	repeat int
	rng    *rand.Rand
	logger *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	repeat := cfg.RepeatQueries
	if repeat < 1 {
		repeat = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		repeat: repeat,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}
}

// Run replays every episode of the trace. table must be the TableReward at
// the bottom of fn's wrapper stack; it supplies raw rewards and call counts.
func (r *Runner) Run(ctx context.Context, trace *Trace, table *TableReward, fn reward.Function) ([]model.StepRecord, error) {
	records := make([]model.StepRecord, 0, trace.Steps())
	for episodeIndex, episode := range trace.Episodes {
		initial := reward.Snapshot{Episode: episodeIndex, Tick: 0, Roster: episode.Ticks[0].Roster()}
		fn.Reset(initial)

		for tickIndex, tick := range episode.Ticks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			final := tickIndex == len(episode.Ticks)-1
			state := reward.Snapshot{Episode: episodeIndex, Tick: tickIndex, Roster: tick.Roster()}
			record, err := r.step(fn, table, tick, state, final)
			if err != nil {
				return nil, fmt.Errorf("episode %d tick %d: %w", episodeIndex, tickIndex, err)
			}
			records = append(records, record)
		}
		r.logger.Info("episode replayed", "episode", episodeIndex, "id", episode.ID, "ticks", len(episode.Ticks))
	}
	return records, nil
}

func (r *Runner) step(fn reward.Function, table *TableReward, tick Tick, state reward.Snapshot, final bool) (model.StepRecord, error) {
	fn.PreStep(state)

	order := append([]reward.Player(nil), state.Roster...)
	shaped := make(map[reward.AgentID]float64, len(order))
	for round := 0; round < r.repeat; round++ {
		r.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
		for _, player := range order {
			var (
				value float64
				err   error
			)
			if final {
				value, err = fn.GetFinalReward(player, state, nil)
			} else {
				value, err = fn.GetReward(player, state, nil)
			}
			if err != nil {
				return model.StepRecord{}, err
			}
			if previous, seen := shaped[player.ID]; seen && math.Float64bits(previous) != math.Float64bits(value) {
				return model.StepRecord{}, fmt.Errorf("agent %s reward changed within step: %v then %v", player.ID, previous, value)
			}
			shaped[player.ID] = value
		}
	}

	record := model.StepRecord{
		Episode: state.Episode,
		Tick:    state.Tick,
		Final:   final,
		Agents:  make([]model.AgentStep, 0, len(tick.Players)),
	}
	for _, score := range tick.Players {
		raw := score.Reward
		if final && score.FinalReward != nil {
			raw = *score.FinalReward
		}
		record.Agents = append(record.Agents, model.AgentStep{
			ID:         string(score.ID),
			Team:       int(score.Team),
			Raw:        raw,
			Shaped:     shaped[score.ID],
			ChildCalls: table.Calls(state.Episode, state.Tick, score.ID),
		})
	}
	return record, nil
}
