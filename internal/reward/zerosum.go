package reward

import (
	"fmt"
	"io"
	"log/slog"
	"math"
)

// StepState tracks whether the current step's rewards have been computed.
type StepState int

const (
	NeedsRecompute StepState = iota
	Computed
)

func (s StepState) String() string {
	switch s {
	case NeedsRecompute:
		return "needs_recompute"
	case Computed:
		return "computed"
	default:
		return fmt.Sprintf("step_state(%d)", int(s))
	}
}

type Config struct {
	// TeamSpirit is the fraction of the individual reward replaced by the team average.
	TeamSpirit float64
	// OppScale multiplies the opposing team's average before it is subtracted.
	OppScale float64
	// Logger receives debug output for each step computation. Nil disables logging.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{OppScale: 1}
}

func (c Config) Validate() error {
	if math.IsNaN(c.TeamSpirit) || c.TeamSpirit < 0 || c.TeamSpirit > 1 {
		return fmt.Errorf("%w: team spirit must be within [0,1], got %v", ErrInvalidConfig, c.TeamSpirit)
	}
	if math.IsNaN(c.OppScale) || math.IsInf(c.OppScale, 0) {
		return fmt.Errorf("%w: opponent scale must be finite, got %v", ErrInvalidConfig, c.OppScale)
	}
	return nil
}

// StepSummary describes the most recent step computation.
type StepSummary struct {
	Final      bool
	Individual map[AgentID]float64
	Shaped     map[AgentID]float64
	Averages   TeamAverages
	ChildCalls int
}

// ZeroSum wraps a Function so that every agent's reward is shared with its
// team and offset by the opposing team's average. With OppScale 1 the two
// teams' mean rewards always sum to zero.
//
// The child is evaluated once per agent per step, on the first query after
// Reset or PreStep. Later queries in the same step read the cached result.
// A failed computation is returned to every query until the next Reset or PreStep.
// A ZeroSum is owned by a single rollout and must not be shared between goroutines.
type ZeroSum struct {
	child    Function
	combiner Combiner
	logger   *slog.Logger

	ready      bool
	step       StepState
	failed     error
	cache      *StepCache
	individual map[AgentID]float64
	teams      TeamAggregator
	last       StepSummary
}

var _ Function = (*ZeroSum)(nil)

func NewZeroSum(child Function, cfg Config) (*ZeroSum, error) {
	if child == nil {
		return nil, fmt.Errorf("%w: child reward is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ZeroSum{
		child:      child,
		combiner:   Combiner{TeamSpirit: cfg.TeamSpirit, OppScale: cfg.OppScale},
		logger:     logger,
		step:       NeedsRecompute,
		cache:      NewStepCache(),
		individual: make(map[AgentID]float64),
	}, nil
}

func (z *ZeroSum) TeamSpirit() float64 { return z.combiner.TeamSpirit }

func (z *ZeroSum) OppScale() float64 { return z.combiner.OppScale }

func (z *ZeroSum) Child() Function { return z.child }

func (z *ZeroSum) State() StepState { return z.step }

func (z *ZeroSum) Reset(initial State) {
	z.child.Reset(initial)
	z.ready = true
	z.step = NeedsRecompute
	z.failed = nil
	z.cache.Clear()
	z.last = StepSummary{}
}

func (z *ZeroSum) PreStep(state State) {
	z.child.PreStep(state)
	z.ready = true
	z.step = NeedsRecompute
	z.failed = nil
}

// GetReward ignores prevAction; see Function.
func (z *ZeroSum) GetReward(player Player, state State, _ []float64) (float64, error) {
	return z.query(player, state, false)
}

func (z *ZeroSum) GetFinalReward(player Player, state State, _ []float64) (float64, error) {
	return z.query(player, state, true)
}

// LastStep returns a copy of the most recent successful step computation.
func (z *ZeroSum) LastStep() StepSummary {
	out := z.last
	out.Individual = copyRewards(z.last.Individual)
	out.Shaped = copyRewards(z.last.Shaped)
	return out
}

func (z *ZeroSum) query(player Player, state State, final bool) (float64, error) {
	if !z.ready {
		return 0, ErrNotReset
	}
	if z.failed != nil {
		return 0, z.failed
	}
	if z.step == NeedsRecompute {
		if err := z.update(state, final); err != nil {
			z.cache.Clear()
			z.failed = err
			return 0, err
		}
		z.step = Computed
	}
	value, ok := z.cache.Get(player.ID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingAgent, player.ID)
	}
	return value, nil
}

func (z *ZeroSum) update(state State, final bool) error {
	z.cache.Clear()
	clear(z.individual)
	z.teams.Reset()

	players := state.Players()
	if err := checkRoster(players); err != nil {
		return err
	}
	for _, player := range players {
		var (
			value float64
			err   error
		)
		if final {
			value, err = z.child.GetFinalReward(player, state, nil)
		} else {
			value, err = z.child.GetReward(player, state, nil)
		}
		if err != nil {
			return fmt.Errorf("child reward for agent %s: %w", player.ID, err)
		}
		z.individual[player.ID] = value
		if err := z.teams.Add(player.Team, value); err != nil {
			return err
		}
	}

	averages := z.teams.Averages()
	for _, player := range players {
		z.cache.Put(player.ID, z.combiner.Combine(z.individual[player.ID], player.Team, averages))
	}

	z.last = StepSummary{
		Final:      final,
		Individual: copyRewards(z.individual),
		Shaped:     z.cache.Snapshot(),
		Averages:   averages,
		ChildCalls: len(players),
	}
	z.logger.Debug("step rewards computed",
		"agents", len(players),
		"final", final,
		"avg_team_a", averages.Of(TeamA),
		"avg_team_b", averages.Of(TeamB),
	)
	return nil
}

// checkRoster rejects invalid teams and repeated IDs before any child call.
func checkRoster(players []Player) error {
	seen := make(map[AgentID]struct{}, len(players))
	for _, player := range players {
		if !player.Team.Valid() {
			return fmt.Errorf("agent %s: %w: %d", player.ID, ErrInvalidTeam, int(player.Team))
		}
		if _, dup := seen[player.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, player.ID)
		}
		seen[player.ID] = struct{}{}
	}
	return nil
}

func copyRewards(in map[AgentID]float64) map[AgentID]float64 {
	if in == nil {
		return nil
	}
	out := make(map[AgentID]float64, len(in))
	for id, value := range in {
		out[id] = value
	}
	return out
}
