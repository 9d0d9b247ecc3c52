package reward

import "fmt"

// AgentID identifies one participant for the lifetime of an episode.
type AgentID string

// Team is the side an agent plays for. Only TeamA and TeamB are valid.
type Team int

const (
	TeamA Team = 0
	TeamB Team = 1
)

const teamCount = 2

func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// Opponent returns the other side. The result is meaningless for invalid teams.
func (t Team) Opponent() Team {
	return 1 - t
}

func (t Team) String() string {
	switch t {
	case TeamA:
		return "team_a"
	case TeamB:
		return "team_b"
	default:
		return fmt.Sprintf("team(%d)", int(t))
	}
}

type Player struct {
	ID   AgentID `json:"id" yaml:"id"`
	Team Team    `json:"team" yaml:"team"`
}

// State is the view of a simulation tick that reward functions consume.
// Implementations may carry arbitrary game data; the wrapper only needs the roster.
type State interface {
	Players() []Player
}

// Snapshot is a minimal State carrying the roster and its position in the episode.
type Snapshot struct {
	Episode int
	Tick    int
	Roster  []Player
}

func (s Snapshot) Players() []Player {
	return s.Roster
}

// Function is the scoring capability shared by concrete rewards and wrappers.
// prevAction may be nil; wrappers that aggregate across agents always pass nil.
type Function interface {
	Reset(initial State)
	PreStep(state State)
	GetReward(player Player, state State, prevAction []float64) (float64, error)
	GetFinalReward(player Player, state State, prevAction []float64) (float64, error)
}
