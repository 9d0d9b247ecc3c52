package reward

import "fmt"

// TeamAverages holds the mean individual reward of each team, indexed by Team.
type TeamAverages [teamCount]float64

func (a TeamAverages) Of(team Team) float64 {
	return a[team]
}

// Sum is zero whenever the shaped rewards were produced with an opponent scale of 1.
func (a TeamAverages) Sum() float64 {
	return a[TeamA] + a[TeamB]
}

// TeamAggregator partitions individual rewards by team.
type TeamAggregator struct {
	lists [teamCount][]float64
}

func (a *TeamAggregator) Reset() {
	for i := range a.lists {
		a.lists[i] = a.lists[i][:0]
	}
}

func (a *TeamAggregator) Add(team Team, value float64) error {
	if !team.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTeam, int(team))
	}
	a.lists[team] = append(a.lists[team], value)
	return nil
}

// Averages returns each team's arithmetic mean. A team without members
// contributes a single zero reward so its mean stays defined.
func (a *TeamAggregator) Averages() TeamAverages {
	var out TeamAverages
	for i, values := range a.lists {
		if len(values) == 0 {
			values = []float64{0}
		}
		sum := 0.0
		for _, value := range values {
			sum += value
		}
		out[i] = sum / float64(len(values))
	}
	return out
}

// Combiner blends an agent's individual reward with its team's and the opponents' averages.
type Combiner struct {
	TeamSpirit float64
	OppScale   float64
}

func (c Combiner) Combine(individual float64, team Team, averages TeamAverages) float64 {
	return individual*(1-c.TeamSpirit) +
		averages.Of(team)*c.TeamSpirit -
		averages.Of(team.Opponent())*c.OppScale
}
