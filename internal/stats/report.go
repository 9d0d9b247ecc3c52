package stats

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"zerosum/internal/model"
)

// ZeroSumTolerance bounds |mean(team a)+mean(team b)| per step, relative to
// the largest reward magnitude in that step (and never below 1).
const ZeroSumTolerance = 1e-9

type RunReport struct {
	RunID            string     `json:"run_id"`
	Reward           string     `json:"reward"`
	TeamSpirit       float64    `json:"team_spirit"`
	OppScale         float64    `json:"opp_scale"`
	Episodes         int        `json:"episodes"`
	Steps            int        `json:"steps"`
	AgentQueries     int        `json:"agent_queries"`
	ContestedSteps   int        `json:"contested_steps"`
	MeanRaw          [2]float64 `json:"mean_raw"`
	MeanShaped       [2]float64 `json:"mean_shaped"`
	MaxResidual      float64    `json:"max_zero_sum_residual"`
	MinChildCalls    int        `json:"min_child_calls"`
	MaxChildCalls    int        `json:"max_child_calls"`
	ZeroSumExpected  bool       `json:"zero_sum_expected"`
	ZeroSum          bool       `json:"zero_sum"`
	SingleEvaluation bool       `json:"single_evaluation"`
}

// BuildRunReport summarizes a run's steps. Team means are averaged over
// steps where the team had at least one agent; the residual only considers
// steps where both teams were present.
func BuildRunReport(run model.RunRecord, steps []model.StepRecord) RunReport {
	report := RunReport{
		RunID:           run.ID,
		Reward:          run.Reward,
		TeamSpirit:      run.TeamSpirit,
		OppScale:        run.OppScale,
		Steps:           len(steps),
		ZeroSumExpected: run.Reward == "zero_sum" && run.OppScale == 1,
		MinChildCalls:   math.MaxInt,
	}

	zeroSum := true
	episodes := make(map[int]struct{})
	var rawSums, shapedSums [2]float64
	var teamSteps [2]int
	for _, step := range steps {
		episodes[step.Episode] = struct{}{}
		raw, shaped, counts := stepMeans(step)
		for team := range counts {
			if counts[team] == 0 {
				continue
			}
			rawSums[team] += raw[team]
			shapedSums[team] += shaped[team]
			teamSteps[team]++
		}
		if counts[0] > 0 && counts[1] > 0 {
			report.ContestedSteps++
			residual := math.Abs(shaped[0] + shaped[1])
			if residual > report.MaxResidual {
				report.MaxResidual = residual
			}
			if residual > ZeroSumTolerance*stepMagnitude(step) {
				zeroSum = false
			}
		}
		for _, agent := range step.Agents {
			report.AgentQueries++
			report.MinChildCalls = min(report.MinChildCalls, agent.ChildCalls)
			report.MaxChildCalls = max(report.MaxChildCalls, agent.ChildCalls)
		}
	}
	if report.AgentQueries == 0 {
		report.MinChildCalls = 0
	}
	for team := range teamSteps {
		if teamSteps[team] > 0 {
			report.MeanRaw[team] = rawSums[team] / float64(teamSteps[team])
			report.MeanShaped[team] = shapedSums[team] / float64(teamSteps[team])
		}
	}
	report.Episodes = len(episodes)
	report.ZeroSum = zeroSum
	report.SingleEvaluation = report.AgentQueries > 0 && report.MinChildCalls == 1 && report.MaxChildCalls == 1
	return report
}

func stepMeans(step model.StepRecord) (raw, shaped [2]float64, counts [2]int) {
	for _, agent := range step.Agents {
		if agent.Team < 0 || agent.Team > 1 {
			continue
		}
		raw[agent.Team] += agent.Raw
		shaped[agent.Team] += agent.Shaped
		counts[agent.Team]++
	}
	for team := range counts {
		if counts[team] > 0 {
			raw[team] /= float64(counts[team])
			shaped[team] /= float64(counts[team])
		}
	}
	return raw, shaped, counts
}

// stepMagnitude is the largest absolute raw or shaped reward in the step, at least 1.
func stepMagnitude(step model.StepRecord) float64 {
	magnitude := 1.0
	for _, agent := range step.Agents {
		magnitude = max(magnitude, math.Abs(agent.Raw), math.Abs(agent.Shaped))
	}
	return magnitude
}

// Lines renders the report for terminal output.
func (r RunReport) Lines() []string {
	lines := []string{
		fmt.Sprintf("run_id=%s reward=%s team_spirit=%g opp_scale=%g", r.RunID, r.Reward, r.TeamSpirit, r.OppScale),
		fmt.Sprintf("episodes=%s steps=%s agent_queries=%s contested_steps=%s",
			humanize.Comma(int64(r.Episodes)),
			humanize.Comma(int64(r.Steps)),
			humanize.Comma(int64(r.AgentQueries)),
			humanize.Comma(int64(r.ContestedSteps)),
		),
		fmt.Sprintf("mean_raw team_a=%.6f team_b=%.6f", r.MeanRaw[0], r.MeanRaw[1]),
		fmt.Sprintf("mean_shaped team_a=%.6f team_b=%.6f", r.MeanShaped[0], r.MeanShaped[1]),
		fmt.Sprintf("child_calls min=%d max=%d single_evaluation=%t", r.MinChildCalls, r.MaxChildCalls, r.SingleEvaluation),
	}
	zeroSum := fmt.Sprintf("max_zero_sum_residual=%.3g zero_sum=%t", r.MaxResidual, r.ZeroSum)
	if !r.ZeroSumExpected {
		zeroSum += " (not expected for this configuration)"
	}
	return append(lines, zeroSum)
}
