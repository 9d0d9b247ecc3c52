package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"zerosum/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	runFile        = "run.json"
	stepsFile      = "steps.json"
	reportFile     = "report.json"
	rewardsCSVFile = "rewards.csv"
)

// RunArtifacts is the on-disk export of one stored run.
type RunArtifacts struct {
	Run    model.RunRecord
	Steps  []model.StepRecord
	Report RunReport
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Reward       string  `json:"reward"`
	TeamSpirit   float64 `json:"team_spirit"`
	OppScale     float64 `json:"opp_scale"`
	Steps        int     `json:"steps"`
	ZeroSum      bool    `json:"zero_sum"`
	MaxResidual  float64 `json:"max_zero_sum_residual"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func IndexEntry(artifacts RunArtifacts) RunIndexEntry {
	return RunIndexEntry{
		RunID:        artifacts.Run.ID,
		Reward:       artifacts.Run.Reward,
		TeamSpirit:   artifacts.Run.TeamSpirit,
		OppScale:     artifacts.Run.OppScale,
		Steps:        len(artifacts.Steps),
		ZeroSum:      artifacts.Report.ZeroSum,
		MaxResidual:  artifacts.Report.MaxResidual,
		CreatedAtUTC: artifacts.Run.CreatedAtUTC,
	}
}

// WriteRunArtifacts writes the run under baseDir/<run id> and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	steps := artifacts.Steps
	if steps == nil {
		steps = []model.StepRecord{}
	}
	if err := writeJSON(filepath.Join(runDir, stepsFile), steps); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, reportFile), artifacts.Report); err != nil {
		return "", err
	}
	if err := writeRewardsCSV(filepath.Join(runDir, rewardsCSVFile), artifacts.Steps); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	runDir := filepath.Join(baseDir, runID)
	var artifacts RunArtifacts
	ok, err := readJSON(filepath.Join(runDir, runFile), &artifacts.Run)
	if err != nil || !ok {
		return RunArtifacts{}, ok, err
	}
	if _, err := readJSON(filepath.Join(runDir, stepsFile), &artifacts.Steps); err != nil {
		return RunArtifacts{}, false, err
	}
	if _, err := readJSON(filepath.Join(runDir, reportFile), &artifacts.Report); err != nil {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns exported runs newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}

	// Later entries win ties on equal timestamps.
	order := make(map[string]int, len(entries))
	for i, entry := range entries {
		order[entry.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// writeRewardsCSV flattens steps into one row per agent per tick.
func writeRewardsCSV(path string, steps []model.StepRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"episode", "tick", "final", "agent", "team", "raw", "shaped", "child_calls"}); err != nil {
		return err
	}
	for _, step := range steps {
		for _, agent := range step.Agents {
			record := []string{
				strconv.Itoa(step.Episode),
				strconv.Itoa(step.Tick),
				strconv.FormatBool(step.Final),
				agent.ID,
				strconv.Itoa(agent.Team),
				strconv.FormatFloat(agent.Raw, 'g', -1, 64),
				strconv.FormatFloat(agent.Shaped, 'g', -1, 64),
				strconv.Itoa(agent.ChildCalls),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return true, nil
}
