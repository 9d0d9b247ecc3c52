package replay

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"zerosum/internal/reward"
)

// Trace is a recording of raw per-agent rewards, tick by tick.
type Trace struct {
	Name     string    `json:"name" yaml:"name"`
	Episodes []Episode `json:"episodes" yaml:"episodes"`
}

type Episode struct {
	ID    string `json:"id" yaml:"id"`
	Ticks []Tick `json:"ticks" yaml:"ticks"`
}

type Tick struct {
	Players []Score `json:"players" yaml:"players"`
}

// Score is one agent's recorded reward. FinalReward, when present, is
// returned instead of Reward by terminal queries.
type Score struct {
	ID          reward.AgentID `json:"id" yaml:"id"`
	Team        reward.Team    `json:"team" yaml:"team"`
	Reward      float64        `json:"reward" yaml:"reward"`
	FinalReward *float64       `json:"final_reward,omitempty" yaml:"final_reward,omitempty"`
}

func (t Tick) Roster() []reward.Player {
	out := make([]reward.Player, len(t.Players))
	for i, score := range t.Players {
		out[i] = reward.Player{ID: score.ID, Team: score.Team}
	}
	return out
}

func (t Tick) Find(id reward.AgentID) (Score, bool) {
	for _, score := range t.Players {
		if score.ID == id {
			return score, true
		}
	}
	return Score{}, false
}

func (t *Trace) Steps() int {
	total := 0
	for _, episode := range t.Episodes {
		total += len(episode.Ticks)
	}
	return total
}

// Agents counts distinct agent IDs across the trace.
func (t *Trace) Agents() int {
	seen := make(map[reward.AgentID]struct{})
	for _, episode := range t.Episodes {
		for _, tick := range episode.Ticks {
			for _, score := range tick.Players {
				seen[score.ID] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Validate checks the structural rules a trace must follow. Team values are
// left to the reward function, which rejects them when the step is scored.
func (t *Trace) Validate() error {
	if len(t.Episodes) == 0 {
		return errors.New("trace has no episodes")
	}
	for i, episode := range t.Episodes {
		if len(episode.Ticks) == 0 {
			return fmt.Errorf("episode %d has no ticks", i)
		}
		for j, tick := range episode.Ticks {
			seen := make(map[reward.AgentID]struct{}, len(tick.Players))
			for _, score := range tick.Players {
				if score.ID == "" {
					return fmt.Errorf("episode %d tick %d: agent id is required", i, j)
				}
				if _, dup := seen[score.ID]; dup {
					return fmt.Errorf("episode %d tick %d: %w: %s", i, j, reward.ErrDuplicateAgent, score.ID)
				}
				seen[score.ID] = struct{}{}
			}
		}
	}
	return nil
}

const compressedExt = ".zst"

// Load reads a YAML or JSON trace, chosen by file extension. A trailing
// .zst means the file is zstd-compressed, e.g. match.yaml.zst.
func Load(path string) (*Trace, error) {
	data, ext, err := readTraceFile(path)
	if err != nil {
		return nil, err
	}
	trace, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return trace, nil
}

func readTraceFile(path string) ([]byte, string, error) {
	if !strings.EqualFold(filepath.Ext(path), compressedExt) {
		data, err := os.ReadFile(path)
		return data, filepath.Ext(path), err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, "", err
	}
	defer dec.Close()

	data, err := io.ReadAll(bufio.NewReader(dec))
	if err != nil {
		return nil, "", fmt.Errorf("decompress %s: %w", filepath.Base(path), err)
	}
	return data, filepath.Ext(path[:len(path)-len(compressedExt)]), nil
}

// WriteCompressed writes the trace as zstd-compressed YAML.
func WriteCompressed(path string, trace *Trace) error {
	data, err := yaml.Marshal(trace)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func Parse(data []byte, ext string) (*Trace, error) {
	var trace Trace
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &trace); err != nil {
			return nil, err
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &trace); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported trace format: %s", ext)
	}
	if err := trace.Validate(); err != nil {
		return nil, err
	}
	return &trace, nil
}
