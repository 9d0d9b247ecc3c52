package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one replay of a trace through a reward function.
type RunRecord struct {
	VersionedRecord
	ID            string  `json:"id"`
	CreatedAtUTC  string  `json:"created_at_utc"`
	TracePath     string  `json:"trace_path"`
	Reward        string  `json:"reward"`
	TeamSpirit    float64 `json:"team_spirit"`
	OppScale      float64 `json:"opp_scale"`
	RepeatQueries int     `json:"repeat_queries"`
	Seed          int64   `json:"seed"`
	Episodes      int     `json:"episodes"`
	Steps         int     `json:"steps"`
	Agents        int     `json:"agents"`
}

type AgentStep struct {
	ID         string  `json:"id"`
	Team       int     `json:"team"`
	Raw        float64 `json:"raw"`
	Shaped     float64 `json:"shaped"`
	ChildCalls int     `json:"child_calls"`
}

// StepRecord holds every agent's raw and shaped reward for one tick.
type StepRecord struct {
	VersionedRecord
	Episode int         `json:"episode"`
	Tick    int         `json:"tick"`
	Final   bool        `json:"final"`
	Agents  []AgentStep `json:"agents"`
}
