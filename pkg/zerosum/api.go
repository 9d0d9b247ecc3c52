package zerosum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"zerosum/internal/model"
	"zerosum/internal/replay"
	"zerosum/internal/reward"
	"zerosum/internal/stats"
	"zerosum/internal/storage"
)

const (
	defaultDBPath        = "zerosum.db"
	defaultRepeatQueries = 1
	defaultRunsLimit     = 20
	// Fixed-width so stored timestamps sort lexically.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z"
)

type Options struct {
	StoreKind string
	DBPath    string
	Logger    *slog.Logger
}

type Client struct {
	store       storage.Store
	logger      *slog.Logger
	initialized bool
}

type RunRequest struct {
	RunID     string
	TracePath string
	// Reward names the registered wrapper applied over the replayed trace.
	Reward     string
	TeamSpirit float64
	// OppScale defaults to 1 when nil.
	OppScale      *float64
	RepeatQueries int
	Seed          int64
}

type RunSummary struct {
	RunID    string
	Episodes int
	Steps    int
	Agents   int
	Report   stats.RunReport
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	TracePath    string
	Reward       string
	TeamSpirit   float64
	OppScale     float64
	Episodes     int
	Steps        int
}

type StepsRequest struct {
	RunID  string
	Latest bool
	// Episode filters to one episode; nil returns every episode.
	Episode *int
	Limit   int
}

type ReportRequest struct {
	RunID  string
	Latest bool
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Reset removes every stored run.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	return c.store.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.TracePath == "" {
		return RunSummary{}, errors.New("run requires a trace path")
	}
	if req.Reward == "" {
		req.Reward = reward.ZeroSumName
	}
	oppScale := 1.0
	if req.OppScale != nil {
		oppScale = *req.OppScale
	}
	if req.RepeatQueries <= 0 {
		req.RepeatQueries = defaultRepeatQueries
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	trace, err := replay.Load(req.TracePath)
	if err != nil {
		return RunSummary{}, fmt.Errorf("load trace: %w", err)
	}

	table := replay.NewTableReward(trace)
	fn, err := reward.Build(req.Reward, table, reward.BuildOptions{
		Params: reward.Params{
			"team_spirit": req.TeamSpirit,
			"opp_scale":   oppScale,
		},
		Logger: c.logger.With("run_id", req.RunID),
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	c.logger.Info("run started",
		"run_id", req.RunID,
		"trace", req.TracePath,
		"reward", req.Reward,
		"team_spirit", req.TeamSpirit,
		"opp_scale", oppScale,
	)
	runner := replay.NewRunner(replay.RunnerConfig{
		RepeatQueries: req.RepeatQueries,
		Seed:          req.Seed,
		Logger:        c.logger.With("run_id", req.RunID),
	})
	steps, err := runner.Run(ctx, trace, table, fn)
	if err != nil {
		return RunSummary{}, err
	}
	for i := range steps {
		steps[i].VersionedRecord = storage.Versioned()
	}

	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              req.RunID,
		CreatedAtUTC:    time.Now().UTC().Format(createdAtLayout),
		TracePath:       req.TracePath,
		Reward:          req.Reward,
		TeamSpirit:      req.TeamSpirit,
		OppScale:        oppScale,
		RepeatQueries:   req.RepeatQueries,
		Seed:            req.Seed,
		Episodes:        len(trace.Episodes),
		Steps:           len(steps),
		Agents:          trace.Agents(),
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := c.store.SaveSteps(ctx, run.ID, steps); err != nil {
		return RunSummary{}, fmt.Errorf("save steps %s: %w", run.ID, err)
	}

	report := stats.BuildRunReport(run, steps)
	c.logger.Info("run finished",
		"run_id", run.ID,
		"steps", run.Steps,
		"zero_sum", report.ZeroSum,
		"single_evaluation", report.SingleEvaluation,
	)
	return RunSummary{
		RunID:    run.ID,
		Episodes: run.Episodes,
		Steps:    run.Steps,
		Agents:   run.Agents,
		Report:   report,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAtUTC,
			TracePath:    run.TracePath,
			Reward:       run.Reward,
			TeamSpirit:   run.TeamSpirit,
			OppScale:     run.OppScale,
			Episodes:     run.Episodes,
			Steps:        run.Steps,
		})
	}
	return out, nil
}

func (c *Client) Steps(ctx context.Context, req StepsRequest) ([]model.StepRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}

	steps, ok, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("steps not found for run id: %s", runID)
	}

	if req.Episode != nil {
		filtered := steps[:0]
		for _, step := range steps {
			if step.Episode == *req.Episode {
				filtered = append(filtered, step)
			}
		}
		steps = filtered
	}
	if req.Limit > 0 && len(steps) > req.Limit {
		steps = steps[:req.Limit]
	}
	return steps, nil
}

func (c *Client) Report(ctx context.Context, req ReportRequest) (stats.RunReport, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return stats.RunReport{}, err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return stats.RunReport{}, err
	}
	if !ok {
		return stats.RunReport{}, fmt.Errorf("run not found: %s", runID)
	}
	steps, _, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return stats.RunReport{}, err
	}
	return stats.BuildRunReport(run, steps), nil
}

// Export writes a stored run's artifacts under OutDir and records it in the export index.
func (c *Client) Export(ctx context.Context, req ExportRequest) (string, error) {
	if req.OutDir == "" {
		return "", errors.New("export requires an output directory")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return "", err
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("run not found: %s", runID)
	}
	steps, _, err := c.store.GetSteps(ctx, runID)
	if err != nil {
		return "", err
	}

	artifacts := stats.RunArtifacts{Run: run, Steps: steps, Report: stats.BuildRunReport(run, steps)}
	dir, err := stats.WriteRunArtifacts(req.OutDir, artifacts)
	if err != nil {
		return "", fmt.Errorf("export run %s: %w", runID, err)
	}
	if err := stats.AppendRunIndex(req.OutDir, stats.IndexEntry(artifacts)); err != nil {
		return "", fmt.Errorf("update export index: %w", err)
	}
	c.logger.Info("run exported", "run_id", runID, "dir", dir)
	return dir, nil
}

func (c *Client) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("delete requires run id")
	}
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}

	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[0].ID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
