package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"zerosum/internal/reward"
	"zerosum/internal/storage"
	zsapi "zerosum/pkg/zerosum"
)

// defaultSeed applies to runs whether configured by flags or by a config file.
const defaultSeed int64 = 1

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "steps":
		return runSteps(ctx, args[1:])
	case "report":
		return runReport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "rewards":
		return runRewards(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type commonFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
	logJSON   *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: "+strings.Join(storage.Kinds(), "|")),
		dbPath:    fs.String("db-path", "zerosum.db", "sqlite database path"),
		logLevel:  fs.String("log-level", "warn", "log level: debug|info|warn|error"),
		logJSON:   fs.Bool("log-json", false, "emit logs as JSON"),
	}
}

func (f commonFlags) client() (*zsapi.Client, error) {
	logger, err := newLogger(*f.logLevel, *f.logJSON)
	if err != nil {
		return nil, err
	}
	return zsapi.New(zsapi.Options{
		StoreKind: *f.storeKind,
		DBPath:    *f.dbPath,
		Logger:    logger,
	})
}

func newLogger(level string, jsonOut bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(stderr, opts)), nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initialized store=%s\n", *common.storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "reset store=%s\n", *common.storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	configPath := fs.String("config", "", "optional run config path (.yaml|.yml|.json)")
	runID := fs.String("run-id", "", "explicit run id (default: random uuid)")
	tracePath := fs.String("trace", "", "recorded reward trace (.yaml|.yml|.json)")
	rewardName := fs.String("reward", reward.ZeroSumName, "reward wrapper: "+strings.Join(reward.List(), "|"))
	teamSpirit := fs.Float64("team-spirit", 0, "fraction of individual reward replaced by the team average [0,1]")
	oppScale := fs.Float64("opp-scale", 1, "multiplier on the opposing team's average")
	repeatQueries := fs.Int("repeat-queries", 1, "reward queries per agent per tick")
	seed := fs.Int64("seed", defaultSeed, "rng seed for query order")
	jsonOut := fs.Bool("json", false, "emit summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = zsapi.RunRequest{
			RunID:         *runID,
			TracePath:     *tracePath,
			Reward:        *rewardName,
			TeamSpirit:    *teamSpirit,
			OppScale:      oppScale,
			RepeatQueries: *repeatQueries,
			Seed:          *seed,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"run-id":         *runID,
			"trace":          *tracePath,
			"reward":         *rewardName,
			"team-spirit":    *teamSpirit,
			"opp-scale":      *oppScale,
			"repeat-queries": *repeatQueries,
			"seed":           *seed,
		})
	}
	if req.TracePath == "" {
		return errors.New("run requires --trace or a config with trace")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary.Report)
	}
	fmt.Fprintf(stdout, "run completed run_id=%s episodes=%d steps=%d agents=%d\n",
		summary.RunID, summary.Episodes, summary.Steps, summary.Agents)
	for _, line := range summary.Report.Lines() {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, zsapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Trace        string  `json:"trace"`
			Reward       string  `json:"reward"`
			TeamSpirit   float64 `json:"team_spirit"`
			OppScale     float64 `json:"opp_scale"`
			Episodes     int     `json:"episodes"`
			Steps        int     `json:"steps"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:        item.RunID,
				CreatedAtUTC: item.CreatedAtUTC,
				Trace:        item.TracePath,
				Reward:       item.Reward,
				TeamSpirit:   item.TeamSpirit,
				OppScale:     item.OppScale,
				Episodes:     item.Episodes,
				Steps:        item.Steps,
			})
		}
		return writeJSON(out)
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(stdout, "run_id=%s created=%q reward=%s team_spirit=%g opp_scale=%g episodes=%d steps=%s trace=%s\n",
			item.RunID,
			createdAgo(item.CreatedAtUTC),
			item.Reward,
			item.TeamSpirit,
			item.OppScale,
			item.Episodes,
			humanize.Comma(int64(item.Steps)),
			item.TracePath,
		)
	}
	return nil
}

func runSteps(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("steps", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	episode := fs.Int("episode", -1, "only show this episode (-1 shows all)")
	limit := fs.Int("limit", 0, "max steps to show (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit steps as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := zsapi.StepsRequest{RunID: *runID, Latest: *latest, Limit: *limit}
	if *episode >= 0 {
		req.Episode = episode
	}
	steps, err := client.Steps(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(steps)
	}
	for _, step := range steps {
		fmt.Fprintf(stdout, "episode=%d tick=%d final=%t\n", step.Episode, step.Tick, step.Final)
		for _, agent := range step.Agents {
			fmt.Fprintf(stdout, "  agent=%s team=%d raw=%.6f shaped=%.6f child_calls=%d\n",
				agent.ID, agent.Team, agent.Raw, agent.Shaped, agent.ChildCalls)
		}
	}
	return nil
}

func runReport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	jsonOut := fs.Bool("json", false, "emit report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	report, err := client.Report(ctx, zsapi.ReportRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(report)
	}
	for _, line := range report.Lines() {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted run_id=%s\n", *runID)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	outDir := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := common.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	dir, err := client.Export(ctx, zsapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run to %s\n", dir)
	return nil
}

func runRewards(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range reward.List() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

func createdAgo(createdAtUTC string) string {
	for _, layout := range []string{"2006-01-02T15:04:05.000000000Z", time.RFC3339Nano} {
		if t, err := time.Parse(layout, createdAtUTC); err == nil {
			return humanize.Time(t)
		}
	}
	return createdAtUTC
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: zerosumctl <init|reset|run|runs|steps|report|delete|export|rewards> [flags]", msg)
}
