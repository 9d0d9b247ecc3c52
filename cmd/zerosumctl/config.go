package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	zsapi "zerosum/pkg/zerosum"
)

// loadRunRequestFromConfig reads a YAML or JSON run config. Unknown keys are ignored.
func loadRunRequestFromConfig(path string) (zsapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return zsapi.RunRequest{}, err
	}
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return zsapi.RunRequest{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return zsapi.RunRequest{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	default:
		return zsapi.RunRequest{}, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	req := zsapi.RunRequest{Seed: defaultSeed}
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asString(raw["trace"]); ok {
		req.TracePath = resolveRelative(path, v)
	}
	if v, ok := asString(raw["reward"]); ok {
		req.Reward = v
	}
	if v, ok := asFloat64(raw["team_spirit"]); ok {
		req.TeamSpirit = v
	}
	if v, ok := asFloat64(raw["opp_scale"]); ok {
		req.OppScale = &v
	}
	if v, ok := asInt(raw["repeat_queries"]); ok {
		req.RepeatQueries = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (zsapi.RunRequest, error) {
	if configPath == "" {
		return zsapi.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return zsapi.RunRequest{}, fmt.Errorf("load config %s: %w", configPath, err)
	}
	return req, nil
}

// overrideFromFlags applies explicitly set flags on top of config file values.
func overrideFromFlags(req *zsapi.RunRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "trace":
			req.TracePath = v.(string)
		case "reward":
			req.Reward = v.(string)
		case "team-spirit":
			req.TeamSpirit = v.(float64)
		case "opp-scale":
			scale := v.(float64)
			req.OppScale = &scale
		case "repeat-queries":
			req.RepeatQueries = v.(int)
		case "seed":
			req.Seed = v.(int64)
		}
	}
}

func resolveRelative(configPath, target string) string {
	if target == "" || filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(configPath), target)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
