package storage

import (
	"context"

	"zerosum/internal/model"
)

// Store persists runs and their per-step reward records.
type Store interface {
	Init(ctx context.Context) error
	Reset(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first. A non-positive limit returns all runs.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveSteps(ctx context.Context, runID string, steps []model.StepRecord) error
	GetSteps(ctx context.Context, runID string) ([]model.StepRecord, bool, error)
}
