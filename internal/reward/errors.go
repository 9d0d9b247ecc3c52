package reward

import "errors"

var (
	ErrMissingAgent    = errors.New("agent missing from step rewards")
	ErrDuplicateAgent  = errors.New("agent listed more than once in roster")
	ErrInvalidTeam     = errors.New("invalid team")
	ErrInvalidConfig   = errors.New("invalid reward config")
	ErrNotReset        = errors.New("reward queried before reset or pre_step")
	ErrUnknownFunction = errors.New("reward function not registered")
	ErrFunctionExists  = errors.New("reward function already registered")
)
