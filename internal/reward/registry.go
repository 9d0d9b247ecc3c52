package reward

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Params are the numeric knobs passed to a registered wrapper.
type Params map[string]float64

// Get returns the named value or fallback when it is absent.
func (p Params) Get(name string, fallback float64) float64 {
	if value, ok := p[name]; ok {
		return value
	}
	return fallback
}

// BuildOptions carry per-instance settings into a Factory.
type BuildOptions struct {
	Params Params
	Logger *slog.Logger
}

// Factory builds a Function layered over child.
type Factory func(child Function, opts BuildOptions) (Function, error)

var factoryRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

const (
	ZeroSumName     = "zero_sum"
	PassthroughName = "passthrough"
)

func init() {
	mustRegister(ZeroSumName, func(child Function, opts BuildOptions) (Function, error) {
		cfg := DefaultConfig()
		cfg.TeamSpirit = opts.Params.Get("team_spirit", cfg.TeamSpirit)
		cfg.OppScale = opts.Params.Get("opp_scale", cfg.OppScale)
		cfg.Logger = opts.Logger
		return NewZeroSum(child, cfg)
	})
	mustRegister(PassthroughName, func(child Function, _ BuildOptions) (Function, error) {
		if child == nil {
			return nil, fmt.Errorf("%w: child reward is required", ErrInvalidConfig)
		}
		return child, nil
	})
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("reward function name is required")
	}
	if factory == nil {
		return errors.New("reward function factory is required")
	}

	factoryRegistry.mu.Lock()
	defer factoryRegistry.mu.Unlock()

	if _, exists := factoryRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrFunctionExists, name)
	}
	factoryRegistry.m[name] = factory
	return nil
}

func mustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Build wraps child with the named registered function.
func Build(name string, child Function, opts BuildOptions) (Function, error) {
	factoryRegistry.mu.RLock()
	factory, ok := factoryRegistry.m[name]
	factoryRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return factory(child, opts)
}

func List() []string {
	factoryRegistry.mu.RLock()
	defer factoryRegistry.mu.RUnlock()

	names := make([]string, 0, len(factoryRegistry.m))
	for name := range factoryRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
