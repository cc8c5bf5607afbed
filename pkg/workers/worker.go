// Package workers defines the indicator-worker contract consulted by the
// worker coordinator, plus a small registry of constructors keyed by type
// identifier (the static-factory pattern this module uses in place of the
// original's runtime introspection, see DESIGN.md).
package workers

import (
	"fmt"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

// Worker computes one typed result per tick from bar state. Implementations
// must be safe to call concurrently with other workers in the same tick
// (parallel mode fans out one goroutine per worker over a read-only
// snapshot); a worker must never mutate shared bar/tick state.
type Worker interface {
	Name() string
	RequiredTimeframes() []timeframe.Name
	WarmupBars(tf timeframe.Name) int
	// OnWarmup lets the worker precompute internal state from historical
	// bars before the first real tick is processed.
	OnWarmup(history map[timeframe.Name][]market.Bar)
	// Compute produces this tick's result given the current (in-progress)
	// bars and full rolling history for every required timeframe.
	Compute(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.WorkerResult
}

// Config is the opaque, worker-type-specific parameter bag read from a
// scenario's strategy_config.
type Config map[string]any

// Constructor builds a Worker instance (with no data attached yet) from a
// config bag. Requirements collection calls constructors to query
// required timeframes/warmup without ever feeding them ticks (§4.3).
type Constructor func(name string, cfg Config) (Worker, error)

var registry = map[string]Constructor{}

// Register adds a constructor under a type identifier, e.g. "CORE/rsi".
// Call from an init() in the worker's own file, matching this module's
// static-registry convention for workers and decision logic (§9).
func Register(typeID string, ctor Constructor) {
	registry[typeID] = ctor
}

// New instantiates a worker by its registered type identifier.
func New(typeID, name string, cfg Config) (Worker, error) {
	ctor, ok := registry[typeID]
	if !ok {
		return nil, fmt.Errorf("workers: unknown worker type %q", typeID)
	}
	return ctor(name, cfg)
}

func floatConfig(cfg Config, key string, fallback float64) float64 {
	if v, ok := cfg[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return fallback
}

func intConfig(cfg Config, key string, fallback int) int {
	if v, ok := cfg[key]; ok {
		if f, ok := v.(int); ok {
			return f
		}
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return fallback
}

func timeframeConfig(cfg Config, key string, fallback timeframe.Name) timeframe.Name {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok {
			return timeframe.Name(s)
		}
	}
	return fallback
}
