// Package scenario holds the per-scenario configuration and wire types
// that cross the preparator → runner → batch-coordinator boundaries
// (§3 Scenario, §3 Process data package, §6 ProcessResult).
package scenario

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/coordinator"
	"github.com/finiex/testingide/pkg/decision"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
	"github.com/finiex/testingide/pkg/workers"
)

// AccountCurrencyAuto tells the preparator/runner to derive the account
// currency from the broker spec rather than an explicit override.
const AccountCurrencyAuto = "auto"

// WorkerSpec names one worker to instantiate plus its typed config.
type WorkerSpec struct {
	TypeID string
	Name   string
	Config workers.Config
}

// StrategyConfig bundles the worker set and decision-logic choice for a
// scenario.
type StrategyConfig struct {
	Workers              []WorkerSpec
	DecisionLogicTypeID  string // currently only "CORE/simple_consensus" is built in
	SimpleConsensus       decision.SimpleConsensusConfig
	ParallelWorkers       bool
	ParallelThresholdMs   float64
	CoordinationWindow    int
}

// Scenario is one fully specified backtest run (§3).
type Scenario struct {
	Name     string
	Symbol   string
	StartTime time.Time
	EndTime   time.Time // zero means unbounded; mutually exclusive with MaxTicks
	MaxTicks  int        // zero means unbounded; mutually exclusive with EndTime

	StrategyConfig  StrategyConfig
	BrokerType      string
	InitialBalance  decimal.Decimal
	AccountCurrency string // explicit code, or AccountCurrencyAuto

	StressTest brokersim.StressTestConfig
	Seeds      map[string]uint64
}

// UsesMaxTicks reports whether this scenario ends by tick count rather
// than by end_time.
func (s Scenario) UsesMaxTicks() bool { return s.MaxTicks > 0 }

// Seed returns the named seed, defaulting to 0 (deterministic) if absent.
func (s Scenario) Seed(name string) uint64 { return s.Seeds[name] }

// ProcessDataPackage is the immutable, scenario-scoped payload prepared
// ahead of the tick loop: exactly the ticks and warmup bars this scenario
// needs, nothing shared with any other scenario (§3).
type ProcessDataPackage struct {
	ScenarioIndex  int
	Scenario       Scenario
	Ticks          []market.Tick
	WarmupBars     map[timeframe.Name][]market.Bar
	BrokerSpec     brokersim.BrokerSpec
	WarmupWarnings []string // "insufficient-warmup" notices (§4.4)
}

// ProfileData captures per-stage timing accumulated over a scenario run.
type ProfileData struct {
	TimesMs map[string]float64
	Counts  map[string]int
}

// TickRangeStats summarizes the replayed tick window.
type TickRangeStats struct {
	TickCount int
	FirstTick time.Time
	LastTick  time.Time
}

// TickLoopResult is everything the tick loop produces, including a
// possibly-nil error: when non-nil, the rest of the struct is still a
// best-effort partial result (the "hybrid result" of §7/§9).
type TickLoopResult struct {
	DecisionStatistics    decision.Statistics
	WorkerStatistics      map[string]float64
	CoordinationStatistics coordinator.Stats
	PortfolioStats        *brokersim.Portfolio
	ExecutionStats        brokersim.ExecutionStats
	CostBreakdown         brokersim.CostBreakdown
	ProfilingData         ProfileData
	TickRangeStats        TickRangeStats
	OrderHistory          []*brokersim.Order // status records per order: PENDING (open orders only) and its resolution (§8)
	TickLoopError         error `msgpack:"-" json:"-"`
}

// ProcessResult is the typed output of one scenario run, emitted to the
// batch coordinator and onward to reporting (§6).
type ProcessResult struct {
	Success            bool
	ScenarioName       string
	Symbol             string
	ScenarioIndex      int
	ExecutionTimeMs    float64
	TickLoopResults    TickLoopResult
	ScenarioLoggerBuffer string
	ErrorType          string
	ErrorMessage       string
}
