// Package batch implements the batch execution coordinator (§4.10):
// dispatch every scenario in a scenario set either sequentially or in
// parallel, with one scenario's failure never affecting its siblings, and
// present results back in original scenario order regardless of
// completion order. Parallel dispatch is built on
// golang.org/x/sync/semaphore the way this module already bounds
// concurrent work, rather than an unbounded goroutine-per-scenario fan
// out.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/livestats"
	"github.com/finiex/testingide/pkg/logger"
	"github.com/finiex/testingide/pkg/metrics"
	"github.com/finiex/testingide/pkg/preparator"
	"github.com/finiex/testingide/pkg/requirements"
	"github.com/finiex/testingide/pkg/scenario"
)

// Config controls batch dispatch.
type Config struct {
	ScenarioSetName     string
	ParallelScenarios   bool
	MaxConcurrency      int // 0 means len(scenarios)
	LiveUpdateInterval  time.Duration
}

// Coordinator runs a full scenario set's worth of scenarios against a
// shared tick/bar store, one ProcessDataPackage and Runner per scenario.
type Coordinator struct {
	cfg     Config
	prep    *preparator.Preparator
	live    *livestats.Coordinator
	metrics *metrics.BacktestMetrics
}

// NewCoordinator wires a batch coordinator over an already-constructed
// preparator, live-stats coordinator (nil if telemetry is disabled), and
// metrics collector (nil to skip instrumentation).
func NewCoordinator(cfg Config, prep *preparator.Preparator, live *livestats.Coordinator, m *metrics.BacktestMetrics) *Coordinator {
	return &Coordinator{cfg: cfg, prep: prep, live: live, metrics: m}
}

// forceSerial reports whether the FINIEX_DEBUG environment flag or a
// `-test.v` harness is active, either of which collapses dispatch to
// sequential so a debugger attached to the process sees one deterministic
// call stack (§4.10, §6).
func forceSerial() bool {
	if v := os.Getenv("FINIEX_DEBUG"); v != "" && v != "0" && v != "false" {
		return true
	}
	for _, arg := range os.Args {
		if arg == "-test.v" || arg == "-test.run" {
			return true
		}
	}
	return false
}

// scenarioUnit bundles everything one scenario run needs, resolved ahead
// of dispatch so the goroutine body (in parallel mode) touches only
// scenario-local state.
type scenarioUnit struct {
	index      int
	scenario   scenario.Scenario
	brokerSpec brokersim.BrokerSpec
}

// Run executes every scenario in scenarios against the matching broker
// spec (looked up by BrokerType), sequentially or in parallel depending on
// Config and the debugger probe, and returns results ordered exactly like
// the input slice. A scenario that errors produces a failed ProcessResult
// in its slot rather than aborting the batch.
func (c *Coordinator) Run(scenarios []scenario.Scenario, brokerSpecs map[string]brokersim.BrokerSpec) ([]scenario.ProcessResult, error) {
	units := make([]scenarioUnit, 0, len(scenarios))
	for i, s := range scenarios {
		spec, ok := brokerSpecs[s.BrokerType]
		if !ok {
			return nil, fmt.Errorf("batch: no broker spec registered for type %q (scenario %q)", s.BrokerType, s.Name)
		}
		units = append(units, scenarioUnit{index: i, scenario: s, brokerSpec: spec})
	}

	runSerial := !c.cfg.ParallelScenarios || forceSerial()

	results := make([]scenario.ProcessResult, len(units))
	if runSerial {
		for _, u := range units {
			results[u.index] = c.runOne(u)
		}
		return results, nil
	}

	maxConc := c.cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = len(units)
	}
	sem := semaphore.NewWeighted(int64(maxConc))
	var wg sync.WaitGroup
	ctx := context.Background()

	for _, u := range units {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("batch: acquiring dispatch slot: %w", err)
		}
		wg.Add(1)
		go func(u scenarioUnit) {
			defer wg.Done()
			defer sem.Release(1)
			results[u.index] = c.runOne(u)
		}(u)
	}
	wg.Wait()
	return results, nil
}

// runOne prepares and executes a single scenario, converting any error
// from preparation or construction (as opposed to the tick loop's own
// best-effort hybrid-result handling, see scenario.Runner.Run) into a
// failed ProcessResult so it never escapes as a Go error from the batch.
func (c *Coordinator) runOne(u scenarioUnit) scenario.ProcessResult {
	start := time.Now()
	scenarioLog := logger.New(c.cfg.ScenarioSetName, u.scenario.Name, start)

	if c.live != nil {
		c.live.BroadcastStatus(u.index, u.scenario.Name, livestats.StatusInitProcess)
	}

	reqs := requirements.New()
	warmupByTF, err := reqs.AddScenario(u.scenario)
	if err != nil {
		return c.failed(u, scenarioLog, start, fmt.Errorf("collecting requirements: %w", err))
	}

	pkg, err := c.prep.Prepare(u.index, u.scenario, warmupByTF, u.brokerSpec)
	if err != nil {
		return c.failed(u, scenarioLog, start, fmt.Errorf("preparing data: %w", err))
	}
	for _, w := range pkg.WarmupWarnings {
		scenarioLog.Warn("%s", w)
	}

	if c.live != nil {
		c.live.BroadcastStatus(u.index, u.scenario.Name, livestats.StatusRunning)
	}

	runner, err := scenario.NewRunner(pkg, scenarioLog, c.live, c.cfg.LiveUpdateInterval)
	if err != nil {
		return c.failed(u, scenarioLog, start, fmt.Errorf("constructing runner: %w", err))
	}

	result, err := runner.Run()
	if err != nil {
		return c.failed(u, scenarioLog, start, err)
	}

	if c.metrics != nil {
		status := "success"
		if !result.Success {
			status = "hybrid_error"
		}
		c.metrics.RecordScenario(status, time.Since(start).Seconds())
	}
	return result
}

func (c *Coordinator) failed(u scenarioUnit, scenarioLog *logger.ScenarioLogger, start time.Time, err error) scenario.ProcessResult {
	scenarioLog.Error("scenario failed before tick loop completion: %v", err)
	if c.live != nil {
		c.live.FinalUpdate(u.index, u.scenario.Name, livestats.StatusFinishedWithErr)
	}
	if c.metrics != nil {
		c.metrics.RecordScenario("failed", time.Since(start).Seconds())
	}
	return scenario.ProcessResult{
		Success:              false,
		ScenarioName:         u.scenario.Name,
		Symbol:               u.scenario.Symbol,
		ScenarioIndex:        u.index,
		ExecutionTimeMs:      float64(time.Since(start).Microseconds()) / 1000.0,
		ScenarioLoggerBuffer: scenarioLog.Buffer(),
		ErrorType:            "Preparation",
		ErrorMessage:         err.Error(),
	}
}
