// Package requirements aggregates each scenario's tick range and
// per-timeframe warmup-bar needs ahead of data preparation (§4.3),
// grounded on the original's "instantiate workers temporarily, just to ask
// them what they need" pattern: workers are constructed with no data
// attached, queried for their required timeframes and warmup counts, then
// discarded.
package requirements

import (
	"time"

	"github.com/finiex/testingide/pkg/scenario"
	"github.com/finiex/testingide/pkg/timeframe"
	"github.com/finiex/testingide/pkg/workers"
)

// TickRequirement is one scenario's tick-range need.
type TickRequirement struct {
	ScenarioName string
	Symbol       string
	StartTime    time.Time
	EndTime      time.Time // zero if the scenario is tick-count bounded
	MaxTicks     int
}

// BarRequirement is one scenario's warmup-bar need for a single timeframe.
type BarRequirement struct {
	ScenarioName string
	Symbol       string
	Timeframe    timeframe.Name
	WarmupCount  int
	StartTime    time.Time
}

// Map is the aggregated output across every scenario in a batch. There is
// deliberately no cross-scenario deduplication: data is scenario-scoped
// (§4.3).
type Map struct {
	TickRequirements []TickRequirement
	BarRequirements  []BarRequirement
}

// Collector aggregates requirements scenario by scenario.
type Collector struct {
	reqs Map
}

// New constructs an empty collector.
func New() *Collector { return &Collector{} }

// AddScenario instantiates the scenario's configured workers with no data,
// queries their required_timeframes()/warmup_bars(tf), reduces to a
// per-timeframe maximum, and records both the tick requirement and the
// resulting bar requirements. Returns the per-timeframe warmup map so the
// preparator can slice exactly that many bars.
func (c *Collector) AddScenario(s scenario.Scenario) (map[timeframe.Name]int, error) {
	c.reqs.TickRequirements = append(c.reqs.TickRequirements, TickRequirement{
		ScenarioName: s.Name,
		Symbol:       s.Symbol,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		MaxTicks:     s.MaxTicks,
	})

	warmupByTF := map[timeframe.Name]int{}
	for _, spec := range s.StrategyConfig.Workers {
		w, err := workers.New(spec.TypeID, spec.Name, spec.Config)
		if err != nil {
			return nil, err
		}
		for _, tf := range w.RequiredTimeframes() {
			if need := w.WarmupBars(tf); need > warmupByTF[tf] {
				warmupByTF[tf] = need
			}
		}
	}

	for tf, count := range warmupByTF {
		c.reqs.BarRequirements = append(c.reqs.BarRequirements, BarRequirement{
			ScenarioName: s.Name,
			Symbol:       s.Symbol,
			Timeframe:    tf,
			WarmupCount:  count,
			StartTime:    s.StartTime,
		})
	}
	return warmupByTF, nil
}

// Finalize returns the aggregated requirements map. No merging happens
// here beyond what AddScenario already recorded — each entry stays
// scenario-scoped.
func (c *Collector) Finalize() Map { return c.reqs }
