// Package coordinator fans a tick out to every registered indicator
// worker, serially by default or in parallel once measured worker latency
// crosses a configured threshold, and hands the joined results to decision
// logic. The parallel fan-out runs one goroutine per worker on an
// errgroup.Group and joins them all before decision logic reads the results.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/finiex/testingide/pkg/decision"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
	"github.com/finiex/testingide/pkg/workers"
)

// Config tunes the adaptive serial/parallel switch.
type Config struct {
	ParallelWorkers      bool
	ParallelThresholdMs  float64
	CoordinationWindow   int // ticks averaged before reconsidering the mode
}

// Stats summarizes per-worker and coordination-level timing.
type Stats struct {
	TicksProcessed     int
	ParallelTicks      int
	SerialTicks        int
	AverageWallTimeMs   float64
	PerWorkerAverageMs map[string]float64
}

// Coordinator owns the registered workers for one scenario and drives them
// each tick.
type Coordinator struct {
	cfg     Config
	workers []workers.Worker
	logic   decision.Logic

	recentTimings []float64 // ring of the last CoordinationWindow tick wall-times
	useParallel   bool

	stats           Stats
	statsMu         sync.Mutex // guards perWorkerTotals/perWorkerCounts in parallel mode
	perWorkerTotals map[string]float64
	perWorkerCounts map[string]int
}

// New builds a coordinator over an ordered set of workers and a decision
// logic instance. Init calls each worker's OnWarmup with its own required
// history (§4.6).
func New(cfg Config, ws []workers.Worker, logic decision.Logic, history map[timeframe.Name][]market.Bar) *Coordinator {
	if cfg.CoordinationWindow <= 0 {
		cfg.CoordinationWindow = 20
	}
	c := &Coordinator{
		cfg:             cfg,
		workers:         ws,
		logic:           logic,
		perWorkerTotals: make(map[string]float64),
		perWorkerCounts: make(map[string]int),
	}
	for _, w := range ws {
		w.OnWarmup(history)
	}
	return c
}

// OnTick runs every worker for one tick (serially or in parallel per the
// adaptive rule), joins results keyed by worker name, and invokes decision
// logic. Any worker error is fatal to the scenario.
func (c *Coordinator) OnTick(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) (market.Decision, error) {
	tickStart := time.Now()

	results := make(map[string]market.WorkerResult, len(c.workers))
	var err error
	if c.useParallel {
		err = c.runParallel(tick, currentBars, history, results)
		c.stats.ParallelTicks++
	} else {
		err = c.runSerial(tick, currentBars, history, results)
		c.stats.SerialTicks++
	}
	if err != nil {
		return market.Decision{}, err
	}

	d := c.logic.Compute(tick, results, currentBars, history)

	elapsed := float64(time.Since(tickStart).Microseconds()) / 1000.0
	c.recordTiming(elapsed)
	c.stats.TicksProcessed++
	return d, nil
}

func (c *Coordinator) runSerial(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar, results map[string]market.WorkerResult) error {
	for _, w := range c.workers {
		r, err := c.computeOne(w, tick, currentBars, history)
		if err != nil {
			return err
		}
		results[w.Name()] = r
	}
	return nil
}

// runParallel forks one goroutine per worker via errgroup.Group, whose
// Wait() returns the first non-nil error (any worker failure is fatal to
// the scenario, §4.6) while still joining every goroutine before returning.
func (c *Coordinator) runParallel(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar, results map[string]market.WorkerResult) error {
	var g errgroup.Group
	var mu sync.Mutex

	for _, w := range c.workers {
		w := w
		g.Go(func() error {
			r, err := c.computeOne(w, tick, currentBars, history)
			if err != nil {
				return err
			}
			mu.Lock()
			results[w.Name()] = r
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (c *Coordinator) computeOne(w workers.Worker, tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) (r market.WorkerResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("coordinator: worker %q panicked: %v", w.Name(), rec)
		}
	}()
	r = w.Compute(tick, currentBars, history)
	c.statsMu.Lock()
	c.perWorkerTotals[w.Name()] += r.ComputationTimeMs
	c.perWorkerCounts[w.Name()]++
	c.statsMu.Unlock()
	return r, nil
}

// recordTiming folds one tick's total worker wall-time into the trailing
// window and, at the window boundary, re-evaluates serial vs parallel
// mode. The mode never changes mid-tick (§5 Ordering guarantees).
func (c *Coordinator) recordTiming(elapsedMs float64) {
	c.recentTimings = append(c.recentTimings, elapsedMs)
	if len(c.recentTimings) > c.cfg.CoordinationWindow {
		c.recentTimings = c.recentTimings[len(c.recentTimings)-c.cfg.CoordinationWindow:]
	}
	if len(c.recentTimings)%c.cfg.CoordinationWindow != 0 {
		return
	}
	sum := 0.0
	for _, v := range c.recentTimings {
		sum += v
	}
	avg := sum / float64(len(c.recentTimings))
	c.stats.AverageWallTimeMs = avg
	if c.cfg.ParallelWorkers && avg >= c.cfg.ParallelThresholdMs {
		c.useParallel = true
	} else {
		c.useParallel = false
	}
}

// Cleanup releases any coordinator-held resources. Workers hold none of
// their own beyond in-memory state, so this is currently a no-op retained
// to match the runner's unconditional cleanup phase (§4.9).
func (c *Coordinator) Cleanup() {}

// WorkerStatistics returns per-worker average compute time in milliseconds.
func (c *Coordinator) WorkerStatistics() map[string]float64 {
	out := make(map[string]float64, len(c.perWorkerTotals))
	for name, total := range c.perWorkerTotals {
		count := c.perWorkerCounts[name]
		if count == 0 {
			continue
		}
		out[name] = total / float64(count)
	}
	return out
}

// CoordinationStatistics returns the coordinator's own timing/mode stats.
func (c *Coordinator) CoordinationStatistics() Stats {
	c.stats.PerWorkerAverageMs = c.WorkerStatistics()
	return c.stats
}
