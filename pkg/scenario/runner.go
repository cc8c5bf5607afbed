package scenario

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/barcontroller"
	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/coordinator"
	"github.com/finiex/testingide/pkg/decision"
	"github.com/finiex/testingide/pkg/livestats"
	"github.com/finiex/testingide/pkg/logger"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
	"github.com/finiex/testingide/pkg/workers"
)

// tradingAPI is the DecisionTradingAPI facade of §4.9: a thin wrapper over
// the broker simulator that validates a decision logic's requested order
// types against the broker spec's supported set before forwarding.
type tradingAPI struct {
	broker      *brokersim.Simulator
	supported   map[brokersim.OrderType]bool
}

func newTradingAPI(broker *brokersim.Simulator, spec *brokersim.BrokerSpec) *tradingAPI {
	supported := make(map[brokersim.OrderType]bool, len(spec.SupportedOrderTypes))
	for _, t := range spec.SupportedOrderTypes {
		supported[t] = true
	}
	return &tradingAPI{broker: broker, supported: supported}
}

func (a *tradingAPI) OpenPositions(symbol string) []*brokersim.Position { return a.broker.OpenPositions(symbol) }
func (a *tradingAPI) PendingOrders(symbol string) []*brokersim.Order    { return a.broker.PendingOrders(symbol) }
func (a *tradingAPI) FreeMargin() decimal.Decimal                      { return a.broker.Portfolio().FreeMargin }

func (a *tradingAPI) SendOrder(symbol string, typ brokersim.OrderType, dir brokersim.Direction, lots decimal.Decimal, requestedPrice decimal.Decimal, comment string) (*brokersim.Order, error) {
	if !a.supported[typ] {
		return nil, fmt.Errorf("scenario: order type %q is not supported by this broker", typ)
	}
	return a.broker.OpenOrder(symbol, typ, dir, lots, requestedPrice, comment)
}

func (a *tradingAPI) ClosePosition(pos *brokersim.Position, comment string) (*brokersim.Order, error) {
	return a.broker.CloseOrder(pos, comment)
}

// validateSupportedOrderTypes rejects a scenario whose decision logic asks
// for an order type the broker spec doesn't support (§4.9).
func validateSupportedOrderTypes(logic decision.Logic, spec *brokersim.BrokerSpec) error {
	for _, needed := range logic.RequiredOrderTypes() {
		if !spec.SupportsOrderType(needed) {
			return fmt.Errorf("scenario: decision logic requires order type %q, unsupported by broker %q", needed, spec.Name)
		}
	}
	return nil
}

// Runner executes a single scenario's deterministic tick loop (§4.9).
type Runner struct {
	pkg          ProcessDataPackage
	scenarioLog  *logger.ScenarioLogger
	broker       *brokersim.Simulator
	barCtrl      *barcontroller.Controller
	coord        *coordinator.Coordinator
	logic        decision.Logic
	live         *livestats.Coordinator
	updateInterval time.Duration
}

// NewRunner wires every per-scenario collaborator from a prepared data
// package: the broker, the bar controller (seeded with warmup bars), the
// registered workers (seeded via OnWarmup), and the decision logic, bound
// together through the DecisionTradingAPI facade.
func NewRunner(pkg ProcessDataPackage, scenarioLog *logger.ScenarioLogger, live *livestats.Coordinator, updateInterval time.Duration) (*Runner, error) {
	broker := brokersim.New(&pkg.BrokerSpec, pkg.Scenario.InitialBalance, pkg.Scenario.Seed("broker"))

	tfSet := map[timeframe.Name]bool{}
	wlist := make([]workers.Worker, 0, len(pkg.Scenario.StrategyConfig.Workers))
	for _, spec := range pkg.Scenario.StrategyConfig.Workers {
		w, err := workers.New(spec.TypeID, spec.Name, spec.Config)
		if err != nil {
			return nil, fmt.Errorf("scenario: building worker %q: %w", spec.Name, err)
		}
		wlist = append(wlist, w)
		for _, tf := range w.RequiredTimeframes() {
			tfSet[tf] = true
		}
	}
	tfs := make([]timeframe.Name, 0, len(tfSet))
	for tf := range tfSet {
		tfs = append(tfs, tf)
	}

	bar := barcontroller.New(pkg.Scenario.Symbol, tfs, 0)
	for tf, bars := range pkg.WarmupBars {
		bar.SeedWarmup(tf, bars)
	}

	history := make(map[timeframe.Name][]market.Bar, len(tfs))
	for _, tf := range tfs {
		history[tf] = bar.History(tf)
	}

	logic := decision.NewSimpleConsensus(pkg.Scenario.StrategyConfig.SimpleConsensus)
	if err := validateSupportedOrderTypes(logic, &pkg.BrokerSpec); err != nil {
		return nil, err
	}
	logic.SetTradingAPI(newTradingAPI(broker, &pkg.BrokerSpec))

	coord := coordinator.New(coordinator.Config{
		ParallelWorkers:     pkg.Scenario.StrategyConfig.ParallelWorkers,
		ParallelThresholdMs: pkg.Scenario.StrategyConfig.ParallelThresholdMs,
		CoordinationWindow:  pkg.Scenario.StrategyConfig.CoordinationWindow,
	}, wlist, logic, history)

	return &Runner{
		pkg:            pkg,
		scenarioLog:    scenarioLog,
		broker:         broker,
		barCtrl:        bar,
		coord:          coord,
		logic:          logic,
		live:           live,
		updateInterval: updateInterval,
	}, nil
}

// Run executes the tick loop to completion and returns a ProcessResult.
// Per §4.9/§7, a runtime error during the tick loop does not abort the
// function: execution falls through to a best-effort statistics-collection
// phase, and the returned result carries both partial statistics and the
// recorded error (a "hybrid result"). Only a failure in that second phase
// itself propagates as a Go error, matching the original runner's
// unrecoverable-by-definition final catch.
func (r *Runner) Run() (ProcessResult, error) {
	start := time.Now()
	profileTimes := map[string]float64{}
	profileCounts := map[string]int{}

	var tickLoopErr error
	var lastTick market.Tick
	var firstTick market.Tick
	ticksSeen := 0

	r.scenarioLog.Info("starting tick loop (%d ticks)", len(r.pkg.Ticks))
	r.scenarioLog.SetTickLoopStarted(true)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				tickLoopErr = fmt.Errorf("scenario: tick loop panicked: %v", rec)
			}
		}()

		for idx, tick := range r.pkg.Ticks {
			r.scenarioLog.SetCurrentTick(idx + 1)
			if ticksSeen == 0 {
				firstTick = tick
			}
			lastTick = tick
			ticksSeen++

			t1 := time.Now()
			if err := r.broker.UpdatePrices(tick); err != nil {
				tickLoopErr = err
				return
			}
			profileTimes["broker_update_prices"] += ms(t1)
			profileCounts["broker_update_prices"]++

			t2 := time.Now()
			currentBars, err := r.barCtrl.ProcessTick(tick)
			if err != nil {
				tickLoopErr = err
				return
			}
			profileTimes["bar_rendering"] += ms(t2)
			profileCounts["bar_rendering"]++

			t3 := time.Now()
			history := map[timeframe.Name][]market.Bar{}
			for tf := range currentBars {
				history[tf] = r.barCtrl.History(tf)
			}
			profileTimes["bar_history"] += ms(t3)
			profileCounts["bar_history"]++

			t4 := time.Now()
			d, err := r.coord.OnTick(tick, currentBars, history)
			if err != nil {
				tickLoopErr = err
				return
			}
			profileTimes["worker_decision"] += ms(t4)
			profileCounts["worker_decision"]++

			t5 := time.Now()
			if _, err := r.logic.Execute(d, tick); err != nil {
				tickLoopErr = fmt.Errorf("order execution failed: %w", err)
				return
			}
			profileTimes["order_execution"] += ms(t5)
			profileCounts["order_execution"]++

			if r.live != nil {
				r.live.MaybeBroadcastProgress(r.pkg.ScenarioIndex, r.pkg.Scenario.Name, ticksSeen, len(r.pkg.Ticks), tick.Timestamp, r.broker.Portfolio(), time.Now())
			}
		}
	}()

	r.scenarioLog.SetTickLoopStarted(false)

	if tickLoopErr == nil {
		r.broker.CloseAllRemainingOrders()
		r.scenarioLog.Info("tick loop completed: %d ticks", ticksSeen)
	} else {
		r.scenarioLog.Error("error in tick loop, attempting to collect statistics: %v", tickLoopErr)
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.scenarioLog.Error("best-effort broker flush after tick loop error panicked: %v", rec)
				}
			}()
			r.broker.CloseAllRemainingOrders()
		}()
	}

	result, err := r.collectResult(tickLoopErr, start, profileTimes, profileCounts, firstTick, lastTick, ticksSeen)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("scenario: statistics collection failed after tick loop: %w", err)
	}
	return result, nil
}

func (r *Runner) collectResult(tickLoopErr error, start time.Time, profileTimes map[string]float64, profileCounts map[string]int, firstTick, lastTick market.Tick, ticksSeen int) (ProcessResult, error) {
	r.coord.Cleanup()

	tlr := TickLoopResult{
		DecisionStatistics:     r.logic.GetStatistics(),
		WorkerStatistics:       r.coord.WorkerStatistics(),
		CoordinationStatistics: r.coord.CoordinationStatistics(),
		PortfolioStats:         r.broker.Portfolio(),
		ExecutionStats:         r.broker.ExecutionStats(),
		CostBreakdown:          r.broker.CostBreakdown(),
		ProfilingData:          ProfileData{TimesMs: profileTimes, Counts: profileCounts},
		TickRangeStats:         TickRangeStats{TickCount: ticksSeen, FirstTick: firstTick.Timestamp, LastTick: lastTick.Timestamp},
		OrderHistory:           r.broker.OrderHistory(),
		TickLoopError:          tickLoopErr,
	}

	status := livestats.StatusCompleted
	success := true
	errType, errMsg := "", ""
	if tickLoopErr != nil {
		status = livestats.StatusFinishedWithErr
		success = false
		errType = "Runtime"
		errMsg = tickLoopErr.Error()
	}
	if r.live != nil {
		r.live.FinalUpdate(r.pkg.ScenarioIndex, r.pkg.Scenario.Name, status)
	}

	return ProcessResult{
		Success:              success,
		ScenarioName:         r.pkg.Scenario.Name,
		Symbol:               r.pkg.Scenario.Symbol,
		ScenarioIndex:        r.pkg.ScenarioIndex,
		ExecutionTimeMs:      ms(start),
		TickLoopResults:      tlr,
		ScenarioLoggerBuffer: r.scenarioLog.Buffer(),
		ErrorType:            errType,
		ErrorMessage:         errMsg,
	}, nil
}

func ms(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000.0
}
