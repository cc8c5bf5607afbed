package coordinator

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/decision"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
	"github.com/finiex/testingide/pkg/workers"
)

type fakeWorker struct {
	name   string
	panics bool
	onCall func()
}

func (w *fakeWorker) Name() string                                  { return w.name }
func (w *fakeWorker) RequiredTimeframes() []timeframe.Name           { return nil }
func (w *fakeWorker) WarmupBars(tf timeframe.Name) int               { return 0 }
func (w *fakeWorker) OnWarmup(history map[timeframe.Name][]market.Bar) {}
func (w *fakeWorker) Compute(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.WorkerResult {
	if w.onCall != nil {
		w.onCall()
	}
	if w.panics {
		panic("boom")
	}
	return market.WorkerResult{WorkerName: w.name, Value: 1.0}
}

// stubLogic is a minimal decision.Logic implementation for coordinator tests.
type stubLogic struct {
	lastResults map[string]market.WorkerResult
}

func (s *stubLogic) RequiredOrderTypes() []brokersim.OrderType { return nil }

func (s *stubLogic) Compute(tick market.Tick, workerResults map[string]market.WorkerResult, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.Decision {
	s.lastResults = workerResults
	return market.Decision{Action: market.ActionFlat}
}

func (s *stubLogic) Execute(d market.Decision, tick market.Tick) (*brokersim.Order, error) {
	return nil, nil
}

func (s *stubLogic) SetTradingAPI(api decision.TradingAPI) {}

func (s *stubLogic) GetStatistics() decision.Statistics { return decision.Statistics{} }

func TestCoordinatorSerialMergesAllWorkerResults(t *testing.T) {
	var calls int
	w1 := &fakeWorker{name: "a", onCall: func() { calls++ }}
	w2 := &fakeWorker{name: "b", onCall: func() { calls++ }}

	logic := &stubLogic{}
	c := New(Config{}, []workers.Worker{w1, w2}, logic, nil)

	d, err := c.OnTick(market.Tick{Symbol: "EURUSD"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected both workers invoked, got %d calls", calls)
	}
	if d.Action != market.ActionFlat {
		t.Errorf("expected FLAT decision, got %s", d.Action)
	}
	if logic.lastResults == nil || len(logic.lastResults) != 2 {
		t.Errorf("expected decision logic to see both worker results, got %v", logic.lastResults)
	}
	stats := c.CoordinationStatistics()
	if stats.TicksProcessed != 1 || stats.SerialTicks != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestCoordinatorWorkerPanicIsRecovered(t *testing.T) {
	w := &fakeWorker{name: "panicky", panics: true}
	logic := &stubLogic{}
	c := New(Config{}, []workers.Worker{w}, logic, nil)

	_, err := c.OnTick(market.Tick{}, nil, nil)
	if err == nil {
		t.Fatal("expected an error from the panicking worker")
	}
}

func TestCoordinatorSwitchesToParallelAboveThreshold(t *testing.T) {
	logic := &stubLogic{}
	c := New(Config{
		ParallelWorkers:     true,
		ParallelThresholdMs: 0, // any measured latency clears this threshold
		CoordinationWindow:  1,
	}, []workers.Worker{&fakeWorker{name: "a"}}, logic, nil)

	if _, err := c.OnTick(market.Tick{}, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.useParallel {
		t.Error("expected coordinator to switch to parallel mode once avg wall time crosses the threshold")
	}

	if _, err := c.OnTick(market.Tick{}, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := c.CoordinationStatistics()
	if stats.ParallelTicks != 1 {
		t.Errorf("expected 1 parallel tick recorded, got %d", stats.ParallelTicks)
	}
}

func TestCoordinatorParallelMergesAllWorkerResults(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	bump := func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}
	w1 := &fakeWorker{name: "a", onCall: bump}
	w2 := &fakeWorker{name: "b", onCall: bump}
	w3 := &fakeWorker{name: "c", onCall: bump}

	logic := &stubLogic{}
	c := New(Config{ParallelWorkers: true, ParallelThresholdMs: 0, CoordinationWindow: 1}, []workers.Worker{w1, w2, w3}, logic, nil)
	c.useParallel = true

	d, err := c.OnTick(market.Tick{Symbol: "EURUSD"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected all 3 workers invoked under parallel dispatch, got %d calls", calls)
	}
	if d.Action != market.ActionFlat {
		t.Errorf("expected FLAT decision, got %s", d.Action)
	}
	if len(logic.lastResults) != 3 {
		t.Errorf("expected all 3 worker results merged by name, got %v", logic.lastResults)
	}
}

func TestCoordinatorParallelWorkerPanicIsFatalAndJoinsAllGoroutines(t *testing.T) {
	var othersRan int32
	w1 := &fakeWorker{name: "panicky", panics: true}
	w2 := &fakeWorker{name: "fine", onCall: func() { atomic.AddInt32(&othersRan, 1) }}

	logic := &stubLogic{}
	c := New(Config{ParallelWorkers: true, ParallelThresholdMs: 0, CoordinationWindow: 1}, []workers.Worker{w1, w2}, logic, nil)
	c.useParallel = true

	if _, err := c.OnTick(market.Tick{}, nil, nil); err == nil {
		t.Fatal("expected a panicking worker to fail the whole tick even in parallel mode")
	}
	if othersRan != 1 {
		t.Errorf("expected errgroup.Wait() to still join the non-failing worker's goroutine, got %d runs", othersRan)
	}
}

func TestCoordinatorStaysSerialWhenParallelDisabled(t *testing.T) {
	logic := &stubLogic{}
	c := New(Config{ParallelWorkers: false, CoordinationWindow: 1}, []workers.Worker{&fakeWorker{name: "a"}}, logic, nil)
	if _, err := c.OnTick(market.Tick{}, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.useParallel {
		t.Error("expected coordinator to remain serial when ParallelWorkers is false")
	}
}
