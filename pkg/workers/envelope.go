package workers

import (
	"time"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

func init() {
	Register("CORE/envelope", newEnvelope)
}

// Envelope tracks a symmetric band around a moving average of closes and
// reports the current close's normalized position within it (0 = at the
// lower band, 1 = at the upper band, 0.5 = at the average).
type Envelope struct {
	name       string
	tf         timeframe.Name
	maPeriod   int
	deviation  float64 // band half-width as a fraction of the moving average

	window []float64
}

func newEnvelope(name string, cfg Config) (Worker, error) {
	return &Envelope{
		name:      name,
		tf:        timeframeConfig(cfg, "timeframe", timeframe.M5),
		maPeriod:  intConfig(cfg, "ma_period", 20),
		deviation: floatConfig(cfg, "deviation", 0.02),
	}, nil
}

func (w *Envelope) Name() string                        { return w.name }
func (w *Envelope) RequiredTimeframes() []timeframe.Name { return []timeframe.Name{w.tf} }
func (w *Envelope) WarmupBars(tf timeframe.Name) int {
	if tf == w.tf {
		return w.maPeriod
	}
	return 0
}

func (w *Envelope) OnWarmup(history map[timeframe.Name][]market.Bar) {
	bars := history[w.tf]
	start := 0
	if len(bars) > w.maPeriod {
		start = len(bars) - w.maPeriod
	}
	for _, b := range bars[start:] {
		close, _ := b.Close.Float64()
		w.push(close)
	}
}

func (w *Envelope) push(v float64) {
	w.window = append(w.window, v)
	if len(w.window) > w.maPeriod {
		w.window = w.window[len(w.window)-w.maPeriod:]
	}
}

func (w *Envelope) mean() float64 {
	if len(w.window) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.window {
		sum += v
	}
	return sum / float64(len(w.window))
}

func (w *Envelope) Compute(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.WorkerResult {
	start := time.Now()
	bar, ok := currentBars[w.tf]
	if !ok {
		return market.WorkerResult{WorkerName: w.name, Value: map[string]any{"position": 0.5}, Confidence: 0, IsStale: true}
	}
	close, _ := bar.Close.Float64()
	w.push(close)

	ma := w.mean()
	stale := len(w.window) < w.maPeriod
	position := 0.5
	if ma != 0 {
		upper := ma * (1 + w.deviation)
		lower := ma * (1 - w.deviation)
		if upper > lower {
			position = (close - lower) / (upper - lower)
		}
	}

	return market.WorkerResult{
		WorkerName:        w.name,
		Value:             map[string]any{"position": position, "ma": ma},
		Confidence:        1.0,
		ComputationTimeMs: elapsedMs(start),
		IsStale:           stale,
	}
}
