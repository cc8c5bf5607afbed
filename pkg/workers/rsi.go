package workers

import (
	"time"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

func init() {
	Register("CORE/rsi", newRSI)
}

// RSI computes the classic Wilder relative-strength index off bar closes
// on a single timeframe.
type RSI struct {
	name   string
	tf     timeframe.Name
	period int

	avgGain, avgLoss float64
	lastClose        float64
	haveLast         bool
	warm             bool
	deltasSeen       int
}

func newRSI(name string, cfg Config) (Worker, error) {
	return &RSI{
		name:   name,
		tf:     timeframeConfig(cfg, "timeframe", timeframe.M5),
		period: intConfig(cfg, "period", 14),
	}, nil
}

func (w *RSI) Name() string                              { return w.name }
func (w *RSI) RequiredTimeframes() []timeframe.Name       { return []timeframe.Name{w.tf} }
func (w *RSI) WarmupBars(tf timeframe.Name) int {
	if tf == w.tf {
		return w.period + 1
	}
	return 0
}

func (w *RSI) OnWarmup(history map[timeframe.Name][]market.Bar) {
	bars := history[w.tf]
	if len(bars) == 0 {
		return
	}
	w.lastClose, _ = bars[0].Close.Float64()
	w.haveLast = true

	var gainSum, lossSum float64
	count := 0
	for _, b := range bars[1:] {
		close, _ := b.Close.Float64()
		delta := close - w.lastClose
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
		w.lastClose = close
		count++
		if count >= w.period {
			break
		}
	}
	if count > 0 {
		w.avgGain = gainSum / float64(count)
		w.avgLoss = lossSum / float64(count)
	}
	w.warm = true
}

func (w *RSI) Compute(tick market.Tick, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.WorkerResult {
	start := time.Now()
	bar, ok := currentBars[w.tf]
	if !ok {
		return market.WorkerResult{WorkerName: w.name, Value: 50.0, Confidence: 0, IsStale: true}
	}
	close, _ := bar.Close.Float64()

	if !w.haveLast {
		w.lastClose = close
		w.haveLast = true
		return market.WorkerResult{WorkerName: w.name, Value: 50.0, Confidence: 0.0, IsStale: true, ComputationTimeMs: elapsedMs(start)}
	}

	delta := close - w.lastClose
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	period := float64(w.period)
	w.avgGain = (w.avgGain*(period-1) + gain) / period
	w.avgLoss = (w.avgLoss*(period-1) + loss) / period
	w.lastClose = close
	if !w.warm {
		w.deltasSeen++
		if w.deltasSeen >= w.period {
			w.warm = true
		}
	}

	rsi := 100.0
	if w.avgLoss != 0 {
		rs := w.avgGain / w.avgLoss
		rsi = 100.0 - (100.0 / (1.0 + rs))
	}

	return market.WorkerResult{
		WorkerName:        w.name,
		Value:             rsi,
		Confidence:        1.0,
		ComputationTimeMs: elapsedMs(start),
		IsStale:           !w.warm,
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
