package workers

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

func TestEnvelopeStaleDuringWarmup(t *testing.T) {
	w, err := New("CORE/envelope", "envelope_main", Config{"ma_period": 5, "timeframe": "M5"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tf := w.RequiredTimeframes()[0]

	bar := market.Bar{Close: decimal.NewFromFloat(1.10), Timestamp: time.Now()}
	r := w.Compute(market.Tick{}, map[timeframe.Name]market.Bar{tf: bar}, nil)
	if !r.IsStale {
		t.Error("expected envelope to be stale before ma_period closes are seen")
	}
}

func TestEnvelopePositionAtMidIsHalf(t *testing.T) {
	w, err := New("CORE/envelope", "envelope_main", Config{"ma_period": 3, "deviation": 0.1, "timeframe": "M5"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tf := w.RequiredTimeframes()[0]

	var last market.WorkerResult
	for i := 0; i < 3; i++ {
		bar := market.Bar{Close: decimal.NewFromFloat(1.10), Timestamp: time.Now()}
		last = w.Compute(market.Tick{}, map[timeframe.Name]market.Bar{tf: bar}, nil)
	}
	m, ok := last.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any value, got %T", last.Value)
	}
	position, _ := m["position"].(float64)
	if position < 0.49 || position > 0.51 {
		t.Errorf("expected position ~0.5 for a flat series, got %.4f", position)
	}
	if last.IsStale {
		t.Error("expected envelope to no longer be stale after ma_period closes")
	}
}

func TestEnvelopeOnWarmupSeedsWindow(t *testing.T) {
	w, err := New("CORE/envelope", "envelope_main", Config{"ma_period": 3, "timeframe": "M5"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tf := w.RequiredTimeframes()[0]
	history := []market.Bar{
		{Close: decimal.NewFromFloat(1.10)},
		{Close: decimal.NewFromFloat(1.11)},
		{Close: decimal.NewFromFloat(1.12)},
	}
	w.OnWarmup(map[timeframe.Name][]market.Bar{tf: history})

	bar := market.Bar{Close: decimal.NewFromFloat(1.12), Timestamp: time.Now()}
	r := w.Compute(market.Tick{}, map[timeframe.Name]market.Bar{tf: bar}, nil)
	if r.IsStale {
		t.Error("expected envelope warmed up from history to not be stale")
	}
}
