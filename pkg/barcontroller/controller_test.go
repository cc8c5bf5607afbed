package barcontroller

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tickAt(ts time.Time, bid, ask string) market.Tick {
	return market.Tick{Symbol: "EURUSD", Timestamp: ts, Bid: dec(bid), Ask: dec(ask)}
}

func TestProcessTickRejectsWrongSymbol(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	_, err := c.ProcessTick(market.Tick{Symbol: "GBPUSD", Timestamp: time.Now()})
	if err == nil {
		t.Error("expected an error for a mismatched symbol")
	}
}

func TestProcessTickOpensNewBar(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	snap, err := c.ProcessTick(tickAt(ts, "1.1000", "1.1002"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bar := snap[timeframe.M5]
	if bar.TickCount != 1 {
		t.Errorf("expected TickCount 1, got %d", bar.TickCount)
	}
	if bar.Type != market.BarReal {
		t.Errorf("expected BarReal, got %s", bar.Type)
	}
}

func TestProcessTickUpdatesSameBar(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c.ProcessTick(tickAt(ts, "1.1000", "1.1002"))
	snap, err := c.ProcessTick(tickAt(ts.Add(time.Minute), "1.1010", "1.1012"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bar := snap[timeframe.M5]
	if bar.TickCount != 2 {
		t.Errorf("expected TickCount 2 within the same bar interval, got %d", bar.TickCount)
	}
}

func TestProcessTickClosesBarOnIntervalBoundary(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c.ProcessTick(tickAt(ts, "1.1000", "1.1002"))
	c.ProcessTick(tickAt(ts.Add(6*time.Minute), "1.1020", "1.1022"))

	history := c.History(timeframe.M5)
	if len(history) != 1 {
		t.Fatalf("expected 1 completed bar in history, got %d", len(history))
	}
	if !history[0].Complete {
		t.Error("expected the rolled-over bar to be marked complete")
	}
}

func TestSynthesizeGapFillsMissingIntervals(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c.ProcessTick(tickAt(ts, "1.1000", "1.1002"))
	// Jump forward 20 minutes: should synthesize 3 gap-filled bars (10:05, 10:10, 10:15).
	c.ProcessTick(tickAt(ts.Add(20*time.Minute), "1.1050", "1.1052"))

	history := c.History(timeframe.M5)
	if len(history) != 4 {
		t.Fatalf("expected 1 real + 3 synthetic bars, got %d", len(history))
	}
	synthCount := 0
	for _, b := range history[1:] {
		if b.Type == market.BarSynthetic {
			synthCount++
		}
	}
	if synthCount != 3 {
		t.Errorf("expected 3 synthetic bars, got %d", synthCount)
	}
}

func TestHistoryCapTrims(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M1}, 2)
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c.ProcessTick(tickAt(ts.Add(time.Duration(i)*time.Minute), "1.1000", "1.1002"))
	}
	history := c.History(timeframe.M1)
	if len(history) > 2 {
		t.Errorf("expected history capped at 2, got %d", len(history))
	}
}

func TestSeedWarmupMarksBarsComplete(t *testing.T) {
	c := New("EURUSD", []timeframe.Name{timeframe.M5}, 0)
	bars := []market.Bar{{Timestamp: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}}
	c.SeedWarmup(timeframe.M5, bars)
	history := c.History(timeframe.M5)
	if len(history) != 1 || !history[0].Complete {
		t.Error("expected warmup-seeded bars to be marked complete")
	}
}
