package scenario

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

func TestEncodeDecodeProcessDataPackageRoundTrip(t *testing.T) {
	pkg := ProcessDataPackage{
		ScenarioIndex: 3,
		Scenario:      Scenario{Name: "s1", Symbol: "EURUSD"},
		Ticks: []market.Tick{
			{Timestamp: time.Unix(1000, 0).UTC(), Symbol: "EURUSD", Bid: decimal.NewFromFloat(1.1), Ask: decimal.NewFromFloat(1.1002)},
		},
		WarmupBars: map[timeframe.Name][]market.Bar{
			timeframe.M5: {{Symbol: "EURUSD", Timeframe: timeframe.M5}},
		},
		WarmupWarnings: []string{"insufficient warmup"},
	}

	data, err := EncodeProcessDataPackage(pkg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeProcessDataPackage(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.ScenarioIndex != 3 {
		t.Errorf("expected ScenarioIndex 3, got %d", decoded.ScenarioIndex)
	}
	if len(decoded.Ticks) != 1 || !decoded.Ticks[0].Bid.Equal(decimal.NewFromFloat(1.1)) {
		t.Errorf("tick round trip mismatch: %+v", decoded.Ticks)
	}
	if len(decoded.WarmupBars[timeframe.M5]) != 1 {
		t.Errorf("expected 1 warmup bar for M5 after round trip")
	}
	if len(decoded.WarmupWarnings) != 1 {
		t.Errorf("expected warnings to survive round trip")
	}
}

func TestEncodeDecodeProcessResultRoundTrip(t *testing.T) {
	result := ProcessResult{
		Success:       true,
		ScenarioName:  "s1",
		Symbol:        "EURUSD",
		ScenarioIndex: 1,
		TickLoopResults: TickLoopResult{
			PortfolioStats: &brokersim.Portfolio{Balance: decimal.NewFromFloat(10000)},
			ExecutionStats: brokersim.ExecutionStats{OrdersSent: 5},
			OrderHistory: []*brokersim.Order{
				{OrderID: "o1", Symbol: "EURUSD", Status: brokersim.StatusPending},
				{OrderID: "o1", Symbol: "EURUSD", Status: brokersim.StatusExecuted},
			},
		},
	}

	data, err := EncodeProcessResult(result)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeProcessResult(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Success || decoded.ScenarioName != "s1" {
		t.Errorf("unexpected decoded result: %+v", decoded)
	}
	if decoded.TickLoopResults.PortfolioStats == nil || !decoded.TickLoopResults.PortfolioStats.Balance.Equal(decimal.NewFromFloat(10000)) {
		t.Errorf("expected portfolio stats to survive round trip: %+v", decoded.TickLoopResults.PortfolioStats)
	}
	if decoded.TickLoopResults.ExecutionStats.OrdersSent != 5 {
		t.Errorf("expected execution stats to survive round trip")
	}
	if len(decoded.TickLoopResults.OrderHistory) != 2 {
		t.Fatalf("expected 2 order-history records to survive round trip, got %d", len(decoded.TickLoopResults.OrderHistory))
	}
	if decoded.TickLoopResults.OrderHistory[0].Status != brokersim.StatusPending || decoded.TickLoopResults.OrderHistory[1].Status != brokersim.StatusExecuted {
		t.Errorf("expected the PENDING-then-EXECUTED record order to survive round trip, got %+v", decoded.TickLoopResults.OrderHistory)
	}
}

func TestEncodeDecodeProcessResultOmitsUnserializableTickLoopError(t *testing.T) {
	result := ProcessResult{
		ScenarioName: "s1",
		TickLoopResults: TickLoopResult{
			TickLoopError: errors.New("boom"),
		},
	}
	data, err := EncodeProcessResult(result)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeProcessResult(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.TickLoopResults.TickLoopError != nil {
		t.Error("expected TickLoopError to be excluded from the wire format (msgpack:\"-\")")
	}
}

func TestDecodeProcessResultRejectsGarbage(t *testing.T) {
	if _, err := DecodeProcessResult([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected an error decoding invalid msgpack data")
	}
}
