// Package market holds the tick- and bar-level data model shared by every
// stage of the tick loop: the bar rendering controller, the worker
// coordinator, decision logic, and the broker simulator all exchange these
// types without owning them.
package market

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/timeframe"
)

// Tick is one bid/ask quote for a symbol. Ticks within a scenario stream
// are strictly non-decreasing in Timestamp.
type Tick struct {
	Timestamp time.Time
	Symbol    string
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume    decimal.Decimal
}

// Mid returns the midpoint between bid and ask.
func (t Tick) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// Validate enforces the tick invariants: bid > 0, ask >= bid.
func (t Tick) Validate() error {
	if t.Bid.Sign() <= 0 {
		return &InvalidTickError{Reason: "bid must be > 0", Tick: t}
	}
	if t.Ask.LessThan(t.Bid) {
		return &InvalidTickError{Reason: "ask must be >= bid", Tick: t}
	}
	return nil
}

// InvalidTickError reports a tick that violates the bid/ask invariant.
type InvalidTickError struct {
	Reason string
	Tick   Tick
}

func (e *InvalidTickError) Error() string {
	return "invalid tick (" + e.Reason + ")"
}

// BarType distinguishes bars built from real ticks from gap-filled ones.
type BarType string

const (
	BarReal      BarType = "real"
	BarSynthetic BarType = "synthetic"
	BarHybrid    BarType = "hybrid"
)

// Bar is one OHLC aggregate for a symbol/timeframe.
type Bar struct {
	Symbol    string
	Timeframe timeframe.Name
	Timestamp time.Time // bar open, UTC aligned
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	TickCount int
	Complete  bool
	Type      BarType
}

// UpdateWithTick folds one tick's mid price into an in-progress bar.
func (b *Bar) UpdateWithTick(mid decimal.Decimal, volume decimal.Decimal) {
	if b.High.LessThan(mid) {
		b.High = mid
	}
	if b.Low.GreaterThan(mid) {
		b.Low = mid
	}
	b.Close = mid
	b.Volume = b.Volume.Add(volume)
	b.TickCount++
}

// WorkerResult is the typed, opaque-to-the-coordinator output of one
// indicator worker for a single tick.
type WorkerResult struct {
	WorkerName        string
	Value             any
	Confidence        float64
	ComputationTimeMs float64
	IsStale           bool
}

// Action is the intent produced by decision logic.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionFlat Action = "FLAT"
)

// Decision is the output of decision logic's compute step: an intent, not
// yet an order.
type Decision struct {
	Action     Action
	Confidence float64
	Reason     string
	Price      decimal.Decimal
	Timestamp  time.Time
}
