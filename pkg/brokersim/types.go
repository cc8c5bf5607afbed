// Package brokersim simulates a leveraged FX-style broker: order
// validation, a FIFO pending-order fill model, margin accounting, and
// portfolio P&L bookkeeping. It is adapted from this module's paper
// trading engine, generalized from instant/orderbook fills on a single
// prediction-market token to latency-ticked MARKET/LIMIT/STOP/STOP_LIMIT
// orders with leverage and swap/commission bookkeeping across symbols.
package brokersim

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType enumerates the order types a broker may support.
type OrderType string

const (
	Market    OrderType = "MARKET"
	Limit     OrderType = "LIMIT"
	Stop      OrderType = "STOP"
	StopLimit OrderType = "STOP_LIMIT"
)

// Direction is the trade side.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for Buy, -1 for Sell.
func (d Direction) Sign() int64 {
	if d == Buy {
		return 1
	}
	return -1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus is the lifecycle state of a submitted order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// RejectionReason names why an order was rejected or cancelled.
type RejectionReason string

const (
	ReasonNone                RejectionReason = ""
	ReasonInvalidLots         RejectionReason = "INVALID_LOTS"
	ReasonInsufficientMargin  RejectionReason = "INSUFFICIENT_MARGIN"
	ReasonInvalidPrice        RejectionReason = "INVALID_PRICE"
	ReasonStressTestReject    RejectionReason = "STRESS_TEST_REJECT"
	ReasonPositionLimit       RejectionReason = "POSITION_LIMIT"
	ReasonPendingLimit        RejectionReason = "PENDING_DIRECTION_LIMIT"
	ReasonTimedOut            RejectionReason = "TIMED_OUT"
	ReasonUnfilledAtEnd       RejectionReason = "UNFILLED_AT_END"
	ReasonForceClosed         RejectionReason = "FORCE_CLOSED"
)

// Order is one order submitted to the broker, open or resolved.
type Order struct {
	OrderID         string
	Symbol          string
	Type            OrderType
	Direction       Direction
	Lots            decimal.Decimal
	RequestedPrice  decimal.Decimal // zero for MARKET
	Status          OrderStatus
	ExecutedPrice   decimal.Decimal
	RejectionReason RejectionReason
	Comment         string
	CreatedAt       time.Time
	FilledAt        time.Time

	// internal fill-model bookkeeping, not part of the public contract
	latencyTicks    int
	ticksSinceSubmit int
	stopTriggered   bool // STOP_LIMIT: true once the stop leg has fired
	closesPositionID string
}

// IsOpenOrder reports whether this order opens a new position (as opposed
// to closing an existing one).
func (o *Order) IsOpenOrder() bool { return o.closesPositionID == "" }

// Position is one open or closed leveraged position.
type Position struct {
	PositionID    string
	Symbol        string
	Direction     Direction
	Lots          decimal.Decimal
	OpenPrice     decimal.Decimal
	OpenTime      time.Time
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Swap          decimal.Decimal
	Commission    decimal.Decimal

	// populated once closed
	ClosePrice  decimal.Decimal
	CloseTime   time.Time
	RealizedPnL decimal.Decimal
	CloseReason RejectionReason // FORCE_CLOSED on end-of-run flush, empty otherwise
}

// Counters tracks portfolio-level trade counts.
type Counters struct {
	Winning int
	Losing  int
	Long    int
	Short   int
}

// Portfolio is the scenario's running account state.
type Portfolio struct {
	Currency       string
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal // realized P&L rolling
	Equity         decimal.Decimal // balance + sum(unrealized)
	FreeMargin     decimal.Decimal
	MaxEquity      decimal.Decimal
	MaxDrawdown    decimal.Decimal
	minEquitySinceMax decimal.Decimal

	OpenPositions   map[string]*Position // keyed by position ID
	ClosedPositions []*Position

	Counters Counters
}

// BrokerSpec describes the simulated broker's trading terms.
type BrokerSpec struct {
	Name                    string
	Leverage                decimal.Decimal
	AccountCurrency         string
	ContractSize            decimal.Decimal // units per lot, e.g. 100000 for FX
	PipValue                decimal.Decimal // monetary value per pip per standard lot
	CommissionPerLot        decimal.Decimal
	MinLots                 decimal.Decimal
	MaxLots                 decimal.Decimal
	LotStep                 decimal.Decimal
	PriceDigits             int32
	TickSize                decimal.Decimal
	SpreadPoints            decimal.Decimal
	SupportedOrderTypes     []OrderType
	LatencyTicksDistribution []int // deterministic draw sequence, cycled
	MaxPendingAgeTicks      int
	MaxPendingPerDirection  int // broker-side duplicate-pending guard, see DESIGN.md

	StressTest StressTestConfig
}

// StressTestConfig configures deterministic fault injection.
type StressTestConfig struct {
	RejectOpenOrder RejectOpenOrderConfig
}

// RejectOpenOrderConfig forces a fraction of order submissions to fail.
type RejectOpenOrderConfig struct {
	Enabled     bool
	Probability float64
	Seed        uint64
}

// SupportsOrderType reports whether the broker spec accepts a given order type.
func (b *BrokerSpec) SupportsOrderType(t OrderType) bool {
	for _, s := range b.SupportedOrderTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ExecutionStats summarizes order-level outcomes for a scenario.
type ExecutionStats struct {
	OrdersSent     int
	OrdersExecuted int
	OrdersRejected int
	OrdersTimedOut int
	ForceClosed    int
}

// CostBreakdown totals the fees deducted over a scenario.
type CostBreakdown struct {
	TotalCommission decimal.Decimal
	TotalSwap       decimal.Decimal
	TotalSpreadCost decimal.Decimal
}
