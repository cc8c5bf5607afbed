// Package decision defines the decision-logic contract consulted by the
// worker coordinator each tick, plus the reference "Simple Consensus"
// implementation (§4.7).
package decision

import (
	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

// TradingAPI is the narrow facade decision logic uses to inspect account
// state and submit orders. The scenario runner's DecisionTradingAPI
// implementation wraps a brokersim.Simulator and validates requested order
// types against the broker spec before forwarding (§4.9).
type TradingAPI interface {
	OpenPositions(symbol string) []*brokersim.Position
	PendingOrders(symbol string) []*brokersim.Order
	FreeMargin() decimal.Decimal
	SendOrder(symbol string, typ brokersim.OrderType, dir brokersim.Direction, lots decimal.Decimal, requestedPrice decimal.Decimal, comment string) (*brokersim.Order, error)
	ClosePosition(pos *brokersim.Position, comment string) (*brokersim.Order, error)
}

// Statistics summarizes what decision logic did over a scenario.
type Statistics struct {
	SignalsEvaluated int
	BuySignals       int
	SellSignals      int
	FlatSignals      int
	OrdersSubmitted  int
	Reversals        int
	NoOpDuplicates   int
}

// Logic is the decision-logic contract (§4.7).
type Logic interface {
	RequiredOrderTypes() []brokersim.OrderType
	Compute(tick market.Tick, workerResults map[string]market.WorkerResult, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.Decision
	Execute(d market.Decision, tick market.Tick) (*brokersim.Order, error)
	SetTradingAPI(api TradingAPI)
	GetStatistics() Statistics
}
