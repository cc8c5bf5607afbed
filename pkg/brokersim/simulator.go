package brokersim

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/market"
)

// Simulator is the per-scenario broker. It owns the portfolio, the pending
// order queue, and the deterministic RNG used for stress-test injection;
// none of its state is shared across scenarios (§5 Shared resources).
type Simulator struct {
	spec      *BrokerSpec
	portfolio *Portfolio

	pendingOrders []*Order // FIFO by submission time
	orderHistory  []*Order
	closedByID    map[string]*Position

	orderSeq    int
	positionSeq int

	rng *rand.Rand

	currentTick market.Tick
	execStats   ExecutionStats
	costs       CostBreakdown

	latencyCursor int
}

// New constructs a broker simulator for one scenario.
func New(spec *BrokerSpec, initialBalance decimal.Decimal, seed uint64) *Simulator {
	return &Simulator{
		spec: spec,
		portfolio: &Portfolio{
			Currency:          spec.AccountCurrency,
			InitialBalance:    initialBalance,
			Balance:           initialBalance,
			Equity:            initialBalance,
			FreeMargin:        initialBalance,
			MaxEquity:         initialBalance,
			minEquitySinceMax: initialBalance,
			OpenPositions:     make(map[string]*Position),
		},
		closedByID: make(map[string]*Position),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

// Portfolio exposes the live portfolio snapshot (read-only by convention).
func (s *Simulator) Portfolio() *Portfolio { return s.portfolio }

// ExecutionStats returns the running order-level statistics.
func (s *Simulator) ExecutionStats() ExecutionStats { return s.execStats }

// CostBreakdown returns the running fee/swap/spread totals.
func (s *Simulator) CostBreakdown() CostBreakdown { return s.costs }

// OrderHistory returns every order ever submitted, PENDING or resolved.
func (s *Simulator) OrderHistory() []*Order { return s.orderHistory }

func (s *Simulator) priceFor(symbol string) (bid, ask decimal.Decimal, ok bool) {
	if s.currentTick.Symbol != symbol {
		return decimal.Zero, decimal.Zero, false
	}
	return s.currentTick.Bid, s.currentTick.Ask, true
}

// UpdatePrices applies one tick: refreshes the current bid/ask, revalues
// unrealized P&L, recomputes equity/drawdown, and processes pending orders.
// Stress-test rejection is applied at order submission, not here. This is
// step 1 of the scenario tick loop (§4.9).
func (s *Simulator) UpdatePrices(tick market.Tick) error {
	if err := tick.Validate(); err != nil {
		return fmt.Errorf("brokersim: %w", err)
	}
	s.currentTick = tick

	for _, pos := range s.portfolio.OpenPositions {
		if pos.Symbol != tick.Symbol {
			continue
		}
		pos.CurrentPrice = tick.Mid()
		pos.UnrealizedPnL = s.unrealizedPnL(pos)
	}

	s.recomputeEquity()
	s.processPendingOrders()
	return nil
}

func (s *Simulator) unrealizedPnL(pos *Position) decimal.Decimal {
	delta := pos.CurrentPrice.Sub(pos.OpenPrice)
	if pos.Direction == Sell {
		delta = delta.Neg()
	}
	gross := delta.Mul(pos.Lots).Mul(s.spec.PipValue)
	return gross.Sub(pos.Swap).Sub(pos.Commission)
}

func (s *Simulator) recomputeEquity() {
	unrealizedSum := decimal.Zero
	for _, pos := range s.portfolio.OpenPositions {
		unrealizedSum = unrealizedSum.Add(pos.UnrealizedPnL)
	}
	s.portfolio.Equity = s.portfolio.Balance.Add(unrealizedSum)

	marginUsed := s.marginInUse()
	s.portfolio.FreeMargin = s.portfolio.Equity.Sub(marginUsed)

	if s.portfolio.Equity.GreaterThan(s.portfolio.MaxEquity) {
		s.portfolio.MaxEquity = s.portfolio.Equity
		s.portfolio.minEquitySinceMax = s.portfolio.Equity
	} else if s.portfolio.Equity.LessThan(s.portfolio.minEquitySinceMax) {
		s.portfolio.minEquitySinceMax = s.portfolio.Equity
	}
	dd := s.portfolio.MaxEquity.Sub(s.portfolio.minEquitySinceMax)
	if dd.GreaterThan(s.portfolio.MaxDrawdown) {
		s.portfolio.MaxDrawdown = dd
	}
}

func (s *Simulator) marginInUse() decimal.Decimal {
	used := decimal.Zero
	for _, pos := range s.portfolio.OpenPositions {
		used = used.Add(s.requiredMargin(pos.Lots, pos.CurrentPrice))
	}
	return used
}

func (s *Simulator) requiredMargin(lots, price decimal.Decimal) decimal.Decimal {
	if s.spec.Leverage.IsZero() {
		return decimal.Zero
	}
	return lots.Mul(s.spec.ContractSize).Mul(price).Div(s.spec.Leverage)
}

// OpenOrder validates and submits a new order. Execution happens on a
// subsequent tick per the latency/fill model (§4.8.1).
func (s *Simulator) OpenOrder(symbol string, typ OrderType, dir Direction, lots decimal.Decimal, requestedPrice decimal.Decimal, comment string) (*Order, error) {
	return s.submit(symbol, typ, dir, lots, requestedPrice, comment, "")
}

// CloseOrder submits a MARKET order that closes an existing position.
func (s *Simulator) CloseOrder(pos *Position, comment string) (*Order, error) {
	return s.submit(pos.Symbol, Market, pos.Direction.Opposite(), pos.Lots, decimal.Zero, comment, pos.PositionID)
}

func (s *Simulator) submit(symbol string, typ OrderType, dir Direction, lots, requestedPrice decimal.Decimal, comment, closesPositionID string) (*Order, error) {
	s.orderSeq++
	order := &Order{
		OrderID:          s.nextID(),
		Symbol:           symbol,
		Type:             typ,
		Direction:        dir,
		Lots:             lots,
		RequestedPrice:   requestedPrice,
		Comment:          comment,
		CreatedAt:        s.currentTick.Timestamp,
		closesPositionID: closesPositionID,
		latencyTicks:     s.drawLatencyTicks(),
	}

	s.execStats.OrdersSent++

	if closesPositionID == "" {
		if err := s.validateOpenOrder(order); err != nil {
			return s.reject(order, err)
		}
		if s.spec.StressTest.RejectOpenOrder.Enabled && s.rng.Float64() < s.spec.StressTest.RejectOpenOrder.Probability {
			return s.reject(order, errRejection(ReasonStressTestReject))
		}
	}

	order.Status = StatusPending
	s.pendingOrders = append(s.pendingOrders, order)
	if closesPositionID == "" {
		pendingRecord := *order
		s.orderHistory = append(s.orderHistory, &pendingRecord)
	}
	return order, nil
}

type rejectionError struct{ reason RejectionReason }

func (e *rejectionError) Error() string { return string(e.reason) }
func errRejection(r RejectionReason) error { return &rejectionError{reason: r} }

func (s *Simulator) reject(order *Order, err error) (*Order, error) {
	order.Status = StatusRejected
	if re, ok := err.(*rejectionError); ok {
		order.RejectionReason = re.reason
	}
	s.orderHistory = append(s.orderHistory, order)
	s.execStats.OrdersRejected++
	return order, nil
}

func (s *Simulator) validateOpenOrder(order *Order) error {
	if order.Lots.LessThanOrEqual(decimal.Zero) ||
		(s.spec.MinLots.IsPositive() && order.Lots.LessThan(s.spec.MinLots)) ||
		(s.spec.MaxLots.IsPositive() && order.Lots.GreaterThan(s.spec.MaxLots)) {
		return errRejection(ReasonInvalidLots)
	}
	if s.spec.LotStep.IsPositive() {
		steps := order.Lots.Div(s.spec.LotStep)
		if !steps.Equal(steps.Truncate(0)) {
			return errRejection(ReasonInvalidLots)
		}
	}

	bid, ask, ok := s.priceFor(order.Symbol)
	if !ok {
		return errRejection(ReasonInvalidPrice)
	}
	refPrice := ask
	if order.Direction == Sell {
		refPrice = bid
	}
	required := s.requiredMargin(order.Lots, refPrice)
	if s.portfolio.FreeMargin.LessThan(required) {
		return errRejection(ReasonInsufficientMargin)
	}

	if err := validateDirectionalPrice(order, ask, bid); err != nil {
		return err
	}

	if s.hasOpenPosition(order.Symbol) {
		return errRejection(ReasonPositionLimit)
	}
	if s.spec.MaxPendingPerDirection > 0 && s.pendingCountInDirection(order.Symbol, order.Direction) >= s.spec.MaxPendingPerDirection {
		return errRejection(ReasonPendingLimit)
	}
	return nil
}

func validateDirectionalPrice(order *Order, ask, bid decimal.Decimal) error {
	if order.Type == Market {
		return nil
	}
	switch {
	case order.Type == Limit && order.Direction == Buy && order.RequestedPrice.GreaterThan(ask):
		return errRejection(ReasonInvalidPrice)
	case order.Type == Limit && order.Direction == Sell && order.RequestedPrice.LessThan(bid):
		return errRejection(ReasonInvalidPrice)
	case order.Type == Stop && order.Direction == Buy && order.RequestedPrice.LessThan(ask):
		return errRejection(ReasonInvalidPrice)
	case order.Type == Stop && order.Direction == Sell && order.RequestedPrice.GreaterThan(bid):
		return errRejection(ReasonInvalidPrice)
	case order.Type == StopLimit && order.RequestedPrice.LessThanOrEqual(decimal.Zero):
		return errRejection(ReasonInvalidPrice)
	}
	return nil
}

func (s *Simulator) hasOpenPosition(symbol string) bool {
	for _, p := range s.portfolio.OpenPositions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

func (s *Simulator) pendingCountInDirection(symbol string, dir Direction) int {
	n := 0
	for _, o := range s.pendingOrders {
		if o.Symbol == symbol && o.Direction == dir {
			n++
		}
	}
	return n
}

// rngReader adapts math/rand/v2.Rand (which has no Read method) to
// io.Reader by drawing successive Uint64s, so uuid.NewRandomFromReader
// can consume the scenario's seeded stream directly.
type rngReader struct{ rng *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		v := r.rng.Uint64()
		for i := 0; i < 8 && n < len(p); i++ {
			p[n] = byte(v)
			v >>= 8
			n++
		}
	}
	return n, nil
}

// nextID draws a UUID from the scenario's seeded RNG rather than
// crypto/rand: identical seed plus identical call order (guaranteed by
// the deterministic tick loop and the coordinator's name-keyed merge)
// reproduces byte-identical order/position IDs across runs, serial or
// parallel.
func (s *Simulator) nextID() string {
	id, err := uuid.NewRandomFromReader(rngReader{s.rng})
	if err != nil {
		return fmt.Sprintf("id-%d-%d", s.orderSeq, s.positionSeq)
	}
	return id.String()
}

func (s *Simulator) drawLatencyTicks() int {
	if len(s.spec.LatencyTicksDistribution) == 0 {
		return 0
	}
	v := s.spec.LatencyTicksDistribution[s.latencyCursor%len(s.spec.LatencyTicksDistribution)]
	s.latencyCursor++
	return v
}

// processPendingOrders runs the FIFO fill model (§4.8.2) plus the pending
// order age timeout.
func (s *Simulator) processPendingOrders() {
	if len(s.pendingOrders) == 0 {
		return
	}
	remaining := s.pendingOrders[:0]
	for _, order := range s.pendingOrders {
		if order.Symbol != s.currentTick.Symbol {
			remaining = append(remaining, order)
			continue
		}
		order.ticksSinceSubmit++

		if s.spec.MaxPendingAgeTicks > 0 && order.ticksSinceSubmit > s.spec.MaxPendingAgeTicks {
			order.Status = StatusCancelled
			order.RejectionReason = ReasonTimedOut
			s.execStats.OrdersTimedOut++
			continue
		}

		filled, fillPrice := s.evaluateFill(order)
		if !filled {
			remaining = append(remaining, order)
			continue
		}
		s.fill(order, fillPrice)
	}
	s.pendingOrders = remaining
}

func (s *Simulator) evaluateFill(order *Order) (bool, decimal.Decimal) {
	bid, ask := s.currentTick.Bid, s.currentTick.Ask

	switch order.Type {
	case Market:
		if order.ticksSinceSubmit < order.latencyTicks {
			return false, decimal.Zero
		}
		if order.Direction == Buy {
			return true, ask
		}
		return true, bid

	case Limit:
		if order.Direction == Buy && ask.LessThanOrEqual(order.RequestedPrice) {
			return true, ask
		}
		if order.Direction == Sell && bid.GreaterThanOrEqual(order.RequestedPrice) {
			return true, bid
		}
		return false, decimal.Zero

	case Stop:
		if order.Direction == Buy && ask.GreaterThanOrEqual(order.RequestedPrice) {
			return true, ask
		}
		if order.Direction == Sell && bid.LessThanOrEqual(order.RequestedPrice) {
			return true, bid
		}
		return false, decimal.Zero

	case StopLimit:
		if !order.stopTriggered {
			triggered := (order.Direction == Buy && ask.GreaterThanOrEqual(order.RequestedPrice)) ||
				(order.Direction == Sell && bid.LessThanOrEqual(order.RequestedPrice))
			if !triggered {
				return false, decimal.Zero
			}
			order.stopTriggered = true
		}
		if order.Direction == Buy && ask.LessThanOrEqual(order.RequestedPrice) {
			return true, ask
		}
		if order.Direction == Sell && bid.GreaterThanOrEqual(order.RequestedPrice) {
			return true, bid
		}
		return false, decimal.Zero
	}
	return false, decimal.Zero
}

func (s *Simulator) fill(order *Order, fillPrice decimal.Decimal) {
	order.Status = StatusExecuted
	order.ExecutedPrice = fillPrice
	order.FilledAt = s.currentTick.Timestamp
	s.execStats.OrdersExecuted++

	executedRecord := *order
	executedRecord.OrderID = order.OrderID
	s.orderHistory = append(s.orderHistory, &executedRecord)

	if order.IsOpenOrder() {
		s.openPosition(order)
		return
	}
	s.closePosition(order)
}

func (s *Simulator) openPosition(order *Order) {
	s.positionSeq++
	commission := order.Lots.Mul(s.spec.CommissionPerLot)
	s.costs.TotalCommission = s.costs.TotalCommission.Add(commission)

	pos := &Position{
		PositionID:   s.nextID(),
		Symbol:       order.Symbol,
		Direction:    order.Direction,
		Lots:         order.Lots,
		OpenPrice:    order.ExecutedPrice,
		OpenTime:     order.FilledAt,
		CurrentPrice: order.ExecutedPrice,
		Commission:   commission,
	}
	s.portfolio.Balance = s.portfolio.Balance.Sub(commission)
	s.portfolio.OpenPositions[pos.PositionID] = pos
	if pos.Direction == Buy {
		s.portfolio.Counters.Long++
	} else {
		s.portfolio.Counters.Short++
	}
	s.recomputeEquity()
}

func (s *Simulator) closePosition(order *Order) {
	pos, ok := s.portfolio.OpenPositions[order.closesPositionID]
	if !ok {
		return
	}
	delete(s.portfolio.OpenPositions, pos.PositionID)

	commission := order.Lots.Mul(s.spec.CommissionPerLot)
	spreadCost := s.currentTick.Ask.Sub(s.currentTick.Bid).Mul(order.Lots).Mul(s.spec.PipValue)
	s.costs.TotalCommission = s.costs.TotalCommission.Add(commission)
	s.costs.TotalSpreadCost = s.costs.TotalSpreadCost.Add(spreadCost)
	s.costs.TotalSwap = s.costs.TotalSwap.Add(pos.Swap)

	delta := order.ExecutedPrice.Sub(pos.OpenPrice)
	if pos.Direction == Sell {
		delta = delta.Neg()
	}
	gross := delta.Mul(pos.Lots).Mul(s.spec.PipValue)
	realized := gross.Sub(pos.Commission).Sub(commission).Sub(pos.Swap).Sub(spreadCost)

	pos.ClosePrice = order.ExecutedPrice
	pos.CloseTime = order.FilledAt
	pos.RealizedPnL = realized
	pos.Commission = pos.Commission.Add(commission)

	s.portfolio.Balance = s.portfolio.Balance.Add(realized)
	if realized.IsPositive() {
		s.portfolio.Counters.Winning++
	} else if realized.IsNegative() {
		s.portfolio.Counters.Losing++
	}
	s.portfolio.ClosedPositions = append(s.portfolio.ClosedPositions, pos)
	s.closedByID[pos.PositionID] = pos
	s.recomputeEquity()
}

// OpenPositions returns a stable-ordered snapshot of the open positions for
// a symbol (there is at most one under the one-position policy, §9).
func (s *Simulator) OpenPositions(symbol string) []*Position {
	var out []*Position
	for _, p := range s.portfolio.OpenPositions {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

// PendingOrders returns a snapshot of pending orders for a symbol, in
// submission order.
func (s *Simulator) PendingOrders(symbol string) []*Order {
	var out []*Order
	for _, o := range s.pendingOrders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

// CloseAllRemainingOrders runs the end-of-run flush (§4.8.3): every open
// position is force-closed at the last tick's mid, and unfilled pending
// orders are cancelled.
func (s *Simulator) CloseAllRemainingOrders() {
	ids := make([]string, 0, len(s.portfolio.OpenPositions))
	for id := range s.portfolio.OpenPositions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		pos := s.portfolio.OpenPositions[id]
		closeOrder, _ := s.submit(pos.Symbol, Market, pos.Direction.Opposite(), pos.Lots, decimal.Zero, "force-close", pos.PositionID)
		mid := s.currentTick.Mid()
		closeOrder.Status = StatusExecuted
		closeOrder.ExecutedPrice = mid
		closeOrder.FilledAt = s.currentTick.Timestamp
		s.execStats.OrdersExecuted++
		s.execStats.ForceClosed++
		record := *closeOrder
		s.orderHistory = append(s.orderHistory, &record)
		s.removePending(closeOrder.OrderID)
		s.closePosition(closeOrder)
		s.portfolio.ClosedPositions[len(s.portfolio.ClosedPositions)-1].CloseReason = ReasonForceClosed
	}

	for _, order := range s.pendingOrders {
		order.Status = StatusCancelled
		order.RejectionReason = ReasonUnfilledAtEnd
	}
	s.pendingOrders = nil
}

func (s *Simulator) removePending(orderID string) {
	out := s.pendingOrders[:0]
	for _, o := range s.pendingOrders {
		if o.OrderID != orderID {
			out = append(out, o)
		}
	}
	s.pendingOrders = out
}
