package decision

import (
	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

// SimpleConsensusConfig holds the reference strategy's tunables, matching
// the original's defaults exactly (§4.7).
type SimpleConsensusConfig struct {
	RSIOversold         float64
	RSIOverbought       float64
	EnvelopeLower       float64
	EnvelopeUpper       float64
	MinConfidence       float64
	MinFreeMargin       decimal.Decimal
	LotSize             decimal.Decimal
	RSIWorkerName       string
	EnvelopeWorkerName  string
	Symbol              string
}

// DefaultSimpleConsensusConfig returns the original's defaults.
func DefaultSimpleConsensusConfig() SimpleConsensusConfig {
	return SimpleConsensusConfig{
		RSIOversold:        30,
		RSIOverbought:      70,
		EnvelopeLower:      0.3,
		EnvelopeUpper:      0.7,
		MinConfidence:      0.5,
		MinFreeMargin:      decimal.NewFromInt(1000),
		LotSize:            decimal.NewFromFloat(0.1),
		RSIWorkerName:      "rsi_fast",
		EnvelopeWorkerName: "envelope_main",
	}
}

// SimpleConsensus is the RSI+Envelope reference decision logic.
type SimpleConsensus struct {
	cfg   SimpleConsensusConfig
	api   TradingAPI
	stats Statistics
}

// NewSimpleConsensus constructs the reference decision logic bound to one
// scenario's symbol.
func NewSimpleConsensus(cfg SimpleConsensusConfig) *SimpleConsensus {
	return &SimpleConsensus{cfg: cfg}
}

func (s *SimpleConsensus) SetTradingAPI(api TradingAPI) { s.api = api }

func (s *SimpleConsensus) RequiredOrderTypes() []brokersim.OrderType {
	return []brokersim.OrderType{brokersim.Market}
}

func (s *SimpleConsensus) GetStatistics() Statistics { return s.stats }

// Compute maps worker results to an intent, exactly reproducing the
// reference consensus rule and confidence formula (§4.7).
func (s *SimpleConsensus) Compute(tick market.Tick, workerResults map[string]market.WorkerResult, currentBars map[timeframe.Name]market.Bar, history map[timeframe.Name][]market.Bar) market.Decision {
	s.stats.SignalsEvaluated++

	rsiResult, haveRSI := workerResults[s.cfg.RSIWorkerName]
	envResult, haveEnv := workerResults[s.cfg.EnvelopeWorkerName]
	if !haveRSI || !haveEnv {
		s.stats.FlatSignals++
		return market.Decision{Action: market.ActionFlat, Confidence: 0.0, Reason: "missing worker results", Price: tick.Mid(), Timestamp: tick.Timestamp}
	}

	rsiValue, _ := rsiResult.Value.(float64)
	envelopePosition := 0.5
	if m, ok := envResult.Value.(map[string]any); ok {
		if p, ok := m["position"].(float64); ok {
			envelopePosition = p
		}
	}

	if rsiValue <= s.cfg.RSIOversold && envelopePosition <= s.cfg.EnvelopeLower {
		confidence := s.buyConfidence(rsiValue, envelopePosition)
		if confidence >= s.cfg.MinConfidence {
			s.stats.BuySignals++
			return market.Decision{Action: market.ActionBuy, Confidence: confidence, Reason: "rsi+envelope consensus", Price: tick.Mid(), Timestamp: tick.Timestamp}
		}
	}

	if rsiValue >= s.cfg.RSIOverbought && envelopePosition >= s.cfg.EnvelopeUpper {
		confidence := s.sellConfidence(rsiValue, envelopePosition)
		if confidence >= s.cfg.MinConfidence {
			s.stats.SellSignals++
			return market.Decision{Action: market.ActionSell, Confidence: confidence, Reason: "rsi+envelope consensus", Price: tick.Mid(), Timestamp: tick.Timestamp}
		}
	}

	s.stats.FlatSignals++
	return market.Decision{Action: market.ActionFlat, Confidence: 0.5, Reason: "no consensus signal", Price: tick.Mid(), Timestamp: tick.Timestamp}
}

func (s *SimpleConsensus) buyConfidence(rsiValue, envelopePosition float64) float64 {
	rsiStrength := clampMin0((s.cfg.RSIOversold - rsiValue) / 30.0)
	envStrength := clampMin0((s.cfg.EnvelopeLower - envelopePosition) / 0.3)
	combined := (rsiStrength + envStrength) / 2.0
	return clamp(0.5+combined*0.5, 0.5, 1.0)
}

func (s *SimpleConsensus) sellConfidence(rsiValue, envelopePosition float64) float64 {
	rsiStrength := clampMin0((rsiValue - s.cfg.RSIOverbought) / 30.0)
	envStrength := clampMin0((envelopePosition - s.cfg.EnvelopeUpper) / 0.3)
	combined := (rsiStrength + envStrength) / 2.0
	return clamp(0.5+combined*0.5, 0.5, 1.0)
}

func clampMin0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Execute applies the reference position policy, exactly reproducing the
// original's check order: pending-order duplicate suppression first, then
// FLAT/same-direction/reversal handling, then the margin gate (§4.7).
func (s *SimpleConsensus) Execute(d market.Decision, tick market.Tick) (*brokersim.Order, error) {
	symbol := tick.Symbol
	openPositions := s.api.OpenPositions(symbol)
	pendingOrders := s.api.PendingOrders(symbol)

	var newDirection brokersim.Direction
	switch d.Action {
	case market.ActionBuy:
		newDirection = brokersim.Buy
	case market.ActionSell:
		newDirection = brokersim.Sell
	case market.ActionFlat:
		if len(openPositions) > 0 {
			return s.api.ClosePosition(openPositions[0], "flat signal close")
		}
		return nil, nil
	default:
		return nil, nil
	}

	for _, p := range pendingOrders {
		if p.Direction == newDirection {
			s.stats.NoOpDuplicates++
			return nil, nil
		}
	}

	if len(openPositions) > 0 {
		existing := openPositions[0]
		if existing.Direction == newDirection {
			return nil, nil
		}
		if _, err := s.api.ClosePosition(existing, "reversal close"); err != nil {
			return nil, err
		}
		s.stats.Reversals++
	}

	if s.api.FreeMargin().LessThan(s.cfg.MinFreeMargin) {
		return nil, nil
	}

	order, err := s.api.SendOrder(symbol, brokersim.Market, newDirection, s.cfg.LotSize, decimal.Zero, "simple consensus entry")
	if err != nil {
		return nil, err
	}
	s.stats.OrdersSubmitted++
	return order, nil
}
