package scenario

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/decision"
	"github.com/finiex/testingide/pkg/workers"
)

// rawStrategyConfig mirrors the JSON strategy_config object (§6).
type rawStrategyConfig struct {
	Workers []struct {
		TypeID string         `mapstructure:"type_id"`
		Name   string         `mapstructure:"name"`
		Config workers.Config `mapstructure:"config"`
	} `mapstructure:"workers"`
	DecisionLogicTypeID string  `mapstructure:"decision_logic_type_id"`
	RSIOversold         float64 `mapstructure:"rsi_oversold"`
	RSIOverbought       float64 `mapstructure:"rsi_overbought"`
	EnvelopeLower       float64 `mapstructure:"envelope_lower"`
	EnvelopeUpper       float64 `mapstructure:"envelope_upper"`
	MinConfidence       float64 `mapstructure:"min_confidence"`
	MinFreeMargin       float64 `mapstructure:"min_free_margin"`
	LotSize             float64 `mapstructure:"lot_size"`
	RSIWorkerName       string  `mapstructure:"rsi_worker_name"`
	EnvelopeWorkerName  string  `mapstructure:"envelope_worker_name"`
	ParallelWorkers     bool    `mapstructure:"parallel_workers"`
	ParallelThresholdMs float64 `mapstructure:"parallel_threshold_ms"`
	CoordinationWindow  int     `mapstructure:"coordination_window"`
}

type rawStressTest struct {
	Enabled            bool    `mapstructure:"enabled"`
	RejectProbability  float64 `mapstructure:"reject_probability"`
	Seed               uint64  `mapstructure:"seed"`
}

type rawScenario struct {
	Name            string            `mapstructure:"name"`
	Symbol          string            `mapstructure:"symbol"`
	StartDate       string            `mapstructure:"start_date"`
	EndDate         string            `mapstructure:"end_date"`
	MaxTicks        int               `mapstructure:"max_ticks"`
	DataMode        string            `mapstructure:"data_mode"`
	BrokerType      string            `mapstructure:"broker_type"`
	InitialBalance  float64           `mapstructure:"initial_balance"`
	AccountCurrency string            `mapstructure:"account_currency"`
	StrategyConfig  rawStrategyConfig `mapstructure:"strategy_config"`
	StressTest      rawStressTest     `mapstructure:"stress_test_config"`
	Seeds           map[string]uint64 `mapstructure:"seeds"`
}

type rawScenarioSet struct {
	Version          int    `mapstructure:"version"`
	ScenarioSetName  string `mapstructure:"scenario_set_name"`
	Created          string `mapstructure:"created"`
	Global           struct {
		StrategyConfig rawStrategyConfig `mapstructure:"strategy_config"`
	} `mapstructure:"global"`
	Scenarios []rawScenario `mapstructure:"scenarios"`
}

// ScenarioSet is the parsed, typed form of a configs/scenario_sets/*.json
// file (§6).
type ScenarioSet struct {
	Name      string
	Scenarios []Scenario
}

// LoadScenarioSet parses a scenario-set JSON file, applying each
// scenario's strategy_config as an override layer on top of global's
// (scenario fields win when both set the same value; §6's "overrides").
func LoadScenarioSet(path string) (ScenarioSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return ScenarioSet{}, fmt.Errorf("scenario: reading %s: %w", path, err)
	}

	var raw rawScenarioSet
	if err := v.Unmarshal(&raw); err != nil {
		return ScenarioSet{}, fmt.Errorf("scenario: unmarshaling %s: %w", path, err)
	}

	out := ScenarioSet{Name: raw.ScenarioSetName}
	for _, rs := range raw.Scenarios {
		s, err := buildFullScenario(raw.Global.StrategyConfig, rs)
		if err != nil {
			return ScenarioSet{}, fmt.Errorf("scenario: building %q: %w", rs.Name, err)
		}
		out.Scenarios = append(out.Scenarios, s)
	}
	return out, nil
}

// mergeStrategyConfig overlays override's non-zero fields onto global.
func mergeStrategyConfig(global, override rawStrategyConfig) rawStrategyConfig {
	merged := global
	if len(override.Workers) > 0 {
		merged.Workers = override.Workers
	}
	if override.DecisionLogicTypeID != "" {
		merged.DecisionLogicTypeID = override.DecisionLogicTypeID
	}
	if override.RSIOversold != 0 {
		merged.RSIOversold = override.RSIOversold
	}
	if override.RSIOverbought != 0 {
		merged.RSIOverbought = override.RSIOverbought
	}
	if override.EnvelopeLower != 0 {
		merged.EnvelopeLower = override.EnvelopeLower
	}
	if override.EnvelopeUpper != 0 {
		merged.EnvelopeUpper = override.EnvelopeUpper
	}
	if override.MinConfidence != 0 {
		merged.MinConfidence = override.MinConfidence
	}
	if override.MinFreeMargin != 0 {
		merged.MinFreeMargin = override.MinFreeMargin
	}
	if override.LotSize != 0 {
		merged.LotSize = override.LotSize
	}
	if override.RSIWorkerName != "" {
		merged.RSIWorkerName = override.RSIWorkerName
	}
	if override.EnvelopeWorkerName != "" {
		merged.EnvelopeWorkerName = override.EnvelopeWorkerName
	}
	if override.ParallelThresholdMs != 0 {
		merged.ParallelThresholdMs = override.ParallelThresholdMs
	}
	if override.CoordinationWindow != 0 {
		merged.CoordinationWindow = override.CoordinationWindow
	}
	merged.ParallelWorkers = override.ParallelWorkers || global.ParallelWorkers
	return merged
}

func toStrategyConfig(raw rawStrategyConfig) StrategyConfig {
	defaults := decision.DefaultSimpleConsensusConfig()
	cfg := defaults
	if raw.RSIOversold != 0 {
		cfg.RSIOversold = raw.RSIOversold
	}
	if raw.RSIOverbought != 0 {
		cfg.RSIOverbought = raw.RSIOverbought
	}
	if raw.EnvelopeLower != 0 {
		cfg.EnvelopeLower = raw.EnvelopeLower
	}
	if raw.EnvelopeUpper != 0 {
		cfg.EnvelopeUpper = raw.EnvelopeUpper
	}
	if raw.MinConfidence != 0 {
		cfg.MinConfidence = raw.MinConfidence
	}
	if raw.MinFreeMargin != 0 {
		cfg.MinFreeMargin = decimal.NewFromFloat(raw.MinFreeMargin)
	}
	if raw.LotSize != 0 {
		cfg.LotSize = decimal.NewFromFloat(raw.LotSize)
	}
	if raw.RSIWorkerName != "" {
		cfg.RSIWorkerName = raw.RSIWorkerName
	}
	if raw.EnvelopeWorkerName != "" {
		cfg.EnvelopeWorkerName = raw.EnvelopeWorkerName
	}

	wspecs := make([]WorkerSpec, 0, len(raw.Workers))
	for _, w := range raw.Workers {
		wspecs = append(wspecs, WorkerSpec{TypeID: w.TypeID, Name: w.Name, Config: w.Config})
	}

	return StrategyConfig{
		Workers:             wspecs,
		DecisionLogicTypeID: raw.DecisionLogicTypeID,
		SimpleConsensus:     cfg,
		ParallelWorkers:     raw.ParallelWorkers,
		ParallelThresholdMs: raw.ParallelThresholdMs,
		CoordinationWindow:  raw.CoordinationWindow,
	}
}

// buildFullScenario converts one raw scenario (with its strategy config
// already merged against the scenario-set's global block) into a
// Scenario.
func buildFullScenario(global rawStrategyConfig, rs rawScenario) (Scenario, error) {
	merged := mergeStrategyConfig(global, rs.StrategyConfig)

	start, err := time.Parse("2006-01-02", rs.StartDate)
	if err != nil && rs.StartDate != "" {
		return Scenario{}, fmt.Errorf("parsing start_date %q: %w", rs.StartDate, err)
	}
	var end time.Time
	if rs.EndDate != "" {
		end, err = time.Parse("2006-01-02", rs.EndDate)
		if err != nil {
			return Scenario{}, fmt.Errorf("parsing end_date %q: %w", rs.EndDate, err)
		}
	}
	if (rs.EndDate == "") == (rs.MaxTicks == 0) {
		return Scenario{}, fmt.Errorf("scenario %q: exactly one of end_date or max_ticks is required", rs.Name)
	}

	currency := rs.AccountCurrency
	if currency == "" {
		currency = AccountCurrencyAuto
	}

	return Scenario{
		Name:            rs.Name,
		Symbol:          rs.Symbol,
		StartTime:       start.UTC(),
		EndTime:         end.UTC(),
		MaxTicks:        rs.MaxTicks,
		StrategyConfig:  toStrategyConfig(merged),
		BrokerType:      rs.BrokerType,
		InitialBalance:  decimal.NewFromFloat(rs.InitialBalance),
		AccountCurrency: currency,
		StressTest: brokersim.StressTestConfig{
			RejectOpenOrder: brokersim.RejectOpenOrderConfig{
				Enabled:     rs.StressTest.Enabled,
				Probability: rs.StressTest.RejectProbability,
				Seed:        rs.StressTest.Seed,
			},
		},
		Seeds: rs.Seeds,
	}, nil
}
