package scenario

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

func writeScenarioSet(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/scenarios.json"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadScenarioSetAppliesGlobalDefaults(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"global": {
			"strategy_config": {"lot_size": 0.5, "min_confidence": 0.6}
		},
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "start_date": "2024-01-01", "end_date": "2024-02-01", "broker_type": "standard"}
		]
	}`)

	set, err := LoadScenarioSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Scenarios) != 1 {
		t.Fatalf("expected 1 scenario, got %d", len(set.Scenarios))
	}
	s := set.Scenarios[0]
	if !s.StrategyConfig.SimpleConsensus.LotSize.Equal(decimal.NewFromFloat(0.5)) {
		t.Errorf("expected global lot_size=0.5 to apply, got %s", s.StrategyConfig.SimpleConsensus.LotSize)
	}
}

func TestLoadScenarioSetOverrideWinsOverGlobal(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"global": {
			"strategy_config": {"lot_size": 0.5}
		},
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "end_date": "2024-02-01", "broker_type": "standard",
			 "strategy_config": {"lot_size": 1.2}}
		]
	}`)

	set, err := LoadScenarioSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := set.Scenarios[0].StrategyConfig.SimpleConsensus.LotSize
	if !got.Equal(decimal.NewFromFloat(1.2)) {
		t.Errorf("expected scenario-level override 1.2 to win over global 0.5, got %s", got)
	}
}

func TestLoadScenarioSetRequiresEndDateOrMaxTicks(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "broker_type": "standard"}
		]
	}`)
	if _, err := LoadScenarioSet(path); err == nil {
		t.Error("expected an error when neither end_date nor max_ticks is set")
	}
}

func TestLoadScenarioSetAcceptsMaxTicksInPlaceOfEndDate(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "broker_type": "standard", "max_ticks": 1000}
		]
	}`)
	set, err := LoadScenarioSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !set.Scenarios[0].UsesMaxTicks() {
		t.Error("expected the scenario to be recognized as tick-count-bounded")
	}
}

func TestLoadScenarioSetDefaultsAccountCurrencyToAuto(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "broker_type": "standard", "max_ticks": 100}
		]
	}`)
	set, err := LoadScenarioSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Scenarios[0].AccountCurrency != AccountCurrencyAuto {
		t.Errorf("expected default account currency %q, got %q", AccountCurrencyAuto, set.Scenarios[0].AccountCurrency)
	}
}

func TestLoadScenarioSetBuildsStressTestConfig(t *testing.T) {
	path := writeScenarioSet(t, `{
		"scenario_set_name": "set1",
		"scenarios": [
			{"name": "s1", "symbol": "EURUSD", "broker_type": "standard", "max_ticks": 100,
			 "stress_test_config": {"enabled": true, "reject_probability": 0.1, "seed": 42}}
		]
	}`)
	set, err := LoadScenarioSet(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := set.Scenarios[0].StressTest.RejectOpenOrder
	if !st.Enabled || st.Probability != 0.1 || st.Seed != 42 {
		t.Errorf("unexpected stress test config: %+v", st)
	}
}

func TestLoadScenarioSetMissingFile(t *testing.T) {
	if _, err := LoadScenarioSet("/nonexistent/scenarios.json"); err == nil {
		t.Error("expected an error for a missing scenario set file")
	}
}

func TestMergeStrategyConfigParallelWorkersIsOred(t *testing.T) {
	global := rawStrategyConfig{ParallelWorkers: true}
	override := rawStrategyConfig{ParallelWorkers: false}
	merged := mergeStrategyConfig(global, override)
	if !merged.ParallelWorkers {
		t.Error("expected ParallelWorkers to stay true when global sets it even if the override doesn't")
	}
}
