package brokerconfig

import (
	"os"
	"testing"
)

func writeBrokerConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/broker.json"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const validBrokerJSON = `{
	"name": "standard",
	"leverage": 100,
	"account_currency": "USD",
	"contract_size": 100000,
	"pip_value": 10,
	"commission_per_lot": 3.5,
	"min_lots": 0.01,
	"max_lots": 50,
	"lot_step": 0.01,
	"digits": 5,
	"tick_size": 0.00001,
	"spread_points": 1.2,
	"supported_order_types": ["MARKET", "LIMIT"]
}`

func TestLoadValidBrokerConfig(t *testing.T) {
	path := writeBrokerConfig(t, validBrokerJSON)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "standard" {
		t.Errorf("expected name 'standard', got %q", spec.Name)
	}
	if len(spec.SupportedOrderTypes) != 2 {
		t.Errorf("expected 2 supported order types, got %d", len(spec.SupportedOrderTypes))
	}
}

func TestLoadDefaultsMaxPendingPerDirectionToOne(t *testing.T) {
	path := writeBrokerConfig(t, validBrokerJSON)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.MaxPendingPerDirection != 1 {
		t.Errorf("expected MaxPendingPerDirection to default to 1, got %d", spec.MaxPendingPerDirection)
	}
}

func TestLoadHonorsExplicitMaxPendingPerDirection(t *testing.T) {
	path := writeBrokerConfig(t, `{
		"name": "standard", "leverage": 100, "account_currency": "USD",
		"contract_size": 100000, "supported_order_types": ["MARKET"],
		"max_pending_per_direction": 3
	}`)
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.MaxPendingPerDirection != 3 {
		t.Errorf("expected explicit MaxPendingPerDirection=3 to be honored, got %d", spec.MaxPendingPerDirection)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/broker.json")
	if err == nil {
		t.Error("expected an error for a missing broker config file")
	}
}

func TestLoadRejectsMissingName(t *testing.T) {
	path := writeBrokerConfig(t, `{"leverage": 100, "account_currency": "USD", "contract_size": 100000, "supported_order_types": ["MARKET"]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error when name is missing")
	}
}

func TestLoadRejectsZeroLeverage(t *testing.T) {
	path := writeBrokerConfig(t, `{"name": "x", "leverage": 0, "account_currency": "USD", "contract_size": 100000, "supported_order_types": ["MARKET"]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for zero leverage")
	}
}

func TestLoadRejectsMissingCurrency(t *testing.T) {
	path := writeBrokerConfig(t, `{"name": "x", "leverage": 100, "contract_size": 100000, "supported_order_types": ["MARKET"]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error when account_currency is missing")
	}
}

func TestLoadRejectsZeroContractSize(t *testing.T) {
	path := writeBrokerConfig(t, `{"name": "x", "leverage": 100, "account_currency": "USD", "contract_size": 0, "supported_order_types": ["MARKET"]}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error for zero contract_size")
	}
}

func TestLoadRejectsEmptyOrderTypes(t *testing.T) {
	path := writeBrokerConfig(t, `{"name": "x", "leverage": 100, "account_currency": "USD", "contract_size": 100000, "supported_order_types": []}`)
	if _, err := Load(path); err == nil {
		t.Error("expected an error when supported_order_types is empty")
	}
}
