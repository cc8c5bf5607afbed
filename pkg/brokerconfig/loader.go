// Package brokerconfig loads broker specifications from the JSON files
// under configs/brokers/<collector>/*.json (§6), using viper the same way
// this module's other configuration loaders do: SetConfigFile,
// AutomaticEnv for overrides, Unmarshal into a typed struct, then an
// explicit Validate pass.
package brokerconfig

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/finiex/testingide/pkg/brokersim"
)

// rawSpec mirrors the JSON shape of a broker config file before it is
// converted into a brokersim.BrokerSpec.
type rawSpec struct {
	Name                   string   `mapstructure:"name"`
	Leverage               float64  `mapstructure:"leverage"`
	AccountCurrency        string   `mapstructure:"account_currency"`
	ContractSize           float64  `mapstructure:"contract_size"`
	PipValue               float64  `mapstructure:"pip_value"`
	CommissionPerLot       float64  `mapstructure:"commission_per_lot"`
	MinLots                float64  `mapstructure:"min_lots"`
	MaxLots                float64  `mapstructure:"max_lots"`
	LotStep                float64  `mapstructure:"lot_step"`
	Digits                 int32    `mapstructure:"digits"`
	TickSize               float64  `mapstructure:"tick_size"`
	SpreadPoints           float64  `mapstructure:"spread_points"`
	SupportedOrderTypes    []string `mapstructure:"supported_order_types"`
	LatencyTicks           []int    `mapstructure:"latency_distribution"`
	MaxPendingAgeTicks     int      `mapstructure:"max_pending_age_ticks"`
	MaxPendingPerDirection int      `mapstructure:"max_pending_per_direction"`
}

// Load reads one broker config JSON file and validates it into a
// brokersim.BrokerSpec.
func Load(path string) (*brokersim.BrokerSpec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FINIEX_BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("brokerconfig: reading %s: %w", path, err)
	}

	var raw rawSpec
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("brokerconfig: unmarshaling %s: %w", path, err)
	}

	spec := &brokersim.BrokerSpec{
		Name:                   raw.Name,
		Leverage:               decimal.NewFromFloat(raw.Leverage),
		AccountCurrency:        raw.AccountCurrency,
		ContractSize:           decimal.NewFromFloat(raw.ContractSize),
		PipValue:               decimal.NewFromFloat(raw.PipValue),
		CommissionPerLot:       decimal.NewFromFloat(raw.CommissionPerLot),
		MinLots:                decimal.NewFromFloat(raw.MinLots),
		MaxLots:                decimal.NewFromFloat(raw.MaxLots),
		LotStep:                decimal.NewFromFloat(raw.LotStep),
		PriceDigits:            raw.Digits,
		TickSize:               decimal.NewFromFloat(raw.TickSize),
		SpreadPoints:           decimal.NewFromFloat(raw.SpreadPoints),
		LatencyTicksDistribution: raw.LatencyTicks,
		MaxPendingAgeTicks:     raw.MaxPendingAgeTicks,
		MaxPendingPerDirection: raw.MaxPendingPerDirection,
	}
	for _, t := range raw.SupportedOrderTypes {
		spec.SupportedOrderTypes = append(spec.SupportedOrderTypes, brokersim.OrderType(t))
	}
	if spec.MaxPendingPerDirection == 0 {
		spec.MaxPendingPerDirection = 1 // broker-side duplicate-pending guard, see DESIGN.md open-question decision
	}

	if err := validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

func validate(spec *brokersim.BrokerSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("brokerconfig: name is required")
	}
	if spec.Leverage.Sign() <= 0 {
		return fmt.Errorf("brokerconfig: leverage must be > 0")
	}
	if spec.AccountCurrency == "" {
		return fmt.Errorf("brokerconfig: account_currency is required")
	}
	if spec.ContractSize.Sign() <= 0 {
		return fmt.Errorf("brokerconfig: contract_size must be > 0")
	}
	if len(spec.SupportedOrderTypes) == 0 {
		return fmt.Errorf("brokerconfig: supported_order_types must not be empty")
	}
	return nil
}
