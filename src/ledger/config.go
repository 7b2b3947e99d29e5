package ledger

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	StartingBalance decimal.Decimal `envconfig:"LEDGER_STARTING_BALANCE" default:"100000"`
	CommissionRate  decimal.Decimal `envconfig:"LEDGER_COMMISSION_RATE" default:"0.001"` // charged on the closing notional only
}

// DefaultConfig mirrors the envconfig defaults.
func DefaultConfig() Config {
	return Config{
		StartingBalance: decimal.NewFromInt(100000),
		CommissionRate:  decimal.RequireFromString("0.001"),
	}
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
