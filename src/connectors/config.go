package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	PriceSourceFutures = "binance_futures"
	PriceSourceSpot    = "binance_spot"
)

type Config struct {
	PriceSource        string        `envconfig:"PRICE_SOURCE" default:"binance_futures"`
	PriceOracleURL     string        `envconfig:"PRICE_ORACLE_URL" default:"https://fapi.binance.com"`
	PriceOraclePath    string        `envconfig:"PRICE_ORACLE_PATH" default:"/fapi/v1/ticker/price"`
	PriceOracleTimeout time.Duration `envconfig:"PRICE_ORACLE_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
