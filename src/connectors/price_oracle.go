package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"paperledger/src/model"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// PriceOracle resolves the last traded price of a symbol. Implementations
// never cache and never retry.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NewPriceOracle builds the oracle selected by config.PriceSource.
func NewPriceOracle(config Config) (PriceOracle, error) {
	switch config.PriceSource {
	case PriceSourceFutures, "":
		return NewTickerClient(config), nil
	case PriceSourceSpot:
		return NewSpotClient(&http.Client{Timeout: config.PriceOracleTimeout}), nil
	default:
		return nil, fmt.Errorf("unsupported PRICE_SOURCE %q", config.PriceSource)
	}
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// TickerClient queries a `GET <path>?symbol=SYMBOL` quote endpoint answering
// `{"price": "<decimal>"}`, Binance USDT-M futures by default.
type TickerClient struct {
	path string
	http *resty.Client
}

func NewTickerClient(config Config) *TickerClient {
	httpClient := resty.New().
		SetBaseURL(config.PriceOracleURL).
		SetTimeout(config.PriceOracleTimeout).
		SetRetryCount(0)

	return &TickerClient{
		path: config.PriceOraclePath,
		http: httpClient,
	}
}

// GetPrice performs one round trip. Any non-200 status or an unparseable or
// non-positive price is model.ErrInvalidSymbol.
func (c *TickerClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		Get(c.path)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Error("price oracle request failed")
		return decimal.Zero, fmt.Errorf("price oracle request for %s: %w", symbol, err)
	}

	if resp.StatusCode() != http.StatusOK {
		logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"status": resp.StatusCode(),
		}).Info("price oracle rejected symbol")
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidSymbol, symbol)
	}

	var quote tickerPrice
	if err := json.Unmarshal(resp.Body(), &quote); err != nil {
		logger.WithField("symbol", symbol).WithError(err).Warn("unparseable price oracle payload")
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidSymbol, symbol)
	}
	if !quote.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s has no price", model.ErrInvalidSymbol, symbol)
	}

	return quote.Price, nil
}
