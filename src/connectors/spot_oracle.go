package connectors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"paperledger/src/model"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// quoteAssets are tried in order when splitting a concatenated symbol.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

type tickerSource interface {
	GetTicker(currency goex.CurrencyPair) (*goex.Ticker, error)
}

// SpotClient reads last trade prices from the Binance spot ticker through goex.
type SpotClient struct {
	exchange tickerSource
}

func NewSpotClient(httpClient *http.Client) *SpotClient {
	apiConfig := &goex.APIConfig{
		HttpClient: httpClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &SpotClient{exchange: binance.NewWithConfig(apiConfig)}
}

// SplitSymbol splits a symbol such as BTCUSDT into base and quote currencies.
func SplitSymbol(symbol string) (goex.CurrencyPair, bool) {
	for _, quote := range quoteAssets {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote}), true
		}
	}
	return goex.CurrencyPair{}, false
}

// GetPrice ignores ctx beyond an early cancellation check; goex has no
// context support and relies on the http.Client timeout.
func (c *SpotClient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	pair, ok := SplitSymbol(symbol)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s has no known quote asset", model.ErrInvalidSymbol, symbol)
	}

	ticker, err := c.exchange.GetTicker(pair)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Info("spot ticker lookup failed")
		if isTransportError(err) {
			return decimal.Zero, fmt.Errorf("spot ticker request for %s: %w", symbol, err)
		}
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidSymbol, symbol)
	}
	if ticker == nil || ticker.Last <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s has no price", model.ErrInvalidSymbol, symbol)
	}

	return decimal.NewFromFloat(ticker.Last), nil
}

// isTransportError reports failures that never reached the exchange, which
// say nothing about the symbol.
func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}
