package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"paperledger/src/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type AccountStore interface {
	Get(ctx context.Context, userID string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) (*model.Account, bool, error)
	AdjustBalance(ctx context.Context, userID string, delta model.BalanceDelta) error
	DebitIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) error
}

type PositionStore interface {
	Get(ctx context.Context, id, owner string) (*model.Position, error)
	Create(ctx context.Context, position *model.Position) error
	CloseIfOpen(ctx context.Context, id, owner string, closing model.PositionClose) error
	ListOpen(ctx context.Context, owner string) ([]model.Position, error)
}

type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OpenResult is returned by OpenPosition.
type OpenResult struct {
	PositionID  string          `json:"position_id"`
	Price       decimal.Decimal `json:"price"`
	BuyingPower decimal.Decimal `json:"buying_power"`
}

// CloseResult is returned by ClosePosition.
type CloseResult struct {
	Profit decimal.Decimal `json:"profit"`
	Price  decimal.Decimal `json:"price"`
	Symbol string          `json:"symbol"`
	Credit decimal.Decimal `json:"credit"`
}

// OpenPositionRow is one line of the open-positions listing.
type OpenPositionRow struct {
	ID           string          `json:"id"`
	Side         model.Side      `json:"side"`
	Symbol       string          `json:"symbol"`
	Amount       decimal.Decimal `json:"amount"`
	OpenPrice    decimal.Decimal `json:"open_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Summary is the account overview. Created is true when this call created
// the account.
type Summary struct {
	UserID      string          `json:"user_id"`
	Wins        int64           `json:"wins"`
	Losses      int64           `json:"losses"`
	RealisedPnl decimal.Decimal `json:"realised_pnl"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	Created     bool            `json:"created"`
}

// Engine orchestrates the account and position stores and the price oracle.
// It holds no per-request state and is safe for concurrent use; the
// conditional close in the position store is its only mutual exclusion.
type Engine struct {
	accounts  AccountStore
	positions PositionStore
	prices    PriceOracle
	config    Config

	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the position id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(accounts AccountStore, positions PositionStore, prices PriceOracle, config Config, opts ...Option) *Engine {
	e := &Engine{
		accounts:  accounts,
		positions: positions,
		prices:    prices,
		config:    config,
		now:       time.Now,
		newID:     newPositionID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// newPositionID returns a short random token; it only has to be unique per owner.
func newPositionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// OpenPosition debits price*amount from the user's buying power and records
// a new open position at the live price.
func (e *Engine) OpenPosition(ctx context.Context, user string, side model.Side, symbol string, amount decimal.Decimal) (*OpenResult, error) {
	log := logger.WithFields(map[string]interface{}{
		"component": "ledger",
		"op":        "OpenPosition",
		"user":      user,
	})

	if err := validateUser(user); err != nil {
		return nil, err
	}
	if side != model.SideLong && side != model.SideShort {
		return nil, fmt.Errorf("%w: side must be LONG or SHORT", model.ErrInvalidInput)
	}
	if err := ValidateAmount(amount); err != nil {
		return nil, err
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	price, err := e.prices.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	// Balances are stored with model.Scale fractional digits.
	cost := price.Mul(amount).Round(model.Scale)

	account, _, err := e.loadOrCreateAccount(ctx, user)
	if err != nil {
		return nil, err
	}
	if account.BuyingPower.LessThan(cost) {
		return nil, fmt.Errorf("%w: cost %s exceeds buying power %s",
			model.ErrInsufficientFunds, cost.StringFixed(2), account.BuyingPower.StringFixed(2))
	}

	if err := e.accounts.DebitIfSufficient(ctx, user, cost); err != nil {
		return nil, err
	}

	openedAt := e.now().UTC()
	marker := openedAt.Unix()
	position := &model.Position{
		ID:         e.newID(),
		Owner:      user,
		Symbol:     symbol,
		Side:       side,
		Amount:     model.NewDecimal(amount),
		OpenPrice:  model.NewDecimal(price),
		OpenedAt:   openedAt,
		OpenMarker: &marker,
	}

	if err := e.positions.Create(ctx, position); err != nil {
		e.refundOrphanedDebit(ctx, log, user, cost, err)
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"symbol":      symbol,
		"side":        side,
		"amount":      amount.String(),
		"price":       price.String(),
	}).Info("Position opened")

	return &OpenResult{
		PositionID:  position.ID,
		Price:       price,
		BuyingPower: account.BuyingPower.Sub(cost),
	}, nil
}

// refundOrphanedDebit credits back a debit whose position could not be
// written. A failed refund leaves the debit orphaned and is logged for
// reconciliation.
func (e *Engine) refundOrphanedDebit(ctx context.Context, log *logger.Entry, user string, cost decimal.Decimal, cause error) {
	err := e.accounts.AdjustBalance(ctx, user, model.BalanceDelta{BuyingPower: cost})
	if err != nil {
		log.WithFields(map[string]interface{}{
			"amount": cost.String(),
			"cause":  cause.Error(),
		}).WithError(err).Error("Orphaned debit: refund after failed position create did not apply")
		return
	}

	log.WithField("amount", cost.String()).WithError(cause).Warn("Position create failed, debit refunded")
}

// ClosePosition settles an open position at the live price. Only the caller
// that wins the conditional close credits the account.
func (e *Engine) ClosePosition(ctx context.Context, user, positionID string) (*CloseResult, error) {
	log := logger.WithFields(map[string]interface{}{
		"component":   "ledger",
		"op":          "ClosePosition",
		"user":        user,
		"position_id": positionID,
	})

	if err := validateUser(user); err != nil {
		return nil, err
	}
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return nil, fmt.Errorf("%w: position id is required", model.ErrInvalidPositionID)
	}

	position, err := e.positions.Get(ctx, positionID, user)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", model.ErrInvalidPositionID, positionID)
		}
		return nil, err
	}
	if !position.IsOpen() {
		return nil, fmt.Errorf("%w: %s", model.ErrAlreadyClosed, positionID)
	}

	price, err := e.prices.GetPrice(ctx, position.Symbol)
	if err != nil {
		return nil, err
	}

	settlement := Settle(position.Side, position.Amount.Decimal, position.OpenPrice.Decimal, price, e.config.CommissionRate)

	err = e.positions.CloseIfOpen(ctx, position.ID, user, model.PositionClose{
		ClosedAt:   e.now().UTC(),
		ClosePrice: price,
		Profit:     settlement.Profit,
	})
	if err != nil {
		return nil, err
	}

	delta := model.BalanceDelta{
		BuyingPower: settlement.Credit,
		RealisedPnl: settlement.Profit,
	}
	if settlement.Profit.IsPositive() {
		delta.Wins = 1
	} else {
		delta.Losses = 1
	}

	if err := e.accounts.AdjustBalance(ctx, user, delta); err != nil {
		log.WithFields(map[string]interface{}{
			"credit": settlement.Credit.String(),
			"profit": settlement.Profit.String(),
		}).WithError(err).Error("Position closed but account credit failed")
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"symbol": position.Symbol,
		"price":  price.String(),
		"profit": settlement.Profit.String(),
		"credit": settlement.Credit.String(),
	}).Info("Position closed")

	return &CloseResult{
		Profit: settlement.Profit,
		Price:  price,
		Symbol: position.Symbol,
		Credit: settlement.Credit,
	}, nil
}

// ListOpenPositions returns the user's open positions with a live price,
// fetched once per distinct symbol. Rows are ordered by open time.
func (e *Engine) ListOpenPositions(ctx context.Context, user string) ([]OpenPositionRow, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}

	positions, err := e.positions.ListOpen(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return []OpenPositionRow{}, nil
	}

	prices, err := e.fetchPrices(ctx, positions)
	if err != nil {
		return nil, err
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})

	rows := make([]OpenPositionRow, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, OpenPositionRow{
			ID:           p.ID,
			Side:         p.Side,
			Symbol:       p.Symbol,
			Amount:       p.Amount.Decimal,
			OpenPrice:    p.OpenPrice.Decimal,
			CurrentPrice: prices[p.Symbol],
		})
	}

	return rows, nil
}

func (e *Engine) fetchPrices(ctx context.Context, positions []model.Position) (map[string]decimal.Decimal, error) {
	symbols := make(map[string]struct{})
	for _, p := range positions {
		symbols[p.Symbol] = struct{}{}
	}

	prices := make(map[string]decimal.Decimal, len(symbols))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)

	for symbol := range symbols {
		symbol := symbol
		eg.Go(func() error {
			price, err := e.prices.GetPrice(egCtx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			prices[symbol] = price
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}

// AccountSummary returns the user's record, creating it with the starting
// balance when it does not exist yet.
func (e *Engine) AccountSummary(ctx context.Context, user string) (*Summary, error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}

	account, created, err := e.loadOrCreateAccount(ctx, user)
	if err != nil {
		return nil, err
	}

	return &Summary{
		UserID:      account.UserID,
		Wins:        account.Wins,
		Losses:      account.Losses,
		RealisedPnl: account.RealisedPnl.Decimal,
		BuyingPower: account.BuyingPower.Decimal,
		Created:     created,
	}, nil
}

// CheckPrice returns the live price of symbol.
func (e *Engine) CheckPrice(ctx context.Context, symbol string) (string, decimal.Decimal, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return "", decimal.Zero, err
	}

	price, err := e.prices.GetPrice(ctx, symbol)
	if err != nil {
		return "", decimal.Zero, err
	}
	return symbol, price, nil
}

// loadOrCreateAccount reads the account and falls back to a conditional
// create, so a concurrent first reference never resets a balance.
func (e *Engine) loadOrCreateAccount(ctx context.Context, user string) (*model.Account, bool, error) {
	account, err := e.accounts.Get(ctx, user)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}

	return e.accounts.Create(ctx, model.NewAccount(user, e.config.StartingBalance))
}

func validateUser(user string) error {
	if strings.TrimSpace(user) == "" {
		return fmt.Errorf("%w: user is required", model.ErrInvalidInput)
	}
	return nil
}

func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("%w: symbol is required", model.ErrInvalidInput)
	}
	return s, nil
}
