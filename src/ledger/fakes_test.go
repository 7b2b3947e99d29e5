package ledger

import (
	"context"
	"fmt"
	"sync"

	"paperledger/src/model"

	"github.com/shopspring/decimal"
)

// memAccounts mimics the conditional semantics of the account repository.
type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]model.Account
	creates  int
	adjusts  int
	adjustFn func(delta model.BalanceDelta) error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]model.Account)}
}

func (m *memAccounts) Get(_ context.Context, userID string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &a, nil
}

func (m *memAccounts) Create(_ context.Context, account *model.Account) (*model.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.accounts[account.UserID]; ok {
		return &existing, false, nil
	}
	m.creates++
	m.accounts[account.UserID] = *account
	created := *account
	return &created, true, nil
}

func (m *memAccounts) AdjustBalance(_ context.Context, userID string, delta model.BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustFn != nil {
		if err := m.adjustFn(delta); err != nil {
			return err
		}
	}
	a, ok := m.accounts[userID]
	if !ok {
		return model.ErrNotFound
	}
	m.adjusts++
	a.Apply(delta)
	m.accounts[userID] = a
	return nil
}

func (m *memAccounts) DebitIfSufficient(_ context.Context, userID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok || a.BuyingPower.LessThan(amount) {
		return fmt.Errorf("%w: debit %s", model.ErrInsufficientFunds, amount)
	}
	a.BuyingPower = model.NewDecimal(a.BuyingPower.Sub(amount))
	m.accounts[userID] = a
	return nil
}

func (m *memAccounts) balance(userID string) model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[userID]
}

type positionKey struct{ id, owner string }

// memPositions serializes CloseIfOpen on a mutex, standing in for the
// store-side conditional update.
type memPositions struct {
	mu        sync.Mutex
	positions map[positionKey]model.Position
	createErr error
}

func newMemPositions() *memPositions {
	return &memPositions{positions: make(map[positionKey]model.Position)}
}

func (m *memPositions) Get(_ context.Context, id, owner string) (*model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionKey{id, owner}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (m *memPositions) Create(_ context.Context, position *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.positions[positionKey{position.ID, position.Owner}] = *position
	return nil
}

func (m *memPositions) CloseIfOpen(_ context.Context, id, owner string, closing model.PositionClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionKey{id, owner}]
	if !ok || p.OpenMarker == nil {
		return fmt.Errorf("%w: %s", model.ErrAlreadyClosed, id)
	}
	closedAt := closing.ClosedAt
	p.OpenMarker = nil
	p.ClosedAt = &closedAt
	p.ClosePrice = model.NewNullDecimal(closing.ClosePrice)
	p.Profit = model.NewNullDecimal(closing.Profit)
	m.positions[positionKey{id, owner}] = p
	return nil
}

func (m *memPositions) ListOpen(_ context.Context, owner string) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for k, p := range m.positions {
		if k.owner == owner && p.OpenMarker != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// fakeOracle serves fixed prices and counts lookups per symbol.
type fakeOracle struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	calls  map[string]int
}

func newFakeOracle(prices map[string]string) *fakeOracle {
	o := &fakeOracle{prices: make(map[string]decimal.Decimal), calls: make(map[string]int)}
	for symbol, price := range prices {
		o.prices[symbol] = decimal.RequireFromString(price)
	}
	return o
}

func (o *fakeOracle) set(symbol, price string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[symbol] = decimal.RequireFromString(price)
}

func (o *fakeOracle) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[symbol]++
	price, ok := o.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", model.ErrInvalidSymbol, symbol)
	}
	return price, nil
}

func (o *fakeOracle) callCount(symbol string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[symbol]
}
