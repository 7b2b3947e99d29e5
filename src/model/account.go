package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the simulated cash balance and trading record of one user.
// Accounts are created lazily and never deleted.
type Account struct {
	UserID      string          `gorm:"primaryKey;size:120;column:user_id" json:"user_id"`
	BuyingPower Decimal   `gorm:"not null;column:buying_power" json:"buying_power"`
	Wins        int64     `gorm:"not null;column:wins" json:"wins"`
	Losses      int64     `gorm:"not null;column:losses" json:"losses"`
	RealisedPnl Decimal   `gorm:"not null;column:realised_pnl" json:"realised_pnl"`
	Version     int64     `gorm:"not null;column:version" json:"-"` // bumped by every balance write
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName pins the accounts table name.
func (Account) TableName() string {
	return "accounts"
}

// NewAccount returns a fresh account with the given starting balance and zeroed counters.
func NewAccount(userID string, startingBalance decimal.Decimal) *Account {
	return &Account{
		UserID:      userID,
		BuyingPower: NewDecimal(startingBalance),
		RealisedPnl: NewDecimal(decimal.Zero),
	}
}

// Apply adds delta to the account in memory.
func (a *Account) Apply(delta BalanceDelta) {
	a.BuyingPower = NewDecimal(a.BuyingPower.Add(delta.BuyingPower))
	a.Wins += delta.Wins
	a.Losses += delta.Losses
	a.RealisedPnl = NewDecimal(a.RealisedPnl.Add(delta.RealisedPnl))
}

// BalanceDelta is a relative change applied to an account in one statement.
type BalanceDelta struct {
	BuyingPower decimal.Decimal
	Wins        int64
	Losses      int64
	RealisedPnl decimal.Decimal
}
