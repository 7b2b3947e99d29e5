package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ParseSide accepts "long"/"short" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	default:
		return "", fmt.Errorf("%w: side must be long or short, got %q", ErrInvalidInput, s)
	}
}

// Multiplier is +1 for LONG and -1 for SHORT.
func (s Side) Multiplier() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Position is a simulated trade owned by one user, keyed by (ID, Owner).
//
// OpenMarker is set while the position is open and removed by the close
// transition; it is the only authoritative open/closed signal. The close
// fields are written exactly once, together with the marker removal.
type Position struct {
	ID         string    `gorm:"primaryKey;size:36;column:id" json:"id"`
	Owner      string    `gorm:"primaryKey;size:120;column:owner" json:"owner"`
	Symbol     string    `gorm:"size:40;not null;column:symbol" json:"symbol"`
	Side       Side      `gorm:"size:10;not null;column:side" json:"side"`
	Amount     Decimal   `gorm:"not null;column:amount" json:"amount"`
	OpenPrice  Decimal   `gorm:"not null;column:open_price" json:"open_price"`
	OpenedAt   time.Time `gorm:"not null;column:opened_at" json:"opened_at"`
	OpenMarker *int64    `gorm:"column:open_marker" json:"open_marker,omitempty"`

	ClosedAt   *time.Time  `gorm:"column:closed_at" json:"closed_at,omitempty"`
	ClosePrice NullDecimal `gorm:"column:close_price" json:"close_price"`
	Profit     NullDecimal `gorm:"column:profit" json:"profit"`
}

// TableName pins the positions table name.
func (Position) TableName() string {
	return "positions"
}

// IsOpen reports whether the open marker is still present.
func (p *Position) IsOpen() bool {
	return p.OpenMarker != nil
}

// PositionClose carries the values written by the open -> closed transition.
type PositionClose struct {
	ClosedAt   time.Time
	ClosePrice decimal.Decimal
	Profit     decimal.Decimal
}
