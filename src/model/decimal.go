package model

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Scale is the number of fractional digits the stores keep for money and
// quantities.
const Scale = 8

// Decimal is a fixed-point column. Postgres stores it as numeric; sqlite has
// no exact numeric type, so it is kept there as its decimal string.
type Decimal struct {
	decimal.Decimal
}

func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// GormDBDataType picks the column type per dialect.
func (Decimal) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return decimalColumnType(db)
}

// NullDecimal is the nullable form of Decimal.
type NullDecimal struct {
	decimal.NullDecimal
}

func NewNullDecimal(d decimal.Decimal) NullDecimal {
	return NullDecimal{NullDecimal: decimal.NewNullDecimal(d)}
}

func (NullDecimal) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return decimalColumnType(db)
}

func decimalColumnType(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "text"
	}
	return fmt.Sprintf("numeric(30,%d)", Scale)
}
