package ledger

import (
	"fmt"

	"paperledger/src/model"

	"github.com/shopspring/decimal"
)

// Settlement is the outcome of closing amount units at closePrice.
type Settlement struct {
	Commission decimal.Decimal
	Profit     decimal.Decimal // rounded to cents
	Credit     decimal.Decimal // cash returned to buying power, rounded to cents
}

// Settle prices a close. The commission is charged on the closing notional;
// the credit is the whole closing notional minus commission because the full
// cost was debited at open.
func Settle(side model.Side, amount, openPrice, closePrice, commissionRate decimal.Decimal) Settlement {
	notional := closePrice.Mul(amount)
	commission := notional.Mul(commissionRate)
	profit := closePrice.Sub(openPrice).
		Mul(amount).
		Mul(side.Multiplier()).
		Sub(commission)

	return Settlement{
		Commission: commission,
		Profit:     profit.Round(2),
		Credit:     notional.Sub(commission).Round(2),
	}
}

// ValidateAmount checks a position size: positive, with no more fractional
// digits than the stores keep.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", model.ErrInvalidInput)
	}
	if !amount.Equal(amount.Truncate(model.Scale)) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", model.ErrInvalidInput, amount, model.Scale)
	}
	return nil
}
