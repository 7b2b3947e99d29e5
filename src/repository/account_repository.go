package repository

import (
	"context"
	"errors"
	"fmt"

	"paperledger/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxSwapAttempts = 32

var errVersionConflict = errors.New("account kept changing during update")

// AccountRepository is the Account Store: one balance record per user.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a repository over the given connection.
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	logger.WithField("component", "AccountRepository").
		Debug("Creating new AccountRepository")

	return &AccountRepository{db: db}
}

// Get returns the account of userID or model.ErrNotFound.
func (r *AccountRepository) Get(ctx context.Context, userID string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, storeError("AccountRepository", "Get", err)
	}

	return &account, nil
}

// Create inserts account only if no record exists for its user.
// The returned flag is false when another writer created it first, in which
// case the stored account is returned untouched.
func (r *AccountRepository) Create(ctx context.Context, account *model.Account) (*model.Account, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(account)
	if res.Error != nil {
		return nil, false, storeError("AccountRepository", "Create", res.Error)
	}

	if res.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":    "AccountRepository",
			"op":      "Create",
			"user_id": account.UserID,
		}).Info("Account already exists, keeping stored record")

		existing, err := r.Get(ctx, account.UserID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "AccountRepository",
		"op":           "Create",
		"user_id":      account.UserID,
		"buying_power": account.BuyingPower.String(),
	}).Info("Account created")

	return account, true, nil
}

// AdjustBalance adds delta to the account fields. It is unconditional apart
// from the account having to exist.
func (r *AccountRepository) AdjustBalance(ctx context.Context, userID string, delta model.BalanceDelta) error {
	if r.textDecimals() {
		err := r.swapAccount(ctx, "AdjustBalance", userID, func(account *model.Account) error {
			account.Apply(delta)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		res := r.db.WithContext(ctx).
			Model(&model.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"buying_power": gorm.Expr("buying_power + ?", delta.BuyingPower),
				"wins":         gorm.Expr("wins + ?", delta.Wins),
				"losses":       gorm.Expr("losses + ?", delta.Losses),
				"realised_pnl": gorm.Expr("realised_pnl + ?", delta.RealisedPnl),
				"version":      gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return storeError("AccountRepository", "AdjustBalance", res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "AccountRepository",
		"op":           "AdjustBalance",
		"user_id":      userID,
		"buying_power": delta.BuyingPower.String(),
		"wins":         delta.Wins,
		"losses":       delta.Losses,
		"realised_pnl": delta.RealisedPnl.String(),
	}).Debug("Account balance adjusted")

	return nil
}

// DebitIfSufficient subtracts amount from the buying power only while the
// balance covers it. A failed precondition returns model.ErrInsufficientFunds
// and leaves the account unchanged.
func (r *AccountRepository) DebitIfSufficient(ctx context.Context, userID string, amount decimal.Decimal) error {
	insufficient := fmt.Errorf("%w: cost %s exceeds buying power", model.ErrInsufficientFunds, amount.StringFixed(2))

	if r.textDecimals() {
		err := r.swapAccount(ctx, "DebitIfSufficient", userID, func(account *model.Account) error {
			if account.BuyingPower.LessThan(amount) {
				return insufficient
			}
			account.BuyingPower = model.NewDecimal(account.BuyingPower.Sub(amount))
			return nil
		})
		if errors.Is(err, model.ErrNotFound) {
			return insufficient
		}
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND buying_power >= ?", userID, amount).
		Updates(map[string]interface{}{
			"buying_power": gorm.Expr("buying_power - ?", amount),
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return storeError("AccountRepository", "DebitIfSufficient", res.Error)
	}
	if res.RowsAffected == 0 {
		return insufficient
	}

	return nil
}

// textDecimals reports whether money columns are stored as text, in which
// case SQL arithmetic on them would go through floating point.
func (r *AccountRepository) textDecimals() bool {
	return r.db.Dialector.Name() == "sqlite"
}

// swapAccount reads the account, applies mutate in memory and writes the
// result back only if the version is unchanged, retrying on conflict.
// A mutate error aborts without writing.
func (r *AccountRepository) swapAccount(ctx context.Context, op, userID string, mutate func(*model.Account) error) error {
	for attempt := 1; attempt <= maxSwapAttempts; attempt++ {
		account, err := r.Get(ctx, userID)
		if err != nil {
			return err
		}

		version := account.Version
		if err := mutate(account); err != nil {
			return err
		}

		res := r.db.WithContext(ctx).
			Model(&model.Account{}).
			Where("user_id = ? AND version = ?", userID, version).
			Updates(map[string]interface{}{
				"buying_power": account.BuyingPower,
				"wins":         account.Wins,
				"losses":       account.Losses,
				"realised_pnl": account.RealisedPnl,
				"version":      version + 1,
			})
		if res.Error != nil {
			return storeError("AccountRepository", op, res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":    "AccountRepository",
			"op":      op,
			"user_id": userID,
			"attempt": attempt,
		}).Debug("Account changed concurrently, retrying")
	}

	return storeError("AccountRepository", op, errVersionConflict)
}
