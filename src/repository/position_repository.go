package repository

import (
	"context"
	"errors"
	"fmt"

	"paperledger/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PositionRepository is the Position Store. Records are keyed by (id, owner)
// and the partial index on (owner, open_marker) serves open-position lookups.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a repository over the given connection.
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating new PositionRepository")

	return &PositionRepository{db: db}
}

// Get fetches a position by id and owner. Returns model.ErrNotFound when the
// id is unknown or belongs to someone else.
func (r *PositionRepository) Get(ctx context.Context, id, owner string) (*model.Position, error) {
	var position model.Position
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner = ?", id, owner).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, storeError("PositionRepository", "Get", err)
	}

	return &position, nil
}

// Create inserts position. Uniqueness of (id, owner) is the caller's job.
func (r *PositionRepository) Create(ctx context.Context, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "Create",
		"id":     position.ID,
		"owner":  position.Owner,
		"symbol": position.Symbol,
		"side":   position.Side,
		"amount": position.Amount.String(),
	}).Debug("Creating new position")

	if err := r.db.WithContext(ctx).Create(position).Error; err != nil {
		return storeError("PositionRepository", "Create", err)
	}

	return nil
}

// CloseIfOpen removes the open marker and writes the close fields in one
// conditional UPDATE. Exactly one of any number of concurrent callers can
// match the open_marker precondition; all others get model.ErrAlreadyClosed
// and the record is left as the winner wrote it.
func (r *PositionRepository) CloseIfOpen(ctx context.Context, id, owner string, closing model.PositionClose) error {
	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND owner = ? AND open_marker IS NOT NULL", id, owner).
		Updates(map[string]interface{}{
			"open_marker": nil,
			"closed_at":   closing.ClosedAt,
			"close_price": closing.ClosePrice,
			"profit":      closing.Profit,
		})
	if res.Error != nil {
		return storeError("PositionRepository", "CloseIfOpen", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":  "PositionRepository",
			"op":    "CloseIfOpen",
			"id":    id,
			"owner": owner,
		}).Info("Close precondition failed, position not open")

		return fmt.Errorf("%w: %s", model.ErrAlreadyClosed, id)
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "CloseIfOpen",
		"id":     id,
		"owner":  owner,
		"profit": closing.Profit.String(),
	}).Info("Position closed")

	return nil
}

// ListOpen returns the positions of owner that still carry the open marker.
// Order is unspecified.
func (r *PositionRepository) ListOpen(ctx context.Context, owner string) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("owner = ? AND open_marker IS NOT NULL", owner).
		Find(&positions).Error
	if err != nil {
		return nil, storeError("PositionRepository", "ListOpen", err)
	}

	return positions, nil
}
