package repository

import (
	"fmt"

	"paperledger/src/model"

	logger "github.com/sirupsen/logrus"
)

// storeError logs a driver failure and classifies it as model.ErrStoreUnavailable.
func storeError(repo, op string, err error) error {
	logger.WithFields(map[string]interface{}{
		"repo": repo,
		"op":   op,
	}).WithError(err).Error("Store operation failed")

	return fmt.Errorf("%w: %s.%s: %w", model.ErrStoreUnavailable, repo, op, err)
}
