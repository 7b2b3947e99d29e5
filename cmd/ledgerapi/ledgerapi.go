package ledgerapi

import (
	"fmt"

	"paperledger/src/connectors"
	"paperledger/src/database"
	"paperledger/src/ledger"
	"paperledger/src/repository"
	"paperledger/src/server"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LedgerAPI struct{}

// NewEngine wires the stores over db and the configured price oracle.
func NewEngine(db *gorm.DB) (*ledger.Engine, error) {
	oracle, err := connectors.NewPriceOracle(connectors.GetConfig())
	if err != nil {
		return nil, fmt.Errorf("price oracle: %w", err)
	}

	return ledger.NewEngine(
		repository.NewAccountRepository(db),
		repository.NewPositionRepository(db),
		oracle,
		ledger.GetConfig(),
	), nil
}

func (a *LedgerAPI) Start() error {
	config := server.GetConfig()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	engine, err := NewEngine(database.MainDB)
	if err != nil {
		logrus.WithError(err).Error("Failed to build ledger engine")
		return err
	}

	server.StartServer(config.Port, server.NewRouter(engine))

	return nil
}
