package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"paperledger/cmd/ledgerapi"
	"paperledger/src/connectors"
	"paperledger/src/database"
	"paperledger/src/server"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func SetupLogger() {
	config := server.GetConfig()

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)

	if config.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()

	app := cli.NewApp()
	app.Name = "paperledger"
	app.Usage = "Paper-trading position ledger"
	app.Version = Version

	app.Commands = []cli.Command{
		serveCMD,
		migrateCMD,
		priceCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the ledger HTTP API",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Migrate the store and serve the ledger operations over HTTP`,
	}
	migrateCMD = cli.Command{
		Name:        "migrate",
		Usage:       "run schema and data migrations",
		Action:      migrateAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Create or update the accounts and positions tables`,
	}
	priceCMD = cli.Command{
		Name:        "price",
		Usage:       "print the live price of a symbol",
		Action:      priceAction,
		ArgsUsage:   "SYMBOL",
		Flags:       []cli.Flag{},
		Description: `Query the configured price oracle once`,
	}
)

func serveAction(_ *cli.Context) error {
	logrus.WithField("cmd", "serve").Info("Starting ledger API")

	api := &ledgerapi.LedgerAPI{}
	if err := api.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func migrateAction(_ *cli.Context) error {
	logrus.WithField("cmd", "migrate").Info("Running migrations")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Migration failed")
		return err
	}

	return nil
}

func priceAction(c *cli.Context) error {
	symbol := strings.ToUpper(strings.TrimSpace(c.Args().First()))
	if symbol == "" {
		return errors.New("SYMBOL is required")
	}

	oracle, err := connectors.NewPriceOracle(connectors.GetConfig())
	if err != nil {
		return err
	}

	price, err := oracle.GetPrice(context.Background(), symbol)
	if err != nil {
		logrus.WithField("symbol", symbol).WithError(err).Error("Price lookup failed")
		return err
	}

	fmt.Printf("%s: %s\n", symbol, price.String())
	return nil
}
