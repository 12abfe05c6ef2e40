package cmd

import (
	"github.com/Fi44er/casino_ledger/config"
	"github.com/Fi44er/casino_ledger/db"
	"github.com/Fi44er/casino_ledger/internal/currency"
	"github.com/Fi44er/casino_ledger/internal/repository"
	"github.com/Fi44er/casino_ledger/internal/service"
	"github.com/Fi44er/casino_ledger/utils"
	"gorm.io/gorm"
)

type app struct {
	cfg     config.Config
	logger  *utils.Logger
	db      *gorm.DB
	service *service.Service
}

// newApp connects the database and builds the ledger service.
func newApp(cfg config.Config, logger *utils.Logger, migrate bool) (*app, error) {
	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, migrate, logger); err != nil {
		return nil, err
	}

	rates, err := cfg.ParseRates()
	if err != nil {
		return nil, err
	}
	pointsRate, err := cfg.ParsePointsRate()
	if err != nil {
		return nil, err
	}

	var provider currency.RateProvider = currency.StaticRates(rates)
	if cfg.RatesURL != "" {
		provider = currency.NewCachedRates(cfg.RatesURL, provider, logger)
	}

	repo := repository.NewRepository(database, logger)
	svc := service.NewLedgerService(repo, currency.NewConverter(provider), service.Options{
		PointsRate:      pointsRate,
		DefaultCurrency: cfg.DefaultCurrency,
	}, logger)

	return &app{cfg: cfg, logger: logger, db: database, service: svc}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
