package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgercore/internal/accountledger"
	"github.com/odyssey-erp/ledgercore/internal/catalog"
	"github.com/odyssey-erp/ledgercore/internal/inventory"
	"github.com/odyssey-erp/ledgercore/internal/ledger"
	"github.com/odyssey-erp/ledgercore/internal/observability"
	"github.com/odyssey-erp/ledgercore/internal/posting"
	"github.com/odyssey-erp/ledgercore/internal/sequence"
	"github.com/odyssey-erp/ledgercore/internal/store"
)

// Services is the wired ledger core shared by ledgerd and ledgerctl.
type Services struct {
	Sequences    *sequence.Service
	Journal      *ledger.Service
	Inventory    *inventory.Service
	Accounts     *accountledger.Service
	Catalog      *catalog.Cache
	Orchestrator *posting.Orchestrator
}

// ServiceParams groups the infrastructure Services is built on.
type ServiceParams struct {
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// BuildServices wires every repository and service. The chart of accounts
// is loaded and validated here, so a bad mapping table fails startup.
func BuildServices(ctx context.Context, params ServiceParams) (*Services, error) {
	cfg := params.Config
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sequences := sequence.NewService(sequence.NewRepository(params.Pool), sequence.Config{MaxAttempts: cfg.SequenceMaxAttempts}, logger)
	if params.Metrics != nil {
		sequences.WithObserver(params.Metrics)
	}
	ledgerRepo := ledger.NewRepository(params.Pool)
	journal := ledger.NewService(ledgerRepo, sequences, ledger.ServiceConfig{Precision: cfg.CurrencyPrecision}, logger)
	stock := inventory.NewService(inventory.NewRepository(params.Pool), inventory.ServiceConfig{
		Precision:     cfg.CurrencyPrecision,
		CriticalLevel: decimal.NewFromFloat(cfg.CriticalStockLevel),
	}, logger)
	accounts := accountledger.NewService(accountledger.NewRepository(params.Pool), accountledger.ServiceConfig{
		Precision:      cfg.CurrencyPrecision,
		ReversalPolicy: cfg.ReversalPolicy(),
	}, logger)

	resolver, err := ledger.LoadResolver(ctx, ledgerRepo)
	if err != nil {
		return nil, fmt.Errorf("app: load chart of accounts: %w", err)
	}
	cache := catalog.NewCache(catalog.NewRepository(params.Pool), params.Redis, cfg.CatalogCacheTTL, logger)

	var observer posting.Observer
	if params.Metrics != nil {
		observer = params.Metrics
	}
	orchestrator, err := posting.NewOrchestrator(posting.Deps{
		UnitOfWork:     store.NewUnitOfWork(params.Pool),
		Sequences:      sequences,
		Journal:        journal,
		Inventory:      stock,
		Accounts:       accounts,
		Resolver:       resolver,
		Catalog:        cache,
		Counterparties: cache,
		Observer:       observer,
		Logger:         logger,
		Precision:      cfg.CurrencyPrecision,
	})
	if err != nil {
		return nil, err
	}
	return &Services{
		Sequences:    sequences,
		Journal:      journal,
		Inventory:    stock,
		Accounts:     accounts,
		Catalog:      cache,
		Orchestrator: orchestrator,
	}, nil
}
