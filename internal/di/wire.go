// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stockyhq/stocky/internal/clients/yahoo"
	"github.com/stockyhq/stocky/internal/config"
	"github.com/stockyhq/stocky/internal/database"
	"github.com/stockyhq/stocky/internal/events"
	"github.com/stockyhq/stocky/internal/modules/accounting"
	"github.com/stockyhq/stocky/internal/modules/ledger"
	"github.com/stockyhq/stocky/internal/modules/valuation"
	"github.com/stockyhq/stocky/internal/scheduler"
)

// Container holds every wired dependency.
type Container struct {
	LedgerDB  *database.DB
	HistoryDB *database.DB

	EventBus    *events.Bus
	YahooClient *yahoo.Client
	TradeRepo   *ledger.TradeRepository
	HistoryRepo *valuation.HistoryRepository
	Accountant  *accounting.Accountant
	Sampler     *valuation.Sampler
	Scheduler   *scheduler.Scheduler
}

// Wire initializes all dependencies and returns a fully configured
// container. Order of operations:
// 1. Open databases and apply schemas
// 2. Initialize repositories and clients
// 3. Rebuild derived lot state from the ledger
// 4. Register the valuation sampling jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// Ledger gets the maximum-safety profile: every trade is fsynced
	// before the caller gets its acknowledgement.
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.LedgerDBPath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	historyDB, err := database.New(database.Config{
		Path:    cfg.HistoryDBPath(),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	for _, db := range []*database.DB{ledgerDB, historyDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	container.EventBus = events.NewBus(log)
	container.YahooClient = yahoo.NewClient(cfg.PriceBaseURL, cfg.PriceTimeout, log)
	container.TradeRepo = ledger.NewTradeRepository(ledgerDB.Conn(), log)
	container.HistoryRepo = valuation.NewHistoryRepository(historyDB.Conn(), cfg.HistoryRetention, log)

	container.Accountant = accounting.NewAccountant(
		container.TradeRepo,
		container.YahooClient,
		container.EventBus,
		log,
	)
	if err := container.Accountant.Rebuild(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to rebuild position state: %w", err)
	}

	container.Sampler = valuation.NewSampler(
		container.Accountant,
		container.YahooClient,
		container.HistoryRepo,
		container.EventBus,
		cfg.PriceTimeout,
		log,
	)

	container.Scheduler = scheduler.New(log)
	fastSchedule := fmt.Sprintf("@every %ds", int(cfg.FastSampleInterval.Seconds()))
	durableSchedule := fmt.Sprintf("@every %ds", int(cfg.DurableSampleInterval.Seconds()))

	if err := container.Scheduler.AddJob(fastSchedule, valuation.FastJob{Sampler: container.Sampler}); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register fast valuation job: %w", err)
	}
	if err := container.Scheduler.AddJob(durableSchedule, valuation.DurableJob{Sampler: container.Sampler}); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register durable valuation job: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// Close releases the container's database connections.
func (c *Container) Close() {
	if c.LedgerDB != nil {
		c.LedgerDB.Close()
	}
	if c.HistoryDB != nil {
		c.HistoryDB.Close()
	}
}
