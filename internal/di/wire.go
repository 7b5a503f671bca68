//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SentiTrader/internal/usecase"
	"SentiTrader/pkg/config"
	"SentiTrader/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvidePostgresClient,
	ProvideRedisCache,
	ProvideLayeredCache,
)

var repositorySet = wire.NewSet(
	ProvideAggregateStore,
	ProvideAggregateCache,
	ProvideAggregateLookup,
	ProvideLedger,
	ProvideSectorReference,
	ProvideBrokerage,
	ProvideMarketData,
	ProvideAggregatePublisher,
	ProvideSignalPublisher,
)

var usecaseSet = wire.NewSet(
	ProvideMarketHours,
	ProvidePositionGuard,
	ProvideAggregator,
	ProvideSignalGenerator,
	ProvideRiskManager,
	ProvideOrderExecutor,
	ProvidePortfolio,
)

var stageSet = wire.NewSet(
	ProvideAggregatorWorker,
	ProvideSignalWorker,
	ProvideExecutorWorker,
	ProvideReconciler,
	ProvideStages,
)

var httpSet = wire.NewSet(
	ProvideHealthChecks,
	ProvideHTTPHandler,
	ProvideHTTPServer,
)

// InitializeApp wires the full pipeline process.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(infraSet, repositorySet, usecaseSet, stageSet, httpSet, ProvideApp)
	return nil, nil, nil
}

// InitializePortfolio wires only what an on-demand brokerage sync needs.
func InitializePortfolio(cfg *config.Config) (*usecase.Portfolio, func(), error) {
	wire.Build(
		ProvideBaseLogger,
		ProvidePostgresClient,
		ProvideLedger,
		ProvideBrokerage,
		ProvideMarketHours,
		ProvidePositionGuard,
		ProvidePortfolio,
	)
	return nil, nil, nil
}
