//go:build wireinject
// +build wireinject

package di

import (
	"orderflow/pkg/config"
	"orderflow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCandleCache,

		// Repositories
		ProvideCandleStore,
		ProvideNotifier,
		ProvideTradeStream,

		// Aggregation pipeline
		ProvideCandleQueue,
		ProvideCoordinator,
		ProvideLiveService,
		ProvideBackfillDriver,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
