//go:build wireinject
// +build wireinject

package di

import (
	"PriceAgent/pkg/config"
	"PriceAgent/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application and a
// cleanup that releases store, cache and producer connections.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideStateStore,
		ProvideCache,
		ProvideRetryPolicy,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Services
		ProvideErrorSink,
		ProvidePriceSource,
		ProvideDataAcquisition,
		ProvideModelFactory,
		ProvidePipeline,
		ProvideEventPublisher,

		// Use cases
		ProvideAgent,
		ProvideReports,
		ProvideTrainCommandHandler,

		// Transport
		ProvideAgentHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
