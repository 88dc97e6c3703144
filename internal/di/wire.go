//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ImpactRank/pkg/config"
	"ImpactRank/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideCache,

		// Repositories
		ProvideEventStore,
		ProvideRecommendationStore,
		ProvideRankingCache,
		ProvideRankingPublisher,
		ProvideEventHistory,

		// Use cases
		ProvideEngineConfig,
		ProvideRankingUseCase,
		ProvideRecommendationsUseCase,
		ProvideHub,
		ProvideRefreshJob,
		ProvideQueue,
		ProvideKafkaConsumer,
		ProvideIngestHandler,

		// Transport
		ProvideRankingsHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
