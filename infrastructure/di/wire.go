//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/application/services"
	"rulechain-backend/infrastructure/config"
	"rulechain-backend/interfaces/http/rest"
	"rulechain-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config         *config.Config
	Logger         *zap.Logger
	Metrics        *observability.Collector
	ChainRepo      ports.ChainRepository
	MetadataRepo   ports.MetadataRepository
	RelationRepo   ports.RelationRepository
	Broadcaster    ports.ClusterBroadcaster
	Notifier       ports.EntityNotifier
	EdgeGateway    ports.EdgeGateway
	LinkageService *services.LinkageService
	Router         *rest.Router
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideAPIGatewayClient,
	ProvideChainRepository,
	ProvideMetadataRepository,
	ProvideRelationRepository,
	ProvideBroadcaster,
	ProvideClusterBroadcaster,
	ProvideEdgeGateway,
	ProvideNotifier,
	ProvideOutputLabelResolver,
	ProvideUsageIndex,
	ProvideRelabelEngine,
	ProvideLinkageService,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
