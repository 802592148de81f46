package di

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rulechain-backend/application/ports"
	"rulechain-backend/application/services"
	"rulechain-backend/infrastructure/config"
	ebmessaging "rulechain-backend/infrastructure/messaging/eventbridge"
	"rulechain-backend/infrastructure/notify"
	ddb "rulechain-backend/infrastructure/persistence/dynamodb"
	"rulechain-backend/interfaces/http/rest"
	"rulechain-backend/pkg/observability"
)

// ProvideLogger creates the application logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// ProvideMetrics creates the metrics collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("rulechain")
}

// ProvideAWSConfig loads the AWS SDK configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
}

// ProvideDynamoDBClient creates the DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates the EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *eventbridge.Client {
	return eventbridge.NewFromConfig(awsCfg)
}

// ProvideAPIGatewayClient creates the API Gateway management client used
// to push WebSocket notifications
func ProvideAPIGatewayClient(awsCfg aws.Config, cfg *config.Config) *apigatewaymanagementapi.Client {
	return apigatewaymanagementapi.NewFromConfig(awsCfg, func(o *apigatewaymanagementapi.Options) {
		if cfg.WebSocketEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.WebSocketEndpoint)
		}
	})
}

// ProvideChainRepository creates the rule chain repository
func ProvideChainRepository(client *dynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ChainRepository {
	return ddb.NewChainRepository(client, cfg.DynamoDBTable, cfg.RefIndexName, logger)
}

// ProvideMetadataRepository creates the chain metadata repository
func ProvideMetadataRepository(client *dynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.MetadataRepository {
	return ddb.NewMetadataRepository(client, cfg.DynamoDBTable, cfg.RefIndexName, logger)
}

// ProvideRelationRepository creates the node relation repository
func ProvideRelationRepository(client *dynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.RelationRepository {
	return ddb.NewRelationRepository(client, cfg.DynamoDBTable, cfg.NodeIndexName, logger)
}

// ProvideBroadcaster creates the EventBridge broadcaster
func ProvideBroadcaster(client *eventbridge.Client, cfg *config.Config, logger *zap.Logger) *ebmessaging.Broadcaster {
	return ebmessaging.NewBroadcaster(client, cfg.EventBusName, logger)
}

// ProvideClusterBroadcaster exposes the broadcaster as the cluster port
func ProvideClusterBroadcaster(broadcaster *ebmessaging.Broadcaster) ports.ClusterBroadcaster {
	return broadcaster
}

// ProvideEdgeGateway exposes the broadcaster as the edge sync port
func ProvideEdgeGateway(broadcaster *ebmessaging.Broadcaster) ports.EdgeGateway {
	return broadcaster
}

// ProvideNotifier creates the WebSocket notifier
func ProvideNotifier(
	dbClient *dynamodb.Client,
	gatewayClient *apigatewaymanagementapi.Client,
	cfg *config.Config,
	logger *zap.Logger,
) ports.EntityNotifier {
	return notify.NewWebSocketNotifier(dbClient, gatewayClient, cfg.ConnectionsTable, logger)
}

// ProvideOutputLabelResolver creates the output label resolver
func ProvideOutputLabelResolver(metadata ports.MetadataRepository, logger *zap.Logger) *services.OutputLabelResolver {
	return services.NewOutputLabelResolver(metadata, logger)
}

// ProvideUsageIndex creates the usage index
func ProvideUsageIndex(
	chains ports.ChainRepository,
	metadata ports.MetadataRepository,
	relations ports.RelationRepository,
	metrics *observability.Collector,
	logger *zap.Logger,
) *services.UsageIndex {
	return services.NewUsageIndex(chains, metadata, relations, metrics, logger)
}

// ProvideRelabelEngine creates the relabel engine
func ProvideRelabelEngine(
	usages *services.UsageIndex,
	relations ports.RelationRepository,
	metrics *observability.Collector,
	logger *zap.Logger,
) *services.RelabelEngine {
	return services.NewRelabelEngine(usages, relations, metrics, logger)
}

// ProvideLinkageService creates the linkage service
func ProvideLinkageService(
	chains ports.ChainRepository,
	metadata ports.MetadataRepository,
	resolver *services.OutputLabelResolver,
	usageIndex *services.UsageIndex,
	relabel *services.RelabelEngine,
	broadcaster ports.ClusterBroadcaster,
	notifier ports.EntityNotifier,
	edgeGateway ports.EdgeGateway,
	metrics *observability.Collector,
	logger *zap.Logger,
) *services.LinkageService {
	return services.NewLinkageService(
		chains,
		metadata,
		resolver,
		usageIndex,
		relabel,
		broadcaster,
		notifier,
		edgeGateway,
		metrics,
		logger,
	)
}

// ProvideRouter creates the HTTP router
func ProvideRouter(service *services.LinkageService, metrics *observability.Collector, logger *zap.Logger) *rest.Router {
	return rest.NewRouter(service, metrics, logger)
}
