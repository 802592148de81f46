package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
	pkgerrors "rulechain-backend/pkg/errors"
)

// WebSocketNotifier pushes the audit notification of each mutating
// operation to the tenant's live dashboard sessions. Connection ids are
// kept in a DynamoDB table under PK TENANT#<tenantID>, SK CONN#<id>;
// sessions that are gone are pruned on the spot.
type WebSocketNotifier struct {
	dbClient         *dynamodb.Client
	gatewayClient    *apigatewaymanagementapi.Client
	connectionsTable string
	logger           *zap.Logger
}

// Compile-time interface check
var _ ports.EntityNotifier = (*WebSocketNotifier)(nil)

// NewWebSocketNotifier creates a new WebSocket notifier
func NewWebSocketNotifier(
	dbClient *dynamodb.Client,
	gatewayClient *apigatewaymanagementapi.Client,
	connectionsTable string,
	logger *zap.Logger,
) *WebSocketNotifier {
	return &WebSocketNotifier{
		dbClient:         dbClient,
		gatewayClient:    gatewayClient,
		connectionsTable: connectionsTable,
		logger:           logger,
	}
}

// notificationMessage is the wire form pushed to dashboard sessions
type notificationMessage struct {
	TenantID             string    `json:"tenantId"`
	ChainID              string    `json:"chainId,omitempty"`
	Action               string    `json:"action"`
	Success              bool      `json:"success"`
	Error                string    `json:"error,omitempty"`
	ChainName            string    `json:"chainName,omitempty"`
	EdgeDeviceID         string    `json:"edgeDeviceId,omitempty"`
	RelatedEdgeDeviceIDs []string  `json:"relatedEdgeDeviceIds,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// Notify delivers one audit notification to every open session of the
// tenant
func (n *WebSocketNotifier) Notify(ctx context.Context, notification events.ChainNotification) error {
	message := notificationMessage{
		TenantID:  notification.TenantID.String(),
		ChainID:   notification.ChainID.String(),
		Action:    string(notification.Action),
		Success:   notification.Success,
		Timestamp: notification.Timestamp,
	}
	if notification.Cause != nil {
		message.Error = notification.Cause.Error()
	}
	if notification.Chain != nil {
		message.ChainName = notification.Chain.Name()
	}
	if !notification.EdgeDeviceID.IsEmpty() {
		message.EdgeDeviceID = notification.EdgeDeviceID.String()
	}
	for _, deviceID := range notification.RelatedEdgeDeviceIDs {
		message.RelatedEdgeDeviceIDs = append(message.RelatedEdgeDeviceIDs, deviceID.String())
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return pkgerrors.NewInternal("failed to marshal notification", err)
	}

	items, err := n.connectionsFor(ctx, notification.TenantID)
	if err != nil {
		return err
	}

	for _, item := range items {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		connectionID := strings.TrimPrefix(sk.Value, "CONN#")

		_, err := n.gatewayClient.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: &connectionID,
			Data:         payload,
		})
		if err != nil {
			var gone *apigwtypes.GoneException
			if errors.As(err, &gone) {
				n.logger.Debug("Pruning stale connection",
					zap.String("tenantID", notification.TenantID.String()),
					zap.String("connectionID", connectionID),
				)
				n.pruneConnection(ctx, item)
				continue
			}
			n.logger.Error("Failed to post to connection",
				zap.String("connectionID", connectionID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (n *WebSocketNotifier) connectionsFor(ctx context.Context, tenantID valueobjects.TenantID) ([]map[string]types.AttributeValue, error) {
	result, err := n.dbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(n.connectionsTable),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk_prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":        &types.AttributeValueMemberS{Value: "TENANT#" + tenantID.String()},
			":sk_prefix": &types.AttributeValueMemberS{Value: "CONN#"},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query connections", err)
	}
	return result.Items, nil
}

func (n *WebSocketNotifier) pruneConnection(ctx context.Context, item map[string]types.AttributeValue) {
	_, err := n.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(n.connectionsTable),
		Key: map[string]types.AttributeValue{
			"PK": item["PK"],
			"SK": item["SK"],
		},
	})
	if err != nil {
		n.logger.Warn("Failed to prune stale connection", zap.Error(err))
	}
}
