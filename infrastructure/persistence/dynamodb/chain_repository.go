package dynamodb

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// ChainRepository implements the ChainRepository port using DynamoDB
type ChainRepository struct {
	client       *dynamodb.Client
	tableName    string
	refIndexName string
	logger       *zap.Logger
}

// Compile-time interface check
var _ ports.ChainRepository = (*ChainRepository)(nil)

// NewChainRepository creates a new ChainRepository
func NewChainRepository(client *dynamodb.Client, tableName, refIndexName string, logger *zap.Logger) *ChainRepository {
	return &ChainRepository{
		client:       client,
		tableName:    tableName,
		refIndexName: refIndexName,
		logger:       logger,
	}
}

// Save persists a chain, assigning an identity on first save
func (r *ChainRepository) Save(ctx context.Context, chain *aggregates.RuleChain) (*aggregates.RuleChain, error) {
	stored := chain
	if chain.ID().IsEmpty() {
		var err error
		stored, err = aggregates.ReconstructRuleChain(
			valueobjects.NewChainID(),
			chain.TenantID(),
			chain.Kind(),
			chain.Name(),
			chain.IsRoot(),
			chain.DebugMode(),
			chain.AutoAssignToEdge(),
			chain.Version(),
			chain.CreatedAt(),
			chain.UpdatedAt(),
		)
		if err != nil {
			return nil, err
		}
	}

	av, err := attributevalue.MarshalMap(newChainItem(stored))
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to marshal chain", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("Failed to save chain",
			zap.String("tenantID", stored.TenantID().String()),
			zap.String("chainID", stored.ID().String()),
			zap.Error(err),
		)
		return nil, pkgerrors.NewInternal("failed to save chain", err)
	}

	r.logger.Info("Chain saved",
		zap.String("tenantID", stored.TenantID().String()),
		zap.String("chainID", stored.ID().String()),
		zap.String("kind", string(stored.Kind())),
	)
	return stored, nil
}

// GetByID retrieves a chain by identity
func (r *ChainRepository) GetByID(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.RuleChain, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: chainSK(chainID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to get chain", err)
	}
	if len(result.Item) == 0 {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}

	var item chainItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, pkgerrors.NewInternal("failed to unmarshal chain", err)
	}
	return item.toAggregate()
}

// Delete removes the chain item and every item belonging to it:
// metadata, nodes, relations and device assignments.
func (r *ChainRepository) Delete(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	if _, err := r.GetByID(ctx, tenantID, chainID); err != nil {
		return err
	}

	keys := []map[string]types.AttributeValue{{
		"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
		"SK": &types.AttributeValueMemberS{Value: chainSK(chainID)},
	}}

	mdKeys, err := r.collectKeysByPrefix(ctx, tenantID, metadataPrefix(chainID))
	if err != nil {
		return err
	}
	assignKeys, err := r.collectKeysByPrefix(ctx, tenantID, assignmentPrefix(chainID))
	if err != nil {
		return err
	}
	keys = append(keys, mdKeys...)
	keys = append(keys, assignKeys...)

	if err := batchDeleteKeys(ctx, r.client, r.tableName, keys); err != nil {
		return pkgerrors.NewInternal("failed to delete chain items", err)
	}

	r.logger.Info("Chain deleted",
		zap.String("tenantID", tenantID.String()),
		zap.String("chainID", chainID.String()),
		zap.Int("itemCount", len(keys)),
	)
	return nil
}

// GetRoot returns the tenant's root CORE chain
func (r *ChainRepository) GetRoot(ctx context.Context, tenantID valueobjects.TenantID) (*aggregates.RuleChain, error) {
	filter := expression.And(
		expression.Equal(expression.Name("Root"), expression.Value(true)),
		expression.Equal(expression.Name("Kind"), expression.Value(string(aggregates.KindCore))),
	)
	keyCond := expression.Key("PK").Equal(expression.Value(tenantPK(tenantID))).
		And(expression.Key("SK").BeginsWith("CHAIN#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to build root query", err)
	}

	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query root chain", err)
	}
	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFound("root chain")
	}

	var item chainItem
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return nil, pkgerrors.NewInternal("failed to unmarshal root chain", err)
	}
	return item.toAggregate()
}

// SetRoot moves the root designation to the given chain. Returns false
// when the chain already was root.
func (r *ChainRepository) SetRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (bool, error) {
	target, err := r.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return false, err
	}
	if target.IsRoot() {
		return false, nil
	}

	previous, err := r.GetRoot(ctx, tenantID)
	if err != nil && !pkgerrors.IsNotFound(err) {
		return false, err
	}
	if previous != nil {
		if err := r.setRootFlag(ctx, tenantID, previous.ID(), false); err != nil {
			return false, err
		}
	}
	if err := r.setRootFlag(ctx, tenantID, chainID, true); err != nil {
		return false, err
	}
	return true, nil
}

// FindReferencingInputNodes queries the RefIndex for input nodes whose
// stored configuration references the given chain
func (r *ChainRepository) FindReferencingInputNodes(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]*entities.RuleNode, error) {
	return queryRefIndex(ctx, r.client, r.tableName, r.refIndexName, tenantID, chainID, r.logger)
}

// FindRelatedEdgeDeviceIDs returns devices the chain is assigned to
func (r *ChainRepository) FindRelatedEdgeDeviceIDs(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]valueobjects.EdgeDeviceID, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			":sk": &types.AttributeValueMemberS{Value: assignmentPrefix(chainID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query assignments", err)
	}

	ids := make([]valueobjects.EdgeDeviceID, 0, len(result.Items))
	for _, raw := range result.Items {
		var item assignmentItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Failed to unmarshal assignment item", zap.Error(err))
			continue
		}
		deviceID, err := valueobjects.ParseEdgeDeviceID(item.EdgeDeviceID)
		if err != nil {
			r.logger.Warn("Invalid edge device id in assignment item",
				zap.String("chainID", chainID.String()),
				zap.String("deviceID", item.EdgeDeviceID),
			)
			continue
		}
		ids = append(ids, deviceID)
	}
	return ids, nil
}

// AssignToEdgeDevice links a chain to an edge device
func (r *ChainRepository) AssignToEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	chain, err := r.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	av, err := attributevalue.MarshalMap(assignmentItem{
		PK:           tenantPK(tenantID),
		SK:           assignmentSK(chainID, deviceID),
		EntityType:   "ASSIGNMENT",
		ChainID:      chainID.String(),
		EdgeDeviceID: deviceID.String(),
		AssignedAt:   time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to marshal assignment", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return nil, pkgerrors.NewInternal("failed to save assignment", err)
	}
	return chain, nil
}

// UnassignFromEdgeDevice removes a chain-device link. The delete is
// conditional so a missing assignment surfaces as NotFound.
func (r *ChainRepository) UnassignFromEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	chain, err := r.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: assignmentSK(chainID, deviceID)},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, pkgerrors.NewNotFound("assignment for device " + deviceID.String())
		}
		return nil, pkgerrors.NewInternal("failed to delete assignment", err)
	}
	return chain, nil
}

// SetEdgeTemplateRoot marks the chain as edge template root
func (r *ChainRepository) SetEdgeTemplateRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.setRootFlag(ctx, tenantID, chainID, true)
}

// SetAutoAssignToEdge enables auto-assignment for the chain
func (r *ChainRepository) SetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.setBoolFlag(ctx, tenantID, chainID, "AutoAssignToEdge", true)
}

// UnsetAutoAssignToEdge disables auto-assignment for the chain
func (r *ChainRepository) UnsetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.setBoolFlag(ctx, tenantID, chainID, "AutoAssignToEdge", false)
}

func (r *ChainRepository) setRootFlag(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, root bool) error {
	return r.setBoolFlag(ctx, tenantID, chainID, "Root", root)
}

func (r *ChainRepository) setBoolFlag(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, attribute string, value bool) error {
	update := expression.Set(expression.Name(attribute), expression.Value(value)).
		Add(expression.Name("Version"), expression.Value(1)).
		Set(expression.Name("UpdatedAt"), expression.Value(time.Now().Format(time.RFC3339Nano)))
	condition := expression.AttributeExists(expression.Name("PK"))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return pkgerrors.NewInternal("failed to build flag update", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: chainSK(chainID)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewNotFound("chain " + chainID.String())
		}
		return pkgerrors.NewInternal("failed to update chain flag", err)
	}
	return nil
}

func (r *ChainRepository) collectKeysByPrefix(ctx context.Context, tenantID valueobjects.TenantID, prefix string) ([]map[string]types.AttributeValue, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			":sk": &types.AttributeValueMemberS{Value: prefix},
		},
		ProjectionExpression: aws.String("PK, SK"),
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to collect item keys", err)
	}

	keys := make([]map[string]types.AttributeValue, 0, len(result.Items))
	for _, item := range result.Items {
		keys = append(keys, map[string]types.AttributeValue{
			"PK": item["PK"],
			"SK": item["SK"],
		})
	}
	return keys, nil
}

// batchDeleteKeys deletes items in batches of 25, the BatchWriteItem limit
func batchDeleteKeys(ctx context.Context, client *dynamodb.Client, tableName string, keys []map[string]types.AttributeValue) error {
	const batchSize = 25
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for j := i; j < end; j++ {
			writeRequests = append(writeRequests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: keys[j]},
			})
		}

		if _, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{tableName: writeRequests},
		}); err != nil {
			return err
		}
	}
	return nil
}

// queryRefIndex finds input nodes referencing the target chain through
// the RefIndex GSI. Shared by the chain and metadata repositories.
func queryRefIndex(ctx context.Context, client *dynamodb.Client, tableName, indexName string, tenantID valueobjects.TenantID, target valueobjects.ChainID, logger *zap.Logger) ([]*entities.RuleNode, error) {
	result, err := client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		FilterExpression:       aws.String("PK = :tenant"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: refIndexPK(target)},
			":tenant": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query referencing nodes", err)
	}

	nodes := make([]*entities.RuleNode, 0, len(result.Items))
	for _, raw := range result.Items {
		var item nodeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			logger.Warn("Failed to unmarshal node item", zap.Error(err))
			continue
		}
		node, err := item.toEntity()
		if err != nil {
			logger.Warn("Failed to rebuild node from item",
				zap.String("nodeID", item.NodeID),
				zap.Error(err),
			)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
