package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// RelationRepository implements the RelationRepository port using
// DynamoDB. Relations are addressed through the NodeIndex GSI, which
// carries both node items and the relations leaving them, so callers
// never need to know the owning chain.
type RelationRepository struct {
	client        *dynamodb.Client
	tableName     string
	nodeIndexName string
	logger        *zap.Logger
}

// Compile-time interface check
var _ ports.RelationRepository = (*RelationRepository)(nil)

// NewRelationRepository creates a new RelationRepository
func NewRelationRepository(client *dynamodb.Client, tableName, nodeIndexName string, logger *zap.Logger) *RelationRepository {
	return &RelationRepository{
		client:        client,
		tableName:     tableName,
		nodeIndexName: nodeIndexName,
		logger:        logger,
	}
}

// GetByNodeID returns all relations leaving the given node
func (r *RelationRepository) GetByNodeID(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID) ([]entities.NodeRelation, error) {
	items, err := r.queryNodeIndex(ctx, tenantID, nodeID)
	if err != nil {
		return nil, err
	}

	relations := make([]entities.NodeRelation, 0, len(items))
	for _, raw := range items {
		if itemEntityType(raw) != "RELATION" {
			continue
		}
		var ri relationItem
		if err := attributevalue.UnmarshalMap(raw, &ri); err != nil {
			r.logger.Warn("Failed to unmarshal relation item", zap.Error(err))
			continue
		}
		relation, err := ri.toEntity()
		if err != nil {
			r.logger.Warn("Failed to rebuild relation from item", zap.Error(err))
			continue
		}
		relations = append(relations, relation)
	}
	return relations, nil
}

// Delete removes one relation by its (from, to, type) key
func (r *RelationRepository) Delete(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error {
	chainID, err := r.owningChain(ctx, tenantID, relation.FromID)
	if err != nil {
		return err
	}

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: relationSK(chainID, relation)},
		},
	})
	if err != nil {
		return pkgerrors.NewInternal("failed to delete relation", err)
	}

	r.logger.Debug("Relation deleted",
		zap.String("from", relation.FromID.String()),
		zap.String("to", relation.ToID.String()),
		zap.String("type", relation.Type),
	)
	return nil
}

// Save persists one relation into the chain owning its source node
func (r *RelationRepository) Save(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error {
	chainID, err := r.owningChain(ctx, tenantID, relation.FromID)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(newRelationItem(tenantID, chainID, relation))
	if err != nil {
		return pkgerrors.NewInternal("failed to marshal relation item", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return pkgerrors.NewInternal("failed to save relation", err)
	}

	r.logger.Debug("Relation saved",
		zap.String("from", relation.FromID.String()),
		zap.String("to", relation.ToID.String()),
		zap.String("type", relation.Type),
	)
	return nil
}

// owningChain resolves the chain a node belongs to through its
// NodeIndex item
func (r *RelationRepository) owningChain(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID) (valueobjects.ChainID, error) {
	items, err := r.queryNodeIndex(ctx, tenantID, nodeID)
	if err != nil {
		return valueobjects.ChainID{}, err
	}
	for _, raw := range items {
		if itemEntityType(raw) != "NODE" {
			continue
		}
		var ni nodeItem
		if err := attributevalue.UnmarshalMap(raw, &ni); err != nil {
			continue
		}
		return valueobjects.ParseChainID(ni.ChainID)
	}
	return valueobjects.ChainID{}, pkgerrors.NewNotFound("source node " + nodeID.String())
}

func (r *RelationRepository) queryNodeIndex(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID) ([]map[string]types.AttributeValue, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(r.nodeIndexName),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		FilterExpression:       aws.String("PK = :tenant"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: nodeIndexPK(nodeID)},
			":tenant": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query node index", err)
	}
	return result.Items, nil
}
