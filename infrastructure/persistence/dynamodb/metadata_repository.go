package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// MetadataRepository implements the MetadataRepository port using DynamoDB
type MetadataRepository struct {
	client       *dynamodb.Client
	tableName    string
	refIndexName string
	logger       *zap.Logger
}

// Compile-time interface check
var _ ports.MetadataRepository = (*MetadataRepository)(nil)

// NewMetadataRepository creates a new MetadataRepository
func NewMetadataRepository(client *dynamodb.Client, tableName, refIndexName string, logger *zap.Logger) *MetadataRepository {
	return &MetadataRepository{
		client:       client,
		tableName:    tableName,
		refIndexName: refIndexName,
		logger:       logger,
	}
}

// Load retrieves the full metadata unit in one query over the chain's
// MD# item range.
func (r *MetadataRepository) Load(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.ChainMetadata, error) {
	items, err := r.queryMetadataItems(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.NewNotFound("metadata for chain " + chainID.String())
	}

	var entryNodeID valueobjects.NodeID
	var nodes []*entities.RuleNode
	var relations []entities.NodeRelation
	for _, raw := range items {
		entityType := itemEntityType(raw)
		switch entityType {
		case "METADATA":
			var master metadataMasterItem
			if err := attributevalue.UnmarshalMap(raw, &master); err != nil {
				return nil, pkgerrors.NewInternal("failed to unmarshal metadata item", err)
			}
			if master.EntryNodeID != "" {
				entryNodeID, err = valueobjects.ParseNodeID(master.EntryNodeID)
				if err != nil {
					return nil, err
				}
			}
		case "NODE":
			var ni nodeItem
			if err := attributevalue.UnmarshalMap(raw, &ni); err != nil {
				r.logger.Warn("Failed to unmarshal node item", zap.Error(err))
				continue
			}
			node, err := ni.toEntity()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		case "RELATION":
			var ri relationItem
			if err := attributevalue.UnmarshalMap(raw, &ri); err != nil {
				r.logger.Warn("Failed to unmarshal relation item", zap.Error(err))
				continue
			}
			relation, err := ri.toEntity()
			if err != nil {
				return nil, err
			}
			relations = append(relations, relation)
		}
	}

	return aggregates.NewChainMetadata(chainID, entryNodeID, nodes, relations)
}

// Save replaces the chain's metadata item range and reports the node
// diff against the previous state, paired by node id. The delete and
// write passes are not transactional; a concurrent reader may briefly
// observe a partial unit.
func (r *MetadataRepository) Save(ctx context.Context, tenantID valueobjects.TenantID, metadata *aggregates.ChainMetadata) (*ports.MetadataSaveResult, error) {
	chainID := metadata.ChainID()

	chainKey, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			"SK": &types.AttributeValueMemberS{Value: chainSK(chainID)},
		},
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to check chain existence", err)
	}
	if len(chainKey.Item) == 0 {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}

	previousItems, err := r.queryMetadataItems(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	previousByID := make(map[string]*entities.RuleNode)
	oldKeys := make([]map[string]types.AttributeValue, 0, len(previousItems))
	for _, raw := range previousItems {
		oldKeys = append(oldKeys, map[string]types.AttributeValue{
			"PK": raw["PK"],
			"SK": raw["SK"],
		})
		if itemEntityType(raw) != "NODE" {
			continue
		}
		var ni nodeItem
		if err := attributevalue.UnmarshalMap(raw, &ni); err != nil {
			continue
		}
		if node, err := ni.toEntity(); err == nil {
			previousByID[node.ID().String()] = node
		}
	}

	var updated []ports.NodeUpdate
	puts := make([]map[string]types.AttributeValue, 0, len(metadata.Nodes())+len(metadata.Relations())+1)

	master, err := attributevalue.MarshalMap(metadataMasterItem{
		PK:          tenantPK(tenantID),
		SK:          metadataMasterSK(chainID),
		EntityType:  "METADATA",
		ChainID:     chainID.String(),
		EntryNodeID: metadata.EntryNodeID().String(),
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to marshal metadata item", err)
	}
	puts = append(puts, master)

	for _, node := range metadata.Nodes() {
		av, err := attributevalue.MarshalMap(newNodeItem(tenantID, node))
		if err != nil {
			return nil, pkgerrors.NewInternal("failed to marshal node item", err)
		}
		puts = append(puts, av)
		if old, ok := previousByID[node.ID().String()]; ok {
			updated = append(updated, ports.NodeUpdate{Old: old, New: node})
		}
	}
	for _, relation := range metadata.Relations() {
		av, err := attributevalue.MarshalMap(newRelationItem(tenantID, chainID, relation))
		if err != nil {
			return nil, pkgerrors.NewInternal("failed to marshal relation item", err)
		}
		puts = append(puts, av)
	}

	if err := batchDeleteKeys(ctx, r.client, r.tableName, oldKeys); err != nil {
		return nil, pkgerrors.NewInternal("failed to clear previous metadata", err)
	}
	if err := r.batchPutItems(ctx, puts); err != nil {
		return nil, pkgerrors.NewInternal("failed to write metadata items", err)
	}

	r.logger.Info("Chain metadata saved",
		zap.String("tenantID", tenantID.String()),
		zap.String("chainID", chainID.String()),
		zap.Int("nodeCount", len(metadata.Nodes())),
		zap.Int("relationCount", len(metadata.Relations())),
		zap.Int("updatedNodes", len(updated)),
	)
	return &ports.MetadataSaveResult{Success: true, Updated: updated}, nil
}

// FindInputNodesByTarget queries the RefIndex for input nodes whose
// stored configuration references the target chain
func (r *MetadataRepository) FindInputNodesByTarget(ctx context.Context, tenantID valueobjects.TenantID, target valueobjects.ChainID) ([]*entities.RuleNode, error) {
	return queryRefIndex(ctx, r.client, r.tableName, r.refIndexName, tenantID, target, r.logger)
}

func (r *MetadataRepository) queryMetadataItems(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]map[string]types.AttributeValue, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: tenantPK(tenantID)},
			":sk": &types.AttributeValueMemberS{Value: metadataPrefix(chainID)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("failed to query metadata items", err)
	}
	return result.Items, nil
}

// batchPutItems writes items in batches of 25, the BatchWriteItem limit
func (r *MetadataRepository) batchPutItems(ctx context.Context, items []map[string]types.AttributeValue) error {
	const batchSize = 25
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}

		writeRequests := make([]types.WriteRequest, 0, end-i)
		for j := i; j < end; j++ {
			writeRequests = append(writeRequests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: items[j]},
			})
		}

		if _, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.tableName: writeRequests},
		}); err != nil {
			return err
		}
	}
	return nil
}

func itemEntityType(item map[string]types.AttributeValue) string {
	if av, ok := item["EntityType"].(*types.AttributeValueMemberS); ok {
		return av.Value
	}
	return ""
}
