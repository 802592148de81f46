package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/pkg/observability"
)

// LabelUsage describes one input node that references a chain, together
// with the labels observed on its outgoing relations. Built fresh per
// query, never cached beyond one call.
type LabelUsage struct {
	NodeID    valueobjects.NodeID
	NodeName  string
	ChainID   valueobjects.ChainID
	ChainName string
	Labels    []string
}

// HasLabel reports whether the usage carries the given label
func (u LabelUsage) HasLabel(label string) bool {
	for _, l := range u.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// UsageIndex discovers every node in any chain of a tenant that
// references a given chain through an input node.
type UsageIndex struct {
	chains    ports.ChainRepository
	metadata  ports.MetadataRepository
	relations ports.RelationRepository
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewUsageIndex creates a new usage index
func NewUsageIndex(
	chains ports.ChainRepository,
	metadata ports.MetadataRepository,
	relations ports.RelationRepository,
	metrics *observability.Collector,
	logger *zap.Logger,
) *UsageIndex {
	return &UsageIndex{
		chains:    chains,
		metadata:  metadata,
		relations: relations,
		metrics:   metrics,
		logger:    logger,
	}
}

// UsagesOf returns every usage of the given chain, sorted by owning-chain
// name then node name. Nodes whose configuration cannot be decoded, whose
// decoded reference mismatches, or whose relations cannot be fetched are
// excluded one by one; a single bad node never aborts the scan.
func (idx *UsageIndex) UsagesOf(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]LabelUsage, error) {
	nodes, err := idx.metadata.FindInputNodesByTarget(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	// Memoized only within this call: chain names may change between
	// requests, so the cache must never outlive one scan.
	chainNames := make(map[string]string)

	usages := make([]LabelUsage, 0, len(nodes))
	for _, node := range nodes {
		// Re-check the stored reference against the decoded configuration.
		// The store already filtered by reference, but the configuration
		// schema of foreign nodes may have drifted.
		cfg, err := node.DecodeInputConfig()
		if err != nil {
			idx.logger.Warn("Failed to decode input node configuration",
				zap.String("tenantID", tenantID.String()),
				zap.String("chainID", chainID.String()),
				zap.String("nodeID", node.ID().String()),
				zap.Error(err),
			)
			idx.metrics.ExcludedUsageNodes.Inc()
			continue
		}
		if cfg.TargetChainID != chainID.String() {
			idx.logger.Warn("Input node reference mismatch",
				zap.String("tenantID", tenantID.String()),
				zap.String("chainID", chainID.String()),
				zap.String("nodeID", node.ID().String()),
				zap.String("decodedTarget", cfg.TargetChainID),
			)
			idx.metrics.ExcludedUsageNodes.Inc()
			continue
		}

		relations, err := idx.relations.GetByNodeID(ctx, tenantID, node.ID())
		if err != nil {
			idx.logger.Warn("Failed to fetch node relations",
				zap.String("tenantID", tenantID.String()),
				zap.String("nodeID", node.ID().String()),
				zap.Error(err),
			)
			continue
		}

		labels := distinctRelationTypes(relations)
		if len(labels) == 0 {
			continue
		}

		chainName, err := idx.chainName(ctx, tenantID, node.ChainID(), chainNames)
		if err != nil {
			idx.logger.Warn("Failed to resolve owning chain name",
				zap.String("tenantID", tenantID.String()),
				zap.String("owningChainID", node.ChainID().String()),
				zap.Error(err),
			)
			continue
		}

		usages = append(usages, LabelUsage{
			NodeID:    node.ID(),
			NodeName:  node.Name(),
			ChainID:   node.ChainID(),
			ChainName: chainName,
			Labels:    labels,
		})
	}

	sort.Slice(usages, func(i, j int) bool {
		if usages[i].ChainName != usages[j].ChainName {
			return usages[i].ChainName < usages[j].ChainName
		}
		return usages[i].NodeName < usages[j].NodeName
	})
	return usages, nil
}

func (idx *UsageIndex) chainName(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, memo map[string]string) (string, error) {
	if name, ok := memo[chainID.String()]; ok {
		return name, nil
	}
	chain, err := idx.chains.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return "", err
	}
	memo[chainID.String()] = chain.Name()
	return chain.Name(), nil
}

func distinctRelationTypes(relations []entities.NodeRelation) []string {
	seen := make(map[string]struct{}, len(relations))
	types := make([]string, 0, len(relations))
	for _, rel := range relations {
		if _, ok := seen[rel.Type]; ok {
			continue
		}
		seen[rel.Type] = struct{}{}
		types = append(types, rel.Type)
	}
	sort.Strings(types)
	return types
}
