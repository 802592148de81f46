package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/valueobjects"
)

// OutputLabelResolver extracts the externally consumable label surface of
// a chain: the deduplicated, ordered names of its output nodes.
type OutputLabelResolver struct {
	metadata ports.MetadataRepository
	logger   *zap.Logger
}

// NewOutputLabelResolver creates a new resolver
func NewOutputLabelResolver(metadata ports.MetadataRepository, logger *zap.Logger) *OutputLabelResolver {
	return &OutputLabelResolver{
		metadata: metadata,
		logger:   logger,
	}
}

// OutputLabels returns the chain's output labels as a lexicographically
// sorted, duplicate-free slice. Ordering is stable regardless of how the
// store returns the nodes; two output nodes sharing a name yield one label.
func (r *OutputLabelResolver) OutputLabels(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]string, error) {
	metadata, err := r.metadata.Load(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	labels := make([]string, 0)
	for _, node := range metadata.Nodes() {
		if !node.IsOutput() {
			continue
		}
		if _, ok := seen[node.Name()]; ok {
			continue
		}
		seen[node.Name()] = struct{}{}
		labels = append(labels, node.Name())
	}
	sort.Strings(labels)

	r.logger.Debug("Resolved output labels",
		zap.String("tenantID", tenantID.String()),
		zap.String("chainID", chainID.String()),
		zap.Strings("labels", labels),
	)
	return labels, nil
}
