package services

import (
	"context"

	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/pkg/observability"
)

// RenamePlan is the outcome of diffing a chain's output nodes across a
// metadata save. Renames maps old label to new label; Needed is false
// when the before/after label sets are identical, in which case no
// referencing chain may be touched.
type RenamePlan struct {
	Renames map[string]string
	Needed  bool
}

// Empty reports whether the plan carries no applicable renames
func (p RenamePlan) Empty() bool {
	return !p.Needed || len(p.Renames) == 0
}

// RelabelEngine computes safe output-label rename maps and applies them
// across every chain that references the edited chain.
type RelabelEngine struct {
	usages    *UsageIndex
	relations ports.RelationRepository
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewRelabelEngine creates a new relabel engine
func NewRelabelEngine(
	usages *UsageIndex,
	relations ports.RelationRepository,
	metrics *observability.Collector,
	logger *zap.Logger,
) *RelabelEngine {
	return &RelabelEngine{
		usages:    usages,
		relations: relations,
		metrics:   metrics,
		logger:    logger,
	}
}

// ComputeRenameMap derives the rename plan from the before/after node
// pairs of a metadata save.
//
// A label is dropped from the plan when:
//   - two nodes that used to share it diverged to different new names
//     (the rename is ambiguous, so neither wins), or
//   - the old label still appears in the new label set, meaning another
//     output node legitimately keeps that exact name; rewriting links
//     typed with it would break the surviving label.
//
// When the before/after label sets are equal the plan reports no
// propagation needed: internal churn that nets to the same label surface
// must never touch other chains.
func (e *RelabelEngine) ComputeRenameMap(tenantID valueobjects.TenantID, chainID valueobjects.ChainID, updates []ports.NodeUpdate) RenamePlan {
	oldLabels := make(map[string]struct{})
	newLabels := make(map[string]struct{})
	confused := make(map[string]struct{})
	renames := make(map[string]string)

	for _, update := range updates {
		if update.Old == nil || !update.New.IsOutput() {
			continue
		}
		oldName := update.Old.Name()
		newName := update.New.Name()
		oldLabels[oldName] = struct{}{}
		newLabels[newName] = struct{}{}
		if oldName == newName {
			continue
		}
		if existing, ok := renames[oldName]; ok && existing != newName {
			confused[oldName] = struct{}{}
			e.logger.Warn("Cannot automatically rename label due to conflict",
				zap.String("tenantID", tenantID.String()),
				zap.String("chainID", chainID.String()),
				zap.String("oldLabel", oldName),
				zap.String("newLabel", newName),
				zap.String("conflictingLabel", existing),
			)
			continue
		}
		renames[oldName] = newName
	}

	// Remove labels renamed to two or more different names; there is no
	// way to know which new label to use.
	for label := range confused {
		delete(renames, label)
		e.metrics.ConfusedLabels.Inc()
	}
	// Remove renames whose target is still a live label in the chain.
	for label := range newLabels {
		delete(renames, label)
	}

	return RenamePlan{
		Renames: renames,
		Needed:  !labelSetsEqual(oldLabels, newLabels),
	}
}

// Apply rewrites the labeled relations of every usage of the chain
// according to the plan and returns the distinct set of affected chain
// ids for the caller to reload and re-notify.
//
// Each relation is rewritten as delete-then-create; the two steps are not
// atomic, so a crash in between leaves a dangling link. Accepted risk.
func (e *RelabelEngine) Apply(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, plan RenamePlan) ([]valueobjects.ChainID, error) {
	if plan.Empty() {
		e.metrics.PropagationSkipped.Inc()
		return nil, nil
	}
	e.metrics.PropagationRuns.Inc()
	e.logger.Debug("Going to update links in related rule chains",
		zap.String("tenantID", tenantID.String()),
		zap.String("chainID", chainID.String()),
		zap.Int("renames", len(plan.Renames)),
	)

	usages, err := e.usages.UsagesOf(ctx, tenantID, chainID)
	if err != nil {
		return nil, err
	}

	affected := make(map[string]valueobjects.ChainID)
	for _, usage := range usages {
		for oldLabel, newLabel := range plan.Renames {
			if !usage.HasLabel(oldLabel) {
				continue
			}
			affected[usage.ChainID.String()] = usage.ChainID
			if err := e.renameOutgoingLinks(ctx, tenantID, usage.NodeID, oldLabel, newLabel); err != nil {
				return nil, err
			}
		}
	}

	ids := make([]valueobjects.ChainID, 0, len(affected))
	for _, id := range affected {
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *RelabelEngine) renameOutgoingLinks(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID, oldLabel, newLabel string) error {
	relations, err := e.relations.GetByNodeID(ctx, tenantID, nodeID)
	if err != nil {
		return err
	}
	for _, relation := range relations {
		if relation.Type != oldLabel {
			continue
		}
		if err := e.relations.Delete(ctx, tenantID, relation); err != nil {
			return err
		}
		if err := e.relations.Save(ctx, tenantID, relation.WithType(newLabel)); err != nil {
			return err
		}
		e.metrics.LinksRenamed.Inc()
	}
	return nil
}

func labelSetsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for label := range a {
		if _, ok := b[label]; !ok {
			return false
		}
	}
	return true
}
