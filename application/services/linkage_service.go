package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
	pkgerrors "rulechain-backend/pkg/errors"
	"rulechain-backend/pkg/observability"
)

// LinkageService orchestrates chain lifecycle operations and keeps the
// links between chains consistent. Every mutating operation follows the
// same envelope: attempt the storage mutation, then broadcast and notify
// on success, or notify with the attempted entity and the failure cause
// and re-signal the failure. Exactly one audit notification is emitted
// per call regardless of outcome.
//
// All operations are synchronous and request-scoped; the service owns no
// goroutines. Propagation performs one read-modify-write sequence per
// affected chain without a cross-chain lock, so concurrent edits of
// chains sharing a referencer may race. Accepted eventual-consistency
// trade-off.
type LinkageService struct {
	chains      ports.ChainRepository
	metadata    ports.MetadataRepository
	resolver    *OutputLabelResolver
	usageIndex  *UsageIndex
	relabel     *RelabelEngine
	broadcaster ports.ClusterBroadcaster
	notifier    ports.EntityNotifier
	edgeGateway ports.EdgeGateway
	metrics     *observability.Collector
	logger      *zap.Logger
}

// NewLinkageService creates a new linkage service
func NewLinkageService(
	chains ports.ChainRepository,
	metadata ports.MetadataRepository,
	resolver *OutputLabelResolver,
	usageIndex *UsageIndex,
	relabel *RelabelEngine,
	broadcaster ports.ClusterBroadcaster,
	notifier ports.EntityNotifier,
	edgeGateway ports.EdgeGateway,
	metrics *observability.Collector,
	logger *zap.Logger,
) *LinkageService {
	return &LinkageService{
		chains:      chains,
		metadata:    metadata,
		resolver:    resolver,
		usageIndex:  usageIndex,
		relabel:     relabel,
		broadcaster: broadcaster,
		notifier:    notifier,
		edgeGateway: edgeGateway,
		metrics:     metrics,
		logger:      logger,
	}
}

// OutputLabels returns the chain's externally consumable labels
func (s *LinkageService) OutputLabels(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]string, error) {
	return s.resolver.OutputLabels(ctx, tenantID, chainID)
}

// Usages returns every input node referencing the chain
func (s *LinkageService) Usages(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]LabelUsage, error) {
	return s.usageIndex.UsagesOf(ctx, tenantID, chainID)
}

// GetChain loads one chain
func (s *LinkageService) GetChain(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.RuleChain, error) {
	return s.chains.GetByID(ctx, tenantID, chainID)
}

// LoadMetadata loads the chain's full metadata unit
func (s *LinkageService) LoadMetadata(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.ChainMetadata, error) {
	return s.metadata.Load(ctx, tenantID, chainID)
}

// SaveChain creates or updates a chain. A chain without prior identity is
// classified as Added, otherwise Updated. Lifecycle events are broadcast
// for CORE-kind chains only.
func (s *LinkageService) SaveChain(ctx context.Context, chain *aggregates.RuleChain) (*aggregates.RuleChain, error) {
	tenantID := chain.TenantID()
	action := events.ActionUpdated
	if chain.ID().IsEmpty() {
		action = events.ActionAdded
	}

	saved, err := s.chains.Save(ctx, chain)
	if err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chain.ID(),
			Action:   action,
			Chain:    chain,
			Cause:    err,
		})
		return nil, pkgerrors.Wrap(err, "failed to save chain")
	}

	if saved.IsCore() {
		event := events.LifecycleUpdated
		if action == events.ActionAdded {
			event = events.LifecycleCreated
		}
		s.broadcast(ctx, tenantID, saved.ID(), event)
	}
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID: tenantID,
		ChainID:  saved.ID(),
		Action:   action,
		Chain:    saved,
	})
	return saved, nil
}

// SaveDefaultByName creates a CORE chain with the given name and an empty
// metadata unit, for tenants bootstrapping their first flow.
func (s *LinkageService) SaveDefaultByName(ctx context.Context, tenantID valueobjects.TenantID, name string) (*aggregates.RuleChain, error) {
	chain, err := aggregates.NewRuleChain(tenantID, name, aggregates.KindCore)
	if err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			Action:   events.ActionAdded,
			Cause:    err,
		})
		return nil, err
	}

	saved, err := s.chains.Save(ctx, chain)
	if err == nil {
		var md *aggregates.ChainMetadata
		md, err = aggregates.NewChainMetadata(saved.ID(), valueobjects.NodeID{}, nil, nil)
		if err == nil {
			_, err = s.metadata.Save(ctx, tenantID, md)
		}
	}
	if err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			Action:   events.ActionAdded,
			Chain:    chain,
			Cause:    err,
		})
		return nil, pkgerrors.Wrap(err, "failed to create default chain")
	}

	s.broadcast(ctx, tenantID, saved.ID(), events.LifecycleCreated)
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID: tenantID,
		ChainID:  saved.ID(),
		Action:   events.ActionAdded,
		Chain:    saved,
	})
	return saved, nil
}

// DeleteChain removes a chain. Referencing nodes are collected before the
// deletion, because afterwards the chain itself would read as a dangling
// reference. CORE-kind deletions broadcast Updated to every referencing
// chain (excluding the deleted chain itself) and Deleted for the chain;
// EDGE-kind deletions never broadcast but report the related edge device
// ids in the delete notification.
func (s *LinkageService) DeleteChain(ctx context.Context, chain *aggregates.RuleChain) error {
	tenantID := chain.TenantID()
	chainID := chain.ID()

	fail := func(err error) error {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionDeleted,
			Cause:    err,
		})
		return pkgerrors.Wrap(err, "failed to delete chain")
	}

	referencing, err := s.chains.FindReferencingInputNodes(ctx, tenantID, chainID)
	if err != nil {
		return fail(err)
	}
	referencingChainIDs := make(map[string]valueobjects.ChainID)
	for _, node := range referencing {
		if node.ChainID().Equals(chainID) {
			continue
		}
		referencingChainIDs[node.ChainID().String()] = node.ChainID()
	}

	var relatedDevices []valueobjects.EdgeDeviceID
	if chain.IsEdge() {
		relatedDevices, err = s.chains.FindRelatedEdgeDeviceIDs(ctx, tenantID, chainID)
		if err != nil {
			return fail(err)
		}
	}

	if err := s.chains.Delete(ctx, tenantID, chainID); err != nil {
		return fail(err)
	}

	if chain.IsCore() {
		for _, refID := range referencingChainIDs {
			s.broadcast(ctx, tenantID, refID, events.LifecycleUpdated)
		}
		s.broadcast(ctx, tenantID, chainID, events.LifecycleDeleted)
	}

	s.notifySuccess(ctx, events.ChainNotification{
		TenantID:             tenantID,
		ChainID:              chainID,
		Action:               events.ActionDeleted,
		Chain:                chain,
		RelatedEdgeDeviceIDs: relatedDevices,
	})
	return nil
}

// SetRootChain designates the chain as the tenant's entry point. The
// previous root, if any, is reloaded and announced as Updated; the new
// root always is.
func (s *LinkageService) SetRootChain(ctx context.Context, chain *aggregates.RuleChain) (*aggregates.RuleChain, error) {
	tenantID := chain.TenantID()
	chainID := chain.ID()

	fail := func(err error) (*aggregates.RuleChain, error) {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionUpdated,
			Chain:    chain,
			Cause:    err,
		})
		return nil, pkgerrors.Wrap(err, "failed to set root chain")
	}

	previous, err := s.chains.GetRoot(ctx, tenantID)
	if err != nil && !pkgerrors.IsNotFound(err) {
		return fail(err)
	}

	changed, err := s.chains.SetRoot(ctx, tenantID, chainID)
	if err != nil {
		return fail(err)
	}
	if !changed {
		// Already root; still announce the (unchanged) chain exactly once.
		s.notifySuccess(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionUpdated,
			Chain:    chain,
		})
		return chain, nil
	}

	if previous != nil && !previous.ID().Equals(chainID) {
		reloaded, err := s.chains.GetByID(ctx, tenantID, previous.ID())
		if err != nil {
			return fail(err)
		}
		if reloaded.IsCore() {
			s.broadcast(ctx, tenantID, reloaded.ID(), events.LifecycleUpdated)
		}
		s.notifySuccess(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  reloaded.ID(),
			Action:   events.ActionUpdated,
			Chain:    reloaded,
		})
	}

	reloaded, err := s.chains.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return fail(err)
	}
	if reloaded.IsCore() {
		s.broadcast(ctx, tenantID, chainID, events.LifecycleUpdated)
	}
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID: tenantID,
		ChainID:  chainID,
		Action:   events.ActionUpdated,
		Chain:    reloaded,
	})
	return reloaded, nil
}

// SaveMetadata persists a chain's metadata unit and, when propagation is
// requested, renames the output labels in every referencing chain's
// relations. CORE-kind chains broadcast Updated for themselves and every
// affected chain; EDGE-kind chains send edge-sync messages instead of the
// generic notification.
func (s *LinkageService) SaveMetadata(ctx context.Context, chain *aggregates.RuleChain, metadata *aggregates.ChainMetadata, propagate bool) (*aggregates.ChainMetadata, error) {
	tenantID := chain.TenantID()
	chainID := metadata.ChainID()

	fail := func(err error) (*aggregates.ChainMetadata, error) {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionUpdated,
			Chain:    chain,
			Metadata: metadata,
			Cause:    err,
		})
		return nil, pkgerrors.Wrap(err, "failed to save chain metadata")
	}

	result, err := s.metadata.Save(ctx, tenantID, metadata)
	if err != nil {
		return fail(err)
	}
	if !result.Success {
		return fail(pkgerrors.NewInternal("metadata save reported failure", nil))
	}

	var affected []valueobjects.ChainID
	if propagate {
		plan := s.relabel.ComputeRenameMap(tenantID, chainID, result.Updated)
		affected, err = s.relabel.Apply(ctx, tenantID, chainID, plan)
		if err != nil {
			return fail(err)
		}
	}

	saved, err := s.metadata.Load(ctx, tenantID, chainID)
	if err != nil {
		return fail(err)
	}

	if chain.IsCore() {
		s.broadcast(ctx, tenantID, chainID, events.LifecycleUpdated)
		for _, affectedID := range affected {
			s.broadcast(ctx, tenantID, affectedID, events.LifecycleUpdated)
		}
	}

	if chain.IsEdge() {
		s.sendEdgeSync(ctx, tenantID, chainID, events.EdgeSyncUpdated)
	} else {
		s.notifySuccess(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionUpdated,
			Chain:    chain,
			Metadata: saved,
		})
	}

	for _, affectedID := range affected {
		if chain.IsEdge() {
			s.sendEdgeSync(ctx, tenantID, affectedID, events.EdgeSyncUpdated)
			continue
		}
		affectedChain, err := s.chains.GetByID(ctx, tenantID, affectedID)
		if err != nil {
			s.logger.Warn("Affected chain vanished during propagation",
				zap.String("tenantID", tenantID.String()),
				zap.String("chainID", affectedID.String()),
				zap.Error(err),
			)
			continue
		}
		affectedMetadata, err := s.metadata.Load(ctx, tenantID, affectedID)
		if err != nil {
			s.logger.Warn("Failed to reload affected chain metadata",
				zap.String("tenantID", tenantID.String()),
				zap.String("chainID", affectedID.String()),
				zap.Error(err),
			)
			continue
		}
		s.notifySuccess(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  affectedID,
			Action:   events.ActionUpdated,
			Chain:    affectedChain,
			Metadata: affectedMetadata,
		})
	}

	return saved, nil
}

// AssignToEdgeDevice links the chain to an edge device
func (s *LinkageService) AssignToEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	saved, err := s.chains.AssignToEdgeDevice(ctx, tenantID, chainID, deviceID)
	if err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID:     tenantID,
			ChainID:      chainID,
			Action:       events.ActionAssignedToEdgeDevice,
			EdgeDeviceID: deviceID,
			Cause:        err,
		})
		return nil, pkgerrors.Wrap(err, "failed to assign chain to edge device")
	}
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID:     tenantID,
		ChainID:      chainID,
		Action:       events.ActionAssignedToEdgeDevice,
		Chain:        saved,
		EdgeDeviceID: deviceID,
	})
	return saved, nil
}

// UnassignFromEdgeDevice removes the link between the chain and a device
func (s *LinkageService) UnassignFromEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	saved, err := s.chains.UnassignFromEdgeDevice(ctx, tenantID, chainID, deviceID)
	if err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID:     tenantID,
			ChainID:      chainID,
			Action:       events.ActionUnassignedFromEdgeDevice,
			EdgeDeviceID: deviceID,
			Cause:        err,
		})
		return nil, pkgerrors.Wrap(err, "failed to unassign chain from edge device")
	}
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID:     tenantID,
		ChainID:      chainID,
		Action:       events.ActionUnassignedFromEdgeDevice,
		Chain:        saved,
		EdgeDeviceID: deviceID,
	})
	return saved, nil
}

// SetEdgeTemplateRoot marks the chain as the edge template root
func (s *LinkageService) SetEdgeTemplateRoot(ctx context.Context, chain *aggregates.RuleChain) error {
	return s.flagMutation(ctx, chain, s.chains.SetEdgeTemplateRoot)
}

// SetAutoAssignToEdge enables automatic assignment to new edge devices
func (s *LinkageService) SetAutoAssignToEdge(ctx context.Context, chain *aggregates.RuleChain) error {
	return s.flagMutation(ctx, chain, s.chains.SetAutoAssignToEdge)
}

// UnsetAutoAssignToEdge disables automatic assignment
func (s *LinkageService) UnsetAutoAssignToEdge(ctx context.Context, chain *aggregates.RuleChain) error {
	return s.flagMutation(ctx, chain, s.chains.UnsetAutoAssignToEdge)
}

func (s *LinkageService) flagMutation(ctx context.Context, chain *aggregates.RuleChain, mutate func(context.Context, valueobjects.TenantID, valueobjects.ChainID) error) error {
	tenantID := chain.TenantID()
	chainID := chain.ID()

	if err := mutate(ctx, tenantID, chainID); err != nil {
		s.notifyFailure(ctx, events.ChainNotification{
			TenantID: tenantID,
			ChainID:  chainID,
			Action:   events.ActionUpdated,
			Chain:    chain,
			Cause:    err,
		})
		return pkgerrors.Wrap(err, "failed to update chain flags")
	}
	s.notifySuccess(ctx, events.ChainNotification{
		TenantID: tenantID,
		ChainID:  chainID,
		Action:   events.ActionUpdated,
		Chain:    chain,
	})
	return nil
}

// broadcast delivers a lifecycle event; broadcast failures are logged,
// never escalated, so a flaky cluster channel cannot fail a committed
// storage mutation.
func (s *LinkageService) broadcast(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, event events.LifecycleEvent) {
	if err := s.broadcaster.BroadcastLifecycle(ctx, tenantID, chainID, event); err != nil {
		s.logger.Error("Failed to broadcast lifecycle event",
			zap.String("tenantID", tenantID.String()),
			zap.String("chainID", chainID.String()),
			zap.String("event", string(event)),
			zap.Error(err),
		)
		return
	}
	s.metrics.Broadcasts.WithLabelValues(string(event)).Inc()
}

func (s *LinkageService) sendEdgeSync(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, action events.EdgeSyncAction) {
	if err := s.edgeGateway.SendChainEvent(ctx, tenantID, chainID, action); err != nil {
		s.logger.Error("Failed to send edge sync message",
			zap.String("tenantID", tenantID.String()),
			zap.String("chainID", chainID.String()),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

func (s *LinkageService) notifySuccess(ctx context.Context, notification events.ChainNotification) {
	notification.Success = true
	s.notify(ctx, notification)
}

func (s *LinkageService) notifyFailure(ctx context.Context, notification events.ChainNotification) {
	notification.Success = false
	s.notify(ctx, notification)
}

func (s *LinkageService) notify(ctx context.Context, notification events.ChainNotification) {
	notification.Timestamp = time.Now()
	outcome := "success"
	if !notification.Success {
		outcome = "failure"
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger.Error("Failed to deliver notification",
			zap.String("tenantID", notification.TenantID.String()),
			zap.String("chainID", notification.ChainID.String()),
			zap.String("action", string(notification.Action)),
			zap.Error(err),
		)
		s.metrics.Notifications.WithLabelValues(string(notification.Action), "delivery_error").Inc()
		return
	}
	s.metrics.Notifications.WithLabelValues(string(notification.Action), outcome).Inc()
}
