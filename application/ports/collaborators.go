package ports

import (
	"context"

	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
)

// ClusterBroadcaster propagates chain lifecycle changes to the rest of
// the cluster. Emitted only for CORE-kind chains.
type ClusterBroadcaster interface {
	BroadcastLifecycle(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, event events.LifecycleEvent) error
}

// EntityNotifier delivers the audit notification for a mutating
// operation. Every mutating call emits exactly one notification,
// successful or not.
type EntityNotifier interface {
	Notify(ctx context.Context, notification events.ChainNotification) error
}

// EdgeGateway carries chain sync messages toward edge devices. Used in
// place of the generic notification whenever the chain is EDGE-kind.
type EdgeGateway interface {
	SendChainEvent(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, action events.EdgeSyncAction) error
}
