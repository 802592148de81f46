package events

import (
	"time"

	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/valueobjects"
)

// SourceBackend identifies this service as the event source on the bus
const SourceBackend = "rulechain.backend"

// LifecycleEvent is the cluster-visible state change of a chain.
// Lifecycle events are broadcast only for CORE-kind chains; EDGE chains
// are synchronized through the edge channel instead.
type LifecycleEvent string

const (
	LifecycleCreated LifecycleEvent = "CREATED"
	LifecycleUpdated LifecycleEvent = "UPDATED"
	LifecycleDeleted LifecycleEvent = "DELETED"
)

// ActionType classifies a mutating operation for the audit notification
type ActionType string

const (
	ActionAdded                    ActionType = "ADDED"
	ActionUpdated                  ActionType = "UPDATED"
	ActionDeleted                  ActionType = "DELETED"
	ActionAssignedToEdgeDevice     ActionType = "ASSIGNED_TO_EDGE"
	ActionUnassignedFromEdgeDevice ActionType = "UNASSIGNED_FROM_EDGE"
)

// EdgeSyncAction is the action tag carried by an edge-sync message
type EdgeSyncAction string

const (
	EdgeSyncUpdated EdgeSyncAction = "UPDATED"
	EdgeSyncDeleted EdgeSyncAction = "DELETED"
)

// ChainNotification is the audit record emitted exactly once per mutating
// operation, on both the success and the failure path.
type ChainNotification struct {
	TenantID valueobjects.TenantID
	ChainID  valueobjects.ChainID
	Action   ActionType
	Success  bool

	// Cause carries the failure on unsuccessful operations, nil otherwise
	Cause error

	// Chain is the resulting entity on success, the attempted entity on
	// failure; may be nil when the entity no longer exists
	Chain *aggregates.RuleChain

	// Metadata accompanies metadata-save notifications
	Metadata *aggregates.ChainMetadata

	// EdgeDeviceID is set for assign/unassign notifications
	EdgeDeviceID valueobjects.EdgeDeviceID

	// RelatedEdgeDeviceIDs accompanies EDGE-kind delete notifications so
	// downstream cleanup knows which devices held the chain
	RelatedEdgeDeviceIDs []valueobjects.EdgeDeviceID

	Timestamp time.Time
}
