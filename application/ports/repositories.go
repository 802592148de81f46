package ports

import (
	"context"

	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
)

// ChainRepository defines the interface for rule chain persistence.
// This is a port in hexagonal architecture - the domain doesn't know
// about the implementation.
type ChainRepository interface {
	// Save persists a chain (create or update) and returns the stored state
	Save(ctx context.Context, chain *aggregates.RuleChain) (*aggregates.RuleChain, error)

	// GetByID retrieves a chain; returns a NotFound error when absent
	GetByID(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.RuleChain, error)

	// Delete removes a chain together with its metadata
	Delete(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error

	// GetRoot retrieves the tenant's root chain; NotFound when none is set
	GetRoot(ctx context.Context, tenantID valueobjects.TenantID) (*aggregates.RuleChain, error)

	// SetRoot atomically moves the root designation to the given chain.
	// Returns false when the chain was already root.
	SetRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (bool, error)

	// FindReferencingInputNodes returns every input node, in any chain of
	// the tenant, whose configuration references the given chain
	FindReferencingInputNodes(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]*entities.RuleNode, error)

	// FindRelatedEdgeDeviceIDs returns the edge devices the chain is
	// currently assigned to
	FindRelatedEdgeDeviceIDs(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]valueobjects.EdgeDeviceID, error)

	// AssignToEdgeDevice links a chain to an edge device
	AssignToEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error)

	// UnassignFromEdgeDevice removes the link between a chain and a device
	UnassignFromEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error)

	// SetEdgeTemplateRoot marks the chain as the template root for newly
	// provisioned edge devices
	SetEdgeTemplateRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error

	// SetAutoAssignToEdge enables automatic assignment to new edge devices
	SetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error

	// UnsetAutoAssignToEdge disables automatic assignment
	UnsetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error
}

// NodeUpdate pairs the before/after state of one node across a metadata save
type NodeUpdate struct {
	Old *entities.RuleNode
	New *entities.RuleNode
}

// MetadataSaveResult is the explicit outcome of a metadata save. Success
// and the per-node diff are reported by value instead of by exception so
// the relabel engine can stay pure.
type MetadataSaveResult struct {
	Success bool

	// Updated lists nodes that existed before and after the save, paired
	// by identity. Added and removed nodes are not part of the diff.
	Updated []NodeUpdate
}

// MetadataRepository defines the interface for chain metadata persistence
type MetadataRepository interface {
	// Load retrieves the full metadata unit; NotFound when the chain has none
	Load(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.ChainMetadata, error)

	// Save persists the metadata unit and reports the node diff
	Save(ctx context.Context, tenantID valueobjects.TenantID, metadata *aggregates.ChainMetadata) (*MetadataSaveResult, error)

	// FindInputNodesByTarget returns input nodes across the tenant whose
	// stored configuration reference equals the target chain id. Callers
	// still re-check the decoded configuration defensively.
	FindInputNodesByTarget(ctx context.Context, tenantID valueobjects.TenantID, target valueobjects.ChainID) ([]*entities.RuleNode, error)
}

// RelationRepository defines the interface for node relation persistence
type RelationRepository interface {
	// GetByNodeID returns all relations leaving the given node
	GetByNodeID(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID) ([]entities.NodeRelation, error)

	// Delete removes one relation by its (from, to, type) key
	Delete(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error

	// Save persists one relation
	Save(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error
}
