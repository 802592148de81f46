package aggregates

import (
	"strings"
	"time"

	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// ChainKind distinguishes chains executed in the core cluster from chains
// templated for edge gateway devices
type ChainKind string

const (
	KindCore ChainKind = "CORE"
	KindEdge ChainKind = "EDGE"
)

// ParseChainKind validates a stored kind tag
func ParseChainKind(kind string) (ChainKind, error) {
	switch ChainKind(strings.ToUpper(strings.TrimSpace(kind))) {
	case KindCore:
		return KindCore, nil
	case KindEdge:
		return KindEdge, nil
	default:
		return "", pkgerrors.NewValidation("chain kind must be CORE or EDGE")
	}
}

// RuleChain is the aggregate root for one named processing graph.
// Node and relation lifetimes are scoped to the chain's metadata; the
// aggregate itself only carries identity, kind and the root designation.
type RuleChain struct {
	id               valueobjects.ChainID
	tenantID         valueobjects.TenantID
	kind             ChainKind
	name             string
	root             bool
	debugMode        bool
	autoAssignToEdge bool
	version          int
	createdAt        time.Time
	updatedAt        time.Time
}

// NewRuleChain creates a new chain with full validation. The chain has
// no identity yet; the repository assigns one on first save, which is
// how a save is classified as a creation rather than an update.
func NewRuleChain(tenantID valueobjects.TenantID, name string, kind ChainKind) (*RuleChain, error) {
	if tenantID.IsEmpty() {
		return nil, pkgerrors.NewValidation("tenantID is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidation("chain name is required")
	}
	if kind != KindCore && kind != KindEdge {
		return nil, pkgerrors.NewValidation("chain kind must be CORE or EDGE")
	}

	now := time.Now()
	return &RuleChain{
		tenantID:  tenantID,
		kind:      kind,
		name:      name,
		version:   1,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructRuleChain reconstructs a chain from repository data with
// preserved identity and timestamps
func ReconstructRuleChain(
	id valueobjects.ChainID,
	tenantID valueobjects.TenantID,
	kind ChainKind,
	name string,
	root bool,
	debugMode bool,
	autoAssignToEdge bool,
	version int,
	createdAt, updatedAt time.Time,
) (*RuleChain, error) {
	if id.IsEmpty() {
		return nil, pkgerrors.NewValidation("chain ID is required")
	}
	if tenantID.IsEmpty() {
		return nil, pkgerrors.NewValidation("tenantID is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidation("chain name is required")
	}

	return &RuleChain{
		id:               id,
		tenantID:         tenantID,
		kind:             kind,
		name:             name,
		root:             root,
		debugMode:        debugMode,
		autoAssignToEdge: autoAssignToEdge,
		version:          version,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}, nil
}

// ID returns the chain's unique identifier
func (c *RuleChain) ID() valueobjects.ChainID {
	return c.id
}

// TenantID returns the owning tenant
func (c *RuleChain) TenantID() valueobjects.TenantID {
	return c.tenantID
}

// Kind returns the chain kind
func (c *RuleChain) Kind() ChainKind {
	return c.kind
}

// IsCore reports whether lifecycle events for this chain are broadcast
// to the cluster
func (c *RuleChain) IsCore() bool {
	return c.kind == KindCore
}

// IsEdge reports whether this chain is synchronized through the edge
// channel instead of the cluster broadcast
func (c *RuleChain) IsEdge() bool {
	return c.kind == KindEdge
}

// Name returns the chain's display name
func (c *RuleChain) Name() string {
	return c.name
}

// Rename changes the chain's display name
func (c *RuleChain) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.NewValidation("chain name is required")
	}
	c.name = name
	c.touch()
	return nil
}

// IsRoot reports whether this chain is the tenant's entry point
func (c *RuleChain) IsRoot() bool {
	return c.root
}

// MarkRoot flips the root designation
func (c *RuleChain) MarkRoot(root bool) {
	if c.root == root {
		return
	}
	c.root = root
	c.touch()
}

// DebugMode reports whether per-message debug output is enabled
func (c *RuleChain) DebugMode() bool {
	return c.debugMode
}

// SetDebugMode toggles per-message debug output
func (c *RuleChain) SetDebugMode(enabled bool) {
	if c.debugMode == enabled {
		return
	}
	c.debugMode = enabled
	c.touch()
}

// AutoAssignToEdge reports whether new edge devices receive this chain
// automatically
func (c *RuleChain) AutoAssignToEdge() bool {
	return c.autoAssignToEdge
}

// SetAutoAssignToEdge toggles automatic assignment to new edge devices
func (c *RuleChain) SetAutoAssignToEdge(enabled bool) {
	if c.autoAssignToEdge == enabled {
		return
	}
	c.autoAssignToEdge = enabled
	c.touch()
}

// Version returns the chain's version for optimistic locking
func (c *RuleChain) Version() int {
	return c.version
}

// CreatedAt returns when the chain was created
func (c *RuleChain) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the chain was last updated
func (c *RuleChain) UpdatedAt() time.Time {
	return c.updatedAt
}

func (c *RuleChain) touch() {
	c.updatedAt = time.Now()
	c.version++
}
