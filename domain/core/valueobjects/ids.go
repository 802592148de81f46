package valueobjects

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "rulechain-backend/pkg/errors"
)

// TenantID is a value object scoping every entity to one tenant
type TenantID struct {
	value string
}

// NewTenantID creates a TenantID from a string with validation
func NewTenantID(id string) (TenantID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return TenantID{}, pkgerrors.NewValidation("tenant ID cannot be empty")
	}
	return TenantID{value: id}, nil
}

// String returns the string representation of the TenantID
func (id TenantID) String() string {
	return id.value
}

// Equals checks if two TenantIDs are equal
func (id TenantID) Equals(other TenantID) bool {
	return id.value == other.value
}

// IsEmpty checks if the TenantID is empty
func (id TenantID) IsEmpty() bool {
	return id.value == ""
}

// ChainID is a value object that ensures valid rule chain identifiers
type ChainID struct {
	value string
}

// NewChainID creates a new random ChainID
func NewChainID() ChainID {
	return ChainID{value: uuid.New().String()}
}

// ParseChainID creates a ChainID from a string, validating it's a proper UUID
func ParseChainID(id string) (ChainID, error) {
	if strings.TrimSpace(id) == "" {
		return ChainID{}, pkgerrors.NewValidation("chain ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return ChainID{}, pkgerrors.NewValidation("chain ID must be a valid UUID")
	}
	return ChainID{value: id}, nil
}

// String returns the string representation of the ChainID
func (id ChainID) String() string {
	return id.value
}

// Equals checks if two ChainIDs are equal
func (id ChainID) Equals(other ChainID) bool {
	return id.value == other.value
}

// IsEmpty checks if the ChainID is empty
func (id ChainID) IsEmpty() bool {
	return id.value == ""
}

// NodeID is a value object that ensures valid rule node identifiers
type NodeID struct {
	value string
}

// NewNodeID creates a new random NodeID
func NewNodeID() NodeID {
	return NodeID{value: uuid.New().String()}
}

// ParseNodeID creates a NodeID from a string, validating it's a proper UUID
func ParseNodeID(id string) (NodeID, error) {
	if strings.TrimSpace(id) == "" {
		return NodeID{}, pkgerrors.NewValidation("node ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return NodeID{}, pkgerrors.NewValidation("node ID must be a valid UUID")
	}
	return NodeID{value: id}, nil
}

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return id.value
}

// Equals checks if two NodeIDs are equal
func (id NodeID) Equals(other NodeID) bool {
	return id.value == other.value
}

// IsEmpty checks if the NodeID is empty
func (id NodeID) IsEmpty() bool {
	return id.value == ""
}

// EdgeDeviceID identifies an edge gateway device a chain can be assigned to
type EdgeDeviceID struct {
	value string
}

// NewEdgeDeviceID creates a new random EdgeDeviceID
func NewEdgeDeviceID() EdgeDeviceID {
	return EdgeDeviceID{value: uuid.New().String()}
}

// ParseEdgeDeviceID creates an EdgeDeviceID from a string
func ParseEdgeDeviceID(id string) (EdgeDeviceID, error) {
	if strings.TrimSpace(id) == "" {
		return EdgeDeviceID{}, pkgerrors.NewValidation("edge device ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return EdgeDeviceID{}, pkgerrors.NewValidation("edge device ID must be a valid UUID")
	}
	return EdgeDeviceID{value: id}, nil
}

// String returns the string representation of the EdgeDeviceID
func (id EdgeDeviceID) String() string {
	return id.value
}

// Equals checks if two EdgeDeviceIDs are equal
func (id EdgeDeviceID) Equals(other EdgeDeviceID) bool {
	return id.value == other.value
}

// IsEmpty checks if the EdgeDeviceID is empty
func (id EdgeDeviceID) IsEmpty() bool {
	return id.value == ""
}
