package entities

import (
	"strings"

	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// NodeRelation is a directed, labeled connection between two rule nodes
// within one chain. The Type string is the link label; several relations
// may leave the same node with different types.
//
// A relation has no synthetic identity: it is keyed by (from, to, type).
type NodeRelation struct {
	FromID valueobjects.NodeID
	ToID   valueobjects.NodeID
	Type   string
}

// NewNodeRelation creates a validated relation
func NewNodeRelation(from, to valueobjects.NodeID, relationType string) (NodeRelation, error) {
	if from.IsEmpty() || to.IsEmpty() {
		return NodeRelation{}, pkgerrors.NewValidation("relation endpoints cannot be empty")
	}
	if strings.TrimSpace(relationType) == "" {
		return NodeRelation{}, pkgerrors.NewValidation("relation type cannot be empty")
	}
	return NodeRelation{FromID: from, ToID: to, Type: relationType}, nil
}

// Equals compares two relations by their full key
func (r NodeRelation) Equals(other NodeRelation) bool {
	return r.FromID.Equals(other.FromID) && r.ToID.Equals(other.ToID) && r.Type == other.Type
}

// WithType returns a copy of the relation carrying a different label
func (r NodeRelation) WithType(relationType string) NodeRelation {
	return NodeRelation{FromID: r.FromID, ToID: r.ToID, Type: relationType}
}
