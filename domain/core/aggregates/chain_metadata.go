package aggregates

import (
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// ChainMetadata is the full node set and relation set of one chain plus
// the designated entry node. It is loaded and saved as one unit per chain.
type ChainMetadata struct {
	chainID     valueobjects.ChainID
	entryNodeID valueobjects.NodeID
	nodes       []*entities.RuleNode
	relations   []entities.NodeRelation
}

// NewChainMetadata builds a validated metadata unit.
// entryNodeID may be empty for a chain without a designated entry node.
func NewChainMetadata(
	chainID valueobjects.ChainID,
	entryNodeID valueobjects.NodeID,
	nodes []*entities.RuleNode,
	relations []entities.NodeRelation,
) (*ChainMetadata, error) {
	if chainID.IsEmpty() {
		return nil, pkgerrors.NewValidation("chainID is required")
	}

	byID := make(map[string]*entities.RuleNode, len(nodes))
	for _, node := range nodes {
		if node == nil {
			return nil, pkgerrors.NewValidation("metadata cannot contain nil nodes")
		}
		if !node.ChainID().Equals(chainID) {
			return nil, pkgerrors.NewValidation("node belongs to a different chain")
		}
		if _, exists := byID[node.ID().String()]; exists {
			return nil, pkgerrors.NewConflict("duplicate node ID in metadata")
		}
		byID[node.ID().String()] = node
	}

	if !entryNodeID.IsEmpty() {
		if _, ok := byID[entryNodeID.String()]; !ok {
			return nil, pkgerrors.NewValidation("entry node is not part of the metadata")
		}
	}

	for _, rel := range relations {
		if _, ok := byID[rel.FromID.String()]; !ok {
			return nil, pkgerrors.NewValidation("relation source is not part of the metadata")
		}
		if _, ok := byID[rel.ToID.String()]; !ok {
			return nil, pkgerrors.NewValidation("relation target is not part of the metadata")
		}
	}

	return &ChainMetadata{
		chainID:     chainID,
		entryNodeID: entryNodeID,
		nodes:       nodes,
		relations:   relations,
	}, nil
}

// ChainID returns the owning chain's identifier
func (m *ChainMetadata) ChainID() valueobjects.ChainID {
	return m.chainID
}

// EntryNodeID returns the designated entry node, possibly empty
func (m *ChainMetadata) EntryNodeID() valueobjects.NodeID {
	return m.entryNodeID
}

// Nodes returns the node set
func (m *ChainMetadata) Nodes() []*entities.RuleNode {
	nodes := make([]*entities.RuleNode, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// Relations returns the relation set
func (m *ChainMetadata) Relations() []entities.NodeRelation {
	relations := make([]entities.NodeRelation, len(m.relations))
	copy(relations, m.relations)
	return relations
}

// NodeByID looks up a node in the metadata
func (m *ChainMetadata) NodeByID(id valueobjects.NodeID) (*entities.RuleNode, bool) {
	for _, node := range m.nodes {
		if node.ID().Equals(id) {
			return node, true
		}
	}
	return nil, false
}

// OutgoingRelations returns all relations leaving the given node
func (m *ChainMetadata) OutgoingRelations(id valueobjects.NodeID) []entities.NodeRelation {
	var out []entities.NodeRelation
	for _, rel := range m.relations {
		if rel.FromID.Equals(id) {
			out = append(out, rel)
		}
	}
	return out
}
