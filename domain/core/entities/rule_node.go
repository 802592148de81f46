package entities

import (
	"encoding/json"
	"strings"

	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// NodeType classifies a rule node for link management purposes.
// It is a closed enum assigned at construction; everything that is not an
// input or output node is NodeTypeOther and ignored by the linkage logic.
type NodeType string

const (
	NodeTypeInput  NodeType = "INPUT"
	NodeTypeOutput NodeType = "OUTPUT"
	NodeTypeOther  NodeType = "OTHER"
)

// ParseNodeType maps a stored type tag onto the closed enum.
// Unknown tags deliberately collapse to NodeTypeOther.
func ParseNodeType(tag string) NodeType {
	switch NodeType(strings.ToUpper(strings.TrimSpace(tag))) {
	case NodeTypeInput:
		return NodeTypeInput
	case NodeTypeOutput:
		return NodeTypeOutput
	default:
		return NodeTypeOther
	}
}

// String returns the stored tag for the node type
func (t NodeType) String() string {
	return string(t)
}

// InputConfig is the decoded configuration of an input node.
// Only the target chain reference matters to the linkage subsystem; the
// rest of the blob stays opaque.
type InputConfig struct {
	TargetChainID string `json:"targetChainId"`
}

// RuleNode is one processing node inside a rule chain.
// For output nodes the display name doubles as the externally visible
// label; for input nodes the configuration encodes the invoked chain id.
type RuleNode struct {
	id            valueobjects.NodeID
	chainID       valueobjects.ChainID
	nodeType      NodeType
	name          string
	configuration json.RawMessage
}

// NewRuleNode creates a rule node with a fresh identity
func NewRuleNode(chainID valueobjects.ChainID, nodeType NodeType, name string, configuration json.RawMessage) (*RuleNode, error) {
	if chainID.IsEmpty() {
		return nil, pkgerrors.NewValidation("chainID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidation("node name cannot be empty")
	}

	return &RuleNode{
		id:            valueobjects.NewNodeID(),
		chainID:       chainID,
		nodeType:      nodeType,
		name:          name,
		configuration: configuration,
	}, nil
}

// ReconstructRuleNode reconstructs a rule node from repository data
func ReconstructRuleNode(
	id valueobjects.NodeID,
	chainID valueobjects.ChainID,
	nodeType NodeType,
	name string,
	configuration json.RawMessage,
) (*RuleNode, error) {
	if id.IsEmpty() {
		return nil, pkgerrors.NewValidation("node ID cannot be empty")
	}
	if chainID.IsEmpty() {
		return nil, pkgerrors.NewValidation("chainID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, pkgerrors.NewValidation("node name cannot be empty")
	}

	return &RuleNode{
		id:            id,
		chainID:       chainID,
		nodeType:      nodeType,
		name:          name,
		configuration: configuration,
	}, nil
}

// ID returns the node's unique identifier
func (n *RuleNode) ID() valueobjects.NodeID {
	return n.id
}

// ChainID returns the owning chain's identifier
func (n *RuleNode) ChainID() valueobjects.ChainID {
	return n.chainID
}

// Type returns the node's classification
func (n *RuleNode) Type() NodeType {
	return n.nodeType
}

// Name returns the node's display name.
// For output nodes this is the externally consumable label.
func (n *RuleNode) Name() string {
	return n.name
}

// Rename changes the node's display name
func (n *RuleNode) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.NewValidation("node name cannot be empty")
	}
	n.name = name
	return nil
}

// Configuration returns the opaque configuration blob
func (n *RuleNode) Configuration() json.RawMessage {
	return n.configuration
}

// IsOutput reports whether this node exports its name as a label
func (n *RuleNode) IsOutput() bool {
	return n != nil && n.nodeType == NodeTypeOutput
}

// IsInput reports whether this node invokes another chain
func (n *RuleNode) IsInput() bool {
	return n != nil && n.nodeType == NodeTypeInput
}

// DecodeInputConfig decodes the configuration of an input node.
// The blob is foreign data: it may predate the current schema, so every
// caller must treat a decode failure as "exclude this node", never as a
// fatal condition.
func (n *RuleNode) DecodeInputConfig() (InputConfig, error) {
	var cfg InputConfig
	if len(n.configuration) == 0 {
		return cfg, pkgerrors.NewValidation("input node configuration is empty")
	}
	if err := json.Unmarshal(n.configuration, &cfg); err != nil {
		return cfg, pkgerrors.NewValidation("input node configuration is not valid JSON")
	}
	return cfg, nil
}
