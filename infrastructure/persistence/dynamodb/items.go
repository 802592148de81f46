package dynamodb

import (
	"encoding/json"
	"fmt"
	"time"

	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
)

// Single-table layout. Every item lives under PK TENANT#<tenantID>:
//
//	CHAIN#<chainID>                     chain aggregate
//	MD#<chainID>#META                   metadata master (entry node)
//	MD#<chainID>#NODE#<nodeID>          one rule node
//	MD#<chainID>#REL#<from>#<to>#<type> one relation
//	ASSIGN#<chainID>#<deviceID>         edge device assignment
//
// RefIndex (GSI1) maps REF#<targetChainID> to the input nodes whose
// configuration references that chain. NodeIndex (GSI2) maps
// NODE#<nodeID> to the node item and to every relation leaving it, so
// link rewrites never need the owning chain up front.

func tenantPK(tenantID valueobjects.TenantID) string {
	return fmt.Sprintf("TENANT#%s", tenantID.String())
}

func chainSK(chainID valueobjects.ChainID) string {
	return fmt.Sprintf("CHAIN#%s", chainID.String())
}

func metadataPrefix(chainID valueobjects.ChainID) string {
	return fmt.Sprintf("MD#%s#", chainID.String())
}

func metadataMasterSK(chainID valueobjects.ChainID) string {
	return metadataPrefix(chainID) + "META"
}

func nodeSK(chainID valueobjects.ChainID, nodeID valueobjects.NodeID) string {
	return fmt.Sprintf("%sNODE#%s", metadataPrefix(chainID), nodeID.String())
}

func relationSK(chainID valueobjects.ChainID, rel entities.NodeRelation) string {
	return fmt.Sprintf("%sREL#%s#%s#%s", metadataPrefix(chainID), rel.FromID.String(), rel.ToID.String(), rel.Type)
}

func assignmentSK(chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) string {
	return fmt.Sprintf("ASSIGN#%s#%s", chainID.String(), deviceID.String())
}

func assignmentPrefix(chainID valueobjects.ChainID) string {
	return fmt.Sprintf("ASSIGN#%s#", chainID.String())
}

func refIndexPK(chainID valueobjects.ChainID) string {
	return fmt.Sprintf("REF#%s", chainID.String())
}

func nodeIndexPK(nodeID valueobjects.NodeID) string {
	return fmt.Sprintf("NODE#%s", nodeID.String())
}

type chainItem struct {
	PK               string `dynamodbav:"PK"`
	SK               string `dynamodbav:"SK"`
	EntityType       string `dynamodbav:"EntityType"`
	ChainID          string `dynamodbav:"ChainID"`
	TenantID         string `dynamodbav:"TenantID"`
	Kind             string `dynamodbav:"Kind"`
	Name             string `dynamodbav:"Name"`
	Root             bool   `dynamodbav:"Root"`
	DebugMode        bool   `dynamodbav:"DebugMode"`
	AutoAssignToEdge bool   `dynamodbav:"AutoAssignToEdge"`
	Version          int    `dynamodbav:"Version"`
	CreatedAt        string `dynamodbav:"CreatedAt"`
	UpdatedAt        string `dynamodbav:"UpdatedAt"`
}

func newChainItem(chain *aggregates.RuleChain) chainItem {
	return chainItem{
		PK:               tenantPK(chain.TenantID()),
		SK:               chainSK(chain.ID()),
		EntityType:       "CHAIN",
		ChainID:          chain.ID().String(),
		TenantID:         chain.TenantID().String(),
		Kind:             string(chain.Kind()),
		Name:             chain.Name(),
		Root:             chain.IsRoot(),
		DebugMode:        chain.DebugMode(),
		AutoAssignToEdge: chain.AutoAssignToEdge(),
		Version:          chain.Version(),
		CreatedAt:        chain.CreatedAt().Format(time.RFC3339Nano),
		UpdatedAt:        chain.UpdatedAt().Format(time.RFC3339Nano),
	}
}

func (ci chainItem) toAggregate() (*aggregates.RuleChain, error) {
	chainID, err := valueobjects.ParseChainID(ci.ChainID)
	if err != nil {
		return nil, err
	}
	tenantID, err := valueobjects.NewTenantID(ci.TenantID)
	if err != nil {
		return nil, err
	}
	kind, err := aggregates.ParseChainKind(ci.Kind)
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ci.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, ci.UpdatedAt)
	return aggregates.ReconstructRuleChain(chainID, tenantID, kind, ci.Name, ci.Root, ci.DebugMode, ci.AutoAssignToEdge, ci.Version, createdAt, updatedAt)
}

type metadataMasterItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	ChainID     string `dynamodbav:"ChainID"`
	EntryNodeID string `dynamodbav:"EntryNodeID,omitempty"`
}

type nodeItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	EntityType    string `dynamodbav:"EntityType"`
	NodeID        string `dynamodbav:"NodeID"`
	ChainID       string `dynamodbav:"ChainID"`
	NodeType      string `dynamodbav:"NodeType"`
	Name          string `dynamodbav:"Name"`
	Configuration string `dynamodbav:"Configuration,omitempty"`

	// RefIndex, set only for input nodes whose configuration decodes
	GSI1PK string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK string `dynamodbav:"GSI1SK,omitempty"`

	// NodeIndex, keyed by the node's own id
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"`
}

func newNodeItem(tenantID valueobjects.TenantID, node *entities.RuleNode) nodeItem {
	item := nodeItem{
		PK:            tenantPK(tenantID),
		SK:            nodeSK(node.ChainID(), node.ID()),
		EntityType:    "NODE",
		NodeID:        node.ID().String(),
		ChainID:       node.ChainID().String(),
		NodeType:      node.Type().String(),
		Name:          node.Name(),
		Configuration: string(node.Configuration()),
		GSI2PK:        nodeIndexPK(node.ID()),
		GSI2SK:        "NODE",
	}
	if node.IsInput() {
		if cfg, err := node.DecodeInputConfig(); err == nil {
			if target, err := valueobjects.ParseChainID(cfg.TargetChainID); err == nil {
				item.GSI1PK = refIndexPK(target)
				item.GSI1SK = nodeIndexPK(node.ID())
			}
		}
	}
	return item
}

func (ni nodeItem) toEntity() (*entities.RuleNode, error) {
	nodeID, err := valueobjects.ParseNodeID(ni.NodeID)
	if err != nil {
		return nil, err
	}
	chainID, err := valueobjects.ParseChainID(ni.ChainID)
	if err != nil {
		return nil, err
	}
	var configuration json.RawMessage
	if ni.Configuration != "" {
		configuration = json.RawMessage(ni.Configuration)
	}
	return entities.ReconstructRuleNode(nodeID, chainID, entities.ParseNodeType(ni.NodeType), ni.Name, configuration)
}

type relationItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	ChainID    string `dynamodbav:"ChainID"`
	FromID     string `dynamodbav:"FromID"`
	ToID       string `dynamodbav:"ToID"`
	Type       string `dynamodbav:"Type"`

	// NodeIndex, keyed by the source node so link rewrites find every
	// outgoing relation in one query
	GSI2PK string `dynamodbav:"GSI2PK,omitempty"`
	GSI2SK string `dynamodbav:"GSI2SK,omitempty"`
}

func newRelationItem(tenantID valueobjects.TenantID, chainID valueobjects.ChainID, rel entities.NodeRelation) relationItem {
	return relationItem{
		PK:         tenantPK(tenantID),
		SK:         relationSK(chainID, rel),
		EntityType: "RELATION",
		ChainID:    chainID.String(),
		FromID:     rel.FromID.String(),
		ToID:       rel.ToID.String(),
		Type:       rel.Type,
		GSI2PK:     nodeIndexPK(rel.FromID),
		GSI2SK:     fmt.Sprintf("REL#%s#%s", rel.ToID.String(), rel.Type),
	}
}

func (ri relationItem) toEntity() (entities.NodeRelation, error) {
	fromID, err := valueobjects.ParseNodeID(ri.FromID)
	if err != nil {
		return entities.NodeRelation{}, err
	}
	toID, err := valueobjects.ParseNodeID(ri.ToID)
	if err != nil {
		return entities.NodeRelation{}, err
	}
	return entities.NewNodeRelation(fromID, toID, ri.Type)
}

type assignmentItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ChainID      string `dynamodbav:"ChainID"`
	EdgeDeviceID string `dynamodbav:"EdgeDeviceID"`
	AssignedAt   string `dynamodbav:"AssignedAt"`
}
