package handlers

import (
	"encoding/json"
	"time"

	"rulechain-backend/application/services"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// createChainRequest is the body for creating a chain
type createChainRequest struct {
	Name      string `json:"name" validate:"required"`
	Kind      string `json:"kind" validate:"required"`
	DebugMode bool   `json:"debugMode"`
}

// updateChainRequest is the body for updating an existing chain
type updateChainRequest struct {
	Name      string `json:"name" validate:"required"`
	DebugMode bool   `json:"debugMode"`
}

// defaultChainRequest is the body for creating a default chain by name
type defaultChainRequest struct {
	Name string `json:"name" validate:"required"`
}

// chainResponse is the wire form of a rule chain
type chainResponse struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	Name             string    `json:"name"`
	Kind             string    `json:"kind"`
	Root             bool      `json:"root"`
	DebugMode        bool      `json:"debugMode"`
	AutoAssignToEdge bool      `json:"autoAssignToEdge"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func toChainResponse(chain *aggregates.RuleChain) chainResponse {
	return chainResponse{
		ID:               chain.ID().String(),
		TenantID:         chain.TenantID().String(),
		Name:             chain.Name(),
		Kind:             string(chain.Kind()),
		Root:             chain.IsRoot(),
		DebugMode:        chain.DebugMode(),
		AutoAssignToEdge: chain.AutoAssignToEdge(),
		Version:          chain.Version(),
		CreatedAt:        chain.CreatedAt(),
		UpdatedAt:        chain.UpdatedAt(),
	}
}

// nodeRequest is one node inside a metadata save. A missing id means the
// node is new; a present id must be a valid UUID and is preserved.
type nodeRequest struct {
	ID            string          `json:"id,omitempty"`
	Type          string          `json:"type" validate:"required"`
	Name          string          `json:"name" validate:"required"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// relationRequest is one directed link inside a metadata save
type relationRequest struct {
	FromID string `json:"fromId" validate:"required"`
	ToID   string `json:"toId" validate:"required"`
	Type   string `json:"type" validate:"required"`
}

// metadataRequest is the body for saving chain metadata
type metadataRequest struct {
	EntryNodeID string            `json:"entryNodeId,omitempty"`
	Nodes       []nodeRequest     `json:"nodes"`
	Relations   []relationRequest `json:"relations"`
}

// toMetadata builds the metadata aggregate from the request body
func (req metadataRequest) toMetadata(chainID valueobjects.ChainID) (*aggregates.ChainMetadata, error) {
	nodes := make([]*entities.RuleNode, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		nodeType := entities.ParseNodeType(n.Type)
		if n.ID == "" {
			node, err := entities.NewRuleNode(chainID, nodeType, n.Name, n.Configuration)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
			continue
		}
		nodeID, err := valueobjects.ParseNodeID(n.ID)
		if err != nil {
			return nil, err
		}
		node, err := entities.ReconstructRuleNode(nodeID, chainID, nodeType, n.Name, n.Configuration)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	relations := make([]entities.NodeRelation, 0, len(req.Relations))
	for _, r := range req.Relations {
		from, err := valueobjects.ParseNodeID(r.FromID)
		if err != nil {
			return nil, pkgerrors.NewValidation("relation fromId must be a valid UUID")
		}
		to, err := valueobjects.ParseNodeID(r.ToID)
		if err != nil {
			return nil, pkgerrors.NewValidation("relation toId must be a valid UUID")
		}
		relation, err := entities.NewNodeRelation(from, to, r.Type)
		if err != nil {
			return nil, err
		}
		relations = append(relations, relation)
	}

	var entryNodeID valueobjects.NodeID
	if req.EntryNodeID != "" {
		id, err := valueobjects.ParseNodeID(req.EntryNodeID)
		if err != nil {
			return nil, err
		}
		entryNodeID = id
	}

	return aggregates.NewChainMetadata(chainID, entryNodeID, nodes, relations)
}

// nodeResponse is the wire form of a rule node
type nodeResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	Configuration json.RawMessage `json:"configuration,omitempty"`
}

// relationResponse is the wire form of a directed link
type relationResponse struct {
	FromID string `json:"fromId"`
	ToID   string `json:"toId"`
	Type   string `json:"type"`
}

// metadataResponse is the wire form of chain metadata
type metadataResponse struct {
	ChainID     string             `json:"chainId"`
	EntryNodeID string             `json:"entryNodeId,omitempty"`
	Nodes       []nodeResponse     `json:"nodes"`
	Relations   []relationResponse `json:"relations"`
}

func toMetadataResponse(metadata *aggregates.ChainMetadata) metadataResponse {
	resp := metadataResponse{
		ChainID:   metadata.ChainID().String(),
		Nodes:     make([]nodeResponse, 0, len(metadata.Nodes())),
		Relations: make([]relationResponse, 0, len(metadata.Relations())),
	}
	if !metadata.EntryNodeID().IsEmpty() {
		resp.EntryNodeID = metadata.EntryNodeID().String()
	}
	for _, node := range metadata.Nodes() {
		resp.Nodes = append(resp.Nodes, nodeResponse{
			ID:            node.ID().String(),
			Type:          string(node.Type()),
			Name:          node.Name(),
			Configuration: node.Configuration(),
		})
	}
	for _, relation := range metadata.Relations() {
		resp.Relations = append(resp.Relations, relationResponse{
			FromID: relation.FromID.String(),
			ToID:   relation.ToID.String(),
			Type:   relation.Type,
		})
	}
	return resp
}

// usageResponse describes one input node referencing a chain
type usageResponse struct {
	NodeID    string   `json:"nodeId"`
	NodeName  string   `json:"nodeName"`
	ChainID   string   `json:"chainId"`
	ChainName string   `json:"chainName"`
	Labels    []string `json:"labels"`
}

func toUsageResponses(usages []services.LabelUsage) []usageResponse {
	responses := make([]usageResponse, 0, len(usages))
	for _, usage := range usages {
		responses = append(responses, usageResponse{
			NodeID:    usage.NodeID.String(),
			NodeName:  usage.NodeName,
			ChainID:   usage.ChainID.String(),
			ChainName: usage.ChainName,
			Labels:    usage.Labels,
		})
	}
	return responses
}

// labelsResponse carries a chain's output label surface
type labelsResponse struct {
	Labels []string `json:"labels"`
}
