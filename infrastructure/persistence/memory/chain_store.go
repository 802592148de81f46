package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

// Store is an in-memory backing state shared by the three repository
// views. Used by tests and local mode.
type Store struct {
	mu sync.RWMutex

	// tenant -> chain id -> chain snapshot
	chains map[string]map[string]*aggregates.RuleChain
	// tenant -> chain id -> metadata snapshot
	metadata map[string]map[string]metadataRecord
	// tenant -> chain id -> set of edge device ids
	assignments map[string]map[string]map[string]struct{}
}

type metadataRecord struct {
	entryNodeID valueobjects.NodeID
	nodes       []*entities.RuleNode
	relations   []entities.NodeRelation
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		chains:      make(map[string]map[string]*aggregates.RuleChain),
		metadata:    make(map[string]map[string]metadataRecord),
		assignments: make(map[string]map[string]map[string]struct{}),
	}
}

// Chains returns the ChainRepository view of the store
func (s *Store) Chains() ports.ChainRepository {
	return &chainRepository{store: s}
}

// Metadata returns the MetadataRepository view of the store
func (s *Store) Metadata() ports.MetadataRepository {
	return &metadataRepository{store: s}
}

// Relations returns the RelationRepository view of the store
func (s *Store) Relations() ports.RelationRepository {
	return &relationRepository{store: s}
}

type chainRepository struct {
	store *Store
}

// Compile-time interface checks
var _ ports.ChainRepository = (*chainRepository)(nil)
var _ ports.MetadataRepository = (*metadataRepository)(nil)
var _ ports.RelationRepository = (*relationRepository)(nil)

// Save persists a chain, assigning an identity when it has none
func (r *chainRepository) Save(ctx context.Context, chain *aggregates.RuleChain) (*aggregates.RuleChain, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	id := chain.ID()
	if id.IsEmpty() {
		id = valueobjects.NewChainID()
	}
	stored, err := aggregates.ReconstructRuleChain(
		id,
		chain.TenantID(),
		chain.Kind(),
		chain.Name(),
		chain.IsRoot(),
		chain.DebugMode(),
		chain.AutoAssignToEdge(),
		chain.Version(),
		chain.CreatedAt(),
		chain.UpdatedAt(),
	)
	if err != nil {
		return nil, err
	}

	tenant := s.chains[chain.TenantID().String()]
	if tenant == nil {
		tenant = make(map[string]*aggregates.RuleChain)
		s.chains[chain.TenantID().String()] = tenant
	}
	tenant[id.String()] = stored
	return copyChain(stored)
}

// GetByID retrieves a chain by identity
func (r *chainRepository) GetByID(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.RuleChain, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[tenantID.String()][chainID.String()]
	if !ok {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}
	return copyChain(chain)
}

// Delete removes a chain, its metadata and its device assignments
func (r *chainRepository) Delete(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[tenantID.String()][chainID.String()]; !ok {
		return pkgerrors.NewNotFound("chain " + chainID.String())
	}
	delete(s.chains[tenantID.String()], chainID.String())
	delete(s.metadata[tenantID.String()], chainID.String())
	delete(s.assignments[tenantID.String()], chainID.String())
	return nil
}

// GetRoot returns the tenant's root chain
func (r *chainRepository) GetRoot(ctx context.Context, tenantID valueobjects.TenantID) (*aggregates.RuleChain, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chain := range s.chains[tenantID.String()] {
		if chain.IsCore() && chain.IsRoot() {
			return copyChain(chain)
		}
	}
	return nil, pkgerrors.NewNotFound("root chain")
}

// SetRoot moves the root designation to the given chain
func (r *chainRepository) SetRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.chains[tenantID.String()][chainID.String()]
	if !ok {
		return false, pkgerrors.NewNotFound("chain " + chainID.String())
	}
	if target.IsRoot() {
		return false, nil
	}

	for _, chain := range s.chains[tenantID.String()] {
		chain.MarkRoot(false)
	}
	target.MarkRoot(true)
	return true, nil
}

// FindReferencingInputNodes scans every chain's metadata for input nodes
// whose raw configuration mentions the chain id. The raw-byte match
// mirrors the search-index behavior of the production store; callers are
// expected to re-check the decoded configuration.
func (r *chainRepository) FindReferencingInputNodes(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]*entities.RuleNode, error) {
	return r.store.findInputNodesByTarget(tenantID, chainID)
}

// FindRelatedEdgeDeviceIDs returns devices the chain is assigned to
func (r *chainRepository) FindRelatedEdgeDeviceIDs(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) ([]valueobjects.EdgeDeviceID, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []valueobjects.EdgeDeviceID
	for raw := range s.assignments[tenantID.String()][chainID.String()] {
		id, err := valueobjects.ParseEdgeDeviceID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AssignToEdgeDevice links a chain to a device
func (r *chainRepository) AssignToEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[tenantID.String()][chainID.String()]
	if !ok {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}
	tenant := s.assignments[tenantID.String()]
	if tenant == nil {
		tenant = make(map[string]map[string]struct{})
		s.assignments[tenantID.String()] = tenant
	}
	if tenant[chainID.String()] == nil {
		tenant[chainID.String()] = make(map[string]struct{})
	}
	tenant[chainID.String()][deviceID.String()] = struct{}{}
	return copyChain(chain)
}

// UnassignFromEdgeDevice removes a chain-device link
func (r *chainRepository) UnassignFromEdgeDevice(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, deviceID valueobjects.EdgeDeviceID) (*aggregates.RuleChain, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[tenantID.String()][chainID.String()]
	if !ok {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}
	devices := s.assignments[tenantID.String()][chainID.String()]
	if _, ok := devices[deviceID.String()]; !ok {
		return nil, pkgerrors.NewNotFound("assignment for device " + deviceID.String())
	}
	delete(devices, deviceID.String())
	return copyChain(chain)
}

// SetEdgeTemplateRoot marks the chain as edge template root
func (r *chainRepository) SetEdgeTemplateRoot(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.store.mutateChain(tenantID, chainID, func(chain *aggregates.RuleChain) {
		chain.MarkRoot(true)
	})
}

// SetAutoAssignToEdge enables auto-assignment for the chain
func (r *chainRepository) SetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.store.mutateChain(tenantID, chainID, func(chain *aggregates.RuleChain) {
		chain.SetAutoAssignToEdge(true)
	})
}

// UnsetAutoAssignToEdge disables auto-assignment for the chain
func (r *chainRepository) UnsetAutoAssignToEdge(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) error {
	return r.store.mutateChain(tenantID, chainID, func(chain *aggregates.RuleChain) {
		chain.SetAutoAssignToEdge(false)
	})
}

type metadataRepository struct {
	store *Store
}

// Load retrieves a chain's metadata unit
func (r *metadataRepository) Load(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID) (*aggregates.ChainMetadata, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.metadata[tenantID.String()][chainID.String()]
	if !ok {
		return nil, pkgerrors.NewNotFound("metadata for chain " + chainID.String())
	}
	return buildMetadata(chainID, record)
}

// Save persists the metadata unit and reports the per-node diff against
// the previously stored state, paired by node identity
func (r *metadataRepository) Save(ctx context.Context, tenantID valueobjects.TenantID, metadata *aggregates.ChainMetadata) (*ports.MetadataSaveResult, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	chainID := metadata.ChainID()
	if _, ok := s.chains[tenantID.String()][chainID.String()]; !ok {
		return nil, pkgerrors.NewNotFound("chain " + chainID.String())
	}

	previous := s.metadata[tenantID.String()][chainID.String()]
	previousByID := make(map[string]*entities.RuleNode, len(previous.nodes))
	for _, node := range previous.nodes {
		previousByID[node.ID().String()] = node
	}

	var updated []ports.NodeUpdate
	newNodes := metadata.Nodes()
	storedNodes := make([]*entities.RuleNode, 0, len(newNodes))
	for _, node := range newNodes {
		copied, err := copyNode(node)
		if err != nil {
			return nil, err
		}
		storedNodes = append(storedNodes, copied)
		if old, ok := previousByID[node.ID().String()]; ok {
			oldCopy, err := copyNode(old)
			if err != nil {
				return nil, err
			}
			newCopy, err := copyNode(node)
			if err != nil {
				return nil, err
			}
			updated = append(updated, ports.NodeUpdate{Old: oldCopy, New: newCopy})
		}
	}

	tenant := s.metadata[tenantID.String()]
	if tenant == nil {
		tenant = make(map[string]metadataRecord)
		s.metadata[tenantID.String()] = tenant
	}
	tenant[chainID.String()] = metadataRecord{
		entryNodeID: metadata.EntryNodeID(),
		nodes:       storedNodes,
		relations:   metadata.Relations(),
	}

	return &ports.MetadataSaveResult{Success: true, Updated: updated}, nil
}

// FindInputNodesByTarget returns input nodes referencing the target chain
func (r *metadataRepository) FindInputNodesByTarget(ctx context.Context, tenantID valueobjects.TenantID, target valueobjects.ChainID) ([]*entities.RuleNode, error) {
	return r.store.findInputNodesByTarget(tenantID, target)
}

type relationRepository struct {
	store *Store
}

// GetByNodeID returns the relations leaving one node
func (r *relationRepository) GetByNodeID(ctx context.Context, tenantID valueobjects.TenantID, nodeID valueobjects.NodeID) ([]entities.NodeRelation, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var relations []entities.NodeRelation
	for _, record := range s.metadata[tenantID.String()] {
		for _, rel := range record.relations {
			if rel.FromID.Equals(nodeID) {
				relations = append(relations, rel)
			}
		}
	}
	return relations, nil
}

// Delete removes one relation by its full key
func (r *relationRepository) Delete(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for chainID, record := range s.metadata[tenantID.String()] {
		for i, rel := range record.relations {
			if rel.Equals(relation) {
				record.relations = append(record.relations[:i], record.relations[i+1:]...)
				s.metadata[tenantID.String()][chainID] = record
				return nil
			}
		}
	}
	return pkgerrors.NewNotFound("relation " + relation.Type)
}

// Save persists one relation into the chain owning its source node
func (r *relationRepository) Save(ctx context.Context, tenantID valueobjects.TenantID, relation entities.NodeRelation) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for chainID, record := range s.metadata[tenantID.String()] {
		for _, node := range record.nodes {
			if node.ID().Equals(relation.FromID) {
				record.relations = append(record.relations, relation)
				s.metadata[tenantID.String()][chainID] = record
				return nil
			}
		}
	}
	return pkgerrors.NewNotFound("source node " + relation.FromID.String())
}

func (s *Store) findInputNodesByTarget(tenantID valueobjects.TenantID, target valueobjects.ChainID) ([]*entities.RuleNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*entities.RuleNode
	for _, record := range s.metadata[tenantID.String()] {
		for _, node := range record.nodes {
			if !node.IsInput() {
				continue
			}
			if !bytes.Contains(node.Configuration(), []byte(target.String())) {
				continue
			}
			copied, err := copyNode(node)
			if err != nil {
				return nil, err
			}
			matches = append(matches, copied)
		}
	}
	return matches, nil
}

func (s *Store) mutateChain(tenantID valueobjects.TenantID, chainID valueobjects.ChainID, mutate func(*aggregates.RuleChain)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, ok := s.chains[tenantID.String()][chainID.String()]
	if !ok {
		return pkgerrors.NewNotFound("chain " + chainID.String())
	}
	mutate(chain)
	return nil
}

func buildMetadata(chainID valueobjects.ChainID, record metadataRecord) (*aggregates.ChainMetadata, error) {
	nodes := make([]*entities.RuleNode, 0, len(record.nodes))
	for _, node := range record.nodes {
		copied, err := copyNode(node)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, copied)
	}
	relations := make([]entities.NodeRelation, len(record.relations))
	copy(relations, record.relations)
	return aggregates.NewChainMetadata(chainID, record.entryNodeID, nodes, relations)
}

func copyChain(chain *aggregates.RuleChain) (*aggregates.RuleChain, error) {
	return aggregates.ReconstructRuleChain(
		chain.ID(),
		chain.TenantID(),
		chain.Kind(),
		chain.Name(),
		chain.IsRoot(),
		chain.DebugMode(),
		chain.AutoAssignToEdge(),
		chain.Version(),
		chain.CreatedAt(),
		chain.UpdatedAt(),
	)
}

func copyNode(node *entities.RuleNode) (*entities.RuleNode, error) {
	var configuration json.RawMessage
	if node.Configuration() != nil {
		configuration = make(json.RawMessage, len(node.Configuration()))
		copy(configuration, node.Configuration())
	}
	return entities.ReconstructRuleNode(node.ID(), node.ChainID(), node.Type(), node.Name(), configuration)
}
