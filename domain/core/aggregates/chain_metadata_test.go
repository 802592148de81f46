package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
)

func mustNode(t *testing.T, chainID valueobjects.ChainID, nodeType entities.NodeType, name string) *entities.RuleNode {
	t.Helper()
	node, err := entities.NewRuleNode(chainID, nodeType, name, nil)
	require.NoError(t, err)
	return node
}

func TestNewChainMetadata(t *testing.T) {
	chainID := valueobjects.NewChainID()
	otherChain := valueobjects.NewChainID()

	entry := mustNode(t, chainID, entities.NodeTypeOther, "Message type switch")
	output := mustNode(t, chainID, entities.NodeTypeOutput, "Success")
	foreign := mustNode(t, otherChain, entities.NodeTypeOutput, "Success")

	rel, err := entities.NewNodeRelation(entry.ID(), output.ID(), "True")
	require.NoError(t, err)

	t.Run("valid metadata", func(t *testing.T) {
		md, err := NewChainMetadata(chainID, entry.ID(), []*entities.RuleNode{entry, output}, []entities.NodeRelation{rel})
		require.NoError(t, err)

		assert.Equal(t, chainID, md.ChainID())
		assert.Equal(t, entry.ID(), md.EntryNodeID())
		assert.Len(t, md.Nodes(), 2)
		assert.Len(t, md.Relations(), 1)

		got, ok := md.NodeByID(output.ID())
		require.True(t, ok)
		assert.Equal(t, "Success", got.Name())

		assert.Len(t, md.OutgoingRelations(entry.ID()), 1)
		assert.Empty(t, md.OutgoingRelations(output.ID()))
	})

	t.Run("empty chain id", func(t *testing.T) {
		_, err := NewChainMetadata(valueobjects.ChainID{}, valueobjects.NodeID{}, nil, nil)
		assert.Error(t, err)
	})

	t.Run("node from another chain", func(t *testing.T) {
		_, err := NewChainMetadata(chainID, valueobjects.NodeID{}, []*entities.RuleNode{foreign}, nil)
		assert.Error(t, err)
	})

	t.Run("entry node not in metadata", func(t *testing.T) {
		_, err := NewChainMetadata(chainID, foreign.ID(), []*entities.RuleNode{entry}, nil)
		assert.Error(t, err)
	})

	t.Run("dangling relation endpoint", func(t *testing.T) {
		_, err := NewChainMetadata(chainID, entry.ID(), []*entities.RuleNode{entry}, []entities.NodeRelation{rel})
		assert.Error(t, err)
	})

	t.Run("duplicate node id", func(t *testing.T) {
		_, err := NewChainMetadata(chainID, entry.ID(), []*entities.RuleNode{entry, entry}, nil)
		assert.Error(t, err)
	})
}

func TestNewRuleChain(t *testing.T) {
	tenant, err := valueobjects.NewTenantID("tenant-1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		tenant  valueobjects.TenantID
		cName   string
		kind    ChainKind
		wantErr bool
	}{
		{name: "valid core chain", tenant: tenant, cName: "Root Rule Chain", kind: KindCore},
		{name: "valid edge chain", tenant: tenant, cName: "Edge Template", kind: KindEdge},
		{name: "empty tenant", tenant: valueobjects.TenantID{}, cName: "Chain", kind: KindCore, wantErr: true},
		{name: "empty name", tenant: tenant, cName: "  ", kind: KindCore, wantErr: true},
		{name: "bad kind", tenant: tenant, cName: "Chain", kind: ChainKind("WAT"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewRuleChain(tt.tenant, tt.cName, tt.kind)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, chain)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, chain)
			assert.True(t, chain.ID().IsEmpty(), "identity is assigned by the repository on first save")
			assert.Equal(t, tt.kind, chain.Kind())
			assert.False(t, chain.IsRoot())
			assert.Equal(t, 1, chain.Version())
		})
	}
}

func TestRuleChain_MarkRoot(t *testing.T) {
	tenant, err := valueobjects.NewTenantID("tenant-1")
	require.NoError(t, err)

	chain, err := NewRuleChain(tenant, "Root Rule Chain", KindCore)
	require.NoError(t, err)

	v := chain.Version()
	chain.MarkRoot(true)
	assert.True(t, chain.IsRoot())
	assert.Equal(t, v+1, chain.Version())

	// Idempotent: no version bump when nothing changes
	chain.MarkRoot(true)
	assert.Equal(t, v+1, chain.Version())
}

func TestParseChainKind(t *testing.T) {
	kind, err := ParseChainKind("core")
	require.NoError(t, err)
	assert.Equal(t, KindCore, kind)

	kind, err = ParseChainKind(" EDGE ")
	require.NoError(t, err)
	assert.Equal(t, KindEdge, kind)

	_, err = ParseChainKind("cluster")
	assert.Error(t, err)
}
