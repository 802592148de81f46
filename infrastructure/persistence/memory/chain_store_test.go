package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

func testTenant(t *testing.T) valueobjects.TenantID {
	t.Helper()
	tenantID, err := valueobjects.NewTenantID("tenant-1")
	require.NoError(t, err)
	return tenantID
}

func mustSaveChain(t *testing.T, store *Store, tenantID valueobjects.TenantID, name string, kind aggregates.ChainKind) *aggregates.RuleChain {
	t.Helper()
	chain, err := aggregates.NewRuleChain(tenantID, name, kind)
	require.NoError(t, err)
	saved, err := store.Chains().Save(context.Background(), chain)
	require.NoError(t, err)
	return saved
}

func inputConfigFor(chainID valueobjects.ChainID) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"targetChainId":%q}`, chainID.String()))
}

func TestChainRepository_SaveAssignsIdentity(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)

	saved := mustSaveChain(t, store, tenantID, "Telemetry", aggregates.KindCore)
	assert.False(t, saved.ID().IsEmpty())
	assert.Equal(t, "Telemetry", saved.Name())

	loaded, err := store.Chains().GetByID(context.Background(), tenantID, saved.ID())
	require.NoError(t, err)
	assert.True(t, loaded.ID().Equals(saved.ID()))
	assert.Equal(t, aggregates.KindCore, loaded.Kind())
}

func TestChainRepository_GetByIDNotFound(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)

	_, err := store.Chains().GetByID(context.Background(), tenantID, valueobjects.NewChainID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestChainRepository_DeleteRemovesMetadata(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	chain := mustSaveChain(t, store, tenantID, "Doomed", aggregates.KindCore)
	md, err := aggregates.NewChainMetadata(chain.ID(), valueobjects.NodeID{}, nil, nil)
	require.NoError(t, err)
	_, err = store.Metadata().Save(ctx, tenantID, md)
	require.NoError(t, err)

	require.NoError(t, store.Chains().Delete(ctx, tenantID, chain.ID()))

	_, err = store.Chains().GetByID(ctx, tenantID, chain.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
	_, err = store.Metadata().Load(ctx, tenantID, chain.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestChainRepository_SetRoot(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	first := mustSaveChain(t, store, tenantID, "First", aggregates.KindCore)
	second := mustSaveChain(t, store, tenantID, "Second", aggregates.KindCore)

	changed, err := store.Chains().SetRoot(ctx, tenantID, first.ID())
	require.NoError(t, err)
	assert.True(t, changed)

	root, err := store.Chains().GetRoot(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, root.ID().Equals(first.ID()))

	// Setting the same chain again is a no-op.
	changed, err = store.Chains().SetRoot(ctx, tenantID, first.ID())
	require.NoError(t, err)
	assert.False(t, changed)

	// Moving the designation demotes the previous root.
	changed, err = store.Chains().SetRoot(ctx, tenantID, second.ID())
	require.NoError(t, err)
	assert.True(t, changed)

	root, err = store.Chains().GetRoot(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, root.ID().Equals(second.ID()))

	demoted, err := store.Chains().GetByID(ctx, tenantID, first.ID())
	require.NoError(t, err)
	assert.False(t, demoted.IsRoot())
}

func TestChainRepository_EdgeAssignments(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	chain := mustSaveChain(t, store, tenantID, "Edge template", aggregates.KindEdge)
	deviceID := valueobjects.NewEdgeDeviceID()

	_, err := store.Chains().AssignToEdgeDevice(ctx, tenantID, chain.ID(), deviceID)
	require.NoError(t, err)

	ids, err := store.Chains().FindRelatedEdgeDeviceIDs(ctx, tenantID, chain.ID())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.True(t, ids[0].Equals(deviceID))

	_, err = store.Chains().UnassignFromEdgeDevice(ctx, tenantID, chain.ID(), deviceID)
	require.NoError(t, err)

	ids, err = store.Chains().FindRelatedEdgeDeviceIDs(ctx, tenantID, chain.ID())
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Unassigning again reports the missing assignment.
	_, err = store.Chains().UnassignFromEdgeDevice(ctx, tenantID, chain.ID(), deviceID)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMetadataRepository_SaveReportsNodeDiff(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	chain := mustSaveChain(t, store, tenantID, "Main", aggregates.KindCore)

	output, err := entities.NewRuleNode(chain.ID(), entities.NodeTypeOutput, "Success", nil)
	require.NoError(t, err)
	md, err := aggregates.NewChainMetadata(chain.ID(), valueobjects.NodeID{}, []*entities.RuleNode{output}, nil)
	require.NoError(t, err)

	result, err := store.Metadata().Save(ctx, tenantID, md)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Updated, "first save has no prior state to diff against")

	renamed, err := entities.ReconstructRuleNode(output.ID(), chain.ID(), entities.NodeTypeOutput, "Done", nil)
	require.NoError(t, err)
	md2, err := aggregates.NewChainMetadata(chain.ID(), valueobjects.NodeID{}, []*entities.RuleNode{renamed}, nil)
	require.NoError(t, err)

	result, err = store.Metadata().Save(ctx, tenantID, md2)
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, "Success", result.Updated[0].Old.Name())
	assert.Equal(t, "Done", result.Updated[0].New.Name())
}

func TestMetadataRepository_SaveRejectsUnknownChain(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)

	md, err := aggregates.NewChainMetadata(valueobjects.NewChainID(), valueobjects.NodeID{}, nil, nil)
	require.NoError(t, err)

	_, err = store.Metadata().Save(context.Background(), tenantID, md)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestMetadataRepository_FindInputNodesByTarget(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	target := mustSaveChain(t, store, tenantID, "Target", aggregates.KindCore)
	caller := mustSaveChain(t, store, tenantID, "Caller", aggregates.KindCore)

	input, err := entities.NewRuleNode(caller.ID(), entities.NodeTypeInput, "Invoke target", inputConfigFor(target.ID()))
	require.NoError(t, err)
	other, err := entities.NewRuleNode(caller.ID(), entities.NodeTypeOther, "Filter", inputConfigFor(target.ID()))
	require.NoError(t, err)
	md, err := aggregates.NewChainMetadata(caller.ID(), valueobjects.NodeID{}, []*entities.RuleNode{input, other}, nil)
	require.NoError(t, err)
	_, err = store.Metadata().Save(ctx, tenantID, md)
	require.NoError(t, err)

	nodes, err := store.Metadata().FindInputNodesByTarget(ctx, tenantID, target.ID())
	require.NoError(t, err)
	require.Len(t, nodes, 1, "non-input nodes never match regardless of configuration")
	assert.True(t, nodes[0].ID().Equals(input.ID()))

	nodes, err = store.Metadata().FindInputNodesByTarget(ctx, tenantID, caller.ID())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestRelationRepository_RenameRoundTrip(t *testing.T) {
	store := NewStore()
	tenantID := testTenant(t)
	ctx := context.Background()

	chain := mustSaveChain(t, store, tenantID, "Caller", aggregates.KindCore)
	from, err := entities.NewRuleNode(chain.ID(), entities.NodeTypeInput, "Invoke", inputConfigFor(chain.ID()))
	require.NoError(t, err)
	to, err := entities.NewRuleNode(chain.ID(), entities.NodeTypeOther, "Log", nil)
	require.NoError(t, err)
	relation, err := entities.NewNodeRelation(from.ID(), to.ID(), "Success")
	require.NoError(t, err)
	md, err := aggregates.NewChainMetadata(chain.ID(), valueobjects.NodeID{}, []*entities.RuleNode{from, to}, []entities.NodeRelation{relation})
	require.NoError(t, err)
	_, err = store.Metadata().Save(ctx, tenantID, md)
	require.NoError(t, err)

	require.NoError(t, store.Relations().Delete(ctx, tenantID, relation))
	require.NoError(t, store.Relations().Save(ctx, tenantID, relation.WithType("Done")))

	relations, err := store.Relations().GetByNodeID(ctx, tenantID, from.ID())
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.Equal(t, "Done", relations[0].Type)

	// The original key is gone.
	err = store.Relations().Delete(ctx, tenantID, relation)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestStore_TenantIsolation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	tenantA, err := valueobjects.NewTenantID("tenant-a")
	require.NoError(t, err)
	tenantB, err := valueobjects.NewTenantID("tenant-b")
	require.NoError(t, err)

	chain := mustSaveChain(t, store, tenantA, "Private", aggregates.KindCore)

	_, err = store.Chains().GetByID(ctx, tenantB, chain.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
