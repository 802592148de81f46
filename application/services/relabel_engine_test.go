package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
)

// renamed builds the before/after pair of one node whose display name
// changed across a metadata save.
func renamed(t *testing.T, chainID valueobjects.ChainID, nodeType entities.NodeType, oldName, newName string) ports.NodeUpdate {
	t.Helper()
	old, err := entities.NewRuleNode(chainID, nodeType, oldName, nil)
	require.NoError(t, err)
	updated, err := entities.ReconstructRuleNode(old.ID(), chainID, nodeType, newName, nil)
	require.NoError(t, err)
	return ports.NodeUpdate{Old: old, New: updated}
}

func TestComputeRenameMap(t *testing.T) {
	f := newFixture(t)
	chainID := valueobjects.NewChainID()

	tests := []struct {
		name        string
		updates     []ports.NodeUpdate
		wantRenames map[string]string
		wantNeeded  bool
	}{
		{
			name: "single rename",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Pass"),
				renamed(t, chainID, entities.NodeTypeOutput, "No", "No"),
			},
			wantRenames: map[string]string{"Yes": "Pass"},
			wantNeeded:  true,
		},
		{
			name: "ambiguous rename dropped",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Pass"),
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Done"),
			},
			wantRenames: map[string]string{},
			wantNeeded:  true,
		},
		{
			name: "old label survives under another node",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Pass"),
				renamed(t, chainID, entities.NodeTypeOutput, "No", "Yes"),
			},
			// "Yes" -> "Pass" is dropped because another node took over
			// the "Yes" label, so links typed "Yes" still resolve.
			wantRenames: map[string]string{"No": "Yes"},
			wantNeeded:  true,
		},
		{
			name: "swapped labels cancel out",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "No"),
				renamed(t, chainID, entities.NodeTypeOutput, "No", "Yes"),
			},
			wantRenames: map[string]string{},
			wantNeeded:  false,
		},
		{
			name: "unchanged labels need no propagation",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Yes"),
				renamed(t, chainID, entities.NodeTypeOutput, "No", "No"),
			},
			wantRenames: map[string]string{},
			wantNeeded:  false,
		},
		{
			name: "non-output nodes ignored",
			updates: []ports.NodeUpdate{
				renamed(t, chainID, entities.NodeTypeOther, "Yes", "Pass"),
			},
			wantRenames: map[string]string{},
			wantNeeded:  false,
		},
		{
			name: "added node has no old state",
			updates: []ports.NodeUpdate{
				{Old: nil, New: mustNode(t, chainID, entities.NodeTypeOutput, "Fresh")},
			},
			wantRenames: map[string]string{},
			wantNeeded:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenantID, err := valueobjects.NewTenantID("tenant-test")
			require.NoError(t, err)

			plan := f.relabel.ComputeRenameMap(tenantID, chainID, tt.updates)
			assert.Equal(t, tt.wantRenames, plan.Renames)
			assert.Equal(t, tt.wantNeeded, plan.Needed)
		})
	}
}

func mustNode(t *testing.T, chainID valueobjects.ChainID, nodeType entities.NodeType, name string) *entities.RuleNode {
	t.Helper()
	node, err := entities.NewRuleNode(chainID, nodeType, name, nil)
	require.NoError(t, err)
	return node
}

func TestComputeRenameMap_RenameSurvivesWhenOldLabelFreed(t *testing.T) {
	f := newFixture(t)
	chainID := valueobjects.NewChainID()
	tenantID, err := valueobjects.NewTenantID("tenant-test")
	require.NoError(t, err)

	// {"Yes", "No"} -> {"Pass", "No"}: the rename target "Pass" being new
	// is irrelevant; only a surviving OLD label blocks a rename.
	plan := f.relabel.ComputeRenameMap(tenantID, chainID, []ports.NodeUpdate{
		renamed(t, chainID, entities.NodeTypeOutput, "Yes", "Pass"),
		renamed(t, chainID, entities.NodeTypeOutput, "No", "No"),
	})
	assert.Equal(t, map[string]string{"Yes": "Pass"}, plan.Renames)
	assert.True(t, plan.Needed)
	assert.False(t, plan.Empty())
}

func TestApply_RewritesOnlyMatchingLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	target := f.saveChain(t, "Target", aggregates.KindCore)
	caller := f.saveChain(t, "Caller", aggregates.KindCore)

	invoke := inputNode(t, caller.ID(), target.ID(), "Invoke")
	sinkA := plainNode(t, caller.ID(), "Sink A")
	sinkB := plainNode(t, caller.ID(), "Sink B")
	f.saveMetadata(t, caller.ID(), []*entities.RuleNode{invoke, sinkA, sinkB}, []entities.NodeRelation{
		relation(t, invoke.ID(), sinkA.ID(), "Yes"),
		relation(t, invoke.ID(), sinkB.ID(), "No"),
	})

	plan := RenamePlan{Renames: map[string]string{"Yes": "Pass"}, Needed: true}
	affected, err := f.relabel.Apply(ctx, f.tenantID, target.ID(), plan)
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.True(t, affected[0].Equals(caller.ID()))

	relations, err := f.store.Relations().GetByNodeID(ctx, f.tenantID, invoke.ID())
	require.NoError(t, err)
	labels := make(map[string]bool)
	for _, rel := range relations {
		labels[rel.Type] = true
	}
	assert.True(t, labels["Pass"])
	assert.True(t, labels["No"])
	assert.False(t, labels["Yes"])
}

func TestApply_EmptyPlanSkipsUsageScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	target := f.saveChain(t, "Target", aggregates.KindCore)
	caller := f.saveChain(t, "Caller", aggregates.KindCore)

	invoke := inputNode(t, caller.ID(), target.ID(), "Invoke")
	sink := plainNode(t, caller.ID(), "Sink")
	f.saveMetadata(t, caller.ID(), []*entities.RuleNode{invoke, sink}, []entities.NodeRelation{
		relation(t, invoke.ID(), sink.ID(), "Yes"),
	})
	f.metadata.findCalls = 0

	// Plan computed over an unchanged label surface must not touch any
	// referencing chain, not even to read it.
	affected, err := f.relabel.Apply(ctx, f.tenantID, target.ID(), RenamePlan{Needed: false})
	require.NoError(t, err)
	assert.Empty(t, affected)
	assert.Zero(t, f.metadata.findCalls)
}
