package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	pkgerrors "rulechain-backend/pkg/errors"
)

func TestOutputLabels_SortedAndDeduplicated(t *testing.T) {
	f := newFixture(t)
	chain := f.saveChain(t, "Main", aggregates.KindCore)

	// Two output nodes share the "Failure" label; insertion order is
	// deliberately unsorted.
	f.saveMetadata(t, chain.ID(), []*entities.RuleNode{
		outputNode(t, chain.ID(), "Success"),
		outputNode(t, chain.ID(), "Failure"),
		outputNode(t, chain.ID(), "Failure"),
		outputNode(t, chain.ID(), "Archive"),
		plainNode(t, chain.ID(), "Ignored"),
	}, nil)

	labels, err := f.resolver.OutputLabels(context.Background(), f.tenantID, chain.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive", "Failure", "Success"}, labels)
}

func TestOutputLabels_NoOutputNodes(t *testing.T) {
	f := newFixture(t)
	chain := f.saveChain(t, "Plumbing only", aggregates.KindCore)

	f.saveMetadata(t, chain.ID(), []*entities.RuleNode{
		inputNode(t, chain.ID(), valueobjects.NewChainID(), "Invoke"),
		plainNode(t, chain.ID(), "Filter"),
	}, nil)

	labels, err := f.resolver.OutputLabels(context.Background(), f.tenantID, chain.ID())
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestOutputLabels_UnknownChain(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.OutputLabels(context.Background(), f.tenantID, valueobjects.NewChainID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}
