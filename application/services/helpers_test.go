package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/aggregates"
	"rulechain-backend/domain/core/entities"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
	"rulechain-backend/infrastructure/persistence/memory"
	"rulechain-backend/pkg/observability"
)

type broadcastCall struct {
	ChainID valueobjects.ChainID
	Event   events.LifecycleEvent
}

type fakeBroadcaster struct {
	calls []broadcastCall
	err   error
}

func (f *fakeBroadcaster) BroadcastLifecycle(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, event events.LifecycleEvent) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, broadcastCall{ChainID: chainID, Event: event})
	return nil
}

func (f *fakeBroadcaster) callsFor(chainID valueobjects.ChainID) []events.LifecycleEvent {
	var out []events.LifecycleEvent
	for _, call := range f.calls {
		if call.ChainID.Equals(chainID) {
			out = append(out, call.Event)
		}
	}
	return out
}

type fakeNotifier struct {
	notifications []events.ChainNotification
	err           error
}

func (f *fakeNotifier) Notify(ctx context.Context, notification events.ChainNotification) error {
	f.notifications = append(f.notifications, notification)
	return f.err
}

type edgeSyncCall struct {
	ChainID valueobjects.ChainID
	Action  events.EdgeSyncAction
}

type fakeEdgeGateway struct {
	calls []edgeSyncCall
}

func (f *fakeEdgeGateway) SendChainEvent(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, action events.EdgeSyncAction) error {
	f.calls = append(f.calls, edgeSyncCall{ChainID: chainID, Action: action})
	return nil
}

// countingMetadataRepo wraps the real repository to observe whether a
// usage scan was triggered at all.
type countingMetadataRepo struct {
	ports.MetadataRepository
	findCalls int
}

func (c *countingMetadataRepo) FindInputNodesByTarget(ctx context.Context, tenantID valueobjects.TenantID, target valueobjects.ChainID) ([]*entities.RuleNode, error) {
	c.findCalls++
	return c.MetadataRepository.FindInputNodesByTarget(ctx, tenantID, target)
}

type fixture struct {
	store       *memory.Store
	metadata    *countingMetadataRepo
	broadcaster *fakeBroadcaster
	notifier    *fakeNotifier
	edgeGateway *fakeEdgeGateway

	resolver *OutputLabelResolver
	usages   *UsageIndex
	relabel  *RelabelEngine
	service  *LinkageService

	tenantID valueobjects.TenantID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	metadata := &countingMetadataRepo{MetadataRepository: store.Metadata()}
	broadcaster := &fakeBroadcaster{}
	notifier := &fakeNotifier{}
	edgeGateway := &fakeEdgeGateway{}
	metrics := observability.NewCollector("rulechain_test")
	logger := zap.NewNop()

	resolver := NewOutputLabelResolver(metadata, logger)
	usages := NewUsageIndex(store.Chains(), metadata, store.Relations(), metrics, logger)
	relabel := NewRelabelEngine(usages, store.Relations(), metrics, logger)
	service := NewLinkageService(
		store.Chains(),
		metadata,
		resolver,
		usages,
		relabel,
		broadcaster,
		notifier,
		edgeGateway,
		metrics,
		logger,
	)

	tenantID, err := valueobjects.NewTenantID("tenant-test")
	require.NoError(t, err)

	return &fixture{
		store:       store,
		metadata:    metadata,
		broadcaster: broadcaster,
		notifier:    notifier,
		edgeGateway: edgeGateway,
		resolver:    resolver,
		usages:      usages,
		relabel:     relabel,
		service:     service,
		tenantID:    tenantID,
	}
}

func (f *fixture) saveChain(t *testing.T, name string, kind aggregates.ChainKind) *aggregates.RuleChain {
	t.Helper()
	chain, err := aggregates.NewRuleChain(f.tenantID, name, kind)
	require.NoError(t, err)
	saved, err := f.store.Chains().Save(context.Background(), chain)
	require.NoError(t, err)
	return saved
}

func (f *fixture) saveMetadata(t *testing.T, chainID valueobjects.ChainID, nodes []*entities.RuleNode, relations []entities.NodeRelation) {
	t.Helper()
	md, err := aggregates.NewChainMetadata(chainID, valueobjects.NodeID{}, nodes, relations)
	require.NoError(t, err)
	_, err = f.store.Metadata().Save(context.Background(), f.tenantID, md)
	require.NoError(t, err)
}

func outputNode(t *testing.T, chainID valueobjects.ChainID, label string) *entities.RuleNode {
	t.Helper()
	node, err := entities.NewRuleNode(chainID, entities.NodeTypeOutput, label, nil)
	require.NoError(t, err)
	return node
}

func inputNode(t *testing.T, chainID, target valueobjects.ChainID, name string) *entities.RuleNode {
	t.Helper()
	cfg := json.RawMessage(fmt.Sprintf(`{"targetChainId":%q}`, target.String()))
	node, err := entities.NewRuleNode(chainID, entities.NodeTypeInput, name, cfg)
	require.NoError(t, err)
	return node
}

func plainNode(t *testing.T, chainID valueobjects.ChainID, name string) *entities.RuleNode {
	t.Helper()
	node, err := entities.NewRuleNode(chainID, entities.NodeTypeOther, name, nil)
	require.NoError(t, err)
	return node
}

func relation(t *testing.T, from, to valueobjects.NodeID, label string) entities.NodeRelation {
	t.Helper()
	rel, err := entities.NewNodeRelation(from, to, label)
	require.NoError(t, err)
	return rel
}
