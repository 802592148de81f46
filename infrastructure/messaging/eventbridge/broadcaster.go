package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"rulechain-backend/application/ports"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
)

// Broadcaster delivers chain lifecycle events to the rest of the
// cluster over an EventBridge bus. It also carries the edge sync
// channel: sync messages go to the same bus under a separate detail
// type, from where an edge rule routes them to the device gateways.
type Broadcaster struct {
	client       *eventbridge.Client
	eventBusName string
	source       string
	logger       *zap.Logger
}

// Compile-time interface checks
var _ ports.ClusterBroadcaster = (*Broadcaster)(nil)
var _ ports.EdgeGateway = (*Broadcaster)(nil)

// NewBroadcaster creates a new EventBridge broadcaster
func NewBroadcaster(client *eventbridge.Client, eventBusName string, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		client:       client,
		eventBusName: eventBusName,
		source:       events.SourceBackend,
		logger:       logger,
	}
}

type lifecycleDetail struct {
	TenantID string `json:"tenantId"`
	ChainID  string `json:"chainId"`
	Event    string `json:"event"`
}

type edgeSyncDetail struct {
	TenantID string `json:"tenantId"`
	ChainID  string `json:"chainId"`
	Action   string `json:"action"`
}

// BroadcastLifecycle publishes one lifecycle event for a chain
func (b *Broadcaster) BroadcastLifecycle(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, event events.LifecycleEvent) error {
	detail, err := json.Marshal(lifecycleDetail{
		TenantID: tenantID.String(),
		ChainID:  chainID.String(),
		Event:    string(event),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle detail: %w", err)
	}
	return b.putEntries(ctx, []types.PutEventsRequestEntry{{
		EventBusName: aws.String(b.eventBusName),
		Source:       aws.String(b.source),
		DetailType:   aws.String("chain.lifecycle"),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(time.Now()),
		Resources:    []string{fmt.Sprintf("arn:aws:rulechain::%s", chainID.String())},
	}})
}

// SendChainEvent publishes one edge sync message for a chain
func (b *Broadcaster) SendChainEvent(ctx context.Context, tenantID valueobjects.TenantID, chainID valueobjects.ChainID, action events.EdgeSyncAction) error {
	detail, err := json.Marshal(edgeSyncDetail{
		TenantID: tenantID.String(),
		ChainID:  chainID.String(),
		Action:   string(action),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal edge sync detail: %w", err)
	}
	return b.putEntries(ctx, []types.PutEventsRequestEntry{{
		EventBusName: aws.String(b.eventBusName),
		Source:       aws.String(b.source),
		DetailType:   aws.String("chain.edge-sync"),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(time.Now()),
		Resources:    []string{fmt.Sprintf("arn:aws:rulechain::%s", chainID.String())},
	}})
}

// putEntries sends entries in batches of 10, the PutEvents limit
func (b *Broadcaster) putEntries(ctx context.Context, entries []types.PutEventsRequestEntry) error {
	const batchSize = 10
	for i := 0; i < len(entries); i += batchSize {
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}

		result, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: entries[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to publish events to EventBridge: %w", err)
		}
		if result.FailedEntryCount > 0 {
			for _, entry := range result.Entries {
				if entry.ErrorCode != nil {
					b.logger.Error("Failed to publish event",
						zap.String("errorCode", aws.ToString(entry.ErrorCode)),
						zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
					)
				}
			}
			return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
		}
	}

	b.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", b.eventBusName),
	)
	return nil
}
