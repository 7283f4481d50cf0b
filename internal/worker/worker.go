// Package worker provides async claim processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/domain"
)

// Worker evaluates ingested claims asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *decision.Pipeline

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, pipeline *decision.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicClaimIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicClaimIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processClaim(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicClaimIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processClaim(ctx, msg.TenantID, msg)
}

// processClaim runs an ingested claim through the decision pipeline
// and publishes the outcome.
func (w *Worker) processClaim(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var claim domain.Claim
	if err := json.Unmarshal(msg.Payload, &claim); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if claim.ID == "" {
		slog.Error("claim message without id", "message_id", msg.ID)
		return domain.ErrInvalidInput
	}

	// Use message tenant if provided
	if claim.TenantID != "" {
		tenantID = claim.TenantID
	}
	claim.TenantID = tenantID

	traceID := msg.Metadata["traceId"]
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing claim",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	eval, err := w.pipeline.EvaluateClaim(ctx, &claim, traceID)
	if err != nil {
		slog.Error("claim evaluation failed",
			"claim_id", claim.ID,
			"error", err,
		)
		return err
	}

	resultPayload, _ := json.Marshal(eval)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimEvaluated, resultPayload); err != nil {
		slog.Error("failed to publish evaluation",
			"claim_id", claim.ID,
			"error", err,
		)
	}

	switch eval.Status {
	case domain.EvalStatusAutoApproved, domain.EvalStatusDenied:
		if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimDecision, resultPayload); err != nil {
			slog.Error("failed to publish decision",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	case domain.EvalStatusInvestigate:
		if err := w.bus.Publish(ctx, tenantID, domain.TopicClaimAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"claim_id", claim.ID,
				"error", err,
			)
		}
	}

	slog.Info("claim processed",
		"claim_id", claim.ID,
		"tenant_id", tenantID,
		"status", eval.Status,
		"risk_score", eval.Risk.OverallRiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
