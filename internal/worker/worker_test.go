package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claimcare/verdict/internal/bus"
	"github.com/claimcare/verdict/internal/cache"
	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/fraud"
	"github.com/claimcare/verdict/internal/repository"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/velocity"
)

// quietSignals keeps fraud assessment deterministic in worker tests.
type quietSignals struct{}

func (quietSignals) AnomalyScore(context.Context, *domain.Claim) float64        { return 0 }
func (quietSignals) PatternMatch(context.Context, *domain.Claim) bool           { return false }
func (quietSignals) NetworkScore(context.Context, *domain.Claim) float64        { return 0 }
func (quietSignals) DuplicateLikelihood(context.Context, *domain.Claim) float64 { return 0 }

func newTestPipeline(t *testing.T) (*decision.Pipeline, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "worker-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	vel := velocity.NewService(repo, lru)
	engine, err := rules.NewEngine(vel.GetVelocityGetter())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	return decision.NewPipeline(repo, engine, fraud.NewAssessor(quietSignals{}, repo), vel, nil), repo
}

// seedClaim stores a mature Life policy and a fully documented claim
// for the worker to pick up.
func seedClaim(t *testing.T, repo domain.Repository, tenantID, claimID string) *domain.Claim {
	t.Helper()
	ctx := context.Background()
	nik := "3217050801900002"

	policy := &domain.Policy{
		ID:         "POL-" + claimID,
		TenantID:   tenantID,
		Status:     domain.PolicyActive,
		Product:    domain.TypeLife,
		HolderName: "Budi Santoso",
		HolderNIK:  "3217050801600001",
		StartDate:  time.Now().UTC().AddDate(-3, 0, 0),
		MaxBenefit: 500_000_000,
		Beneficiaries: []domain.Beneficiary{
			{Name: "Siti Santoso", NIK: nik, Relationship: "spouse", Percentage: 100, MatchScore: 0.95},
		},
	}
	if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
		t.Fatalf("failed to save policy: %v", err)
	}

	kinds := []domain.DocumentKind{
		domain.DocPolicy, domain.DocDeathCert, domain.DocIDBeneficiary,
		domain.DocClaimForm, domain.DocDoctorLetter, domain.DocBankAccount,
		domain.DocFamilyRelation,
	}
	docs := make([]domain.Document, 0, len(kinds))
	for _, k := range kinds {
		docs = append(docs, domain.Document{
			Kind:       k,
			Valid:      true,
			OCRStatus:  domain.OCRMatched,
			UploadedAt: time.Now().UTC(),
		})
	}

	claim := &domain.Claim{
		ID:              claimID,
		TenantID:        tenantID,
		PolicyID:        policy.ID,
		Type:            domain.TypeLife,
		Stage:           domain.StageAnalysis,
		Channel:         domain.ChannelWeb,
		BeneficiaryNIK:  nik,
		BeneficiaryName: "Siti Santoso",
		CauseOfDeath:    "Natural causes - heart failure",
		Amount:          30_000_000,
		Documents:       docs,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := repo.SaveClaim(ctx, tenantID, claim); err != nil {
		t.Fatalf("failed to save claim: %v", err)
	}
	return claim
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	pipeline, repo := newTestPipeline(t)

	worker := NewWorker(eventBus, pipeline)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessClaim", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var evaluatedReceived atomic.Bool
		var decisionReceived atomic.Bool
		var evaluatedPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicClaimEvaluated, func(ctx context.Context, msg *domain.Message) error {
			evaluatedPayload = msg.Payload
			evaluatedReceived.Store(true)
			return nil
		})
		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicClaimDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		claim := seedClaim(t, repo, "tenant-test", "CLM-WRK-001")
		payload, _ := json.Marshal(claim)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicClaimIngested, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		deadline := time.Now().Add(3 * time.Second)
		for !evaluatedReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}

		if !evaluatedReceived.Load() {
			t.Fatal("expected evaluation to be published")
		}

		var eval domain.ClaimEvaluation
		if err := json.Unmarshal(evaluatedPayload, &eval); err != nil {
			t.Fatalf("failed to parse evaluation: %v", err)
		}
		if eval.ClaimID != "CLM-WRK-001" {
			t.Errorf("expected claimID 'CLM-WRK-001', got '%s'", eval.ClaimID)
		}
		if eval.TenantID != "tenant-test" {
			t.Errorf("expected tenantID 'tenant-test', got '%s'", eval.TenantID)
		}
		if eval.Status != domain.EvalStatusAutoApproved {
			t.Errorf("expected status %s, got %s", domain.EvalStatusAutoApproved, eval.Status)
		}
		if eval.Metadata.TraceID == "" {
			t.Error("expected a trace id on the evaluation")
		}

		// A terminal status also goes out on the decision topic.
		if !decisionReceived.Load() {
			t.Error("expected decision to be published for an auto-approved claim")
		}

		// Scoring outputs are written back onto the stored claim.
		stored, err := repo.GetClaim(context.Background(), "tenant-test", "CLM-WRK-001")
		if err != nil {
			t.Fatalf("failed to reload claim: %v", err)
		}
		if stored.AIAnalysis == nil {
			t.Error("expected AI analysis on the processed claim")
		}
	})

	t.Run("AlertPublished", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-alert"},
		}
		w.Start(cfg)
		defer w.Stop()

		var alertReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "tenant-alert", domain.TopicClaimAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// A blacklisted beneficiary forces an SIU referral.
		claim := seedClaim(t, repo, "tenant-alert", "CLM-WRK-SIU")
		if err := repo.AddToBlacklist(context.Background(), "tenant-alert", claim.BeneficiaryNIK, "prior fraud conviction"); err != nil {
			t.Fatalf("failed to blacklist: %v", err)
		}

		payload, _ := json.Marshal(claim)
		eventBus.Publish(context.Background(), "tenant-alert", domain.TopicClaimIngested, payload)

		deadline := time.Now().Add(3 * time.Second)
		for !alertReceived.Load() && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}

		if !alertReceived.Load() {
			t.Error("expected alert to be published for a blacklisted beneficiary")
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		w := NewWorker(eventBus, pipeline)

		cfg := Config{
			TenantIDs: []string{"tenant-bad"},
		}
		w.Start(cfg)
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		// Must not crash the worker.
		eventBus.Publish(context.Background(), "tenant-bad", domain.TopicClaimIngested, []byte("not-json"))
		time.Sleep(100 * time.Millisecond)

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected worker to stay subscribed, got %d subscriptions", stats.SubscriptionCount)
		}
	})
}
