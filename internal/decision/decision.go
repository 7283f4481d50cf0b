// Package decision runs the claim decisioning pipeline: document
// completeness, rule evaluation, fraud assessment, and composite risk
// scoring, aggregated into a persisted evaluation record.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claimcare/verdict/internal/documents"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/fraud"
	"github.com/claimcare/verdict/internal/risk"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/velocity"
)

// EngineVersion tags persisted evaluations.
const EngineVersion = "verdict-1.0"

// Pipeline wires the decisioning stages together. Both the API layer
// and the background worker run claims through the same pipeline.
type Pipeline struct {
	repo     domain.Repository
	engine   *rules.Engine
	assessor *fraud.Assessor
	velocity *velocity.Service
	logger   *slog.Logger
}

// NewPipeline creates a decisioning pipeline.
func NewPipeline(repo domain.Repository, engine *rules.Engine, assessor *fraud.Assessor, vel *velocity.Service, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:     repo,
		engine:   engine,
		assessor: assessor,
		velocity: vel,
		logger:   logger,
	}
}

// Evaluate loads a claim and runs it through the pipeline. The
// evaluation is persisted and the claim record updated with the
// scoring outputs.
func (p *Pipeline) Evaluate(ctx context.Context, tenantID, claimID, traceID string) (*domain.ClaimEvaluation, error) {
	claim, err := p.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", claimID, err)
	}
	return p.EvaluateClaim(ctx, claim, traceID)
}

// EvaluateClaim runs an already-loaded claim through the pipeline.
func (p *Pipeline) EvaluateClaim(ctx context.Context, claim *domain.Claim, traceID string) (*domain.ClaimEvaluation, error) {
	start := time.Now()

	// Policy context. Absence is not fatal: rules see zero-valued
	// policy variables and policy risk reads as a brand-new policy.
	policy, err := p.repo.GetPolicy(ctx, claim.TenantID, claim.PolicyID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load policy %s: %w", claim.PolicyID, err)
		}
		p.logger.Warn("policy not found, scoring without policy context",
			"tenant_id", claim.TenantID, "claim_id", claim.ID, "policy_id", claim.PolicyID)
		policy = nil
	}

	history := domain.ClaimHistory{}
	if p.velocity != nil {
		history, err = p.velocity.GetClaimHistory(ctx, claim.TenantID, claim.BeneficiaryNIK, claim.ID)
		if err != nil {
			p.logger.Warn("claim history unavailable, scoring without velocity context",
				"tenant_id", claim.TenantID, "claim_id", claim.ID, "error", err)
			history = domain.ClaimHistory{}
		}
	}

	completeness := documents.CheckCompleteness(claim.Type, claim.DocumentKinds(), documents.ConditionsFor(claim))

	// 1. Coverage rules
	rulesStart := time.Now()
	ruleResults, err := p.engine.EvaluateAll(ctx, rules.NewEvaluateInput(claim, policy, completeness.Complete))
	if err != nil {
		return nil, fmt.Errorf("evaluate rules for claim %s: %w", claim.ID, err)
	}
	recommendation := rules.Recommend(ruleResults)
	rulesMs := time.Since(rulesStart).Milliseconds()

	// 2. Fraud assessment
	fraudStart := time.Now()
	fraudRisk, err := p.assessor.Assess(ctx, &fraud.AssessInput{
		Claim:   claim,
		Policy:  policy,
		History: history,
	})
	if err != nil {
		return nil, fmt.Errorf("assess fraud for claim %s: %w", claim.ID, err)
	}
	fraudMs := time.Since(fraudStart).Milliseconds()

	// 3. Composite risk
	riskStart := time.Now()
	assessment, err := risk.Score(&risk.ScoreInput{
		Claim:        claim,
		Policy:       policy,
		History:      history,
		Fraud:        fraudRisk,
		Completeness: completeness,
	})
	if err != nil {
		return nil, fmt.Errorf("score claim %s: %w", claim.ID, err)
	}
	riskMs := time.Since(riskStart).Milliseconds()

	eval := &domain.ClaimEvaluation{
		ID:             uuid.New().String(),
		TenantID:       claim.TenantID,
		ClaimID:        claim.ID,
		Status:         aggregateStatus(recommendation, fraudRisk, assessment),
		Timestamp:      time.Now().UTC(),
		RuleResults:    ruleResults,
		Recommendation: recommendation,
		FraudRisk:      *fraudRisk,
		Risk:           *assessment,
		Metadata: domain.EvaluationMetadata{
			TraceID:        traceID,
			RulesMs:        rulesMs,
			FraudMs:        fraudMs,
			RiskMs:         riskMs,
			TotalMs:        time.Since(start).Milliseconds(),
			RulesEvaluated: len(ruleResults),
			EngineVersion:  EngineVersion,
		},
	}

	if err := p.repo.SaveEvaluation(ctx, claim.TenantID, eval); err != nil {
		return nil, fmt.Errorf("persist evaluation for claim %s: %w", claim.ID, err)
	}

	// Write the scoring outputs back onto the claim record.
	scoreIn := &risk.ScoreInput{
		Claim: claim, Policy: policy, History: history,
		Fraud: fraudRisk, Completeness: completeness,
	}
	claim.RiskScore = assessment.OverallRiskScore
	claim.FraudIndicators = fraudRisk.Indicators
	claim.AIAnalysis = risk.GenerateAIAnalysis(scoreIn, assessment)
	claim.UpdatedAt = time.Now().UTC()
	if err := p.repo.UpdateClaim(ctx, claim.TenantID, claim); err != nil {
		return nil, fmt.Errorf("update claim %s: %w", claim.ID, err)
	}

	p.logger.Info("claim evaluated",
		"tenant_id", claim.TenantID,
		"claim_id", claim.ID,
		"status", eval.Status,
		"risk_score", assessment.OverallRiskScore,
		"rules_evaluated", len(ruleResults),
		"total_ms", eval.Metadata.TotalMs,
	)

	return eval, nil
}

// aggregateStatus folds the three stage outputs into one status. Rule
// denials are absolute; SIU referrals trump approval; automation only
// happens when the composite scorer recommends it.
func aggregateStatus(rec domain.RuleRecommendation, fr *domain.FraudRiskAssessment, ra *domain.RiskAssessment) string {
	if rec.Action == domain.ActionDeny || ra.AIRecommendation == domain.RecommendDeny {
		return domain.EvalStatusDenied
	}

	if ra.AIRecommendation == domain.RecommendInvestigate || fr.RequiresSIU {
		return domain.EvalStatusInvestigate
	}

	if ra.AIRecommendation == domain.RecommendAutoApprove && rec.Action == domain.ActionApprove {
		return domain.EvalStatusAutoApproved
	}

	return domain.EvalStatusPendingApproval
}
