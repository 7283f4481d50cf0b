// Package risk implements the composite risk scorer. It blends the
// fraud assessment with document, policy, amount, and velocity
// components into one weighted score and an automated recommendation.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/claimcare/verdict/internal/documents"
	"github.com/claimcare/verdict/internal/domain"
)

// Component weights. They sum to 1.0 so the overall score is a convex
// combination of its components.
const (
	WeightFraud    = 0.35
	WeightDocument = 0.25
	WeightPolicy   = 0.15
	WeightAmount   = 0.15
	WeightVelocity = 0.10
)

// autoApproveAmountLimit is the benefit ceiling for automated approval.
const autoApproveAmountLimit = 50_000_000

// ScoreInput carries the claim plus the already-resolved collaborator
// outputs the scorer reads. The scorer itself performs no I/O.
type ScoreInput struct {
	Claim        *domain.Claim
	Policy       *domain.Policy
	History      domain.ClaimHistory
	Fraud        *domain.FraudRiskAssessment
	Completeness documents.Completeness
}

// Score computes the composite risk assessment for a claim.
func Score(in *ScoreInput) (*domain.RiskAssessment, error) {
	if in == nil || in.Claim == nil || in.Fraud == nil {
		return nil, fmt.Errorf("composite risk score: %w", domain.ErrInvalidInput)
	}

	components := domain.RiskComponents{
		FraudRisk:    in.Fraud.CombinedScore,
		DocumentRisk: documentRisk(in.Claim, in.Completeness),
		PolicyRisk:   policyRisk(in.Claim, in.Policy, in.History),
		AmountRisk:   amountRisk(in.Claim),
		VelocityRisk: velocityRisk(in.History),
	}

	overall := components.FraudRisk*WeightFraud +
		components.DocumentRisk*WeightDocument +
		components.PolicyRisk*WeightPolicy +
		components.AmountRisk*WeightAmount +
		components.VelocityRisk*WeightVelocity

	category := domain.RiskCategoryFor(overall)

	return &domain.RiskAssessment{
		OverallRiskScore: overall,
		RiskCategory:     category,
		Components:       components,
		AIRecommendation: recommendation(overall, in.Fraud, in.Claim),
		ConfidenceLevel:  confidence(in.Claim, components.DocumentRisk),
		Insights:         insights(in, components),
		RequiredActions:  requiredActions(category, in.Fraud, components.DocumentRisk),
	}, nil
}

// documentRisk derives risk from completeness and per-document OCR
// state. The denominator is the uploaded-document count, not the
// required count; a single clean upload against many missing
// requirements therefore scores lower than intuition suggests. This
// matches the established scoring behavior and downstream thresholds
// are tuned against it.
func documentRisk(claim *domain.Claim, completeness documents.Completeness) float64 {
	if len(claim.Documents) == 0 {
		return 1.0
	}

	total := (100 - float64(completeness.Percentage)) / 100 * 0.5

	for _, doc := range claim.Documents {
		switch doc.OCRStatus {
		case domain.OCRMismatch:
			total += 0.3
		case domain.OCRPending:
			total += 0.1
		}
	}

	total /= float64(len(claim.Documents))

	return math.Min(total, 1.0)
}

func policyRisk(claim *domain.Claim, policy *domain.Policy, history domain.ClaimHistory) float64 {
	risk := 0.0

	// A missing policy record scores like a brand-new policy.
	ageDays := 0
	if policy != nil {
		ageDays = policy.AgeInDays(claim.CreatedAt)
	}

	switch {
	case ageDays < 30:
		risk += 0.5
	case ageDays < 90:
		risk += 0.3
	case ageDays < 180:
		risk += 0.1
	}

	if history.PriorClaims > 2 {
		risk += 0.3
	} else if history.PriorClaims > 0 {
		risk += 0.1
	}

	return math.Min(risk, 1.0)
}

func amountRisk(claim *domain.Claim) float64 {
	amount := claim.BenefitAmount()
	risk := 0.0

	switch {
	case amount > 1_000_000_000:
		risk += 0.5
	case amount > 500_000_000:
		risk += 0.3
	case amount > 100_000_000:
		risk += 0.15
	case amount > 50_000_000:
		risk += 0.05
	}

	ratio := amount / domain.TypicalAmount(claim.Type)
	switch {
	case ratio > 3:
		risk += 0.4
	case ratio > 2:
		risk += 0.2
	case ratio > 1.5:
		risk += 0.1
	}

	return math.Min(risk, 1.0)
}

func velocityRisk(history domain.ClaimHistory) float64 {
	risk := 0.0

	if history.RecentClaims > 3 {
		risk += 0.5
	} else if history.RecentClaims > 1 {
		risk += 0.2
	}

	if history.SameDayClaims > 1 {
		risk += 0.3
	}

	return math.Min(risk, 1.0)
}

// recommendation applies the decision table in priority order.
func recommendation(overall float64, fr *domain.FraudRiskAssessment, claim *domain.Claim) string {
	if overall < 0.3 &&
		!fr.BlacklistMatch &&
		!fr.RequiresSIU &&
		claim.BenefitAmount() < autoApproveAmountLimit {
		return domain.RecommendAutoApprove
	}

	if overall >= 0.7 || fr.RequiresSIU || fr.BlacklistMatch {
		return domain.RecommendInvestigate
	}

	if overall > 0.9 && fr.BlacklistMatch {
		return domain.RecommendDeny
	}

	return domain.RecommendManualReview
}

func confidence(claim *domain.Claim, documentRisk float64) float64 {
	conf := 1.0

	if len(claim.Documents) == 0 {
		conf -= 0.3
	}

	conf -= documentRisk * 0.2

	if claim.AIAnalysis == nil {
		conf -= 0.2
	}

	if claim.Type == domain.TypeCriticalIllness || claim.Type == domain.TypeLife {
		conf -= 0.1
	}

	return math.Max(0.3, conf)
}

func insights(in *ScoreInput, c domain.RiskComponents) []string {
	var out []string

	if in.Fraud.RiskScore > 0.5 {
		out = append(out, fmt.Sprintf("High fraud risk detected (%.0f%%)", in.Fraud.RiskScore*100))
	}
	if in.Fraud.BlacklistMatch {
		out = append(out, "Beneficiary found in fraud blacklist")
	}
	if c.DocumentRisk > 0.5 {
		out = append(out, "Document quality or completeness issues detected")
	}
	if c.PolicyRisk > 0.3 && in.Policy != nil {
		if age := in.Policy.AgeInDays(in.Claim.CreatedAt); age < 90 {
			out = append(out, fmt.Sprintf("Early claim warning: policy only %d days old", age))
		}
	}
	if c.AmountRisk > 0.3 {
		out = append(out, "Claim amount significantly above typical range")
	}
	if c.VelocityRisk > 0.3 {
		out = append(out, "Multiple recent claims detected from same source")
	}
	if in.Fraud.RiskScore < 0.2 && c.DocumentRisk < 0.2 {
		out = append(out, "Low risk profile, eligible for fast-track processing")
	}

	return out
}

func requiredActions(category domain.RiskCategory, fr *domain.FraudRiskAssessment, documentRisk float64) []string {
	var actions []string

	switch category {
	case domain.RiskCritical:
		actions = append(actions,
			"Mandatory SIU investigation required",
			"Senior management approval required",
		)
	case domain.RiskHigh:
		actions = append(actions,
			"Enhanced due diligence required",
			"Manager approval required",
		)
	case domain.RiskMedium:
		actions = append(actions,
			"Standard review process",
			"Supervisor approval required",
		)
	case domain.RiskLow:
		actions = append(actions, "Eligible for streamlined processing")
	}

	if fr.BlacklistMatch {
		actions = append(actions, "Verify beneficiary identity with enhanced KYC")
	}
	if documentRisk > 0.5 {
		actions = append(actions, "Request original documents for verification")
	}
	if fr.RequiresSIU {
		actions = append(actions, "Assign to SIU team for investigation")
	}

	return actions
}

// GenerateAIAnalysis composes a persisted analysis snapshot from a
// scored claim.
func GenerateAIAnalysis(in *ScoreInput, assessment *domain.RiskAssessment) *domain.AIAnalysis {
	eligible := assessment.RiskCategory == domain.RiskLow ||
		assessment.RiskCategory == domain.RiskMedium

	reasons := []string{"All checks passed"}
	if !eligible {
		reasons = reasons[:0]
		if assessment.Components.FraudRisk > 0.6 {
			reasons = append(reasons, "High fraud risk detected")
		}
		if assessment.Components.DocumentRisk > 0.6 {
			reasons = append(reasons, "Document verification issues")
		}
		if assessment.Components.PolicyRisk > 0.6 {
			reasons = append(reasons, "Policy validation concerns")
		}
	}

	return &domain.AIAnalysis{
		Eligible:             eligible,
		EligibilityReasons:   reasons,
		DocumentCompleteness: in.Completeness.Percentage,
		RiskScore:            assessment.OverallRiskScore,
		RecommendedAction:    assessment.AIRecommendation,
		Insights:             assessment.Insights,
		GeneratedAt:          time.Now().UTC(),
	}
}
