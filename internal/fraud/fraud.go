// Package fraud implements the fraud risk assessor. It combines a set
// of weighted indicator checks with model-based signals and a
// blacklist lookup into a single assessment per claim.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

// BlacklistChecker reports whether a beneficiary NIK is blacklisted.
// Satisfied by the repository.
type BlacklistChecker interface {
	IsBlacklisted(ctx context.Context, tenantID, nik string) (bool, error)
}

// indicator is one weighted fraud check. Weights need not sum to 1;
// the risk score normalizes by the total weight.
type indicator struct {
	Type        string
	Description string
	Weight      float64
	Detect      func(ctx context.Context, in *AssessInput, a *Assessor) bool
}

const (
	IndicatorEarlyClaim        = "early_claim"
	IndicatorHighAmount        = "high_amount"
	IndicatorMultipleClaims    = "multiple_claims"
	IndicatorDocumentMismatch  = "document_mismatch"
	IndicatorSuspiciousPattern = "suspicious_pattern"
	IndicatorVelocityBurst     = "velocity_burst"
	IndicatorNetworkLink       = "network_link"
)

// recommendationByIndicator maps a detected indicator to its follow-up.
var recommendationByIndicator = map[string]string{
	IndicatorEarlyClaim:        "Verify policy inception date and premium payments",
	IndicatorHighAmount:        "Validate claim amount against policy coverage",
	IndicatorMultipleClaims:    "Review claim history for this beneficiary",
	IndicatorDocumentMismatch:  "Request original documents for manual verification",
	IndicatorSuspiciousPattern: "Cross-check against known fraud pattern database",
	IndicatorVelocityBurst:     "Audit all claims from this beneficiary in the last 30 days",
	IndicatorNetworkLink:       "Map related parties and check for organized fraud ring",
}

var indicators = []indicator{
	{
		Type:        IndicatorEarlyClaim,
		Description: "Claim filed within 90 days of policy start",
		Weight:      0.3,
		Detect: func(_ context.Context, in *AssessInput, _ *Assessor) bool {
			if in.Policy == nil {
				return false
			}
			return in.Policy.AgeInDays(in.Claim.CreatedAt) < 90
		},
	},
	{
		Type:        IndicatorHighAmount,
		Description: "Claim amount exceeds typical range for the product",
		Weight:      0.25,
		Detect: func(_ context.Context, in *AssessInput, _ *Assessor) bool {
			return in.Claim.BenefitAmount() > 2*domain.TypicalAmount(in.Claim.Type)
		},
	},
	{
		Type:        IndicatorMultipleClaims,
		Description: "Multiple claims from same beneficiary",
		Weight:      0.2,
		Detect: func(ctx context.Context, in *AssessInput, a *Assessor) bool {
			if in.History.PriorClaims > 0 {
				return true
			}
			return a.signals.DuplicateLikelihood(ctx, in.Claim) > 0.8
		},
	},
	{
		Type:        IndicatorDocumentMismatch,
		Description: "OCR detected document inconsistencies",
		Weight:      0.35,
		Detect: func(_ context.Context, in *AssessInput, _ *Assessor) bool {
			for _, doc := range in.Claim.Documents {
				if doc.OCRStatus == domain.OCRMismatch {
					return true
				}
			}
			return false
		},
	},
	{
		Type:        IndicatorSuspiciousPattern,
		Description: "Matches known fraud patterns",
		Weight:      0.4,
		Detect: func(ctx context.Context, in *AssessInput, a *Assessor) bool {
			return a.signals.PatternMatch(ctx, in.Claim)
		},
	},
	{
		Type:        IndicatorVelocityBurst,
		Description: "Unusual claim velocity in the last 30 days",
		Weight:      0.2,
		Detect: func(_ context.Context, in *AssessInput, _ *Assessor) bool {
			return in.History.RecentClaims > 3 || in.History.SameDayClaims > 1
		},
	},
	{
		Type:        IndicatorNetworkLink,
		Description: "Beneficiary linked to known fraud network",
		Weight:      0.15,
		Detect: func(ctx context.Context, in *AssessInput, a *Assessor) bool {
			return a.signals.NetworkScore(ctx, in.Claim) > 0.7
		},
	},
}

// Assessor runs the fraud risk assessment.
type Assessor struct {
	signals   SignalProvider
	blacklist BlacklistChecker
}

// NewAssessor creates a fraud assessor. A nil signals provider falls
// back to the seedable random stand-in.
func NewAssessor(signals SignalProvider, blacklist BlacklistChecker) *Assessor {
	if signals == nil {
		signals = NewRandomProvider(time.Now().UnixNano())
	}
	return &Assessor{signals: signals, blacklist: blacklist}
}

// AssessInput carries the claim plus the already-resolved context the
// indicator checks read.
type AssessInput struct {
	Claim   *domain.Claim
	Policy  *domain.Policy
	History domain.ClaimHistory
}

// Assess runs every indicator check, blends the result with the
// anomaly score and the blacklist lookup, and classifies the claim.
func (a *Assessor) Assess(ctx context.Context, in *AssessInput) (*domain.FraudRiskAssessment, error) {
	if in == nil || in.Claim == nil {
		return nil, fmt.Errorf("assess fraud risk: %w", domain.ErrInvalidInput)
	}

	var totalWeight, detectedWeight float64
	var detected []domain.FraudIndicator

	for _, ind := range indicators {
		totalWeight += ind.Weight
		if ind.Detect(ctx, in, a) {
			detectedWeight += ind.Weight
			detected = append(detected, domain.FraudIndicator{
				Type:        ind.Type,
				Severity:    severityForWeight(ind.Weight),
				Description: ind.Description,
				Confidence:  ind.Weight,
			})
		}
	}

	riskScore := 0.0
	if totalWeight > 0 {
		riskScore = detectedWeight / totalWeight
	}
	if riskScore > 1 {
		riskScore = 1
	}

	anomalyScore := clamp01(a.signals.AnomalyScore(ctx, in.Claim))

	blacklisted := false
	if a.blacklist != nil && in.Claim.BeneficiaryNIK != "" {
		match, err := a.blacklist.IsBlacklisted(ctx, in.Claim.TenantID, in.Claim.BeneficiaryNIK)
		if err != nil {
			return nil, fmt.Errorf("blacklist lookup for claim %s: %w", in.Claim.ID, err)
		}
		blacklisted = match
	}

	combined := riskScore*0.7 + anomalyScore*0.3
	if blacklisted {
		combined *= 1.5
	}
	if combined > 1 {
		combined = 1
	}

	level := domain.RiskCategoryFor(combined)

	return &domain.FraudRiskAssessment{
		RiskScore:            riskScore,
		AnomalyScore:         anomalyScore,
		BlacklistMatch:       blacklisted,
		CombinedScore:        combined,
		RiskLevel:            level,
		Indicators:           detected,
		Recommendations:      recommendations(detected, level),
		RequiresManualReview: combined > 0.6,
		RequiresSIU:          combined >= 0.7 || blacklisted,
	}, nil
}

func recommendations(detected []domain.FraudIndicator, level domain.RiskCategory) []string {
	var recs []string

	if level == domain.RiskHigh || level == domain.RiskCritical {
		recs = append(recs,
			"Require senior management approval",
			"Conduct detailed investigation",
		)
	}

	for _, ind := range detected {
		if msg, ok := recommendationByIndicator[ind.Type]; ok {
			recs = append(recs, msg)
		}
	}

	return recs
}

func severityForWeight(w float64) domain.Severity {
	switch {
	case w >= 0.35:
		return domain.SeverityHigh
	case w >= 0.2:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
