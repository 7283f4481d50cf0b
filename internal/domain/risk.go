package domain

// RiskCategory is a four-tier classification of a risk score.
type RiskCategory string

const (
	RiskLow      RiskCategory = "Low"
	RiskMedium   RiskCategory = "Medium"
	RiskHigh     RiskCategory = "High"
	RiskCritical RiskCategory = "Critical"
)

// RiskCategoryFor maps a score in [0,1] to its category.
func RiskCategoryFor(score float64) RiskCategory {
	switch {
	case score < 0.25:
		return RiskLow
	case score < 0.5:
		return RiskMedium
	case score < 0.75:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// AI recommendation tags produced by the composite risk scorer.
const (
	RecommendAutoApprove  = "auto_approve"
	RecommendManualReview = "manual_review"
	RecommendInvestigate  = "investigate"
	RecommendDeny         = "deny"
)

// RiskComponents holds the five normalized component scores.
type RiskComponents struct {
	FraudRisk    float64 `json:"fraudRisk"`
	DocumentRisk float64 `json:"documentRisk"`
	PolicyRisk   float64 `json:"policyRisk"`
	AmountRisk   float64 `json:"amountRisk"`
	VelocityRisk float64 `json:"velocityRisk"`
}

// RiskAssessment is the transient output of the composite risk scorer.
// Regenerated on demand from claim + policy + historical inputs; never
// persisted as a standalone entity.
type RiskAssessment struct {
	OverallRiskScore float64        `json:"overallRiskScore"`
	RiskCategory     RiskCategory   `json:"riskCategory"`
	Components       RiskComponents `json:"components"`
	AIRecommendation string         `json:"aiRecommendation"`
	ConfidenceLevel  float64        `json:"confidenceLevel"`
	Insights         []string       `json:"insights"`
	RequiredActions  []string       `json:"requiredActions"`
}

// FraudRiskAssessment is the output of the fraud risk assessor.
type FraudRiskAssessment struct {
	// RiskScore is the weighted indicator score in [0,1].
	RiskScore float64 `json:"riskScore"`

	// AnomalyScore is the model-based anomaly score in [0,1],
	// computed independently of the indicators.
	AnomalyScore float64 `json:"anomalyScore"`

	// BlacklistMatch reports whether the beneficiary NIK is blacklisted.
	BlacklistMatch bool `json:"blacklistMatch"`

	// CombinedScore blends the indicator and anomaly scores, inflated
	// on a blacklist hit and clamped to [0,1].
	CombinedScore float64 `json:"combinedScore"`

	RiskLevel            RiskCategory     `json:"riskLevel"`
	Indicators           []FraudIndicator `json:"indicators"`
	Recommendations      []string         `json:"recommendations"`
	RequiresManualReview bool             `json:"requiresManualReview"`
	RequiresSIU          bool             `json:"requiresSIU"`
}
