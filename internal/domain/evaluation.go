package domain

import "time"

// Evaluation status constants.
const (
	EvalStatusAutoApproved    = "AUTO_APPROVED"
	EvalStatusPendingApproval = "PENDING_APPROVAL"
	EvalStatusInvestigate     = "INVESTIGATE"
	EvalStatusDenied          = "DENIED"
)

// ClaimEvaluation is the persisted record of one pipeline run:
// rule results, the fraud and composite risk assessments, and the
// aggregated status the pipeline arrived at.
type ClaimEvaluation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ClaimID   string    `json:"claimId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`

	RuleResults    []RuleResult        `json:"ruleResults"`
	Recommendation RuleRecommendation  `json:"recommendation"`
	FraudRisk      FraudRiskAssessment `json:"fraudRisk"`
	Risk           RiskAssessment      `json:"risk"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID       string `json:"traceId"`
	RulesMs       int64  `json:"rulesMs"`
	FraudMs       int64  `json:"fraudMs"`
	RiskMs        int64  `json:"riskMs"`
	TotalMs       int64  `json:"totalMs"`
	RulesEvaluated int   `json:"rulesEvaluated"`
	EngineVersion string `json:"engineVersion"`
}
