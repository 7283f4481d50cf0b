package domain

import "time"

// SLAColor is the traffic-light SLA state.
type SLAColor string

const (
	SLAGreen SLAColor = "green"
	SLAAmber SLAColor = "amber"
	SLARed   SLAColor = "red"
)

// SLAConfig is one row of the static per-(claim type, stage) table.
// Thresholds are fractions of the target (0.8 = 80% of target hours).
type SLAConfig struct {
	Stage             Stage   `json:"stage"`
	TargetHours       float64 `json:"targetHours"`
	WarningThreshold  float64 `json:"warningThreshold"`
	CriticalThreshold float64 `json:"criticalThreshold"`
}

// SLAStatus is computed on read, never stored.
type SLAStatus struct {
	ClaimID             string     `json:"claimId"`
	CurrentStage        Stage      `json:"currentStage"`
	HoursElapsed        float64    `json:"hoursElapsed"`
	HoursRemaining      float64    `json:"hoursRemaining"`
	TargetHours         float64    `json:"targetHours"`
	Status              SLAColor   `json:"status"`
	BreachRisk          float64    `json:"breachRisk"` // probability in [0,1]
	PredictedCompletion *time.Time `json:"predictedCompletion,omitempty"`
	Recommendations     []string   `json:"recommendations,omitempty"`
}

// StageMetrics aggregates elapsed-time statistics for one stage.
type StageMetrics struct {
	Average    float64 `json:"average"`
	P95        float64 `json:"p95"`
	Compliance float64 `json:"compliance"` // percentage within target
}

// SLAMetrics is the per-stage rollup over a claim collection.
type SLAMetrics struct {
	Intake     StageMetrics `json:"intake"`
	Validation StageMetrics `json:"validation"`
	Decision   StageMetrics `json:"decision"`
	Payment    StageMetrics `json:"payment"`
	Overall    StageMetrics `json:"overall"`
}

// SLABreach describes one claim past its stage target.
type SLABreach struct {
	ClaimID    string    `json:"claimId"`
	Type       ClaimType `json:"type"`
	DelayHours float64   `json:"delayHours"`
	Reason     string    `json:"reason"`
}

// OJKReport is the regulator-facing SLA compliance rollup.
type OJKReport struct {
	Summary struct {
		TotalClaims           int     `json:"totalClaims"`
		OnTimeClaims          int     `json:"onTimeClaims"`
		DelayedClaims         int     `json:"delayedClaims"`
		AverageProcessingTime float64 `json:"averageProcessingTime"`
		SLAComplianceRate     float64 `json:"slaComplianceRate"`
	} `json:"summary"`
	ByType   map[ClaimType]TypeCompliance `json:"byType"`
	Breaches []SLABreach                  `json:"breaches"`
}

// TypeCompliance is the per-claim-type compliance bucket of an OJK report.
type TypeCompliance struct {
	Count       int     `json:"count"`
	AverageTime float64 `json:"averageTime"`
	Compliance  float64 `json:"compliance"`
}
