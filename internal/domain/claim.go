// Package domain defines the core interfaces and types for Verdict.
package domain

import (
	"time"
)

// ClaimType identifies the product line a claim is filed against.
type ClaimType string

const (
	TypeLife            ClaimType = "Life"
	TypeCriticalIllness ClaimType = "CriticalIllness"
	TypeAccident        ClaimType = "Accident"
	TypeHealth          ClaimType = "Health"
)

// Stage is the processing stage of a claim.
type Stage string

const (
	StageIntake     Stage = "Intake"
	StageValidation Stage = "Validation"
	StageAnalysis   Stage = "Analysis"
	StageDecision   Stage = "Decision"
	StagePayment    Stage = "Payment"
	StageClosed     Stage = "Closed"
)

// stageOrder gives the forward ordering of stages.
var stageOrder = map[Stage]int{
	StageIntake:     0,
	StageValidation: 1,
	StageAnalysis:   2,
	StageDecision:   3,
	StagePayment:    4,
	StageClosed:     5,
}

// CanTransition reports whether a claim may move from one stage to another.
// Transitions are monotonic forward, except that a reviewer may send a claim
// back to Validation to request more information.
func CanTransition(from, to Stage) bool {
	fo, ok1 := stageOrder[from]
	to2, ok2 := stageOrder[to]
	if !ok1 || !ok2 {
		return false
	}
	if to2 > fo {
		return true
	}
	// Request-more-info path: Analysis or Decision back to Validation.
	return to == StageValidation && (from == StageAnalysis || from == StageDecision)
}

// Channel is the intake channel of a claim.
type Channel string

const (
	ChannelWhatsApp Channel = "WhatsApp"
	ChannelWeb      Channel = "Web"
	ChannelApp      Channel = "App"
	ChannelEmail    Channel = "Email"
)

// DocumentKind tags an uploaded document.
type DocumentKind string

const (
	DocPolicy         DocumentKind = "polis"
	DocDeathCert      DocumentKind = "death_cert"
	DocIDInsured      DocumentKind = "id_tertanggung"
	DocIDBeneficiary  DocumentKind = "id_beneficiary"
	DocMedicalReport  DocumentKind = "medical_report"
	DocAccidentReport DocumentKind = "accident_report"
	DocCIDiagnosis    DocumentKind = "ci_diagnosis"
	DocClaimForm      DocumentKind = "claim_form"
	DocDoctorLetter   DocumentKind = "doctor_letter"
	DocBankAccount    DocumentKind = "bank_account"
	DocPoliceReport   DocumentKind = "police_report"
	DocFamilyRelation DocumentKind = "family_relation"
	DocMedicalResume  DocumentKind = "medical_resume"
	DocLabResult      DocumentKind = "lab_result"
	DocMedicalReceipt DocumentKind = "medical_receipt"
)

// OCRStatus is the result of OCR validation on a document.
// The engine only consumes these; extraction itself happens upstream.
type OCRStatus string

const (
	OCRMatched    OCRStatus = "Matched"
	OCRMismatch   OCRStatus = "Mismatch"
	OCRPending    OCRStatus = "Pending"
	OCRProcessing OCRStatus = "Processing"
)

// Document is one uploaded artifact, owned exclusively by its claim.
type Document struct {
	Kind       DocumentKind `json:"kind"`
	URL        string       `json:"url,omitempty"`
	Valid      bool         `json:"valid"`
	OCRStatus  OCRStatus    `json:"ocrStatus"`
	UploadedAt time.Time    `json:"uploadedAt"`
}

// Severity grades a fraud indicator.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FraudIndicator is a detected fraud signal. Immutable once produced.
type FraudIndicator struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
}

// DecisionStatus is the final disposition of a claim.
type DecisionStatus string

const (
	DecisionPending         DecisionStatus = "Pending"
	DecisionApproved        DecisionStatus = "Approved"
	DecisionPartialApproved DecisionStatus = "PartialApproved"
	DecisionDenied          DecisionStatus = "Denied"
)

// Decision records the outcome of a claim. Amount is only set once a
// benefit amount has been computed.
type Decision struct {
	Status            DecisionStatus `json:"status"`
	Amount            float64        `json:"amount,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	RequiredApprovals int            `json:"requiredApprovals"`
	CurrentApprovals  int            `json:"currentApprovals"`
	DecidedBy         string         `json:"decidedBy,omitempty"`
	DecidedAt         *time.Time     `json:"decidedAt,omitempty"`
}

// AMLCheck is the result of an anti-money-laundering screen,
// consumed as an already-resolved input.
type AMLCheck struct {
	Status         string    `json:"status"` // "clear", "flagged", "pending"
	PEPMatch       bool      `json:"pepMatch"`
	SanctionsMatch bool      `json:"sanctionsMatch"`
	NameMatchScore float64   `json:"nameMatchScore"`
	CheckedAt      time.Time `json:"checkedAt"`
}

// AIAnalysis is a snapshot of the automated analysis of a claim.
type AIAnalysis struct {
	Eligible             bool      `json:"eligible"`
	EligibilityReasons   []string  `json:"eligibilityReasons"`
	DocumentCompleteness int       `json:"documentCompleteness"` // 0-100
	RiskScore            float64   `json:"riskScore"`
	RecommendedAction    string    `json:"recommendedAction"`
	Insights             []string  `json:"insights,omitempty"`
	GeneratedAt          time.Time `json:"generatedAt"`
}

// ClaimHistory holds the historical-claim inputs the scoring pipeline
// consumes. Resolved by the velocity service before evaluation.
type ClaimHistory struct {
	PriorClaims   int `json:"priorClaims"`   // lifetime claims from the same beneficiary
	RecentClaims  int `json:"recentClaims"`  // claims in the rolling 30-day window
	SameDayClaims int `json:"sameDayClaims"` // claims filed the same day
}

// Claim is the central entity of the decisioning pipeline.
type Claim struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenantId"`
	PolicyID string    `json:"policyId"`
	Type     ClaimType `json:"type"`
	Stage    Stage     `json:"stage"`
	Channel  Channel   `json:"channel"`

	// Beneficiary identity
	BeneficiaryNIK  string `json:"beneficiaryNIK"`
	BeneficiaryName string `json:"beneficiaryName,omitempty"`

	// Incident details extracted upstream (OCR / intake form)
	CauseOfDeath  string `json:"causeOfDeath,omitempty"`
	CauseOfInjury string `json:"causeOfInjury,omitempty"`
	Diagnosis     string `json:"diagnosis,omitempty"`
	PoliceReport  string `json:"policeReport,omitempty"`
	DiagnosisDate *time.Time `json:"diagnosisDate,omitempty"`

	// Benefit amount under assessment
	Amount float64 `json:"amount"`

	Documents       []Document       `json:"documents"`
	FraudIndicators []FraudIndicator `json:"fraudIndicators,omitempty"`
	RiskScore       float64          `json:"riskScore,omitempty"`
	Decision        *Decision        `json:"decision,omitempty"`
	AIAnalysis      *AIAnalysis      `json:"aiAnalysis,omitempty"`
	AMLCheck        *AMLCheck        `json:"amlCheck,omitempty"`

	Assignee string `json:"assignee,omitempty"`

	SLADeadline time.Time `json:"slaDeadline,omitempty"`
	SLAStatus   string    `json:"slaStatus,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DocumentKinds returns the kinds of all uploaded documents, in upload order.
func (c *Claim) DocumentKinds() []DocumentKind {
	kinds := make([]DocumentKind, 0, len(c.Documents))
	for _, d := range c.Documents {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

// BenefitAmount returns the amount under decision, preferring the
// computed decision amount over the claimed amount.
func (c *Claim) BenefitAmount() float64 {
	if c.Decision != nil && c.Decision.Amount > 0 {
		return c.Decision.Amount
	}
	return c.Amount
}

// ClaimFilter narrows claim listings.
type ClaimFilter struct {
	Type     ClaimType `json:"type,omitempty"`
	Stage    Stage     `json:"stage,omitempty"`
	Assignee string    `json:"assignee,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}
