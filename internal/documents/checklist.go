// Package documents provides the per-claim-type document checklist and
// completeness checking.
package documents

import (
	"math"
	"strings"

	"github.com/claimcare/verdict/internal/domain"
)

// Requirement is one row of a claim type's document checklist.
// A conditional requirement is active only when the named condition
// flag is true (e.g. "police_report" only for traffic accidents).
type Requirement struct {
	Kind        domain.DocumentKind `json:"kind"`
	Required    bool                `json:"required"`
	Conditional string              `json:"conditional,omitempty"`
	Description string              `json:"description"`
}

// Completeness is the result of a checklist evaluation.
type Completeness struct {
	Complete   bool                  `json:"complete"`
	Missing    []domain.DocumentKind `json:"missing"`
	Percentage int                   `json:"percentage"` // 0-100
}

// checklists maps each claim type to its document requirements.
var checklists = map[domain.ClaimType][]Requirement{
	domain.TypeLife: {
		{Kind: domain.DocPolicy, Required: true, Description: "Policy document showing coverage details"},
		{Kind: domain.DocDeathCert, Required: true, Description: "Official death certificate"},
		{Kind: domain.DocIDBeneficiary, Required: true, Description: "Beneficiary identification (KTP/Passport)"},
		{Kind: domain.DocClaimForm, Required: true, Description: "Completed claim form with signatures"},
		{Kind: domain.DocDoctorLetter, Required: true, Description: "Doctor statement on cause of death"},
		{Kind: domain.DocBankAccount, Required: true, Description: "Bank account details for payment"},
		{Kind: domain.DocPoliceReport, Conditional: "accident", Description: "Police report if death due to accident"},
		{Kind: domain.DocFamilyRelation, Conditional: "beneficiary_verification", Description: "Family relation proof (KK/Birth Certificate)"},
	},
	domain.TypeCriticalIllness: {
		{Kind: domain.DocPolicy, Required: true, Description: "Policy document"},
		{Kind: domain.DocIDInsured, Required: true, Description: "Insured person ID"},
		{Kind: domain.DocIDBeneficiary, Required: true, Description: "Policy holder ID"},
		{Kind: domain.DocClaimForm, Required: true, Description: "CI claim form"},
		{Kind: domain.DocCIDiagnosis, Required: true, Description: "Diagnosis results and lab reports"},
		{Kind: domain.DocMedicalReport, Required: true, Description: "Medical authorization letter"},
		{Kind: domain.DocBankAccount, Required: true, Description: "Bank account for payment"},
		{Kind: domain.DocAccidentReport, Conditional: "ci_from_accident", Description: "Accident report if CI caused by accident"},
	},
	domain.TypeAccident: {
		{Kind: domain.DocClaimForm, Required: true, Description: "Health/accident claim form"},
		{Kind: domain.DocPolicy, Required: true, Description: "Policy document"},
		{Kind: domain.DocIDInsured, Required: true, Description: "ID of insured"},
		{Kind: domain.DocMedicalReceipt, Required: true, Description: "Original receipts with cost breakdown"},
		{Kind: domain.DocMedicalResume, Required: true, Description: "Medical resume from hospital"},
		{Kind: domain.DocDoctorLetter, Required: true, Description: "Doctor statement"},
		{Kind: domain.DocPoliceReport, Conditional: "traffic_accident", Description: "Police report for traffic accidents"},
		{Kind: domain.DocLabResult, Conditional: "if_performed", Description: "Lab/X-ray results if performed"},
	},
	domain.TypeHealth: {
		{Kind: domain.DocClaimForm, Required: true, Description: "Health claim form"},
		{Kind: domain.DocPolicy, Required: true, Description: "Policy document"},
		{Kind: domain.DocIDInsured, Required: true, Description: "ID of insured"},
		{Kind: domain.DocMedicalReceipt, Required: true, Description: "Original receipts and bills"},
		{Kind: domain.DocMedicalResume, Required: true, Description: "Medical resume"},
		{Kind: domain.DocDoctorLetter, Required: true, Description: "Doctor certificate"},
	},
}

// Checklist returns the requirement rows for a claim type.
// Unknown claim types get an empty checklist.
func Checklist(claimType domain.ClaimType) []Requirement {
	return checklists[claimType]
}

// CheckCompleteness determines which required documents are missing
// and the completeness percentage. Conditional requirements count only
// when their condition flag is set. Pure function over its inputs.
func CheckCompleteness(claimType domain.ClaimType, uploaded []domain.DocumentKind, conditions map[string]bool) Completeness {
	requirements := Checklist(claimType)

	present := make(map[domain.DocumentKind]bool, len(uploaded))
	for _, kind := range uploaded {
		present[kind] = true
	}

	var missing []domain.DocumentKind
	requiredCount := 0
	uploadedCount := 0

	for _, req := range requirements {
		isRequired := req.Required || (req.Conditional != "" && conditions[req.Conditional])
		if !isRequired {
			continue
		}
		requiredCount++
		if present[req.Kind] {
			uploadedCount++
		} else {
			missing = append(missing, req.Kind)
		}
	}

	// Zero required documents is a degenerate case: percentage is 0.
	percentage := 0
	if requiredCount > 0 {
		percentage = int(math.Round(float64(uploadedCount) / float64(requiredCount) * 100))
	}

	return Completeness{
		Complete:   len(missing) == 0,
		Missing:    missing,
		Percentage: percentage,
	}
}

// ConditionsFor derives the conditional-document flags from a claim's
// incident fields.
func ConditionsFor(claim *domain.Claim) map[string]bool {
	cause := strings.ToLower(claim.CauseOfDeath)
	if cause == "" {
		cause = strings.ToLower(claim.CauseOfInjury)
	}

	accidental := strings.Contains(cause, "accident")

	return map[string]bool{
		"accident":                 accidental,
		"ci_from_accident":         accidental,
		"traffic_accident":         strings.Contains(cause, "traffic") || claim.PoliceReport != "",
		"beneficiary_verification": claim.BeneficiaryName != "",
	}
}
