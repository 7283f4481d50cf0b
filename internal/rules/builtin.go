package rules

import "github.com/claimcare/verdict/internal/domain"

// BuiltinRules returns the standard coverage and exclusion rule set.
// Loaded at boot; additional rules can be configured via the API and
// hot-reloaded from the database.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         "CLAIM_R001",
			Name:       "Suicide Exclusion",
			Category:   string(domain.TypeLife),
			Expression: `cause_of_death.contains("suicide") && policy_age_months < 24`,
			Action:     domain.ActionDeny,
			Priority:   1,
			Message:    "Claim denied: Suicide within 2-year exclusion period",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R006",
			Name:       "Drunk Driving Exclusion",
			Category:   string(domain.TypeAccident),
			Expression: `police_report.contains("alcohol") || police_report.contains("dui") || police_report.contains("drunk")`,
			Action:     domain.ActionDeny,
			Priority:   1,
			Message:    "Claim denied: Accident caused by drunk driving",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R007",
			Name:       "War/Terrorism Exclusion",
			Category:   domain.RuleCategoryAll,
			Expression: `cause.contains("war") || cause.contains("terrorism") || cause.contains("military")`,
			Action:     domain.ActionDeny,
			Priority:   1,
			Message:    "Claim denied: War/terrorism exclusion applies",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R002",
			Name:       "Pre-existing Condition",
			Category:   string(domain.TypeCriticalIllness),
			Expression: `days_diagnosis_after_policy_start < 90`,
			Action:     domain.ActionReview,
			Priority:   2,
			Message:    "Manual review required: Possible pre-existing condition",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R003",
			Name:       "Maximum Benefit Limit",
			Category:   domain.RuleCategoryAll,
			Expression: `max_benefit > 0.0 && amount > max_benefit`,
			Action:     domain.ActionFlag,
			Priority:   3,
			Message:    "Claim amount exceeds maximum benefit limit",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R004",
			Name:       "Valid Critical Illness",
			Category:   string(domain.TypeCriticalIllness),
			Expression: `diagnosis.contains("cancer") || diagnosis.contains("heart attack") || diagnosis.contains("stroke") || diagnosis.contains("kidney failure") || diagnosis.contains("organ transplant")`,
			Action:     domain.ActionApprove,
			Priority:   4,
			Message:    "Valid critical illness diagnosis confirmed",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R005",
			Name:       "Document Completeness",
			Category:   domain.RuleCategoryAll,
			Expression: `documents_complete`,
			Action:     domain.ActionApprove,
			Priority:   5,
			Message:    "All required documents are present",
			Enabled:    true,
		},
		{
			ID:         "CLAIM_R008",
			Name:       "Beneficiary Verification",
			Category:   string(domain.TypeLife),
			Expression: `beneficiary_match_score >= 0.85`,
			Action:     domain.ActionApprove,
			Priority:   6,
			Message:    "Beneficiary identity verified",
			Enabled:    true,
		},
	}
}
