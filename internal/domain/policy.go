package domain

import "time"

// PolicyStatus is the lifecycle state of a policy.
type PolicyStatus string

const (
	PolicyActive     PolicyStatus = "Active"
	PolicyLapsed     PolicyStatus = "Lapsed"
	PolicyTerminated PolicyStatus = "Terminated"
)

// Policy is the coverage record a claim is filed against.
// Looked up from the (external) policy system; the engine treats it
// as an already-resolved input.
type Policy struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenantId"`
	Status     PolicyStatus  `json:"status"`
	Product    ClaimType     `json:"product"`
	HolderName string        `json:"holderName"`
	HolderNIK  string        `json:"holderNIK"`
	StartDate  time.Time     `json:"startDate"`
	MaxBenefit float64       `json:"maxBenefit"`
	Beneficiaries []Beneficiary `json:"beneficiaries"`
}

// Beneficiary is a named beneficiary on a policy.
type Beneficiary struct {
	Name         string  `json:"name"`
	NIK          string  `json:"nik"`
	Relationship string  `json:"relationship"`
	Percentage   float64 `json:"percentage"`
	MatchScore   float64 `json:"matchScore,omitempty"`
}

// AgeInMonths returns whole months elapsed since the policy start.
func (p *Policy) AgeInMonths(now time.Time) int {
	months := (now.Year()-p.StartDate.Year())*12 + int(now.Month()) - int(p.StartDate.Month())
	if months < 0 {
		return 0
	}
	return months
}

// AgeInDays returns whole days elapsed since the policy start.
func (p *Policy) AgeInDays(now time.Time) int {
	days := int(now.Sub(p.StartDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// BeneficiaryByNIK returns the named beneficiary matching a NIK, if any.
func (p *Policy) BeneficiaryByNIK(nik string) (*Beneficiary, bool) {
	for i := range p.Beneficiaries {
		if p.Beneficiaries[i].NIK == nik {
			return &p.Beneficiaries[i], true
		}
	}
	return nil, false
}
