package domain

import "time"

// Role is a CMS user role eligible to act on claims.
type Role string

const (
	RoleL1Adjuster       Role = "L1_Adjuster"
	RoleL2Supervisor     Role = "L2_Supervisor"
	RoleManager          Role = "Manager"
	RoleMedicalOfficer   Role = "Medical_Officer"
	RoleSIUInvestigator  Role = "SIU_Investigator"
	RoleFinance          Role = "Finance"
	RoleCompliance       Role = "Compliance"
	RoleHead             Role = "Head"
	RoleReinsuranceCoord Role = "Reinsurance_Coordinator"
)

// ApprovalTier identifies a row in the approval matrix.
type ApprovalTier string

const (
	TierLow             ApprovalTier = "low"
	TierMedium          ApprovalTier = "medium"
	TierHigh            ApprovalTier = "high"
	TierFraudFlagged    ApprovalTier = "fraud_flagged"
	TierMedicalRequired ApprovalTier = "medical_required"
	TierReinsurance     ApprovalTier = "reinsurance"
)

// ApprovalRequirement is a static lookup row: who may approve a claim
// at a given tier and how many approvals complete it.
type ApprovalRequirement struct {
	Tier            ApprovalTier `json:"tier"`
	Roles           []Role       `json:"roles"`
	MinApprovals    int          `json:"minApprovals"`
	MandatoryRoles  []Role       `json:"mandatoryRoles,omitempty"`
	EscalationHours int          `json:"escalationHours"`
}

// AllowsRole reports whether a role may act at this tier.
func (r ApprovalRequirement) AllowsRole(role Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// ApprovalActionType is the kind of action an approver records.
type ApprovalActionType string

const (
	ApprovalApprove     ApprovalActionType = "approve"
	ApprovalReject      ApprovalActionType = "reject"
	ApprovalRequestInfo ApprovalActionType = "request_info"
)

// ApprovalAction is one append-only ledger entry.
// One user records at most one action per claim.
type ApprovalAction struct {
	UserID    string             `json:"userId"`
	UserRole  Role               `json:"userRole"`
	Action    ApprovalActionType `json:"action"`
	Comments  string             `json:"comments,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// ApprovalStatus summarizes where a claim stands in its approval flow.
type ApprovalStatus struct {
	IsComplete        bool   `json:"isComplete"`
	CurrentApprovals  int    `json:"currentApprovals"`
	RequiredApprovals int    `json:"requiredApprovals"`
	MissingRoles      []Role `json:"missingRoles"`
	CanAutoApprove    bool   `json:"canAutoApprove"`
}

// ApprovalProgress is one row of the per-role approval matrix view.
type ApprovalProgress struct {
	Role      Role       `json:"role"`
	Required  bool       `json:"required"`
	Approved  bool       `json:"approved"`
	Approver  string     `json:"approver,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ApprovalMatrix is the full approval picture for a claim.
type ApprovalMatrix struct {
	Tier        ApprovalTier        `json:"tier"`
	Requirement ApprovalRequirement `json:"requirement"`
	Progress    []ApprovalProgress  `json:"progress"`
}

// Escalation is the result of an escalation check.
type Escalation struct {
	ShouldEscalate bool         `json:"shouldEscalate"`
	Tier           ApprovalTier `json:"tier,omitempty"`
	NotifyRoles    []Role       `json:"notifyRoles,omitempty"`
}
