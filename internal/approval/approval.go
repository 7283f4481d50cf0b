// Package approval implements the approval workflow manager: tier
// selection, the per-claim approval ledger, and escalation checks.
package approval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

// retentionLimit is the ceiling above which reinsurance sign-off is
// required, in IDR.
const retentionLimit = 1_000_000_000

// autoApproveAmountLimit mirrors the composite scorer's automation
// ceiling.
const autoApproveAmountLimit = 50_000_000

// matrix maps each tier to its requirement row.
var matrix = map[domain.ApprovalTier]domain.ApprovalRequirement{
	domain.TierLow: {
		Tier:            domain.TierLow,
		Roles:           []domain.Role{domain.RoleL1Adjuster, domain.RoleL2Supervisor},
		MinApprovals:    2,
		EscalationHours: 24,
	},
	domain.TierMedium: {
		Tier:            domain.TierMedium,
		Roles:           []domain.Role{domain.RoleL2Supervisor, domain.RoleManager},
		MinApprovals:    2,
		EscalationHours: 48,
	},
	domain.TierHigh: {
		Tier:            domain.TierHigh,
		Roles:           []domain.Role{domain.RoleManager, domain.RoleHead, domain.RoleCompliance},
		MinApprovals:    2,
		MandatoryRoles:  []domain.Role{domain.RoleHead},
		EscalationHours: 72,
	},
	domain.TierFraudFlagged: {
		Tier:            domain.TierFraudFlagged,
		Roles:           []domain.Role{domain.RoleSIUInvestigator, domain.RoleManager, domain.RoleCompliance},
		MinApprovals:    2,
		MandatoryRoles:  []domain.Role{domain.RoleSIUInvestigator},
		EscalationHours: 96,
	},
	domain.TierMedicalRequired: {
		Tier:            domain.TierMedicalRequired,
		Roles:           []domain.Role{domain.RoleMedicalOfficer, domain.RoleL2Supervisor},
		MinApprovals:    2,
		MandatoryRoles:  []domain.Role{domain.RoleMedicalOfficer},
		EscalationHours: 48,
	},
	domain.TierReinsurance: {
		Tier:            domain.TierReinsurance,
		Roles:           []domain.Role{domain.RoleReinsuranceCoord, domain.RoleHead, domain.RoleFinance},
		MinApprovals:    3,
		MandatoryRoles:  []domain.Role{domain.RoleReinsuranceCoord, domain.RoleHead},
		EscalationHours: 120,
	},
}

// AmountTier returns the amount-based tier, before overrides.
func AmountTier(amount float64) domain.ApprovalTier {
	switch {
	case amount <= 50_000_000:
		return domain.TierLow
	case amount <= 250_000_000:
		return domain.TierMedium
	default:
		return domain.TierHigh
	}
}

// RequirementFor resolves the approval requirement for a claim.
// Overrides apply in a fixed order: fraud flags beat medical review,
// which beats the reinsurance retention check, which beats the plain
// amount tiers.
func RequirementFor(claim *domain.Claim) domain.ApprovalRequirement {
	amount := claim.BenefitAmount()

	if len(claim.FraudIndicators) > 0 {
		highSeverity := false
		for _, ind := range claim.FraudIndicators {
			if ind.Severity == domain.SeverityHigh {
				highSeverity = true
				break
			}
		}
		if highSeverity || claim.RiskScore >= 0.7 {
			return matrix[domain.TierFraudFlagged]
		}
	}

	if claim.Type == domain.TypeCriticalIllness || claim.Type == domain.TypeHealth {
		return matrix[domain.TierMedicalRequired]
	}

	if amount > retentionLimit {
		return matrix[domain.TierReinsurance]
	}

	return matrix[AmountTier(amount)]
}

// Requirement returns the matrix row for a tier.
func Requirement(tier domain.ApprovalTier) (domain.ApprovalRequirement, bool) {
	req, ok := matrix[tier]
	return req, ok
}

// claimLedger serializes read-modify-write per claim so the one-action-
// per-user invariant holds under concurrent approvals.
type claimLedger struct {
	mu      sync.Mutex
	actions []*domain.ApprovalAction
	loaded  bool
}

// Manager tracks approval ledgers per claim. Actions are held in
// memory and written through to the repository when one is configured;
// ledgers hydrate lazily from storage on first access.
type Manager struct {
	repo domain.Repository

	mu      sync.Mutex
	ledgers map[string]*claimLedger
}

// NewManager creates an approval manager. repo may be nil for a
// purely in-memory ledger.
func NewManager(repo domain.Repository) *Manager {
	return &Manager{
		repo:    repo,
		ledgers: make(map[string]*claimLedger),
	}
}

func ledgerKey(tenantID, claimID string) string {
	return tenantID + "/" + claimID
}

func (m *Manager) ledgerFor(tenantID, claimID string) *claimLedger {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ledgerKey(tenantID, claimID)
	l, ok := m.ledgers[key]
	if !ok {
		l = &claimLedger{}
		m.ledgers[key] = l
	}
	return l
}

// hydrate loads persisted actions into the ledger. Caller holds l.mu.
func (m *Manager) hydrate(ctx context.Context, l *claimLedger, tenantID, claimID string) error {
	if l.loaded || m.repo == nil {
		l.loaded = true
		return nil
	}

	actions, err := m.repo.ListApprovalActions(ctx, tenantID, claimID)
	if err != nil {
		return fmt.Errorf("load approval ledger for claim %s: %w", claimID, err)
	}

	l.actions = actions
	l.loaded = true
	return nil
}

// AddApproval appends an action to the claim's ledger. Returns false
// without changing state when the user already acted on this claim.
func (m *Manager) AddApproval(ctx context.Context, tenantID, claimID string, action *domain.ApprovalAction) (bool, error) {
	if action == nil || action.UserID == "" {
		return false, fmt.Errorf("approval action: %w", domain.ErrInvalidInput)
	}

	l := m.ledgerFor(tenantID, claimID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := m.hydrate(ctx, l, tenantID, claimID); err != nil {
		return false, err
	}

	for _, a := range l.actions {
		if a.UserID == action.UserID {
			return false, nil
		}
	}

	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}

	if m.repo != nil {
		if err := m.repo.SaveApprovalAction(ctx, tenantID, claimID, action); err != nil {
			return false, fmt.Errorf("persist approval action: %w", err)
		}
	}

	l.actions = append(l.actions, action)
	return true, nil
}

// Chain returns the claim's recorded actions in insertion order.
func (m *Manager) Chain(ctx context.Context, tenantID, claimID string) ([]*domain.ApprovalAction, error) {
	l := m.ledgerFor(tenantID, claimID)
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := m.hydrate(ctx, l, tenantID, claimID); err != nil {
		return nil, err
	}

	out := make([]*domain.ApprovalAction, len(l.actions))
	copy(out, l.actions)
	return out, nil
}

// CheckStatus reports where a claim stands against its requirement.
func (m *Manager) CheckStatus(ctx context.Context, claim *domain.Claim) (*domain.ApprovalStatus, error) {
	requirement := RequirementFor(claim)

	actions, err := m.Chain(ctx, claim.TenantID, claim.ID)
	if err != nil {
		return nil, err
	}

	var approved []*domain.ApprovalAction
	for _, a := range actions {
		if a.Action == domain.ApprovalApprove {
			approved = append(approved, a)
		}
	}

	missing := make([]domain.Role, 0)
	for _, role := range requirement.MandatoryRoles {
		found := false
		for _, a := range approved {
			if a.UserRole == role {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, role)
		}
	}

	return &domain.ApprovalStatus{
		IsComplete:        len(approved) >= requirement.MinApprovals && len(missing) == 0,
		CurrentApprovals:  len(approved),
		RequiredApprovals: requirement.MinApprovals,
		MissingRoles:      missing,
		CanAutoApprove:    canAutoApprove(claim),
	}, nil
}

// canAutoApprove gates the human-free path. An unset risk score
// counts as maximal risk.
func canAutoApprove(claim *domain.Claim) bool {
	if claim.AIAnalysis == nil || claim.AIAnalysis.RecommendedAction != domain.RecommendAutoApprove {
		return false
	}

	riskScore := claim.RiskScore
	if riskScore == 0 {
		riskScore = 1
	}

	amlScore := 0.0
	if claim.AMLCheck != nil {
		amlScore = claim.AMLCheck.NameMatchScore
	}

	return riskScore < 0.3 &&
		claim.AIAnalysis.DocumentCompleteness >= 95 &&
		amlScore >= 0.9 &&
		claim.BenefitAmount() < autoApproveAmountLimit
}

// CanUserApprove reports whether a user may still act on a claim.
func (m *Manager) CanUserApprove(ctx context.Context, userID string, role domain.Role, claim *domain.Claim) (bool, error) {
	requirement := RequirementFor(claim)
	if !requirement.AllowsRole(role) {
		return false, nil
	}

	actions, err := m.Chain(ctx, claim.TenantID, claim.ID)
	if err != nil {
		return false, err
	}

	for _, a := range actions {
		if a.UserID == userID {
			return false, nil
		}
	}
	return true, nil
}

// EscalateIfNeeded checks the claim age against its tier's escalation
// budget. Escalation climbs the amount ladder one step at a time;
// high is the last rung.
func (m *Manager) EscalateIfNeeded(claim *domain.Claim, now time.Time) domain.Escalation {
	requirement := RequirementFor(claim)
	ageHours := int(now.Sub(claim.CreatedAt).Hours())

	if ageHours <= requirement.EscalationHours {
		return domain.Escalation{ShouldEscalate: false}
	}

	next := domain.TierHigh
	switch AmountTier(claim.BenefitAmount()) {
	case domain.TierLow:
		next = domain.TierMedium
	case domain.TierMedium:
		next = domain.TierHigh
	}

	return domain.Escalation{
		ShouldEscalate: true,
		Tier:           next,
		NotifyRoles:    matrix[next].Roles,
	}
}

// GenerateMatrix builds the per-role approval picture for a claim.
func (m *Manager) GenerateMatrix(ctx context.Context, claim *domain.Claim) (*domain.ApprovalMatrix, error) {
	requirement := RequirementFor(claim)

	actions, err := m.Chain(ctx, claim.TenantID, claim.ID)
	if err != nil {
		return nil, err
	}

	progress := make([]domain.ApprovalProgress, 0, len(requirement.Roles))
	for _, role := range requirement.Roles {
		row := domain.ApprovalProgress{
			Role:     role,
			Required: containsRole(requirement.MandatoryRoles, role),
		}

		for _, a := range actions {
			if a.UserRole == role && a.Action == domain.ApprovalApprove {
				row.Approved = true
				row.Approver = a.UserID
				ts := a.Timestamp
				row.Timestamp = &ts
				break
			}
		}

		progress = append(progress, row)
	}

	return &domain.ApprovalMatrix{
		Tier:        requirement.Tier,
		Requirement: requirement,
		Progress:    progress,
	}, nil
}

func containsRole(roles []domain.Role, role domain.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// GenerateDecisionLetter renders the customer-facing decision notice.
// Presentation only; the decision fields are the contract.
func GenerateDecisionLetter(claim *domain.Claim, decision *domain.Decision) string {
	name := claim.BeneficiaryName
	if name == "" {
		name = "Valued Customer"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", name)
	fmt.Fprintf(&b, "RE: Claim Decision - %s\n", claim.ID)
	fmt.Fprintf(&b, "Policy Number: %s\n\n", claim.PolicyID)
	fmt.Fprintf(&b, "We have completed our review of your %s insurance claim.\n\n", claim.Type)
	fmt.Fprintf(&b, "DECISION: %s\n", strings.ToUpper(string(decision.Status)))

	switch decision.Status {
	case domain.DecisionApproved, domain.DecisionPartialApproved:
		fmt.Fprintf(&b, "\nAPPROVED AMOUNT: IDR %s\n\n", formatAmount(decision.Amount))
		b.WriteString("The approved benefit will be processed for payment within 24 hours to your registered bank account.\n")
	default:
		fmt.Fprintf(&b, "\nREASON: %s\n\n", decision.Reason)
		b.WriteString("Please contact our customer service for more information.\n")
	}

	b.WriteString("\nIf you have any questions about this decision, please contact our Claims Department.\n\n")
	b.WriteString("Sincerely,\nClaims Department\nClaimCare Insurance\n")

	return b.String()
}

// formatAmount renders an IDR amount with thousand separators.
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
