package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "verdict-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		claim := &domain.Claim{
			ID:              "CLM-001",
			TenantID:        tenantID,
			PolicyID:        "POL-001",
			Type:            domain.TypeLife,
			Stage:           domain.StageIntake,
			Channel:         domain.ChannelWeb,
			BeneficiaryNIK:  "3217050801900001",
			BeneficiaryName: "Siti Santoso",
			CauseOfDeath:    "Natural causes",
			Amount:          250_000_000,
			Documents: []domain.Document{
				{Kind: domain.DocClaimForm, Valid: true, OCRStatus: domain.OCRMatched, UploadedAt: time.Now().UTC()},
			},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}

		if err := repo.SaveClaim(ctx, tenantID, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		retrieved, err := repo.GetClaim(ctx, tenantID, claim.ID)
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}

		if retrieved.ID != claim.ID {
			t.Errorf("expected ID %s, got %s", claim.ID, retrieved.ID)
		}
		if retrieved.Amount != claim.Amount {
			t.Errorf("expected Amount %.2f, got %.2f", claim.Amount, retrieved.Amount)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if len(retrieved.Documents) != 1 {
			t.Errorf("expected 1 document, got %d", len(retrieved.Documents))
		}
		if retrieved.Documents[0].OCRStatus != domain.OCRMatched {
			t.Errorf("expected OCR status Matched, got %s", retrieved.Documents[0].OCRStatus)
		}
	})

	t.Run("UpdateClaim", func(t *testing.T) {
		claim, err := repo.GetClaim(ctx, tenantID, "CLM-001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}

		claim.Stage = domain.StageAnalysis
		claim.RiskScore = 0.42
		claim.UpdatedAt = time.Now().UTC()

		if err := repo.UpdateClaim(ctx, tenantID, claim); err != nil {
			t.Fatalf("UpdateClaim failed: %v", err)
		}

		updated, err := repo.GetClaim(ctx, tenantID, "CLM-001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if updated.Stage != domain.StageAnalysis {
			t.Errorf("expected stage Analysis, got %s", updated.Stage)
		}
		if updated.RiskScore != 0.42 {
			t.Errorf("expected risk score 0.42, got %.2f", updated.RiskScore)
		}
	})

	t.Run("UpdateUnknownClaim", func(t *testing.T) {
		claim := &domain.Claim{ID: "CLM-GHOST", TenantID: tenantID}
		if err := repo.UpdateClaim(ctx, tenantID, claim); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		_, err := repo.GetClaim(ctx, otherTenant, "CLM-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		claim := &domain.Claim{ID: "CLM-test"}

		err := repo.SaveClaim(ctx, "", claim)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetClaim(ctx, "", "CLM-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("ListClaims", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			claim := &domain.Claim{
				ID:             fmt.Sprintf("CLM-LIST-%d", i),
				TenantID:       tenantID,
				PolicyID:       "POL-002",
				Type:           domain.TypeHealth,
				Stage:          domain.StageValidation,
				BeneficiaryNIK: "3217050801900002",
				Amount:         5_000_000,
				CreatedAt:      time.Now().UTC(),
				UpdatedAt:      time.Now().UTC(),
			}
			if err := repo.SaveClaim(ctx, tenantID, claim); err != nil {
				t.Fatalf("SaveClaim failed: %v", err)
			}
		}

		claims, err := repo.ListClaims(ctx, tenantID, domain.ClaimFilter{Type: domain.TypeHealth})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 3 {
			t.Errorf("expected 3 health claims, got %d", len(claims))
		}

		claims, err = repo.ListClaims(ctx, tenantID, domain.ClaimFilter{Stage: domain.StageValidation, Limit: 2})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 2 {
			t.Errorf("expected limit of 2 claims, got %d", len(claims))
		}
	})

	t.Run("CountClaimsByBeneficiary", func(t *testing.T) {
		count, err := repo.CountClaimsByBeneficiary(ctx, tenantID, "3217050801900002", time.Time{}, "")
		if err != nil {
			t.Fatalf("CountClaimsByBeneficiary failed: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 claims all-time, got %d", count)
		}

		count, err = repo.CountClaimsByBeneficiary(ctx, tenantID, "3217050801900002", time.Now().Add(time.Hour), "")
		if err != nil {
			t.Fatalf("CountClaimsByBeneficiary failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 claims in the future window, got %d", count)
		}

		count, err = repo.CountClaimsByBeneficiary(ctx, tenantID, "3217050801900002", time.Time{}, "CLM-LIST-0")
		if err != nil {
			t.Fatalf("CountClaimsByBeneficiary failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 claims with one excluded, got %d", count)
		}

		if _, err := repo.CountClaimsByBeneficiary(ctx, tenantID, "", time.Time{}, ""); err == nil {
			t.Error("expected error for empty NIK")
		}
	})

	t.Run("SaveAndGetPolicy", func(t *testing.T) {
		policy := &domain.Policy{
			ID:         "POL-001",
			TenantID:   tenantID,
			Status:     domain.PolicyActive,
			Product:    domain.TypeLife,
			HolderName: "Budi Santoso",
			HolderNIK:  "3217050801600001",
			StartDate:  time.Now().UTC().AddDate(-2, 0, 0),
			MaxBenefit: 500_000_000,
			Beneficiaries: []domain.Beneficiary{
				{Name: "Siti Santoso", NIK: "3217050801900001", Relationship: "spouse", Percentage: 100, MatchScore: 0.95},
			},
		}

		if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
			t.Fatalf("SavePolicy failed: %v", err)
		}

		retrieved, err := repo.GetPolicy(ctx, tenantID, policy.ID)
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if retrieved.Status != domain.PolicyActive {
			t.Errorf("expected Active status, got %s", retrieved.Status)
		}
		if len(retrieved.Beneficiaries) != 1 || retrieved.Beneficiaries[0].MatchScore != 0.95 {
			t.Errorf("beneficiaries not round-tripped: %+v", retrieved.Beneficiaries)
		}

		// Upsert replaces the stored row.
		policy.Status = domain.PolicyLapsed
		if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
			t.Fatalf("SavePolicy upsert failed: %v", err)
		}
		retrieved, err = repo.GetPolicy(ctx, tenantID, policy.ID)
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if retrieved.Status != domain.PolicyLapsed {
			t.Errorf("expected Lapsed after upsert, got %s", retrieved.Status)
		}
	})

	t.Run("Blacklist", func(t *testing.T) {
		nik := "3217050801911111"

		listed, err := repo.IsBlacklisted(ctx, tenantID, nik)
		if err != nil {
			t.Fatalf("IsBlacklisted failed: %v", err)
		}
		if listed {
			t.Error("expected NIK not blacklisted initially")
		}

		if err := repo.AddToBlacklist(ctx, tenantID, nik, "confirmed fraud"); err != nil {
			t.Fatalf("AddToBlacklist failed: %v", err)
		}
		// Re-adding must not error.
		if err := repo.AddToBlacklist(ctx, tenantID, nik, "updated reason"); err != nil {
			t.Fatalf("AddToBlacklist upsert failed: %v", err)
		}

		listed, err = repo.IsBlacklisted(ctx, tenantID, nik)
		if err != nil {
			t.Fatalf("IsBlacklisted failed: %v", err)
		}
		if !listed {
			t.Error("expected NIK blacklisted after add")
		}

		// Other tenants never see the entry.
		listed, err = repo.IsBlacklisted(ctx, "tenant-002", nik)
		if err != nil {
			t.Fatalf("IsBlacklisted failed: %v", err)
		}
		if listed {
			t.Error("blacklist entry leaked across tenants")
		}
	})

	t.Run("RuleConfigs", func(t *testing.T) {
		rule := &domain.RuleConfig{
			ID:         "RULE-001",
			Name:       "High Amount Review",
			Category:   domain.RuleCategoryAll,
			Expression: "amount > 100000000.0",
			Action:     domain.ActionReview,
			Priority:   3,
			Message:    "Large claim requires review",
			Enabled:    true,
		}

		if err := repo.SaveRuleConfig(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRuleConfig failed: %v", err)
		}

		retrieved, err := repo.GetRuleConfig(ctx, tenantID, rule.ID)
		if err != nil {
			t.Fatalf("GetRuleConfig failed: %v", err)
		}
		if retrieved.Expression != rule.Expression {
			t.Errorf("expected expression %q, got %q", rule.Expression, retrieved.Expression)
		}
		if retrieved.Action != domain.ActionReview {
			t.Errorf("expected action review, got %s", retrieved.Action)
		}

		// Upsert with a new expression.
		rule.Expression = "amount > 200000000.0"
		if err := repo.SaveRuleConfig(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRuleConfig upsert failed: %v", err)
		}

		configs, err := repo.ListRuleConfigs(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListRuleConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Fatalf("expected 1 rule config, got %d", len(configs))
		}
		if configs[0].Expression != "amount > 200000000.0" {
			t.Errorf("upsert did not replace expression: %q", configs[0].Expression)
		}

		// Disabled rules disappear from reads.
		rule.Enabled = false
		if err := repo.SaveRuleConfig(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveRuleConfig disable failed: %v", err)
		}
		if _, err := repo.GetRuleConfig(ctx, tenantID, rule.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for disabled rule, got: %v", err)
		}
	})

	t.Run("ApprovalLedger", func(t *testing.T) {
		claimID := "CLM-001"

		first := &domain.ApprovalAction{
			UserID:    "user-001",
			UserRole:  domain.RoleL1Adjuster,
			Action:    domain.ApprovalApprove,
			Comments:  "documents verified",
			Timestamp: time.Now().UTC(),
		}
		if err := repo.SaveApprovalAction(ctx, tenantID, claimID, first); err != nil {
			t.Fatalf("SaveApprovalAction failed: %v", err)
		}

		// Same user again is a no-op.
		dup := *first
		dup.Comments = "second attempt"
		if err := repo.SaveApprovalAction(ctx, tenantID, claimID, &dup); err != nil {
			t.Fatalf("SaveApprovalAction duplicate failed: %v", err)
		}

		second := &domain.ApprovalAction{
			UserID:    "user-002",
			UserRole:  domain.RoleL2Supervisor,
			Action:    domain.ApprovalApprove,
			Timestamp: time.Now().UTC().Add(time.Second),
		}
		if err := repo.SaveApprovalAction(ctx, tenantID, claimID, second); err != nil {
			t.Fatalf("SaveApprovalAction failed: %v", err)
		}

		actions, err := repo.ListApprovalActions(ctx, tenantID, claimID)
		if err != nil {
			t.Fatalf("ListApprovalActions failed: %v", err)
		}
		if len(actions) != 2 {
			t.Fatalf("expected 2 ledger entries, got %d", len(actions))
		}
		if actions[0].Comments != "documents verified" {
			t.Errorf("duplicate overwrote original comments: %q", actions[0].Comments)
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		eval := &domain.ClaimEvaluation{
			ID:        "eval-001",
			TenantID:  tenantID,
			ClaimID:   "CLM-001",
			Status:    domain.EvalStatusPendingApproval,
			Timestamp: time.Now().UTC(),
			RuleResults: []domain.RuleResult{
				{RuleID: "CLAIM_R005", RuleName: "Document Completeness", Triggered: true, Action: domain.ActionApprove},
			},
			Recommendation: domain.RuleRecommendation{
				Action:     domain.ActionApprove,
				Confidence: 0.45,
			},
			FraudRisk: domain.FraudRiskAssessment{
				RiskScore:     0.1,
				CombinedScore: 0.12,
				RiskLevel:     domain.RiskLow,
			},
			Risk: domain.RiskAssessment{
				OverallRiskScore: 0.2,
				RiskCategory:     domain.RiskLow,
				AIRecommendation: domain.RecommendManualReview,
			},
			Metadata: domain.EvaluationMetadata{TraceID: "trace-001", EngineVersion: "verdict-1.0"},
		}

		if err := repo.SaveEvaluation(ctx, tenantID, eval); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, tenantID, eval.ID)
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}

		if retrieved.ClaimID != eval.ClaimID {
			t.Errorf("expected ClaimID %s, got %s", eval.ClaimID, retrieved.ClaimID)
		}
		if retrieved.Status != eval.Status {
			t.Errorf("expected Status %s, got %s", eval.Status, retrieved.Status)
		}
		if retrieved.Risk.OverallRiskScore != eval.Risk.OverallRiskScore {
			t.Errorf("expected risk score %.2f, got %.2f",
				eval.Risk.OverallRiskScore, retrieved.Risk.OverallRiskScore)
		}
		if len(retrieved.RuleResults) != 1 || retrieved.RuleResults[0].RuleID != "CLAIM_R005" {
			t.Errorf("rule results not round-tripped: %+v", retrieved.RuleResults)
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", retrieved.Metadata.TraceID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetPolicy(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetEvaluation(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
