package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/claimcare/verdict/internal/approval"
	"github.com/claimcare/verdict/internal/bus"
	"github.com/claimcare/verdict/internal/cache"
	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/documents"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/fraud"
	"github.com/claimcare/verdict/internal/repository"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/sla"
	"github.com/claimcare/verdict/internal/velocity"
)

// quietSignals keeps fraud assessment deterministic in API tests.
type quietSignals struct{}

func (quietSignals) AnomalyScore(context.Context, *domain.Claim) float64        { return 0 }
func (quietSignals) PatternMatch(context.Context, *domain.Claim) bool           { return false }
func (quietSignals) NetworkScore(context.Context, *domain.Claim) float64        { return 0 }
func (quietSignals) DuplicateLikelihood(context.Context, *domain.Claim) float64 { return 0 }

// createTestServer wires a full stack against a temp SQLite database.
func createTestServer(t *testing.T) (*Server, domain.Repository, *bus.ChannelBus) {
	t.Helper()
	server, repo, eventBus, _ := createTestStack(t)
	return server, repo, eventBus
}

func createTestStack(t *testing.T) (*Server, domain.Repository, *bus.ChannelBus, domain.Cache) {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	vel := velocity.NewService(repo, lru)
	engine, err := rules.NewEngine(vel.GetVelocityGetter())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	pipeline := decision.NewPipeline(repo, engine, fraud.NewAssessor(quietSignals{}, repo), vel, nil)
	approvals := approval.NewManager(repo)
	monitor := sla.NewMonitor()

	server := NewServer(cfg, repo, lru, eventBus, engine, pipeline, approvals, monitor, vel, "test-v1")
	return server, repo, eventBus, lru
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

// seedPolicy stores a mature Life policy the test claims file against.
func seedPolicy(t *testing.T, repo domain.Repository, policyID, nik string) {
	t.Helper()

	policy := &domain.Policy{
		ID:         policyID,
		TenantID:   "tenant-001",
		Status:     domain.PolicyActive,
		Product:    domain.TypeLife,
		HolderName: "Budi Santoso",
		HolderNIK:  "3217050801600001",
		StartDate:  time.Now().UTC().AddDate(-3, 0, 0),
		MaxBenefit: 500_000_000,
		Beneficiaries: []domain.Beneficiary{
			{Name: "Siti Santoso", NIK: nik, Relationship: "spouse", Percentage: 100, MatchScore: 0.95},
		},
	}
	if err := repo.SavePolicy(context.Background(), "tenant-001", policy); err != nil {
		t.Fatalf("failed to save policy: %v", err)
	}
}

// lifeClaimRequest builds a fully documented Life claim request.
func lifeClaimRequest(policyID, nik string) ClaimRequest {
	kinds := []domain.DocumentKind{
		domain.DocPolicy, domain.DocDeathCert, domain.DocIDBeneficiary,
		domain.DocClaimForm, domain.DocDoctorLetter, domain.DocBankAccount,
		domain.DocFamilyRelation,
	}
	docs := make([]DocumentInput, 0, len(kinds))
	for _, k := range kinds {
		docs = append(docs, DocumentInput{Kind: k, Valid: true, OCRStatus: domain.OCRMatched})
	}
	return ClaimRequest{
		PolicyID:        policyID,
		Type:            domain.TypeLife,
		BeneficiaryNIK:  nik,
		BeneficiaryName: "Siti Santoso",
		CauseOfDeath:    "Natural causes - heart failure",
		Amount:          30_000_000,
		Documents:       docs,
	}
}

func TestCreateClaim(t *testing.T) {
	server, repo, _ := createTestServer(t)
	nik := "3217050801900002"
	seedPolicy(t, repo, "POL-API-1", nik)

	t.Run("SuccessfulCreation", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims", lifeClaimRequest("POL-API-1", nik))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Claim        domain.Claim           `json:"claim"`
			Completeness documents.Completeness `json:"completeness"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Claim.ID == "" {
			t.Error("expected generated claim id")
		}
		if resp.Claim.Stage != domain.StageIntake {
			t.Errorf("expected stage Intake, got %s", resp.Claim.Stage)
		}
		if resp.Claim.Channel != domain.ChannelWeb {
			t.Errorf("expected default channel Web, got %s", resp.Claim.Channel)
		}
		if !resp.Completeness.Complete {
			t.Errorf("expected complete documents, missing %v", resp.Completeness.Missing)
		}

		// Claim must be retrievable afterwards.
		get := doJSON(t, server, http.MethodGet, "/claims/"+resp.Claim.ID, nil)
		if get.Code != http.StatusOK {
			t.Errorf("expected status 200 on GET, got %d", get.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		body, _ := json.Marshal(lifeClaimRequest("POL-API-1", nik))
		req := httptest.NewRequest(http.MethodPost, "/claims", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claims", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingPolicyID", func(t *testing.T) {
		req := lifeClaimRequest("", nik)
		rr := doJSON(t, server, http.MethodPost, "/claims", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidType", func(t *testing.T) {
		req := lifeClaimRequest("POL-API-1", nik)
		req.Type = "Dental"
		rr := doJSON(t, server, http.MethodPost, "/claims", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		req := lifeClaimRequest("POL-API-1", nik)
		req.Amount = -5
		rr := doJSON(t, server, http.MethodPost, "/claims", req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestListClaims(t *testing.T) {
	server, repo, _ := createTestServer(t)
	nik := "3217050801900002"
	seedPolicy(t, repo, "POL-API-1", nik)

	for i := 0; i < 3; i++ {
		rr := doJSON(t, server, http.MethodPost, "/claims", lifeClaimRequest("POL-API-1", nik))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rr.Code)
		}
	}

	rr := doJSON(t, server, http.MethodGet, "/claims?type=Life", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Count != 3 {
		t.Errorf("expected 3 claims, got %d", resp.Count)
	}

	rr = doJSON(t, server, http.MethodGet, "/claims?type=Health", nil)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Count != 0 {
		t.Errorf("expected 0 Health claims, got %d", resp.Count)
	}

	rr = doJSON(t, server, http.MethodGet, "/claims?limit=oops", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad limit, got %d", rr.Code)
	}
}

func TestAddDocument(t *testing.T) {
	server, repo, _ := createTestServer(t)
	nik := "3217050801900002"
	seedPolicy(t, repo, "POL-API-1", nik)

	req := lifeClaimRequest("POL-API-1", nik)
	req.Documents = req.Documents[:3] // incomplete on purpose
	rr := doJSON(t, server, http.MethodPost, "/claims", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	var created struct {
		Claim        domain.Claim           `json:"claim"`
		Completeness documents.Completeness `json:"completeness"`
	}
	json.Unmarshal(rr.Body.Bytes(), &created)
	if created.Completeness.Complete {
		t.Fatal("expected incomplete documents after partial upload")
	}

	rr = doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/documents", DocumentInput{
		Kind:      domain.DocClaimForm,
		Valid:     true,
		OCRStatus: domain.OCRMatched,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated struct {
		Claim        domain.Claim           `json:"claim"`
		Completeness documents.Completeness `json:"completeness"`
	}
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if len(updated.Claim.Documents) != 4 {
		t.Errorf("expected 4 documents, got %d", len(updated.Claim.Documents))
	}

	t.Run("MissingKind", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/documents", DocumentInput{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/nope/documents", DocumentInput{Kind: domain.DocPolicy})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestCreateClaimRecordsVelocity(t *testing.T) {
	server, repo, _, cacheImpl := createTestStack(t)
	nik := "3217050801900033"
	seedPolicy(t, repo, "POL-API-VEL", nik)

	rr := doJSON(t, server, http.MethodPost, "/claims", lifeClaimRequest("POL-API-VEL", nik))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}

	// Intake bumped the filing counter to 1, so the next increment
	// reads 2.
	count, err := cacheImpl.IncrementCounter(context.Background(), "tenant-001", "velocity:"+nik, time.Hour)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected counter 2 after one filing, got %d", count)
	}
}

func TestAdvanceStage(t *testing.T) {
	server, repo, _ := createTestServer(t)
	nik := "3217050801900008"
	seedPolicy(t, repo, "POL-API-ST", nik)

	rr := doJSON(t, server, http.MethodPost, "/claims", lifeClaimRequest("POL-API-ST", nik))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	var created struct {
		Claim domain.Claim `json:"claim"`
	}
	json.Unmarshal(rr.Body.Bytes(), &created)

	rr = doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/stage",
		StageRequest{Stage: domain.StageValidation})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated struct {
		Claim domain.Claim `json:"claim"`
	}
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Claim.Stage != domain.StageValidation {
		t.Errorf("expected stage Validation, got %s", updated.Claim.Stage)
	}

	t.Run("BackwardTransitionConflict", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/stage",
			StageRequest{Stage: domain.StageIntake})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rr.Code)
		}
	})

	t.Run("RequestInfoPath", func(t *testing.T) {
		// Move forward to Analysis, then back to Validation.
		rr := doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/stage",
			StageRequest{Stage: domain.StageAnalysis})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		rr = doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/stage",
			StageRequest{Stage: domain.StageValidation})
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for request-info path, got %d", rr.Code)
		}
	})

	t.Run("MissingStage", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/stage", StageRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/nope/stage",
			StageRequest{Stage: domain.StageValidation})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

func TestEvaluateEndpoint(t *testing.T) {
	server, repo, eventBus := createTestServer(t)
	nik := "3217050801900002"
	seedPolicy(t, repo, "POL-API-1", nik)

	evaluated := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicClaimEvaluated,
		func(ctx context.Context, msg *domain.Message) error {
			select {
			case evaluated <- msg:
			default:
			}
			return nil
		})
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	rr := doJSON(t, server, http.MethodPost, "/claims", lifeClaimRequest("POL-API-1", nik))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	var created struct {
		Claim domain.Claim `json:"claim"`
	}
	json.Unmarshal(rr.Body.Bytes(), &created)

	rr = doJSON(t, server, http.MethodPost, "/claims/"+created.Claim.ID+"/evaluate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.EvaluationID == "" {
		t.Error("expected evaluationId in response")
	}
	if resp.Status != domain.EvalStatusAutoApproved {
		t.Errorf("expected status %s, got %s", domain.EvalStatusAutoApproved, resp.Status)
	}
	if resp.RiskScore >= 0.3 {
		t.Errorf("expected low risk score, got %f", resp.RiskScore)
	}
	if resp.Metadata.Version != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp.Metadata.Version)
	}
	if resp.Metadata.TraceID == "" {
		t.Error("expected traceId in metadata")
	}

	// The evaluation must be retrievable and the event published.
	get := doJSON(t, server, http.MethodGet, "/evaluations/"+resp.EvaluationID, nil)
	if get.Code != http.StatusOK {
		t.Errorf("expected status 200 on evaluation GET, got %d", get.Code)
	}

	select {
	case msg := <-evaluated:
		var eval domain.ClaimEvaluation
		if err := json.Unmarshal(msg.Payload, &eval); err != nil {
			t.Fatalf("failed to parse event payload: %v", err)
		}
		if eval.ClaimID != created.Claim.ID {
			t.Errorf("expected event for claim %s, got %s", created.Claim.ID, eval.ClaimID)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected claim.evaluated event on the bus")
	}

	t.Run("UnknownClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/nope/evaluate", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})
}

// seedStoredClaim writes a claim directly so tests can control
// CreatedAt and amount.
func seedStoredClaim(t *testing.T, repo domain.Repository, claimID string, amount float64, createdAt time.Time) *domain.Claim {
	t.Helper()

	claim := &domain.Claim{
		ID:             claimID,
		TenantID:       "tenant-001",
		PolicyID:       "POL-API-1",
		Type:           domain.TypeLife,
		Stage:          domain.StageAnalysis,
		Channel:        domain.ChannelWeb,
		BeneficiaryNIK: "3217050801900002",
		Amount:         amount,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := repo.SaveClaim(context.Background(), "tenant-001", claim); err != nil {
		t.Fatalf("failed to save claim: %v", err)
	}
	return claim
}

func TestApprovalWorkflow(t *testing.T) {
	server, repo, _ := createTestServer(t)
	seedPolicy(t, repo, "POL-API-1", "3217050801900002")

	// 60M Life claim sits in the medium tier: L2 supervisor + manager.
	seedStoredClaim(t, repo, "CLM-APPR", 60_000_000, time.Now().UTC())

	t.Run("FirstApproval", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-APPR/approvals", ApprovalRequest{
			UserID:   "user-l2",
			UserRole: domain.RoleL2Supervisor,
			Action:   domain.ApprovalApprove,
			Comments: "documents verified",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Recorded bool                  `json:"recorded"`
			Status   domain.ApprovalStatus `json:"status"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.Recorded {
			t.Error("expected approval to be recorded")
		}
		if resp.Status.IsComplete {
			t.Error("one approval must not complete a medium-tier claim")
		}
		if resp.Status.CurrentApprovals != 1 {
			t.Errorf("expected 1 approval, got %d", resp.Status.CurrentApprovals)
		}
	})

	t.Run("WrongRoleForbidden", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-APPR/approvals", ApprovalRequest{
			UserID:   "user-l1",
			UserRole: domain.RoleL1Adjuster,
			Action:   domain.ApprovalApprove,
		})
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", rr.Code)
		}
	})

	t.Run("DuplicateUserConflict", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-APPR/approvals", ApprovalRequest{
			UserID:   "user-l2",
			UserRole: domain.RoleL2Supervisor,
			Action:   domain.ApprovalApprove,
		})
		if rr.Code != http.StatusForbidden && rr.Code != http.StatusConflict {
			t.Errorf("expected status 403 or 409, got %d", rr.Code)
		}
	})

	t.Run("SecondApprovalCompletes", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-APPR/approvals", ApprovalRequest{
			UserID:   "user-mgr",
			UserRole: domain.RoleManager,
			Action:   domain.ApprovalApprove,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Status   domain.ApprovalStatus `json:"status"`
			Decision *domain.Decision      `json:"decision"`
			Letter   string                `json:"letter"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if !resp.Status.IsComplete {
			t.Error("expected approval flow to be complete")
		}
		if resp.Decision == nil || resp.Decision.Status != domain.DecisionApproved {
			t.Errorf("expected approved decision, got %+v", resp.Decision)
		}
		if resp.Letter == "" {
			t.Error("expected a decision letter")
		}

		claim, err := repo.GetClaim(context.Background(), "tenant-001", "CLM-APPR")
		if err != nil {
			t.Fatalf("failed to reload claim: %v", err)
		}
		if claim.Decision == nil || claim.Decision.Status != domain.DecisionApproved {
			t.Error("expected persisted approved decision")
		}
		if claim.Stage != domain.StageDecision {
			t.Errorf("expected stage Decision, got %s", claim.Stage)
		}
	})

	t.Run("RejectionDenies", func(t *testing.T) {
		seedStoredClaim(t, repo, "CLM-REJ", 60_000_000, time.Now().UTC())

		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-REJ/approvals", ApprovalRequest{
			UserID:   "user-mgr",
			UserRole: domain.RoleManager,
			Action:   domain.ApprovalReject,
			Comments: "benefit amount exceeds coverage",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Decision *domain.Decision `json:"decision"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Decision == nil || resp.Decision.Status != domain.DecisionDenied {
			t.Errorf("expected denied decision, got %+v", resp.Decision)
		}
	})

	t.Run("InvalidAction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-APPR/approvals", ApprovalRequest{
			UserID:   "user-x",
			UserRole: domain.RoleManager,
			Action:   "veto",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestGetApprovals(t *testing.T) {
	server, repo, _ := createTestServer(t)
	seedPolicy(t, repo, "POL-API-1", "3217050801900002")
	seedStoredClaim(t, repo, "CLM-MATRIX", 60_000_000, time.Now().UTC())

	rr := doJSON(t, server, http.MethodPost, "/claims/CLM-MATRIX/approvals", ApprovalRequest{
		UserID:   "user-l2",
		UserRole: domain.RoleL2Supervisor,
		Action:   domain.ApprovalApprove,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/claims/CLM-MATRIX/approvals", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Matrix  domain.ApprovalMatrix    `json:"matrix"`
		Status  domain.ApprovalStatus    `json:"status"`
		Actions []*domain.ApprovalAction `json:"actions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Matrix.Tier != domain.TierMedium {
		t.Errorf("expected medium tier, got %s", resp.Matrix.Tier)
	}
	if len(resp.Actions) != 1 {
		t.Errorf("expected 1 recorded action, got %d", len(resp.Actions))
	}
	if resp.Status.CurrentApprovals != 1 {
		t.Errorf("expected 1 approval, got %d", resp.Status.CurrentApprovals)
	}
}

func TestEscalateEndpoint(t *testing.T) {
	server, repo, eventBus := createTestServer(t)
	seedPolicy(t, repo, "POL-API-1", "3217050801900002")

	escalations := make(chan *domain.Message, 1)
	eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicEscalation,
		func(ctx context.Context, msg *domain.Message) error {
			select {
			case escalations <- msg:
			default:
			}
			return nil
		})

	t.Run("FreshClaimDoesNotEscalate", func(t *testing.T) {
		seedStoredClaim(t, repo, "CLM-FRESH", 60_000_000, time.Now().UTC())

		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-FRESH/escalate", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var esc domain.Escalation
		json.Unmarshal(rr.Body.Bytes(), &esc)
		if esc.ShouldEscalate {
			t.Error("fresh claim must not escalate")
		}
	})

	t.Run("AgedClaimEscalates", func(t *testing.T) {
		// Medium tier budget is 48h; this claim is 72h old.
		seedStoredClaim(t, repo, "CLM-AGED", 60_000_000, time.Now().UTC().Add(-72*time.Hour))

		rr := doJSON(t, server, http.MethodPost, "/claims/CLM-AGED/escalate", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var esc domain.Escalation
		json.Unmarshal(rr.Body.Bytes(), &esc)
		if !esc.ShouldEscalate {
			t.Fatal("expected escalation for aged claim")
		}
		if esc.Tier != domain.TierHigh {
			t.Errorf("expected escalation to high tier, got %s", esc.Tier)
		}

		select {
		case <-escalations:
		case <-time.After(2 * time.Second):
			t.Error("expected escalation event on the bus")
		}
	})
}

func TestSLAEndpoints(t *testing.T) {
	server, repo, _ := createTestServer(t)
	seedPolicy(t, repo, "POL-API-1", "3217050801900002")
	seedStoredClaim(t, repo, "CLM-SLA", 30_000_000, time.Now().UTC().Add(-2*time.Hour))

	t.Run("ClaimStatus", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/claims/CLM-SLA/sla", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var status domain.SLAStatus
		if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if status.ClaimID != "CLM-SLA" {
			t.Errorf("expected claim CLM-SLA, got %s", status.ClaimID)
		}
		if status.Status != domain.SLAGreen {
			t.Errorf("expected green status for a 2h-old claim, got %s", status.Status)
		}
	})

	t.Run("OJKReport", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/reports/ojk", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var report domain.OJKReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if report.Summary.TotalClaims != 1 {
			t.Errorf("expected 1 claim in report, got %d", report.Summary.TotalClaims)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/reports/sla-metrics", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("Breaches", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/reports/sla-breaches", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("ListBuiltins", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 8 {
			t.Errorf("expected 8 builtin rules, got %d", resp.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/rules/CLAIM_R001", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/rules/nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CreateRule", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "CLAIM_R100",
			Name:       "Jumbo Claim Review",
			Expression: "amount > 100000000.0",
			Action:     domain.ActionReview,
			Priority:   10,
			Message:    "Amount above single-claim review threshold",
			Enabled:    true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "CLAIM_R101",
			Name:       "Broken",
			Expression: "amount >>> oops",
			Action:     domain.ActionFlag,
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidAction", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "CLAIM_R102",
			Name:       "Bad Action",
			Expression: "amount > 0.0",
			Action:     "detonate",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		// Only the rule saved via CreateRule lives in the database.
		if resp.Count != 1 {
			t.Errorf("expected 1 database rule after reload, got %d", resp.Count)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
