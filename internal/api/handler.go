package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claimcare/verdict/internal/approval"
	"github.com/claimcare/verdict/internal/decision"
	"github.com/claimcare/verdict/internal/documents"
	"github.com/claimcare/verdict/internal/domain"
	"github.com/claimcare/verdict/internal/rules"
	"github.com/claimcare/verdict/internal/sla"
	"github.com/claimcare/verdict/internal/velocity"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *rules.Engine
	pipeline  *decision.Pipeline
	approvals *approval.Manager
	monitor   *sla.Monitor
	velocity  *velocity.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, pipeline *decision.Pipeline, approvals *approval.Manager, monitor *sla.Monitor, vel *velocity.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		pipeline:  pipeline,
		approvals: approvals,
		monitor:   monitor,
		velocity:  vel,
		version:   version,
	}
}

// snapshotTTL bounds how long a claim snapshot lives in cache.
const snapshotTTL = 5 * time.Minute

// DocumentInput is one uploaded document in a request body.
type DocumentInput struct {
	Kind      domain.DocumentKind `json:"kind"`
	URL       string              `json:"url,omitempty"`
	Valid     bool                `json:"valid"`
	OCRStatus domain.OCRStatus    `json:"ocrStatus,omitempty"`
}

// ClaimRequest is the request body for POST /claims.
type ClaimRequest struct {
	PolicyID        string           `json:"policyId"`
	Type            domain.ClaimType `json:"type"`
	Channel         domain.Channel   `json:"channel,omitempty"`
	BeneficiaryNIK  string           `json:"beneficiaryNIK"`
	BeneficiaryName string           `json:"beneficiaryName,omitempty"`
	Amount          float64          `json:"amount"`
	CauseOfDeath    string           `json:"causeOfDeath,omitempty"`
	CauseOfInjury   string           `json:"causeOfInjury,omitempty"`
	Diagnosis       string           `json:"diagnosis,omitempty"`
	DiagnosisDate   *time.Time       `json:"diagnosisDate,omitempty"`
	PoliceReport    string           `json:"policeReport,omitempty"`
	Documents       []DocumentInput  `json:"documents,omitempty"`
}

var validClaimTypes = map[domain.ClaimType]bool{
	domain.TypeLife:            true,
	domain.TypeCriticalIllness: true,
	domain.TypeAccident:        true,
	domain.TypeHealth:          true,
}

// CreateClaim handles POST /claims. The claim is persisted and an
// ingestion event is published; evaluation happens separately, either
// via POST /claims/{id}/evaluate or through the background worker.
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.PolicyID == "" || req.BeneficiaryNIK == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyId and beneficiaryNIK are required",
		})
		return
	}
	if !validClaimTypes[req.Type] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be one of Life, CriticalIllness, Accident, Health",
		})
		return
	}
	if req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return
	}

	channel := req.Channel
	if channel == "" {
		channel = domain.ChannelWeb
	}

	now := time.Now().UTC()
	claim := &domain.Claim{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		PolicyID:        req.PolicyID,
		Type:            req.Type,
		Stage:           domain.StageIntake,
		Channel:         channel,
		BeneficiaryNIK:  req.BeneficiaryNIK,
		BeneficiaryName: req.BeneficiaryName,
		CauseOfDeath:    req.CauseOfDeath,
		CauseOfInjury:   req.CauseOfInjury,
		Diagnosis:       req.Diagnosis,
		DiagnosisDate:   req.DiagnosisDate,
		PoliceReport:    req.PoliceReport,
		Amount:          req.Amount,
		Documents:       make([]domain.Document, 0, len(req.Documents)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, d := range req.Documents {
		ocr := d.OCRStatus
		if ocr == "" {
			ocr = domain.OCRPending
		}
		claim.Documents = append(claim.Documents, domain.Document{
			Kind:       d.Kind,
			URL:        d.URL,
			Valid:      d.Valid,
			OCRStatus:  ocr,
			UploadedAt: now,
		})
	}

	if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to save claim", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save claim",
		})
		return
	}

	h.cacheSnapshot(ctx, tenantID, claim)
	if h.velocity != nil {
		h.velocity.RecordClaim(ctx, tenantID, claim.BeneficiaryNIK)
	}
	h.publish(ctx, tenantID, domain.TopicClaimIngested, claim)

	completeness := documents.CheckCompleteness(claim.Type, claim.DocumentKinds(), documents.ConditionsFor(claim))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"claim":        claim,
		"completeness": completeness,
	})
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /claims with optional type, stage, assignee
// and limit query parameters.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	filter := domain.ClaimFilter{
		Type:     domain.ClaimType(r.URL.Query().Get("type")),
		Stage:    domain.Stage(r.URL.Query().Get("stage")),
		Assignee: r.URL.Query().Get("assignee"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		filter.Limit = limit
	}

	claims, err := h.repo.ListClaims(ctx, tenantID, filter)
	if err != nil {
		slog.Error("failed to list claims", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list claims",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": claims,
		"count":  len(claims),
	})
}

// AddDocument handles POST /claims/{id}/documents. The response
// includes the refreshed completeness so the caller can tell whether
// the claim is ready for evaluation.
func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	var req DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind is required",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	ocr := req.OCRStatus
	if ocr == "" {
		ocr = domain.OCRPending
	}
	claim.Documents = append(claim.Documents, domain.Document{
		Kind:       req.Kind,
		URL:        req.URL,
		Valid:      req.Valid,
		OCRStatus:  ocr,
		UploadedAt: time.Now().UTC(),
	})
	claim.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to update claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update claim",
		})
		return
	}

	completeness := documents.CheckCompleteness(claim.Type, claim.DocumentKinds(), documents.ConditionsFor(claim))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claim":        claim,
		"completeness": completeness,
	})
}

// StageRequest is the request body for POST /claims/{id}/stage.
type StageRequest struct {
	Stage domain.Stage `json:"stage"`
}

// AdvanceStage handles POST /claims/{id}/stage. Transitions are
// forward-only, except the request-more-info path back to Validation.
func (h *Handler) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	var req StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Stage == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "stage is required",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	if !domain.CanTransition(claim.Stage, req.Stage) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("cannot transition from %s to %s", claim.Stage, req.Stage),
		})
		return
	}

	claim.Stage = req.Stage
	claim.UpdatedAt = time.Now().UTC()
	if err := h.repo.UpdateClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to update claim stage", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update claim",
		})
		return
	}
	h.cacheSnapshot(ctx, tenantID, claim)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claim": claim,
	})
}

// EvaluateResponse is the response for POST /claims/{id}/evaluate.
type EvaluateResponse struct {
	EvaluationID string   `json:"evaluationId"`
	ClaimID      string   `json:"claimId"`
	Status       string   `json:"status"`
	RiskScore    float64  `json:"riskScore"`
	Reasons      []string `json:"reasons,omitempty"`
	Metadata     struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// EvaluateClaim handles POST /claims/{id}/evaluate. The pipeline runs
// synchronously; evaluation and decision events go out on the bus.
func (h *Handler) EvaluateClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	claimID := chi.URLParam(r, "id")

	eval, err := h.pipeline.Evaluate(ctx, tenantID, claimID, traceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("evaluation failed", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	h.publish(ctx, tenantID, domain.TopicClaimEvaluated, eval)
	switch eval.Status {
	case domain.EvalStatusAutoApproved, domain.EvalStatusDenied:
		h.publish(ctx, tenantID, domain.TopicClaimDecision, eval)
	case domain.EvalStatusInvestigate:
		h.publish(ctx, tenantID, domain.TopicClaimAlert, eval)
	}

	if claim, err := h.repo.GetClaim(ctx, tenantID, claimID); err == nil {
		h.cacheSnapshot(ctx, tenantID, claim)
	}

	resp := EvaluateResponse{
		EvaluationID: eval.ID,
		ClaimID:      claimID,
		Status:       eval.Status,
		RiskScore:    eval.Risk.OverallRiskScore,
		Reasons:      eval.Recommendation.Reasons,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = eval.Metadata.TotalMs
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	evalID := chi.URLParam(r, "id")

	eval, err := h.repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "evaluation not found",
			})
			return
		}
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get evaluation",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// GetClaimSLA handles GET /claims/{id}/sla.
func (h *Handler) GetClaimSLA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.monitor.CalculateStatus(claim))
}

// ApprovalRequest is the request body for POST /claims/{id}/approvals.
type ApprovalRequest struct {
	UserID   string                    `json:"userId"`
	UserRole domain.Role               `json:"userRole"`
	Action   domain.ApprovalActionType `json:"action"`
	Comments string                    `json:"comments,omitempty"`
}

// AddApproval handles POST /claims/{id}/approvals. A rejection decides
// the claim immediately; an approval decides it once the tier's
// requirement is satisfied.
func (h *Handler) AddApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	var req ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.UserID == "" || req.UserRole == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "userId and userRole are required",
		})
		return
	}
	switch req.Action {
	case domain.ApprovalApprove, domain.ApprovalReject, domain.ApprovalRequestInfo:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be one of approve, reject, request_info",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	if req.Action == domain.ApprovalApprove {
		allowed, err := h.approvals.CanUserApprove(ctx, req.UserID, req.UserRole, claim)
		if err != nil {
			slog.Error("approval permission check failed", "claim_id", claimID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "approval permission check failed",
			})
			return
		}
		if !allowed {
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "role not permitted to approve this claim",
			})
			return
		}
	}

	action := &domain.ApprovalAction{
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		Action:    req.Action,
		Comments:  req.Comments,
		Timestamp: time.Now().UTC(),
	}
	added, err := h.approvals.AddApproval(ctx, tenantID, claimID, action)
	if err != nil {
		slog.Error("failed to record approval", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record approval",
		})
		return
	}
	if !added {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "user has already acted on this claim",
		})
		return
	}

	status, err := h.approvals.CheckStatus(ctx, claim)
	if err != nil {
		slog.Error("failed to check approval status", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to check approval status",
		})
		return
	}

	var letter string
	decided := false
	switch {
	case req.Action == domain.ApprovalReject:
		now := time.Now().UTC()
		claim.Decision = &domain.Decision{
			Status:            domain.DecisionDenied,
			Reason:            req.Comments,
			RequiredApprovals: status.RequiredApprovals,
			CurrentApprovals:  status.CurrentApprovals,
			DecidedBy:         req.UserID,
			DecidedAt:         &now,
		}
		decided = true
	case status.IsComplete:
		now := time.Now().UTC()
		claim.Decision = &domain.Decision{
			Status:            domain.DecisionApproved,
			Amount:            claim.Amount,
			RequiredApprovals: status.RequiredApprovals,
			CurrentApprovals:  status.CurrentApprovals,
			DecidedBy:         req.UserID,
			DecidedAt:         &now,
		}
		decided = true
	}

	if decided {
		claim.Stage = domain.StageDecision
		claim.UpdatedAt = time.Now().UTC()
		if err := h.repo.UpdateClaim(ctx, tenantID, claim); err != nil {
			slog.Error("failed to update claim decision", "id", claimID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update claim",
			})
			return
		}
		h.cacheSnapshot(ctx, tenantID, claim)
		h.publish(ctx, tenantID, domain.TopicClaimDecision, claim)
		letter = approval.GenerateDecisionLetter(claim, claim.Decision)
	}

	resp := map[string]interface{}{
		"recorded": true,
		"status":   status,
	}
	if claim.Decision != nil {
		resp["decision"] = claim.Decision
	}
	if letter != "" {
		resp["letter"] = letter
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetApprovals handles GET /claims/{id}/approvals: the approval matrix,
// the aggregate status, and the recorded actions.
func (h *Handler) GetApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	matrix, err := h.approvals.GenerateMatrix(ctx, claim)
	if err != nil {
		slog.Error("failed to build approval matrix", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build approval matrix",
		})
		return
	}
	status, err := h.approvals.CheckStatus(ctx, claim)
	if err != nil {
		slog.Error("failed to check approval status", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to check approval status",
		})
		return
	}
	actions, err := h.approvals.Chain(ctx, tenantID, claimID)
	if err != nil {
		slog.Error("failed to load approval chain", "claim_id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load approval chain",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matrix":  matrix,
		"status":  status,
		"actions": actions,
	})
}

// Escalate handles POST /claims/{id}/escalate. An escalation event is
// published only when the check actually fires.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get claim",
		})
		return
	}

	esc := h.approvals.EscalateIfNeeded(claim, time.Now().UTC())
	if esc.ShouldEscalate {
		h.publish(ctx, tenantID, domain.TopicEscalation, map[string]interface{}{
			"claimId":    claimID,
			"escalation": esc,
		})
	}

	writeJSON(w, http.StatusOK, esc)
}

// reportClaims loads the claim population a report aggregates over.
func (h *Handler) reportClaims(w http.ResponseWriter, r *http.Request) ([]*domain.Claim, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	claims, err := h.repo.ListClaims(ctx, tenantID, domain.ClaimFilter{})
	if err != nil {
		slog.Error("failed to list claims for report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list claims",
		})
		return nil, false
	}
	return claims, true
}

// OJKReport handles GET /reports/ojk.
func (h *Handler) OJKReport(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reportClaims(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.GenerateOJKReport(claims))
}

// SLAMetrics handles GET /reports/sla-metrics.
func (h *Handler) SLAMetrics(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reportClaims(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.monitor.CalculateMetrics(claims))
}

// SLABreaches handles GET /reports/sla-breaches: open claims at high
// risk of breaching their stage target.
func (h *Handler) SLABreaches(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.reportClaims(w, r)
	if !ok {
		return
	}
	atRisk := h.monitor.PredictBreaches(claims)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": atRisk,
		"count":  len(atRisk),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Expression  string            `json:"expression"`
	Action      domain.RuleAction `json:"action"`
	Priority    int               `json:"priority"`
	Message     string            `json:"message,omitempty"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	switch req.Action {
	case domain.ActionApprove, domain.ActionDeny, domain.ActionReview, domain.ActionFlag:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be one of approve, deny, review, flag",
		})
		return
	}

	category := req.Category
	if category == "" {
		category = domain.RuleCategoryAll
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Category:    category,
		Expression:  req.Expression,
		Action:      req.Action,
		Priority:    req.Priority,
		Message:     req.Message,
		Enabled:     req.Enabled,
	}

	// Validate the CEL expression by attempting to load it.
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
		slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// cacheSnapshot refreshes the cached claim snapshot. Cache failures are
// logged and swallowed; the repository remains the source of truth.
func (h *Handler) cacheSnapshot(ctx context.Context, tenantID string, claim *domain.Claim) {
	if h.cache == nil {
		return
	}
	snap := &domain.ClaimSnapshot{
		PolicyID:       claim.PolicyID,
		Type:           claim.Type,
		Stage:          claim.Stage,
		BeneficiaryNIK: claim.BeneficiaryNIK,
		Amount:         claim.Amount,
		RiskScore:      claim.RiskScore,
		Timestamp:      claim.UpdatedAt.Format(time.RFC3339),
	}
	if err := h.cache.SetClaimSnapshot(ctx, tenantID, claim.ID, snap, snapshotTTL); err != nil {
		slog.Warn("failed to cache claim snapshot", "claim_id", claim.ID, "error", err)
	}
}

// publish sends an event on the bus. Publish failures are logged and
// swallowed; the HTTP response is already decided by then.
func (h *Handler) publish(ctx context.Context, tenantID, topic string, payload interface{}) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to encode event payload", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
