// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

// Sentinel errors, shared with the domain package so callers can test
// with errors.Is regardless of which layer they imported.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a claim with tenant isolation. Queryable fields are
// stored as columns; the full claim is kept as JSON in the data column.
func (r *SQLRepository) SaveClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		INSERT INTO claims (
			id, tenant_id, policy_id, type, stage, beneficiary_nik,
			amount, risk_score, assignee, data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		claim.ID, tenantID, claim.PolicyID,
		string(claim.Type), string(claim.Stage), claim.BeneficiaryNIK,
		claim.Amount, claim.RiskScore, claim.Assignee,
		string(data), claim.CreatedAt, claim.UpdatedAt,
	)
	return err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT data
		FROM claims
		WHERE tenant_id = ? AND id = ?
	`

	var data string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var claim domain.Claim
	if err := json.Unmarshal([]byte(data), &claim); err != nil {
		return nil, fmt.Errorf("failed to decode claim %s: %w", claimID, err)
	}

	return &claim, nil
}

// UpdateClaim replaces a stored claim with tenant isolation.
func (r *SQLRepository) UpdateClaim(ctx context.Context, tenantID string, claim *domain.Claim) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	query := `
		UPDATE claims
		SET policy_id = ?, type = ?, stage = ?, beneficiary_nik = ?,
		    amount = ?, risk_score = ?, assignee = ?, data = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		claim.PolicyID, string(claim.Type), string(claim.Stage), claim.BeneficiaryNIK,
		claim.Amount, claim.RiskScore, claim.Assignee,
		string(data), claim.UpdatedAt,
		tenantID, claim.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListClaims retrieves claims for a tenant, newest first.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.Claim, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var conditions []string
	args := []any{tenantID}

	conditions = append(conditions, "tenant_id = ?")
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Stage != "" {
		conditions = append(conditions, "stage = ?")
		args = append(args, string(filter.Stage))
	}
	if filter.Assignee != "" {
		conditions = append(conditions, "assignee = ?")
		args = append(args, filter.Assignee)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT data FROM claims WHERE ` + strings.Join(conditions, " AND ") +
		` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var claim domain.Claim
		if err := json.Unmarshal([]byte(data), &claim); err != nil {
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		claims = append(claims, &claim)
	}

	return claims, rows.Err()
}

// CountClaimsByBeneficiary counts claims from a beneficiary since the
// given time. A zero time counts the full history. A non-empty
// excludeClaimID leaves that claim out of the count, so a claim being
// scored does not count itself as history.
func (r *SQLRepository) CountClaimsByBeneficiary(ctx context.Context, tenantID string, nik string, since time.Time, excludeClaimID string) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if nik == "" {
		return 0, fmt.Errorf("%w: beneficiary NIK is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM claims
		WHERE tenant_id = ? AND beneficiary_nik = ?
	`
	args := []any{tenantID, nik}

	if !since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, since)
	}
	if excludeClaimID != "" {
		query += " AND id != ?"
		args = append(args, excludeClaimID)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// SavePolicy stores or replaces a policy with tenant isolation.
func (r *SQLRepository) SavePolicy(ctx context.Context, tenantID string, policy *domain.Policy) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	beneficiaries, err := json.Marshal(policy.Beneficiaries)
	if err != nil {
		return fmt.Errorf("failed to encode beneficiaries: %w", err)
	}

	query := `
		INSERT INTO policies (
			id, tenant_id, status, product, holder_name, holder_nik,
			start_date, max_benefit, beneficiaries
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			status = excluded.status,
			product = excluded.product,
			holder_name = excluded.holder_name,
			holder_nik = excluded.holder_nik,
			start_date = excluded.start_date,
			max_benefit = excluded.max_benefit,
			beneficiaries = excluded.beneficiaries
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		policy.ID, tenantID, string(policy.Status), string(policy.Product),
		policy.HolderName, policy.HolderNIK,
		policy.StartDate, policy.MaxBenefit, string(beneficiaries),
	)
	return err
}

// GetPolicy retrieves a policy by ID with tenant isolation.
func (r *SQLRepository) GetPolicy(ctx context.Context, tenantID string, policyID string) (*domain.Policy, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, status, product, holder_name, holder_nik,
		       start_date, max_benefit, beneficiaries
		FROM policies
		WHERE tenant_id = ? AND id = ?
	`

	var p domain.Policy
	var status, product, beneficiaries string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, policyID).Scan(
		&p.ID, &p.TenantID, &status, &product,
		&p.HolderName, &p.HolderNIK,
		&p.StartDate, &p.MaxBenefit, &beneficiaries,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Status = domain.PolicyStatus(status)
	p.Product = domain.ClaimType(product)
	if err := json.Unmarshal([]byte(beneficiaries), &p.Beneficiaries); err != nil {
		return nil, fmt.Errorf("failed to decode beneficiaries for %s: %w", policyID, err)
	}

	return &p, nil
}

// AddToBlacklist records a beneficiary NIK in the fraud blacklist.
// Re-adding an existing entry updates the reason.
func (r *SQLRepository) AddToBlacklist(ctx context.Context, tenantID string, nik string, reason string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if nik == "" {
		return fmt.Errorf("%w: nik is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO blacklist (tenant_id, nik, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, nik) DO UPDATE SET
			reason = excluded.reason
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, nik, reason, time.Now().UTC())
	return err
}

// IsBlacklisted reports whether a beneficiary NIK is blacklisted.
func (r *SQLRepository) IsBlacklisted(ctx context.Context, tenantID string, nik string) (bool, error) {
	if tenantID == "" {
		return false, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*)
		FROM blacklist
		WHERE tenant_id = ? AND nik = ?
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, nik).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, category,
			expression, action, priority, message, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			category = excluded.category,
			expression = excluded.expression,
			action = excluded.action,
			priority = excluded.priority,
			message = excluded.message,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description, rule.Version,
		rule.Category, rule.Expression, string(rule.Action),
		rule.Priority, rule.Message, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves an active rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, category,
		       expression, action, priority, message, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	cfg, err := scanRuleConfig(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a tenant.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, category,
		       expression, action, priority, message, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY priority, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		cfg, err := scanRuleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRuleConfig(row rowScanner) (*domain.RuleConfig, error) {
	var cfg domain.RuleConfig
	var action string
	var enabled int

	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description, &cfg.Version,
		&cfg.Category, &cfg.Expression, &action,
		&cfg.Priority, &cfg.Message, &enabled,
	)
	if err != nil {
		return nil, err
	}

	cfg.Action = domain.RuleAction(action)
	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// SaveApprovalAction appends one action to a claim's approval ledger.
// A second action from the same user is silently ignored; the ledger
// enforces one action per user per claim.
func (r *SQLRepository) SaveApprovalAction(ctx context.Context, tenantID string, claimID string, action *domain.ApprovalAction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if claimID == "" {
		return fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO approval_actions (
			tenant_id, claim_id, user_id, user_role, action, comments, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, claim_id, user_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, claimID, action.UserID, string(action.UserRole),
		string(action.Action), action.Comments, action.Timestamp,
	)
	return err
}

// ListApprovalActions returns a claim's approval ledger in action order.
func (r *SQLRepository) ListApprovalActions(ctx context.Context, tenantID string, claimID string) ([]*domain.ApprovalAction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT user_id, user_role, action, comments, timestamp
		FROM approval_actions
		WHERE tenant_id = ? AND claim_id = ?
		ORDER BY timestamp, user_id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*domain.ApprovalAction
	for rows.Next() {
		var a domain.ApprovalAction
		var role, actionType string

		if err := rows.Scan(&a.UserID, &role, &actionType, &a.Comments, &a.Timestamp); err != nil {
			return nil, err
		}

		a.UserRole = domain.Role(role)
		a.Action = domain.ApprovalActionType(actionType)
		actions = append(actions, &a)
	}

	return actions, rows.Err()
}

// SaveEvaluation stores an evaluation result with tenant isolation.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, tenantID string, eval *domain.ClaimEvaluation) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	ruleResults, _ := json.Marshal(eval.RuleResults)
	recommendation, _ := json.Marshal(eval.Recommendation)
	fraudRisk, _ := json.Marshal(eval.FraudRisk)
	risk, _ := json.Marshal(eval.Risk)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (
			id, tenant_id, claim_id, status, risk_score, timestamp,
			rule_results, recommendation, fraud_risk, risk, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, tenantID, eval.ClaimID, eval.Status,
		eval.Risk.OverallRiskScore, eval.Timestamp,
		string(ruleResults), string(recommendation),
		string(fraudRisk), string(risk), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with tenant isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, tenantID string, evalID string) (*domain.ClaimEvaluation, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, claim_id, status, timestamp,
		       rule_results, recommendation, fraud_risk, risk, metadata
		FROM evaluations
		WHERE tenant_id = ? AND id = ?
	`

	var eval domain.ClaimEvaluation
	var ruleResults, recommendation, fraudRisk, risk, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, evalID).Scan(
		&eval.ID, &eval.TenantID, &eval.ClaimID, &eval.Status, &eval.Timestamp,
		&ruleResults, &recommendation, &fraudRisk, &risk, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(ruleResults), &eval.RuleResults)
	json.Unmarshal([]byte(recommendation), &eval.Recommendation)
	json.Unmarshal([]byte(fraudRisk), &eval.FraudRisk)
	json.Unmarshal([]byte(risk), &eval.Risk)
	json.Unmarshal([]byte(metadata), &eval.Metadata)

	return &eval, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
