package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	SaveClaim(ctx context.Context, tenantID string, claim *Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	UpdateClaim(ctx context.Context, tenantID string, claim *Claim) error
	ListClaims(ctx context.Context, tenantID string, filter ClaimFilter) ([]*Claim, error)
	CountClaimsByBeneficiary(ctx context.Context, tenantID string, nik string, since time.Time, excludeClaimID string) (int64, error)

	// Policy operations
	SavePolicy(ctx context.Context, tenantID string, policy *Policy) error
	GetPolicy(ctx context.Context, tenantID string, policyID string) (*Policy, error)

	// Blacklist operations
	AddToBlacklist(ctx context.Context, tenantID string, nik string, reason string) error
	IsBlacklisted(ctx context.Context, tenantID string, nik string) (bool, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Approval ledger
	SaveApprovalAction(ctx context.Context, tenantID string, claimID string, action *ApprovalAction) error
	ListApprovalActions(ctx context.Context, tenantID string, claimID string) ([]*ApprovalAction, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, tenantID string, eval *ClaimEvaluation) error
	GetEvaluation(ctx context.Context, tenantID string, evalID string) (*ClaimEvaluation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
