package repository

// Schema definitions for the Verdict database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    type TEXT NOT NULL,
    stage TEXT NOT NULL,
    beneficiary_nik TEXT NOT NULL,
    amount REAL NOT NULL,
    risk_score REAL NOT NULL DEFAULT 0,
    assignee TEXT,
    data TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_claims_tenant ON claims(tenant_id);
CREATE INDEX IF NOT EXISTS idx_claims_beneficiary ON claims(tenant_id, beneficiary_nik, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_stage ON claims(tenant_id, stage);
CREATE INDEX IF NOT EXISTS idx_claims_created ON claims(tenant_id, created_at);
`

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    status TEXT NOT NULL,
    product TEXT NOT NULL,
    holder_name TEXT NOT NULL,
    holder_nik TEXT NOT NULL,
    start_date TIMESTAMP NOT NULL,
    max_benefit REAL NOT NULL,
    beneficiaries TEXT NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_policies_holder ON policies(tenant_id, holder_nik);
`

const schemaBlacklist = `
CREATE TABLE IF NOT EXISTS blacklist (
    tenant_id TEXT NOT NULL,
    nik TEXT NOT NULL,
    reason TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, nik)
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT,
    category TEXT NOT NULL,
    expression TEXT NOT NULL,
    action TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// schemaApprovalActions backs the approval ledger. The primary key
// mirrors the in-memory dedup rule: one action per user per claim.
const schemaApprovalActions = `
CREATE TABLE IF NOT EXISTS approval_actions (
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    user_role TEXT NOT NULL,
    action TEXT NOT NULL,
    comments TEXT,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, claim_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_approval_actions_claim ON approval_actions(tenant_id, claim_id);
`

const schemaEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    claim_id TEXT NOT NULL,
    status TEXT NOT NULL,
    risk_score REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    rule_results TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    fraud_risk TEXT NOT NULL,
    risk TEXT NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_tenant ON evaluations(tenant_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_claim ON evaluations(tenant_id, claim_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_evaluations_timestamp ON evaluations(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaPolicies,
		schemaBlacklist,
		schemaRuleConfigs,
		schemaApprovalActions,
		schemaEvaluations,
	}
}
