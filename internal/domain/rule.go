package domain

// RuleAction is the consequence of a triggered rule.
type RuleAction string

const (
	ActionApprove RuleAction = "approve"
	ActionDeny    RuleAction = "deny"
	ActionReview  RuleAction = "review"
	ActionFlag    RuleAction = "flag"
)

// RuleCategoryAll marks a rule applicable to every claim type.
const RuleCategoryAll = "All"

// RuleConfig defines a coverage/exclusion rule.
// Rules are data: the condition is a CEL expression over claim and
// policy variables, so the set can grow without recompiling the engine.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`

	// Category is a claim type or "All".
	Category string `json:"category"`

	// Expression is a CEL boolean predicate over the claim activation.
	Expression string `json:"expression"`

	// Action taken when the predicate holds.
	Action RuleAction `json:"action"`

	// Priority orders evaluation; lower values run first.
	Priority int `json:"priority"`

	// Message explains the rule outcome to a human.
	Message string `json:"message"`

	Enabled bool `json:"enabled"`
}

// RuleResult is the outcome of evaluating one rule against a claim.
type RuleResult struct {
	RuleID    string     `json:"ruleId"`
	RuleName  string     `json:"ruleName"`
	Triggered bool       `json:"triggered"`
	Action    RuleAction `json:"action,omitempty"` // empty when not triggered
	Message   string     `json:"message"`
	ProcessMs int64      `json:"processMs,omitempty"`
}

// RuleRecommendation is the aggregated recommendation over rule results.
type RuleRecommendation struct {
	Action     RuleAction `json:"action"`
	Confidence float64    `json:"confidence"`
	Reasons    []string   `json:"reasons"`
}
