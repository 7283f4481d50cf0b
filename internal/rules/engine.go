// Package rules provides the CEL-Go based coverage rule engine.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/claimcare/verdict/internal/domain"
)

// Engine is the CEL-based rule evaluation engine.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// VelocityGetter returns the claim count for a beneficiary in a time window.
type VelocityGetter func(ctx context.Context, tenantID, beneficiaryNIK string, windowSecs int) (int64, error)

// NewEngine creates a new rule evaluation engine.
func NewEngine(velocityGetter VelocityGetter) (*Engine, error) {
	// CEL environment with claim and policy variables. String fields are
	// lowercased before activation so expressions can match plainly.
	env, err := cel.NewEnv(
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("max_benefit", cel.DoubleType),
		cel.Variable("cause_of_death", cel.StringType),
		cel.Variable("cause_of_injury", cel.StringType),
		cel.Variable("cause", cel.StringType),
		cel.Variable("police_report", cel.StringType),
		cel.Variable("diagnosis", cel.StringType),
		cel.Variable("policy_status", cel.StringType),
		cel.Variable("policy_age_months", cel.IntType),
		cel.Variable("days_since_policy_start", cel.IntType),
		cel.Variable("days_diagnosis_after_policy_start", cel.IntType),
		cel.Variable("documents_complete", cel.BoolType),
		cel.Variable("beneficiary_match_score", cel.DoubleType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// EvaluateInput holds the claim data for rule evaluation.
type EvaluateInput struct {
	TenantID       string
	ClaimID        string
	Type           domain.ClaimType
	BeneficiaryNIK string
	Amount         float64
	CauseOfDeath   string
	CauseOfInjury  string
	PoliceReport   string
	Diagnosis      string
	DiagnosisDate  *time.Time

	// Policy context (nil when the policy lookup failed; rules then see
	// zero-valued policy variables).
	Policy *domain.Policy

	// DocumentsComplete is the completeness checker verdict.
	DocumentsComplete bool

	// VelocityWindow in seconds; 0 disables the velocity lookup.
	VelocityWindow int
}

// NewEvaluateInput builds rule input from a claim, its policy, and the
// completeness verdict.
func NewEvaluateInput(claim *domain.Claim, policy *domain.Policy, documentsComplete bool) *EvaluateInput {
	return &EvaluateInput{
		TenantID:          claim.TenantID,
		ClaimID:           claim.ID,
		Type:              claim.Type,
		BeneficiaryNIK:    claim.BeneficiaryNIK,
		Amount:            claim.BenefitAmount(),
		CauseOfDeath:      claim.CauseOfDeath,
		CauseOfInjury:     claim.CauseOfInjury,
		PoliceReport:      claim.PoliceReport,
		Diagnosis:         claim.Diagnosis,
		DiagnosisDate:     claim.DiagnosisDate,
		Policy:            policy,
		DocumentsComplete: documentsComplete,
	}
}

// EvaluateAll evaluates applicable rules against a claim, in priority
// order (lower priority value first). Evaluation short-circuits on the
// first triggered deny rule: exclusions are absolute, and no further
// rules are consulted.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RuleResult, error) {
	e.mu.RLock()
	applicable := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		if rule.Config.Category == domain.RuleCategoryAll || rule.Config.Category == string(input.Type) {
			applicable = append(applicable, rule)
		}
	}
	e.mu.RUnlock()

	if len(applicable) == 0 {
		return nil, nil
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		if applicable[i].Config.Priority != applicable[j].Config.Priority {
			return applicable[i].Config.Priority < applicable[j].Config.Priority
		}
		return applicable[i].Config.ID < applicable[j].Config.ID
	})

	activation := e.buildActivation(ctx, input)

	results := make([]domain.RuleResult, 0, len(applicable))
	for _, rule := range applicable {
		result := e.evaluateRule(rule, activation)
		results = append(results, result)

		if result.Triggered && rule.Config.Action == domain.ActionDeny {
			break
		}
	}

	return results, nil
}

// Recommend aggregates rule results into a final recommendation.
func Recommend(results []domain.RuleResult) domain.RuleRecommendation {
	var denies, approves, reviews []domain.RuleResult
	for _, r := range results {
		if !r.Triggered {
			continue
		}
		switch r.Action {
		case domain.ActionDeny:
			denies = append(denies, r)
		case domain.ActionApprove:
			approves = append(approves, r)
		case domain.ActionReview, domain.ActionFlag:
			reviews = append(reviews, r)
		}
	}

	if len(denies) > 0 {
		return domain.RuleRecommendation{
			Action:     domain.ActionDeny,
			Confidence: 1.0,
			Reasons:    messages(denies),
		}
	}

	if len(reviews) > 0 {
		return domain.RuleRecommendation{
			Action:     domain.ActionReview,
			Confidence: 0.6,
			Reasons:    messages(reviews),
		}
	}

	if len(approves) >= 2 {
		confidence := 0.3 + 0.15*float64(len(approves))
		if confidence > 0.9 {
			confidence = 0.9
		}
		return domain.RuleRecommendation{
			Action:     domain.ActionApprove,
			Confidence: confidence,
			Reasons:    messages(approves),
		}
	}

	return domain.RuleRecommendation{
		Action:     domain.ActionReview,
		Confidence: 0.5,
		Reasons:    []string{"Insufficient data for automatic decision"},
	}
}

func messages(results []domain.RuleResult) []string {
	msgs := make([]string, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, r.Message)
	}
	return msgs
}

// buildActivation prepares the CEL activation map from the input.
func (e *Engine) buildActivation(ctx context.Context, input *EvaluateInput) map[string]any {
	now := time.Now().UTC()

	var policyAgeMonths, daysSinceStart, daysDiagnosisAfterStart int64
	var maxBenefit float64
	policyStatus := ""
	matchScore := 0.0

	if input.Policy != nil {
		policyAgeMonths = int64(input.Policy.AgeInMonths(now))
		daysSinceStart = int64(input.Policy.AgeInDays(now))
		maxBenefit = input.Policy.MaxBenefit
		policyStatus = strings.ToLower(string(input.Policy.Status))

		if b, ok := input.Policy.BeneficiaryByNIK(input.BeneficiaryNIK); ok {
			matchScore = b.MatchScore
		}

		if input.DiagnosisDate != nil {
			daysDiagnosisAfterStart = int64(input.DiagnosisDate.Sub(input.Policy.StartDate).Hours() / 24)
		}
	}

	causeOfDeath := strings.ToLower(input.CauseOfDeath)
	causeOfInjury := strings.ToLower(input.CauseOfInjury)
	cause := causeOfDeath
	if cause == "" {
		cause = causeOfInjury
	}

	var velocityCount int64
	if e.velocityGetter != nil && input.VelocityWindow > 0 {
		count, err := e.velocityGetter(ctx, input.TenantID, input.BeneficiaryNIK, input.VelocityWindow)
		if err == nil {
			velocityCount = count
		}
	}

	return map[string]any{
		"claim_type":                        string(input.Type),
		"amount":                            input.Amount,
		"max_benefit":                       maxBenefit,
		"cause_of_death":                    causeOfDeath,
		"cause_of_injury":                   causeOfInjury,
		"cause":                             cause,
		"police_report":                     strings.ToLower(input.PoliceReport),
		"diagnosis":                         strings.ToLower(input.Diagnosis),
		"policy_status":                     policyStatus,
		"policy_age_months":                 policyAgeMonths,
		"days_since_policy_start":           daysSinceStart,
		"days_diagnosis_after_policy_start": daysDiagnosisAfterStart,
		"documents_complete":                input.DocumentsComplete,
		"beneficiary_match_score":           matchScore,
		"velocity_count":                    velocityCount,
	}
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RuleResult {
	start := time.Now()

	result := domain.RuleResult{
		RuleID:   rule.Config.ID,
		RuleName: rule.Config.Name,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		// An evaluation error leaves the rule untriggered; the claim
		// still gets a decision signal from the remaining rules.
		result.Message = fmt.Sprintf("rule %s evaluation error: %v", rule.Config.Name, err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	triggered := out == types.True
	result.Triggered = triggered
	if triggered {
		result.Action = rule.Config.Action
		result.Message = rule.Config.Message
	} else {
		result.Message = fmt.Sprintf("Rule %s not triggered", rule.Config.Name)
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
