// Package sla implements the SLA monitor: per-stage status, breach
// prediction, and the regulatory rollups. Everything here is computed
// on read from claim data; nothing enforces a timer.
package sla

import (
	"math"
	"sort"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

// configurations holds the per-type stage budgets. Life and
// CriticalIllness carry longer analysis and decision windows than the
// retail products.
var configurations = map[domain.ClaimType][]domain.SLAConfig{
	domain.TypeLife: {
		{Stage: domain.StageIntake, TargetHours: 6, WarningThreshold: 0.7, CriticalThreshold: 0.9},
		{Stage: domain.StageValidation, TargetHours: 24, WarningThreshold: 0.75, CriticalThreshold: 0.9},
		{Stage: domain.StageAnalysis, TargetHours: 72, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StageDecision, TargetHours: 120, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StagePayment, TargetHours: 24, WarningThreshold: 0.8, CriticalThreshold: 0.95},
	},
	domain.TypeCriticalIllness: {
		{Stage: domain.StageIntake, TargetHours: 6, WarningThreshold: 0.7, CriticalThreshold: 0.9},
		{Stage: domain.StageValidation, TargetHours: 24, WarningThreshold: 0.75, CriticalThreshold: 0.9},
		{Stage: domain.StageAnalysis, TargetHours: 96, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StageDecision, TargetHours: 144, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StagePayment, TargetHours: 24, WarningThreshold: 0.8, CriticalThreshold: 0.95},
	},
	domain.TypeAccident: {
		{Stage: domain.StageIntake, TargetHours: 4, WarningThreshold: 0.7, CriticalThreshold: 0.9},
		{Stage: domain.StageValidation, TargetHours: 12, WarningThreshold: 0.75, CriticalThreshold: 0.9},
		{Stage: domain.StageAnalysis, TargetHours: 48, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StageDecision, TargetHours: 72, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StagePayment, TargetHours: 24, WarningThreshold: 0.8, CriticalThreshold: 0.95},
	},
	domain.TypeHealth: {
		{Stage: domain.StageIntake, TargetHours: 4, WarningThreshold: 0.7, CriticalThreshold: 0.9},
		{Stage: domain.StageValidation, TargetHours: 12, WarningThreshold: 0.75, CriticalThreshold: 0.9},
		{Stage: domain.StageAnalysis, TargetHours: 24, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StageDecision, TargetHours: 48, WarningThreshold: 0.8, CriticalThreshold: 0.95},
		{Stage: domain.StagePayment, TargetHours: 24, WarningThreshold: 0.8, CriticalThreshold: 0.95},
	},
}

// historicalAverages is the fixed average end-to-end processing time
// per product, in hours.
var historicalAverages = map[domain.ClaimType]float64{
	domain.TypeLife:            96,
	domain.TypeCriticalIllness: 120,
	domain.TypeAccident:        48,
	domain.TypeHealth:          36,
}

// ConfigFor returns the SLA row for a claim type and stage. Unknown
// types fall back to the Life table; unknown stages fall back to the
// first row, so every claim always has an SLA status.
func ConfigFor(claimType domain.ClaimType, stage domain.Stage) domain.SLAConfig {
	configs, ok := configurations[claimType]
	if !ok {
		configs = configurations[domain.TypeLife]
	}

	for _, c := range configs {
		if c.Stage == stage {
			return c
		}
	}
	return configs[0]
}

// Monitor computes SLA statuses and rollups.
type Monitor struct {
	now func() time.Time
}

// NewMonitor creates an SLA monitor using the wall clock.
func NewMonitor() *Monitor {
	return &Monitor{now: func() time.Time { return time.Now().UTC() }}
}

// NewMonitorAt creates a monitor with an injected clock for tests.
func NewMonitorAt(now func() time.Time) *Monitor {
	return &Monitor{now: now}
}

// CalculateStatus derives the traffic-light SLA state for a claim's
// current stage.
func (m *Monitor) CalculateStatus(claim *domain.Claim) *domain.SLAStatus {
	cfg := ConfigFor(claim.Type, claim.Stage)

	now := m.now()
	hoursElapsed := now.Sub(claim.CreatedAt).Hours()
	hoursRemaining := math.Max(0, cfg.TargetHours-hoursElapsed)
	completion := math.Min(hoursElapsed/cfg.TargetHours, 1)

	status := domain.SLAGreen
	switch {
	case completion >= cfg.CriticalThreshold || hoursRemaining <= 0:
		status = domain.SLARed
	case completion >= cfg.WarningThreshold:
		status = domain.SLAAmber
	}

	breachRisk := breachRisk(hoursElapsed, cfg.TargetHours, claim.Type, claim.Stage, len(claim.Documents))
	predicted := predictCompletion(claim.CreatedAt, hoursElapsed, cfg.TargetHours, claim.Type)

	return &domain.SLAStatus{
		ClaimID:             claim.ID,
		CurrentStage:        claim.Stage,
		HoursElapsed:        hoursElapsed,
		HoursRemaining:      hoursRemaining,
		TargetHours:         cfg.TargetHours,
		Status:              status,
		BreachRisk:          breachRisk,
		PredictedCompletion: &predicted,
		Recommendations:     recommendations(status, breachRisk, claim),
	}
}

// breachRisk estimates the probability this stage blows its budget.
// The raw time ratio is inflated by known slowdown factors, then
// squashed through a logistic curve centered at the halfway point so
// the output reads as a probability.
func breachRisk(hoursElapsed, targetHours float64, claimType domain.ClaimType, stage domain.Stage, documentCount int) float64 {
	timeRisk := math.Min(hoursElapsed/targetHours, 1)

	multiplier := 1.0

	if claimType == domain.TypeLife || claimType == domain.TypeCriticalIllness {
		multiplier += 0.1
	}

	expectedDocs := 5
	if claimType == domain.TypeLife {
		expectedDocs = 6
	}
	if documentCount < expectedDocs {
		multiplier += 0.2
	}

	if stage == domain.StageDecision || stage == domain.StageAnalysis {
		multiplier += 0.15
	}

	risk := math.Min(timeRisk*multiplier, 1)

	return 1 / (1 + math.Exp(-10*(risk-0.5)))
}

// predictCompletion blends the historical average for the product with
// a linear extrapolation of the current pace.
func predictCompletion(start time.Time, hoursElapsed, targetHours float64, claimType domain.ClaimType) time.Time {
	historical, ok := historicalAverages[claimType]
	if !ok {
		historical = 72
	}

	currentPace := targetHours * (hoursElapsed / (targetHours * 0.5))
	predictedTotal := historical*0.6 + currentPace*0.4

	return start.Add(time.Duration(predictedTotal * float64(time.Hour)))
}

func recommendations(status domain.SLAColor, breachRisk float64, claim *domain.Claim) []string {
	var recs []string

	switch status {
	case domain.SLARed:
		recs = append(recs,
			"Immediate escalation required - SLA breached or critical",
			"Assign to senior adjuster for expedited processing",
			"Contact customer with status update",
		)
	case domain.SLAAmber:
		recs = append(recs,
			"Monitor closely - approaching SLA threshold",
			"Consider reassigning to available adjuster",
			"Review for any blockers or missing information",
		)
	}

	if breachRisk > 0.7 {
		recs = append(recs, "High breach risk detected - prioritize this claim")
	}

	if len(claim.Documents) < 3 {
		recs = append(recs, "Follow up on missing documents to avoid delays")
	}

	if len(claim.FraudIndicators) > 0 {
		recs = append(recs, "Fraud flags may cause delays - assign to SIU early")
	}

	return recs
}

// GenerateOJKReport builds the regulator-facing compliance rollup over
// a claim collection.
func (m *Monitor) GenerateOJKReport(claims []*domain.Claim) *domain.OJKReport {
	report := &domain.OJKReport{
		ByType:   make(map[domain.ClaimType]domain.TypeCompliance),
		Breaches: make([]domain.SLABreach, 0),
	}
	report.Summary.TotalClaims = len(claims)

	type bucket struct {
		count     int
		totalTime float64
		compliant int
	}
	byType := make(map[domain.ClaimType]*bucket)

	var totalProcessing float64

	for _, claim := range claims {
		status := m.CalculateStatus(claim)
		totalProcessing += status.HoursElapsed

		switch status.Status {
		case domain.SLAGreen:
			report.Summary.OnTimeClaims++
		case domain.SLARed:
			report.Summary.DelayedClaims++
			report.Breaches = append(report.Breaches, domain.SLABreach{
				ClaimID:    claim.ID,
				Type:       claim.Type,
				DelayHours: math.Max(0, status.HoursElapsed-status.TargetHours),
				Reason:     delayReason(claim),
			})
		}

		b, ok := byType[claim.Type]
		if !ok {
			b = &bucket{}
			byType[claim.Type] = b
		}
		b.count++
		b.totalTime += status.HoursElapsed
		if status.Status != domain.SLARed {
			b.compliant++
		}
	}

	if len(claims) > 0 {
		report.Summary.AverageProcessingTime = totalProcessing / float64(len(claims))
		report.Summary.SLAComplianceRate = float64(report.Summary.OnTimeClaims) / float64(len(claims)) * 100
	}

	for t, b := range byType {
		report.ByType[t] = domain.TypeCompliance{
			Count:       b.count,
			AverageTime: b.totalTime / float64(b.count),
			Compliance:  float64(b.compliant) / float64(b.count) * 100,
		}
	}

	return report
}

func delayReason(claim *domain.Claim) string {
	if len(claim.Documents) < 3 {
		return "Incomplete documentation"
	}
	if len(claim.FraudIndicators) > 0 {
		return "Fraud investigation required"
	}
	if claim.Type == domain.TypeCriticalIllness || claim.Type == domain.TypeLife {
		return "Complex medical review"
	}
	if claim.Assignee == "" || claim.Assignee == "Unassigned" {
		return "Pending assignment"
	}
	return "Processing delays"
}

// PredictBreaches returns the claims at risk of missing their stage
// budget, highest breach risk first. A claim qualifies when its
// breach risk exceeds 0.6 or its status is already amber or red.
func (m *Monitor) PredictBreaches(claims []*domain.Claim) []*domain.Claim {
	type scored struct {
		claim *domain.Claim
		risk  float64
	}

	var atRisk []scored
	for _, claim := range claims {
		status := m.CalculateStatus(claim)
		if status.BreachRisk > 0.6 || status.Status != domain.SLAGreen {
			atRisk = append(atRisk, scored{claim: claim, risk: status.BreachRisk})
		}
	}

	sort.SliceStable(atRisk, func(i, j int) bool {
		return atRisk[i].risk > atRisk[j].risk
	})

	out := make([]*domain.Claim, 0, len(atRisk))
	for _, s := range atRisk {
		out = append(out, s.claim)
	}
	return out
}

// metricsTargets are the fixed per-stage targets the metrics rollup
// measures compliance against.
var metricsTargets = map[domain.Stage]float64{
	domain.StageIntake:     6,
	domain.StageValidation: 24,
	domain.StageDecision:   120,
	domain.StagePayment:    24,
}

// CalculateMetrics rolls up elapsed-time statistics per stage across a
// claim collection.
func (m *Monitor) CalculateMetrics(claims []*domain.Claim) *domain.SLAMetrics {
	elapsed := map[domain.Stage][]float64{}

	for _, claim := range claims {
		if _, tracked := metricsTargets[claim.Stage]; !tracked {
			continue
		}
		status := m.CalculateStatus(claim)
		elapsed[claim.Stage] = append(elapsed[claim.Stage], status.HoursElapsed)
	}

	var all []float64
	for _, times := range elapsed {
		all = append(all, times...)
	}

	overall := domain.StageMetrics{}
	if len(all) > 0 {
		var sum float64
		for _, t := range all {
			sum += t
		}
		overall.Average = sum / float64(len(all))
		// TODO: compute overall p95 and compliance against end-to-end
		// targets once per-stage transition timestamps are recorded;
		// with only CreatedAt available they would double-count time.
	}

	return &domain.SLAMetrics{
		Intake:     stageMetrics(elapsed[domain.StageIntake], metricsTargets[domain.StageIntake]),
		Validation: stageMetrics(elapsed[domain.StageValidation], metricsTargets[domain.StageValidation]),
		Decision:   stageMetrics(elapsed[domain.StageDecision], metricsTargets[domain.StageDecision]),
		Payment:    stageMetrics(elapsed[domain.StagePayment], metricsTargets[domain.StagePayment]),
		Overall:    overall,
	}
}

// stageMetrics computes average, nearest-rank p95, and compliance for
// one stage's elapsed times.
func stageMetrics(times []float64, targetHours float64) domain.StageMetrics {
	if len(times) == 0 {
		return domain.StageMetrics{Compliance: 100}
	}

	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)

	var sum float64
	compliant := 0
	for _, t := range times {
		sum += t
		if t <= targetHours {
			compliant++
		}
	}

	idx := int(math.Floor(float64(len(sorted)) * 0.95))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return domain.StageMetrics{
		Average:    sum / float64(len(times)),
		P95:        sorted[idx],
		Compliance: float64(compliant) / float64(len(times)) * 100,
	}
}
