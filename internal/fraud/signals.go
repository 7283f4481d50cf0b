package fraud

import (
	"context"
	"math/rand"
	"sync"

	"github.com/claimcare/verdict/internal/domain"
)

// SignalProvider supplies model-based fraud signals for a claim. The
// production deployment backs this with an external scoring service;
// tests inject deterministic stubs.
type SignalProvider interface {
	// AnomalyScore returns a score in [0,1] independent of the
	// indicator checks.
	AnomalyScore(ctx context.Context, claim *domain.Claim) float64

	// PatternMatch reports whether the claim matches a known fraud
	// pattern.
	PatternMatch(ctx context.Context, claim *domain.Claim) bool

	// NetworkScore returns the strength of the claim's connection to
	// known fraud networks, in [0,1].
	NetworkScore(ctx context.Context, claim *domain.Claim) float64

	// DuplicateLikelihood returns the similarity of this claim to
	// earlier claims from the same beneficiary, in [0,1].
	DuplicateLikelihood(ctx context.Context, claim *domain.Claim) float64
}

// RandomProvider is a seedable stand-in for a real scoring model. Used
// when no external model endpoint is configured.
type RandomProvider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomProvider creates a provider seeded for reproducible runs.
func NewRandomProvider(seed int64) *RandomProvider {
	return &RandomProvider{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomProvider) next() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *RandomProvider) AnomalyScore(ctx context.Context, claim *domain.Claim) float64 {
	return p.next() * 0.5 // skew low; most claims are not anomalous
}

func (p *RandomProvider) PatternMatch(ctx context.Context, claim *domain.Claim) bool {
	return p.next() > 0.9
}

func (p *RandomProvider) NetworkScore(ctx context.Context, claim *domain.Claim) float64 {
	return p.next() * 0.4
}

func (p *RandomProvider) DuplicateLikelihood(ctx context.Context, claim *domain.Claim) float64 {
	return p.next() * 0.3
}
