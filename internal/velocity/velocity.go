// Package velocity provides claim velocity calculation per beneficiary.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/claimcare/verdict/internal/domain"
)

// Service calculates claim filing velocity for beneficiaries.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetClaimCount returns the number of claims filed by a beneficiary
// within a time window. This is the VelocityGetter signature expected
// by the rule engine.
func (s *Service) GetClaimCount(ctx context.Context, tenantID, beneficiaryNIK string, windowSecs int) (int64, error) {
	if tenantID == "" || beneficiaryNIK == "" {
		return 0, fmt.Errorf("tenantID and beneficiaryNIK are required")
	}

	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	count, err := s.repo.CountClaimsByBeneficiary(ctx, tenantID, beneficiaryNIK, since, "")
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}

	return count, nil
}

// GetClaimHistory resolves the historical-claim inputs the scoring
// pipeline consumes: lifetime, rolling 30-day, and same-day counts.
// excludeClaimID is the claim under evaluation; it is left out of
// every count so a beneficiary's first filing reads as zero history.
func (s *Service) GetClaimHistory(ctx context.Context, tenantID, beneficiaryNIK, excludeClaimID string) (domain.ClaimHistory, error) {
	if tenantID == "" || beneficiaryNIK == "" {
		return domain.ClaimHistory{}, fmt.Errorf("tenantID and beneficiaryNIK are required")
	}
	if s.repo == nil {
		return domain.ClaimHistory{}, fmt.Errorf("no data source available")
	}

	now := time.Now().UTC()

	prior, err := s.repo.CountClaimsByBeneficiary(ctx, tenantID, beneficiaryNIK, time.Time{}, excludeClaimID)
	if err != nil {
		return domain.ClaimHistory{}, fmt.Errorf("failed to count prior claims: %w", err)
	}

	recent, err := s.repo.CountClaimsByBeneficiary(ctx, tenantID, beneficiaryNIK, now.AddDate(0, 0, -30), excludeClaimID)
	if err != nil {
		return domain.ClaimHistory{}, fmt.Errorf("failed to count recent claims: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sameDay, err := s.repo.CountClaimsByBeneficiary(ctx, tenantID, beneficiaryNIK, dayStart, excludeClaimID)
	if err != nil {
		return domain.ClaimHistory{}, fmt.Errorf("failed to count same-day claims: %w", err)
	}

	return domain.ClaimHistory{
		PriorClaims:   int(prior),
		RecentClaims:  int(recent),
		SameDayClaims: int(sameDay),
	}, nil
}

// RecordClaim bumps the short-lived filing counter for a beneficiary.
// Counter misses are non-fatal; the repository remains the source of
// truth for velocity queries.
func (s *Service) RecordClaim(ctx context.Context, tenantID, beneficiaryNIK string) {
	if s.cache == nil || beneficiaryNIK == "" {
		return
	}
	key := fmt.Sprintf("velocity:%s", beneficiaryNIK)
	_, _ = s.cache.IncrementCounter(ctx, tenantID, key, 24*time.Hour)
}

// GetVelocityGetter returns a VelocityGetter function for the rule engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, tenantID, beneficiaryNIK string, windowSecs int) (int64, error) {
	return s.GetClaimCount
}
