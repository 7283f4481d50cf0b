package domain

// typicalAmounts is the per-product baseline benefit amount in IDR,
// used as the reference point for amount-based risk checks.
var typicalAmounts = map[ClaimType]float64{
	TypeLife:            500_000_000,
	TypeCriticalIllness: 200_000_000,
	TypeAccident:        50_000_000,
	TypeHealth:          10_000_000,
}

// TypicalAmount returns the baseline benefit amount for a claim type.
// Unknown types get a conservative middle-ground baseline.
func TypicalAmount(t ClaimType) float64 {
	if v, ok := typicalAmounts[t]; ok {
		return v
	}
	return 100_000_000
}
