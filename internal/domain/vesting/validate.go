package vesting

import (
	"fmt"
	"math/big"
)

// Bounds on schedule parameters. Durations are unix seconds, matching the
// clock contract.
const (
	MaxTotalCycles = 250
	MaxBatchSize   = 50

	MinCycleSeconds = 60 * 60                 // 1 hour
	MaxCycleSeconds = 10 * 365 * 24 * 60 * 60 // 10 years
	MaxCliffSeconds = MaxCycleSeconds

	// CliffPercentCap bounds the cliff lump sum to 95% of the total
	// allocation, integer-truncated.
	CliffPercentCap = 95
)

var one = big.NewInt(1)

// CommonParams are the per-batch schedule parameters shared by every
// beneficiary in one creation request.
type CommonParams struct {
	TotalCycles  int64
	CycleSeconds int64
	CliffSeconds int64
}

// Allocation is one beneficiary's slice of a creation request.
type Allocation struct {
	Beneficiary Address
	TotalAmount *big.Int
	CliffAmount *big.Int
}

// ValidateCommon checks the batch-level parameters. It is pure and reports
// the first violated bound wrapped in ErrInvalidScheduleParameters.
func ValidateCommon(p CommonParams, beneficiaryCount int) error {
	if p.TotalCycles == 0 || p.TotalCycles > MaxTotalCycles {
		return fmt.Errorf("%w: total cycles must be in [1, %d], got %d", ErrInvalidScheduleParameters, MaxTotalCycles, p.TotalCycles)
	}
	if p.CycleSeconds < MinCycleSeconds || p.CycleSeconds > MaxCycleSeconds {
		return fmt.Errorf("%w: cycle duration must be in [%d, %d] seconds, got %d", ErrInvalidScheduleParameters, MinCycleSeconds, MaxCycleSeconds, p.CycleSeconds)
	}
	if p.CliffSeconds < 0 || p.CliffSeconds > MaxCliffSeconds {
		return fmt.Errorf("%w: cliff duration must be in [0, %d] seconds, got %d", ErrInvalidScheduleParameters, MaxCliffSeconds, p.CliffSeconds)
	}
	if beneficiaryCount == 0 || beneficiaryCount > MaxBatchSize {
		return fmt.Errorf("%w: beneficiary count must be in [1, %d], got %d", ErrInvalidScheduleParameters, MaxBatchSize, beneficiaryCount)
	}
	return nil
}

// ValidateAllocation checks one beneficiary's allocation against the shared
// parameters. Pure; reports the first violation wrapped in
// ErrInvalidBeneficiaryAllocation.
//
// The per-cycle check uses the same truncating division as the release
// calculator, so an allocation that passes here always delivers at least one
// base unit per cycle.
func ValidateAllocation(a Allocation, p CommonParams) error {
	if a.Beneficiary.IsZero() {
		return fmt.Errorf("%w: beneficiary address is empty", ErrInvalidBeneficiaryAllocation)
	}
	if a.TotalAmount == nil || a.TotalAmount.Sign() <= 0 {
		return fmt.Errorf("%w: total amount must be positive", ErrInvalidBeneficiaryAllocation)
	}
	if a.CliffAmount == nil || a.CliffAmount.Sign() < 0 {
		return fmt.Errorf("%w: cliff amount must not be negative", ErrInvalidBeneficiaryAllocation)
	}

	// The cliff lump sum and the cliff period are either both absent or
	// both present.
	hasCliffAmount := a.CliffAmount.Sign() > 0
	hasCliffPeriod := p.CliffSeconds > 0
	if hasCliffAmount != hasCliffPeriod {
		return fmt.Errorf("%w: cliff amount and cliff duration must both be zero or both be positive", ErrInvalidBeneficiaryAllocation)
	}

	// cliffAmount <= totalAmount * 95 / 100, integer-truncated, inclusive
	// at the boundary.
	maxCliff := new(big.Int).Mul(a.TotalAmount, big.NewInt(CliffPercentCap))
	maxCliff.Quo(maxCliff, big.NewInt(100))
	if a.CliffAmount.Cmp(maxCliff) > 0 {
		return fmt.Errorf("%w: cliff amount %s exceeds %d%% of total amount %s", ErrInvalidBeneficiaryAllocation, a.CliffAmount, CliffPercentCap, a.TotalAmount)
	}

	perCycle := new(big.Int).Sub(a.TotalAmount, a.CliffAmount)
	perCycle.Quo(perCycle, big.NewInt(p.TotalCycles))
	if perCycle.Cmp(one) < 0 {
		return fmt.Errorf("%w: per-cycle amount for total %s over %d cycles is below one base unit", ErrInvalidBeneficiaryAllocation, a.TotalAmount, p.TotalCycles)
	}
	return nil
}

// ValidateWithdrawalRequest checks the identities of a withdrawal request.
func ValidateWithdrawalRequest(creator, beneficiary Address) error {
	if creator.IsZero() {
		return fmt.Errorf("%w: creator address is empty", ErrInvalidWithdrawalRequest)
	}
	if beneficiary.IsZero() {
		return fmt.Errorf("%w: beneficiary address is empty", ErrInvalidWithdrawalRequest)
	}
	return nil
}
