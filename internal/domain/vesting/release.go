package vesting

import "math/big"

// TotalReleased computes the cumulative amount unlocked by the schedule at
// the given time, independent of what has already been withdrawn.
//
// The function is pure and total over any now. All divisions truncate, which
// keeps the running total at or below true elapsed progress; the truncation
// residue (up to totalCycles-1 base units) is only released by the fully
// vested branch. The result is always a fresh value and never aliases
// schedule fields.
func TotalReleased(s *Schedule, now int64) *big.Int {
	cliffEnd := s.Start + s.CliffSeconds
	if now < cliffEnd {
		return new(big.Int)
	}
	// At or past the end of the vesting window everything is unlocked,
	// residue included. Checked before any cycle arithmetic so elapsed
	// cycles never run past the schedule's defined window.
	if now >= s.Start+s.VestingSeconds {
		return new(big.Int).Set(s.TotalAmount)
	}

	elapsedCycles := (now - cliffEnd) / s.CycleSeconds
	perCycle := new(big.Int).Sub(s.TotalAmount, s.CliffAmount)
	perCycle.Quo(perCycle, big.NewInt(s.TotalCycles()))

	released := perCycle.Mul(perCycle, big.NewInt(elapsedCycles))
	return released.Add(released, s.CliffAmount)
}

// Claimable returns the delta between what the schedule has unlocked at the
// given time and what has already been withdrawn.
func Claimable(s *Schedule, now int64) *big.Int {
	released := TotalReleased(s, now)
	return released.Sub(released, s.ClaimedAmount)
}
