package vesting

import (
	"math/big"
	"time"
)

// Address is an opaque account identifier. The service never interprets it
// beyond equality and emptiness; custody decides what it resolves to.
type Address string

// IsZero reports whether the address is the empty/null sentinel.
func (a Address) IsZero() bool {
	return a == ""
}

// Asset identifies a fungible asset held in custody. The distinguished
// native-currency asset is defined in the custody package.
type Asset string

// Key is the durable external identifier of a schedule. At most one live
// schedule exists per key; the key becomes reusable once the schedule is
// fully claimed and removed.
type Key struct {
	Asset       Asset
	Creator     Address
	Beneficiary Address
}

// Schedule represents one time-locked release schedule.
// Corresponds to the 'schedules' table.
//
// All amounts are integer base units (no fractional amounts anywhere).
// All times and durations are unix seconds. Only ClaimedAmount ever changes
// after creation, and only upwards.
type Schedule struct {
	Asset       Asset
	Creator     Address
	Beneficiary Address

	Start          int64 // unix seconds the schedule was created
	VestingSeconds int64 // CliffSeconds + totalCycles * CycleSeconds
	CycleSeconds   int64
	CliffSeconds   int64

	TotalAmount   *big.Int
	CliffAmount   *big.Int
	ClaimedAmount *big.Int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the (asset, creator, beneficiary) identifier of the schedule.
func (s *Schedule) Key() Key {
	return Key{Asset: s.Asset, Creator: s.Creator, Beneficiary: s.Beneficiary}
}

// TotalCycles derives the number of regular release cycles from the stored
// durations. The creation path only ever persists durations satisfying
// VestingSeconds == CliffSeconds + n*CycleSeconds, so the division is exact
// for live schedules.
func (s *Schedule) TotalCycles() int64 {
	return (s.VestingSeconds - s.CliffSeconds) / s.CycleSeconds
}

// Remaining returns TotalAmount - ClaimedAmount as a fresh value.
func (s *Schedule) Remaining() *big.Int {
	return new(big.Int).Sub(s.TotalAmount, s.ClaimedAmount)
}

// NewSchedule constructs a live schedule starting at the given time with
// nothing claimed yet. Parameters must already have passed validation.
func NewSchedule(key Key, p CommonParams, a Allocation, start int64) *Schedule {
	return &Schedule{
		Asset:          key.Asset,
		Creator:        key.Creator,
		Beneficiary:    key.Beneficiary,
		Start:          start,
		VestingSeconds: p.CliffSeconds + p.TotalCycles*p.CycleSeconds,
		CycleSeconds:   p.CycleSeconds,
		CliffSeconds:   p.CliffSeconds,
		TotalAmount:    new(big.Int).Set(a.TotalAmount),
		CliffAmount:    new(big.Int).Set(a.CliffAmount),
		ClaimedAmount:  new(big.Int),
	}
}
