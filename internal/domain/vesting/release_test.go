package vesting

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const month = 30 * 24 * 60 * 60 // 30 days in seconds

func amt(n int64) *big.Int {
	return big.NewInt(n)
}

// exampleSchedule mirrors a typical grant: 1000 units, 100 released after a
// two-month cliff, then eight monthly cycles.
func exampleSchedule(start int64) *Schedule {
	return &Schedule{
		Asset:          "GINI",
		Creator:        "treasury-ops",
		Beneficiary:    "alice",
		Start:          start,
		CliffSeconds:   2 * month,
		CycleSeconds:   month,
		VestingSeconds: 10 * month,
		TotalAmount:    amt(1000),
		CliffAmount:    amt(100),
		ClaimedAmount:  amt(0),
	}
}

func TestTotalReleasedBranches(t *testing.T) {
	start := int64(1_700_000_000)
	s := exampleSchedule(start)

	tests := []struct {
		name string
		now  int64
		want int64
	}{
		{"at start", start, 0},
		{"one second before cliff", start + 2*month - 1, 0},
		{"exactly at cliff", start + 2*month, 100},
		{"mid first cycle", start + 2*month + month/2, 100},
		{"after first cycle", start + 3*month, 212},  // 100 + floor(900/8)
		{"after fourth cycle", start + 6*month, 548}, // 100 + 4*112
		{"one second before completion", start + 10*month - 1, 884},
		{"at completion", start + 10*month, 1000},
		{"long after completion", start + 100*month, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TotalReleased(s, tt.now)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestTotalReleasedNoCliff(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Start:          start,
		CliffSeconds:   0,
		CycleSeconds:   month,
		VestingSeconds: 4 * month,
		TotalAmount:    amt(400),
		CliffAmount:    amt(0),
		ClaimedAmount:  amt(0),
	}
	assert.Equal(t, int64(0), TotalReleased(s, start).Int64())
	assert.Equal(t, int64(100), TotalReleased(s, start+month).Int64())
	assert.Equal(t, int64(400), TotalReleased(s, start+4*month).Int64())
}

func TestTotalReleasedMonotonicAndBounded(t *testing.T) {
	start := int64(1_700_000_000)
	s := exampleSchedule(start)

	prev := new(big.Int)
	step := int64(month / 7) // deliberately not aligned to cycle boundaries
	for now := start - month; now <= start+12*month; now += step {
		got := TotalReleased(s, now)
		require.GreaterOrEqual(t, got.Cmp(prev), 0, "released amount decreased at t=%d", now)
		require.GreaterOrEqual(t, got.Sign(), 0)
		require.LessOrEqual(t, got.Cmp(s.TotalAmount), 0)
		prev = got
	}
}

// The truncating per-cycle division leaves a residue of up to totalCycles-1
// units that only the completion branch releases.
func TestTotalReleasedResidue(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Start:          start,
		CliffSeconds:   0,
		CycleSeconds:   month,
		VestingSeconds: 8 * month,
		TotalAmount:    amt(109), // floor(109/8)=13, residue 5
		CliffAmount:    amt(0),
		ClaimedAmount:  amt(0),
	}

	// Last instant inside the window: 7 full cycles unlocked.
	assert.Equal(t, int64(91), TotalReleased(s, start+8*month-1).Int64())
	// The completion boundary releases the residue.
	assert.Equal(t, int64(109), TotalReleased(s, start+8*month).Int64())
}

func TestTotalReleasedResultDoesNotAliasSchedule(t *testing.T) {
	start := int64(1_700_000_000)
	s := exampleSchedule(start)

	got := TotalReleased(s, start+20*month)
	got.SetInt64(0)
	assert.Equal(t, int64(1000), s.TotalAmount.Int64())

	got = TotalReleased(s, start+2*month)
	got.SetInt64(0)
	assert.Equal(t, int64(100), s.CliffAmount.Int64())
}

func TestClaimable(t *testing.T) {
	start := int64(1_700_000_000)
	s := exampleSchedule(start)
	s.ClaimedAmount = amt(100)

	assert.Equal(t, int64(112), Claimable(s, start+3*month).Int64())
	assert.Equal(t, int64(0), Claimable(s, start+2*month).Int64())
	assert.Equal(t, int64(900), Claimable(s, start+10*month).Int64())
}

// Maximum configured durations must not overflow the time arithmetic.
func TestTotalReleasedMaxDurations(t *testing.T) {
	start := int64(1_700_000_000)
	s := &Schedule{
		Start:          start,
		CliffSeconds:   MaxCliffSeconds,
		CycleSeconds:   MaxCycleSeconds,
		VestingSeconds: MaxCliffSeconds + MaxTotalCycles*int64(MaxCycleSeconds),
		TotalAmount:    amt(1_000_000),
		CliffAmount:    amt(500),
		ClaimedAmount:  amt(0),
	}
	end := s.Start + s.VestingSeconds
	require.Greater(t, end, start)
	assert.Equal(t, int64(1_000_000), TotalReleased(s, end).Int64())
	assert.Equal(t, int64(500), TotalReleased(s, start+s.CliffSeconds).Int64())
}
