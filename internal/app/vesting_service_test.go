package app

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"testing"

	"vesting_treasury_bot/internal/domain/custody"
	"vesting_treasury_bot/internal/domain/vesting"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const month = 30 * 24 * 60 * 60 // 30 days in seconds

func amt(n int64) *big.Int {
	return big.NewInt(n)
}

// memScheduleRepo is an in-memory vesting.Repository with the same
// uniqueness and all-or-nothing semantics as the postgres implementation.
// failUpdate and failCreate inject write errors to exercise rollback paths.
type memScheduleRepo struct {
	mu         sync.Mutex
	items      map[vesting.Key]*vesting.Schedule
	failUpdate bool
	failCreate bool
}

func newMemScheduleRepo() *memScheduleRepo {
	return &memScheduleRepo{items: make(map[vesting.Key]*vesting.Schedule)}
}

func cloneSchedule(s *vesting.Schedule) *vesting.Schedule {
	c := *s
	c.TotalAmount = new(big.Int).Set(s.TotalAmount)
	c.CliffAmount = new(big.Int).Set(s.CliffAmount)
	c.ClaimedAmount = new(big.Int).Set(s.ClaimedAmount)
	return &c
}

func (r *memScheduleRepo) Create(ctx context.Context, s *vesting.Schedule) error {
	return r.CreateBatch(ctx, []*vesting.Schedule{s})
}

func (r *memScheduleRepo) CreateBatch(_ context.Context, schedules []*vesting.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return fmt.Errorf("batch create: simulated storage failure")
	}
	for _, s := range schedules {
		if _, exists := r.items[s.Key()]; exists {
			return fmt.Errorf("batch create: %w", vesting.ErrScheduleAlreadyExists)
		}
	}
	for _, s := range schedules {
		r.items[s.Key()] = cloneSchedule(s)
	}
	return nil
}

func (r *memScheduleRepo) Get(_ context.Context, key vesting.Key) (*vesting.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[key]
	if !ok {
		return nil, vesting.ErrScheduleNotFound
	}
	return cloneSchedule(s), nil
}

func (r *memScheduleRepo) UpdateClaimed(_ context.Context, key vesting.Key, claimed *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate {
		return fmt.Errorf("update claimed: simulated storage failure")
	}
	s, ok := r.items[key]
	if !ok {
		return vesting.ErrScheduleNotFound
	}
	s.ClaimedAmount = new(big.Int).Set(claimed)
	return nil
}

func (r *memScheduleRepo) Remove(_ context.Context, key vesting.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return vesting.ErrScheduleNotFound
	}
	delete(r.items, key)
	return nil
}

func (r *memScheduleRepo) ListLive(_ context.Context) ([]*vesting.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*vesting.Schedule, 0, len(r.items))
	for _, s := range r.items {
		out = append(out, cloneSchedule(s))
	}
	return out, nil
}

func (r *memScheduleRepo) snapshot() map[vesting.Key]*vesting.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[vesting.Key]*vesting.Schedule, len(r.items))
	for k, s := range r.items {
		snap[k] = cloneSchedule(s)
	}
	return snap
}

func (r *memScheduleRepo) restore(snap map[vesting.Key]*vesting.Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = snap
}

type transferRecord struct {
	asset   vesting.Asset
	account vesting.Address
	amount  *big.Int
}

// fakeCustody records transfers and can be told to fail.
type fakeCustody struct {
	mu       sync.Mutex
	failIn   bool
	failOut  bool
	inCalls  []transferRecord
	outCalls []transferRecord
}

func (f *fakeCustody) TransferIn(_ context.Context, asset vesting.Asset, from vesting.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIn {
		return fmt.Errorf("%w: simulated", custody.ErrTransferFailed)
	}
	f.inCalls = append(f.inCalls, transferRecord{asset, from, new(big.Int).Set(amount)})
	return nil
}

func (f *fakeCustody) TransferOut(_ context.Context, asset vesting.Asset, to vesting.Address, amount *big.Int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOut {
		return fmt.Errorf("%w: simulated", custody.ErrTransferFailed)
	}
	f.outCalls = append(f.outCalls, transferRecord{asset, to, new(big.Int).Set(amount)})
	return nil
}

func (f *fakeCustody) snapshot() (in, out int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inCalls), len(f.outCalls)
}

func (f *fakeCustody) restore(in, out int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inCalls = f.inCalls[:in]
	f.outCalls = f.outCalls[:out]
}

// fakeAtomic hands the in-memory fakes to the callback and discards every
// write the callback made when it returns an error, mirroring the rollback
// semantics of the transactional runner.
type fakeAtomic struct {
	repo *memScheduleRepo
	cust *fakeCustody
}

func (f *fakeAtomic) RunAtomic(_ context.Context, fn func(schedules vesting.Repository, cust custody.Service) error) error {
	repoSnap := f.repo.snapshot()
	in, out := f.cust.snapshot()
	if err := fn(f.repo, f.cust); err != nil {
		f.repo.restore(repoSnap)
		f.cust.restore(in, out)
		return err
	}
	return nil
}

type fixedClock struct {
	now int64
}

func (c *fixedClock) Now() int64 {
	return c.now
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newTestService(start int64) (*VestingService, *memScheduleRepo, *fakeCustody, *fixedClock) {
	repo := newMemScheduleRepo()
	cust := &fakeCustody{}
	clock := &fixedClock{now: start}
	svc := NewVestingService(repo, &fakeAtomic{repo: repo, cust: cust}, clock, testLogger())
	return svc, repo, cust, clock
}

func grantParams() vesting.CommonParams {
	return vesting.CommonParams{TotalCycles: 8, CycleSeconds: month, CliffSeconds: 2 * month}
}

func TestCreateSchedulePullsFundsAndStores(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_000)
	svc, repo, cust, _ := newTestService(start)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	schedule, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)

	assert.Equal(t, start, schedule.Start)
	assert.Equal(t, int64(10*month), schedule.VestingSeconds)
	assert.Equal(t, int64(0), schedule.ClaimedAmount.Int64())

	require.Len(t, cust.inCalls, 1)
	assert.Equal(t, vesting.Address("treasury-ops"), cust.inCalls[0].account)
	assert.Equal(t, int64(1000), cust.inCalls[0].amount.Int64())

	stored, err := repo.Get(ctx, schedule.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.TotalAmount.Int64())
}

func TestCreateScheduleDuplicateKey(t *testing.T) {
	ctx := context.Background()
	svc, _, cust, _ := newTestService(1_700_000_000)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	_, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)

	_, err = svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	assert.ErrorIs(t, err, vesting.ErrScheduleAlreadyExists)
	// The duplicate must not have pulled funds again.
	assert.Len(t, cust.inCalls, 1)
}

func TestCreateBatchAggregate(t *testing.T) {
	ctx := context.Background()
	svc, repo, cust, _ := newTestService(1_700_000_000)

	allocs := []vesting.Allocation{
		{Beneficiary: "alice", TotalAmount: amt(500), CliffAmount: amt(50)},
		{Beneficiary: "bob", TotalAmount: amt(300), CliffAmount: amt(30)},
		{Beneficiary: "carol", TotalAmount: amt(200), CliffAmount: amt(20)},
	}
	aggregate, err := svc.CreateBatch(ctx, "GINI", "treasury-ops", grantParams(), allocs)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), aggregate.Int64())

	require.Len(t, cust.inCalls, 1)
	assert.Equal(t, int64(1000), cust.inCalls[0].amount.Int64())

	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	ctx := context.Background()
	svc, repo, cust, _ := newTestService(1_700_000_000)

	_, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(),
		vesting.Allocation{Beneficiary: "bob", TotalAmount: amt(300), CliffAmount: amt(30)})
	require.NoError(t, err)

	allocs := []vesting.Allocation{
		{Beneficiary: "alice", TotalAmount: amt(500), CliffAmount: amt(50)},
		{Beneficiary: "bob", TotalAmount: amt(300), CliffAmount: amt(30)}, // collides
	}
	_, err = svc.CreateBatch(ctx, "GINI", "treasury-ops", grantParams(), allocs)
	assert.ErrorIs(t, err, vesting.ErrScheduleAlreadyExists)

	// The collision is detected before funds move, and no entry of the
	// rejected batch may exist.
	assert.Len(t, cust.inCalls, 1)
	_, err = repo.Get(ctx, vesting.Key{Asset: "GINI", Creator: "treasury-ops", Beneficiary: "alice"})
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)
}

func TestCreateBatchInvalidAllocationRejectsAll(t *testing.T) {
	ctx := context.Background()
	svc, repo, cust, _ := newTestService(1_700_000_000)

	allocs := []vesting.Allocation{
		{Beneficiary: "alice", TotalAmount: amt(500), CliffAmount: amt(50)},
		{Beneficiary: "", TotalAmount: amt(300), CliffAmount: amt(30)},
	}
	_, err := svc.CreateBatch(ctx, "GINI", "treasury-ops", grantParams(), allocs)
	assert.ErrorIs(t, err, vesting.ErrInvalidBeneficiaryAllocation)
	assert.Empty(t, cust.inCalls)

	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestCreateBatchTransferFailureLeavesNoSchedules(t *testing.T) {
	ctx := context.Background()
	svc, repo, cust, _ := newTestService(1_700_000_000)
	cust.failIn = true

	_, err := svc.CreateBatch(ctx, "GINI", "treasury-ops", grantParams(), []vesting.Allocation{
		{Beneficiary: "alice", TotalAmount: amt(500), CliffAmount: amt(50)},
	})
	assert.ErrorIs(t, err, custody.ErrTransferFailed)

	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestWithdrawLifecycle(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_000)
	svc, repo, cust, clock := newTestService(start)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	schedule, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)
	key := schedule.Key()

	// Before the cliff nothing is claimable.
	_, err = svc.Withdraw(ctx, key)
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	// The cliff lump sum.
	clock.now = start + 2*month
	result, err := svc.Withdraw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Amount.Int64())
	assert.False(t, result.Completed)

	// Same timestamp again: nothing new has unlocked.
	_, err = svc.Withdraw(ctx, key)
	assert.ErrorIs(t, err, vesting.ErrNothingToClaim)

	// One cycle later: floor(900/8) = 112.
	clock.now = start + 3*month
	result, err = svc.Withdraw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(112), result.Amount.Int64())
	assert.Equal(t, int64(212), result.Claimed.Int64())

	// Completion: remainder including the truncation residue.
	clock.now = start + 10*month
	result, err = svc.Withdraw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(788), result.Amount.Int64())
	assert.True(t, result.Completed)

	// Terminal: the record is gone and the key is reusable.
	_, err = repo.Get(ctx, key)
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)
	_, err = svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	assert.NoError(t, err)

	// All releases went to the beneficiary.
	require.Len(t, cust.outCalls, 3)
	for _, call := range cust.outCalls {
		assert.Equal(t, vesting.Address("alice"), call.account)
	}
}

func TestWithdrawUnknownKey(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(1_700_000_000)

	_, err := svc.Withdraw(ctx, vesting.Key{Asset: "GINI", Creator: "treasury-ops", Beneficiary: "nobody"})
	assert.ErrorIs(t, err, vesting.ErrScheduleNotFound)
}

func TestWithdrawEmptyIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(1_700_000_000)

	_, err := svc.Withdraw(ctx, vesting.Key{Asset: "GINI", Creator: "", Beneficiary: "alice"})
	assert.ErrorIs(t, err, vesting.ErrInvalidWithdrawalRequest)
	_, err = svc.Withdraw(ctx, vesting.Key{Asset: "GINI", Creator: "treasury-ops", Beneficiary: ""})
	assert.ErrorIs(t, err, vesting.ErrInvalidWithdrawalRequest)
}

func TestWithdrawTransferFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_000)
	svc, repo, cust, clock := newTestService(start)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	schedule, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)
	key := schedule.Key()

	clock.now = start + 2*month
	cust.failOut = true
	_, err = svc.Withdraw(ctx, key)
	assert.ErrorIs(t, err, custody.ErrTransferFailed)

	stored, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ClaimedAmount.Int64())

	// The identical request succeeds once custody recovers.
	cust.failOut = false
	result, err := svc.Withdraw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Amount.Int64())
}

func TestWithdrawUpdateFailureRollsBackPayout(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_000)
	svc, repo, cust, clock := newTestService(start)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	schedule, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)
	key := schedule.Key()

	// The transfer succeeds but recording the claimed amount fails. The
	// release runs in one transaction, so the payout must roll back too.
	clock.now = start + 2*month
	repo.failUpdate = true
	_, err = svc.Withdraw(ctx, key)
	require.Error(t, err)
	assert.Empty(t, cust.outCalls)

	stored, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.ClaimedAmount.Int64())

	// The retry releases the cliff amount exactly once: total paid to the
	// beneficiary is 100, not 200.
	repo.failUpdate = false
	result, err := svc.Withdraw(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Amount.Int64())

	paid := new(big.Int)
	for _, call := range cust.outCalls {
		paid.Add(paid, call.amount)
	}
	assert.Equal(t, int64(100), paid.Int64())
}

func TestCreateBatchInsertFailureRollsBackPull(t *testing.T) {
	ctx := context.Background()
	svc, repo, cust, _ := newTestService(1_700_000_000)
	repo.failCreate = true

	_, err := svc.CreateBatch(ctx, "GINI", "treasury-ops", grantParams(), []vesting.Allocation{
		{Beneficiary: "alice", TotalAmount: amt(500), CliffAmount: amt(50)},
	})
	require.Error(t, err)

	// The failed insert shares the transaction with the custody pull, so
	// the creator keeps their funds.
	assert.Empty(t, cust.inCalls)
	live, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestClaimableQuery(t *testing.T) {
	ctx := context.Background()
	start := int64(1_700_000_000)
	svc, _, _, clock := newTestService(start)

	alloc := vesting.Allocation{Beneficiary: "alice", TotalAmount: amt(1000), CliffAmount: amt(100)}
	schedule, err := svc.CreateSchedule(ctx, "GINI", "treasury-ops", grantParams(), alloc)
	require.NoError(t, err)

	clock.now = start + 3*month
	claimable, err := svc.Claimable(ctx, schedule.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(212), claimable.Int64())
}
