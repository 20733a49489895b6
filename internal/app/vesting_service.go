package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"vesting_treasury_bot/internal/domain/custody"
	domainTelegram "vesting_treasury_bot/internal/domain/telegram"
	"vesting_treasury_bot/internal/domain/vesting"

	"github.com/sirupsen/logrus"
)

// VestingService orchestrates schedule creation and withdrawals. Writes that
// must land together (custody transfer plus schedule state) run through the
// atomic runner in a single storage transaction. The clock is read exactly
// once per operation; every calculation inside that operation uses the same
// instant.
type VestingService struct {
	schedules vesting.Repository // plain reads outside any transaction
	atomic    AtomicRunner
	clock     vesting.Clock
	notifier  domainTelegram.Client // optional release notifications
	opsChatID int64
	logger    *logrus.Entry
	keys      *keyLocks
}

func NewVestingService(
	sr vesting.Repository,
	atomic AtomicRunner,
	clock vesting.Clock,
	logger *logrus.Entry,
) *VestingService {
	return &VestingService{
		schedules: sr,
		atomic:    atomic,
		clock:     clock,
		logger:    logger,
		keys:      newKeyLocks(),
	}
}

// SetNotifier enables ops-chat notifications for executed releases. A
// notification failure is logged and never affects the committed state.
func (s *VestingService) SetNotifier(client domainTelegram.Client, opsChatID int64) {
	s.notifier = client
	s.opsChatID = opsChatID
}

func (s *VestingService) notifyOps(text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(s.opsChatID, text, nil); err != nil {
		s.logger.WithError(err).Warn("Failed to send ops notification")
	}
}

// CreateSchedule creates a single schedule and returns it together with the
// amount pulled into custody.
func (s *VestingService) CreateSchedule(ctx context.Context, asset vesting.Asset, creator vesting.Address, p vesting.CommonParams, alloc vesting.Allocation) (*vesting.Schedule, error) {
	if _, err := s.CreateBatch(ctx, asset, creator, p, []vesting.Allocation{alloc}); err != nil {
		return nil, err
	}

	key := vesting.Key{Asset: asset, Creator: creator, Beneficiary: alloc.Beneficiary}
	created, err := s.schedules.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule after create: %w", err)
	}
	return created, nil
}

// CreateBatch creates up to vesting.MaxBatchSize schedules sharing one
// (asset, cliff, cycle, cycles) configuration under a single creator, pulls
// the aggregate amount into custody and returns it. The batch is
// all-or-nothing: the custody pull and every insert share one transaction,
// so an invalid allocation, a key collision or a failed pull leaves neither
// schedules nor moved funds behind.
func (s *VestingService) CreateBatch(ctx context.Context, asset vesting.Asset, creator vesting.Address, p vesting.CommonParams, allocs []vesting.Allocation) (*big.Int, error) {
	if creator.IsZero() {
		return nil, fmt.Errorf("%w: creator address is empty", vesting.ErrInvalidScheduleParameters)
	}
	if err := vesting.ValidateCommon(p, len(allocs)); err != nil {
		return nil, err
	}

	aggregate := new(big.Int)
	keys := make([]vesting.Key, 0, len(allocs))
	seen := make(map[vesting.Address]bool, len(allocs))
	for _, alloc := range allocs {
		if err := vesting.ValidateAllocation(alloc, p); err != nil {
			return nil, err
		}
		if seen[alloc.Beneficiary] {
			return nil, fmt.Errorf("%w: beneficiary %s listed twice", vesting.ErrInvalidBeneficiaryAllocation, alloc.Beneficiary)
		}
		seen[alloc.Beneficiary] = true
		aggregate.Add(aggregate, alloc.TotalAmount)
		keys = append(keys, vesting.Key{Asset: asset, Creator: creator, Beneficiary: alloc.Beneficiary})
	}

	unlock := s.keys.lockAll(keys)
	defer unlock()

	now := s.clock.Now()
	schedules := make([]*vesting.Schedule, 0, len(allocs))
	for i, alloc := range allocs {
		schedules = append(schedules, vesting.NewSchedule(keys[i], p, alloc, now))
	}

	err := s.atomic.RunAtomic(ctx, func(repo vesting.Repository, cust custody.Service) error {
		// Reject collisions before moving any funds. The primary key in
		// the repository still backstops this on insert.
		for _, key := range keys {
			_, err := repo.Get(ctx, key)
			if err == nil {
				return fmt.Errorf("%w: %s/%s/%s", vesting.ErrScheduleAlreadyExists, key.Asset, key.Creator, key.Beneficiary)
			}
			if !errors.Is(err, vesting.ErrScheduleNotFound) {
				return fmt.Errorf("failed to check existing schedule: %w", err)
			}
		}

		// Funds first: a schedule must never exist without its full
		// allocation in custody.
		if err := cust.TransferIn(ctx, asset, creator, aggregate); err != nil {
			return fmt.Errorf("custody pull of %s %s from %s failed: %w", aggregate, asset, creator, err)
		}
		if err := repo.CreateBatch(ctx, schedules); err != nil {
			return fmt.Errorf("failed to create schedule batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"asset":     asset,
		"creator":   creator,
		"schedules": len(schedules),
		"aggregate": aggregate.String(),
	}).Info("Schedule batch created")
	s.notifyOps(fmt.Sprintf("Locked %s of %s across %d schedule(s) for creator %s.", aggregate, asset, len(schedules), creator))
	return aggregate, nil
}

// WithdrawalResult describes one executed release.
type WithdrawalResult struct {
	Key       vesting.Key
	Amount    *big.Int // amount released by this withdrawal
	Claimed   *big.Int // cumulative claimed after this withdrawal
	Total     *big.Int
	Completed bool // schedule exhausted and removed
}

// Withdraw releases the currently claimable amount of the schedule to its
// beneficiary. Any caller may trigger it; the destination is always the
// beneficiary. The schedule read, the custody transfer and the claimed
// update (or removal, once the claimed total reaches the allocation) run in
// one transaction holding the schedule row lock, so a failure anywhere rolls
// the whole release back and a retry never pays the same delta twice.
func (s *VestingService) Withdraw(ctx context.Context, key vesting.Key) (*WithdrawalResult, error) {
	if err := vesting.ValidateWithdrawalRequest(key.Creator, key.Beneficiary); err != nil {
		return nil, err
	}

	unlock := s.keys.lock(key)
	defer unlock()

	now := s.clock.Now()
	var result *WithdrawalResult
	err := s.atomic.RunAtomic(ctx, func(repo vesting.Repository, cust custody.Service) error {
		schedule, err := repo.Get(ctx, key)
		if err != nil {
			if errors.Is(err, vesting.ErrScheduleNotFound) {
				return err
			}
			return fmt.Errorf("failed to load schedule for withdrawal: %w", err)
		}

		delta := vesting.Claimable(schedule, now)
		if delta.Sign() <= 0 {
			return fmt.Errorf("%w: %s/%s/%s at %d", vesting.ErrNothingToClaim, key.Asset, key.Creator, key.Beneficiary, now)
		}

		if err := cust.TransferOut(ctx, key.Asset, key.Beneficiary, delta); err != nil {
			return fmt.Errorf("custody release of %s %s to %s failed: %w", delta, key.Asset, key.Beneficiary, err)
		}

		claimed := new(big.Int).Add(schedule.ClaimedAmount, delta)
		completed := claimed.Cmp(schedule.TotalAmount) >= 0
		if completed {
			if err := repo.Remove(ctx, key); err != nil {
				return fmt.Errorf("failed to remove exhausted schedule: %w", err)
			}
		} else {
			if err := repo.UpdateClaimed(ctx, key, claimed); err != nil {
				return fmt.Errorf("failed to record claimed amount: %w", err)
			}
		}

		result = &WithdrawalResult{
			Key:       key,
			Amount:    delta,
			Claimed:   claimed,
			Total:     new(big.Int).Set(schedule.TotalAmount),
			Completed: completed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"asset":       key.Asset,
		"creator":     key.Creator,
		"beneficiary": key.Beneficiary,
		"released":    result.Amount.String(),
		"claimed":     result.Claimed.String(),
		"completed":   result.Completed,
	}).Info("Withdrawal executed")

	if result.Completed {
		s.notifyOps(fmt.Sprintf("Schedule %s/%s/%s fully vested: final %s of %s released.", key.Asset, key.Creator, key.Beneficiary, result.Amount, key.Asset))
	} else {
		s.notifyOps(fmt.Sprintf("Released %s of %s to %s (%s of %s claimed).", result.Amount, key.Asset, key.Beneficiary, result.Claimed, result.Total))
	}

	return result, nil
}

// GetSchedule returns the live schedule for a key. Absence surfaces as
// vesting.ErrScheduleNotFound, which query callers treat as a normal
// outcome, not a fault.
func (s *VestingService) GetSchedule(ctx context.Context, key vesting.Key) (*vesting.Schedule, error) {
	return s.schedules.Get(ctx, key)
}

// Claimable reports how much the schedule for a key could release right
// now, without executing the withdrawal.
func (s *VestingService) Claimable(ctx context.Context, key vesting.Key) (*big.Int, error) {
	schedule, err := s.schedules.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return vesting.Claimable(schedule, s.clock.Now()), nil
}
