package vesting

import (
	"context"
	"math/big"
)

// Repository defines the operations for persisting and retrieving vesting
// schedules. The repository exclusively owns the authoritative copy of every
// live schedule; no other component keeps an independent one.
type Repository interface {
	// Create inserts a new live schedule. Returns ErrScheduleAlreadyExists
	// if a live schedule for the same key is present.
	Create(ctx context.Context, s *Schedule) error

	// CreateBatch inserts all schedules or none of them. Any validation
	// collision with an existing key rejects the whole batch.
	CreateBatch(ctx context.Context, schedules []*Schedule) error

	// Get returns the live schedule for the key, or ErrScheduleNotFound.
	// Absence is an expected outcome for query callers, not a fault.
	Get(ctx context.Context, key Key) (*Schedule, error)

	// UpdateClaimed persists a new cumulative claimed amount for the key.
	UpdateClaimed(ctx context.Context, key Key, claimed *big.Int) error

	// Remove deletes the schedule. Invoked only by the withdrawal flow once
	// the schedule is exhausted; presence of a record is what enforces the
	// one-live-schedule-per-key rule.
	Remove(ctx context.Context, key Key) error

	// ListLive returns every live schedule, for treasury reporting.
	ListLive(ctx context.Context) ([]*Schedule, error)
}
