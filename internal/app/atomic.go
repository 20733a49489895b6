package app

import (
	"context"

	"vesting_treasury_bot/internal/domain/custody"
	"vesting_treasury_bot/internal/domain/vesting"
)

// AtomicRunner executes fn with repository and custody views bound to one
// storage transaction: every write fn performs commits together or not at
// all. The production implementation locks schedule rows for the duration
// of the transaction, so concurrent withdrawals of the same key serialize
// even across service instances.
type AtomicRunner interface {
	RunAtomic(ctx context.Context, fn func(schedules vesting.Repository, cust custody.Service) error) error
}
