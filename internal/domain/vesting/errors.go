package vesting

import "errors"

// Sentinel errors surfaced by validation, the registry and the withdrawal
// flow. Callers match with errors.Is; call sites wrap them with the violated
// bound or the offending key.
var (
	ErrInvalidScheduleParameters    = errors.New("invalid schedule parameters")
	ErrInvalidBeneficiaryAllocation = errors.New("invalid beneficiary allocation")
	ErrScheduleAlreadyExists        = errors.New("vesting schedule already exists")
	ErrScheduleNotFound             = errors.New("vesting schedule not found")
	ErrInvalidWithdrawalRequest     = errors.New("invalid withdrawal request")
	ErrNothingToClaim               = errors.New("nothing to claim")
)
