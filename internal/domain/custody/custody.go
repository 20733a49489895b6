package custody

import (
	"context"
	"errors"
	"math/big"

	"vesting_treasury_bot/internal/domain/vesting"
)

// NativeAsset is the distinguished identifier for the native currency, as
// opposed to arbitrary fungible-asset identifiers.
const NativeAsset vesting.Asset = "NATIVE"

var (
	// ErrTransferFailed is returned when a custody movement could not be
	// completed. The caller must abort its operation with no state change.
	ErrTransferFailed = errors.New("custody transfer failed")

	// ErrFeeOnTransferAsset is returned when the asset deducts a fee on
	// transfer. Such assets are rejected outright; the vesting accounting
	// never compensates for fee-on-transfer effects.
	ErrFeeOnTransferAsset = errors.New("fee-on-transfer assets are not supported")
)

// Service defines the custody collaborator the vesting core relies on for
// moving funds. It never sees schedule state; it only receives amounts and
// addresses. This interface decouples the accounting from the concrete
// ledger or chain behind it.
type Service interface {
	// TransferIn moves amount of asset from the given account into custody.
	TransferIn(ctx context.Context, asset vesting.Asset, from vesting.Address, amount *big.Int) error

	// TransferOut moves amount of asset out of custody to the given account.
	TransferOut(ctx context.Context, asset vesting.Asset, to vesting.Address, amount *big.Int) error
}
