package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"vesting_treasury_bot/internal/domain/custody"
	"vesting_treasury_bot/internal/domain/vesting"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// ledger can run either standalone or bound to a caller's transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresLedger is a custody.Service backed by the 'balances' table. Every
// schedule's locked principal sits on the treasury account; beneficiary and
// creator accounts hold whatever has been paid out or refunded.
type PostgresLedger struct {
	db       dbtx
	treasury vesting.Address
}

func NewPostgresLedger(db *sql.DB, treasury vesting.Address) *PostgresLedger {
	return &PostgresLedger{db: db, treasury: treasury}
}

// NewTxLedger binds the ledger to an open transaction. Transfers then commit
// or roll back together with the caller's other writes.
func NewTxLedger(tx *sql.Tx, treasury vesting.Address) *PostgresLedger {
	return &PostgresLedger{db: tx, treasury: treasury}
}

// TransferIn moves amount from the funding account into the treasury.
// Fee-on-transfer assets are refused up front: the amount credited would not
// match the amount debited, so schedule accounting could never balance.
func (l *PostgresLedger) TransferIn(ctx context.Context, asset vesting.Asset, from vesting.Address, amount *big.Int) error {
	feeOnTransfer, err := l.isFeeOnTransfer(ctx, asset)
	if err != nil {
		return err
	}
	if feeOnTransfer {
		return fmt.Errorf("%w: %s", custody.ErrFeeOnTransferAsset, asset)
	}
	return l.move(ctx, asset, from, l.treasury, amount)
}

// TransferOut pays amount from the treasury to the beneficiary.
func (l *PostgresLedger) TransferOut(ctx context.Context, asset vesting.Asset, to vesting.Address, amount *big.Int) error {
	return l.move(ctx, asset, l.treasury, to, amount)
}

// Deposit credits an account directly, outside any schedule. Used by the
// /fund command to seed creator balances.
func (l *PostgresLedger) Deposit(ctx context.Context, asset vesting.Asset, account vesting.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", custody.ErrTransferFailed)
	}
	return credit(ctx, l.db, asset, account, amount)
}

// Balance reports the current ledger balance of an account.
func (l *PostgresLedger) Balance(ctx context.Context, asset vesting.Asset, account vesting.Address) (*big.Int, error) {
	var value string
	err := l.db.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE asset = $1 AND account = $2`,
		asset, account,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading balance: %w", err)
	}
	balance, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q in database", value)
	}
	return balance, nil
}

// move debits 'from' and credits 'to'. Standalone it opens its own
// transaction; transaction-bound it joins the caller's, so a failed debit or
// credit rolls back everything the caller has done so far.
func (l *PostgresLedger) move(ctx context.Context, asset vesting.Asset, from, to vesting.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: transfer amount must be positive", custody.ErrTransferFailed)
	}

	if db, ok := l.db.(*sql.DB); ok {
		txn, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transfer transaction: %w", err)
		}
		defer txn.Rollback() // Rollback if not committed

		if err := transfer(ctx, txn, asset, from, to, amount); err != nil {
			return err
		}
		return txn.Commit()
	}
	return transfer(ctx, l.db, asset, from, to, amount)
}

func transfer(ctx context.Context, q dbtx, asset vesting.Asset, from, to vesting.Address, amount *big.Int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE balances SET amount = amount - $3, updated_at = NOW()
         WHERE asset = $1 AND account = $2 AND amount >= $3`,
		asset, from, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("error debiting %s: %w", from, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking debit result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: insufficient %s balance on %s", custody.ErrTransferFailed, asset, from)
	}
	return credit(ctx, q, asset, to, amount)
}

func credit(ctx context.Context, q dbtx, asset vesting.Asset, account vesting.Address, amount *big.Int) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO balances (asset, account, amount) VALUES ($1, $2, $3)
         ON CONFLICT (asset, account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`,
		asset, account, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("error crediting %s: %w", account, err)
	}
	return nil
}

// isFeeOnTransfer consults the assets table. The native asset never charges
// a transfer fee; unknown assets default to plain transfers.
func (l *PostgresLedger) isFeeOnTransfer(ctx context.Context, asset vesting.Asset) (bool, error) {
	if asset == custody.NativeAsset {
		return false, nil
	}
	var feeOnTransfer bool
	err := l.db.QueryRowContext(ctx,
		`SELECT fee_on_transfer FROM assets WHERE asset = $1`,
		asset,
	).Scan(&feeOnTransfer)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking asset transfer semantics: %w", err)
	}
	return feeOnTransfer, nil
}
