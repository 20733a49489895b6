package database

import (
	"context"
	"database/sql"
	"fmt"

	"vesting_treasury_bot/internal/domain/custody"
	"vesting_treasury_bot/internal/domain/vesting"
	"vesting_treasury_bot/internal/infra/ledger"
)

// TxManager runs schedule and ledger writes inside one database transaction.
// The repository view it hands out reads with SELECT ... FOR UPDATE, so a
// withdrawal holds the schedule row lock while it debits the treasury and
// records the new claimed amount, and everything commits or rolls back as one.
type TxManager struct {
	db       *sql.DB
	treasury vesting.Address
}

func NewTxManager(db *sql.DB, treasury vesting.Address) *TxManager {
	return &TxManager{db: db, treasury: treasury}
}

// RunAtomic executes fn with repository and custody views bound to a single
// transaction. If fn returns an error the transaction is rolled back and
// none of its writes survive.
func (m *TxManager) RunAtomic(ctx context.Context, fn func(schedules vesting.Repository, cust custody.Service) error) error {
	txn, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := fn(newTxScheduleRepository(txn), ledger.NewTxLedger(txn, m.treasury)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
