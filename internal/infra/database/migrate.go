package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on startup. Amount columns are NUMERIC(78,0): wide
// enough for 2^256-scale base units, scanned through strings so no float
// rounding can ever touch an amount.
const schema = `
CREATE TABLE IF NOT EXISTS schedules (
    asset           TEXT NOT NULL,
    creator         TEXT NOT NULL,
    beneficiary     TEXT NOT NULL,
    start_at        BIGINT NOT NULL,
    vesting_seconds BIGINT NOT NULL,
    cycle_seconds   BIGINT NOT NULL,
    cliff_seconds   BIGINT NOT NULL,
    total_amount    NUMERIC(78,0) NOT NULL,
    cliff_amount    NUMERIC(78,0) NOT NULL,
    claimed_amount  NUMERIC(78,0) NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (asset, creator, beneficiary)
);

CREATE TABLE IF NOT EXISTS balances (
    asset   TEXT NOT NULL,
    account TEXT NOT NULL,
    amount  NUMERIC(78,0) NOT NULL DEFAULT 0 CHECK (amount >= 0),
    PRIMARY KEY (asset, account)
);

CREATE TABLE IF NOT EXISTS assets (
    id              TEXT PRIMARY KEY,
    fee_on_transfer BOOLEAN NOT NULL DEFAULT FALSE
);
`

// EnsureSchema creates the tables if they are not present yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply database schema: %w", err)
	}
	return nil
}
