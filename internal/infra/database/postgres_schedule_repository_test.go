package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetScheduleQueryLocking(t *testing.T) {
	// Transaction-bound reads must hold the row lock until commit so two
	// concurrent withdrawals cannot both observe the same claimed amount.
	assert.Contains(t, getScheduleQuery(true), "FOR UPDATE")
	assert.NotContains(t, getScheduleQuery(false), "FOR UPDATE")
}
