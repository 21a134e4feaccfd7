package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWalletStartsEmptyAndActive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("WAT", 3600))
	w := New("w-1", "owner-1", now)

	assert.Equal(t, "0.00", w.Balance.String())
	assert.True(t, w.Active())
	assert.Equal(t, int64(1), w.Version)
	assert.Equal(t, time.UTC, w.CreatedAt.Location())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusSuspended.Valid())
	assert.False(t, Status("closed").Valid())

	w := Wallet{Status: StatusInactive}
	assert.False(t, w.Active())
}
