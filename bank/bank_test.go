package bank_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/bank"
	"github.com/blockberries/harvest/types"
)

var (
	alice = types.Address{0xA1}
	bob   = types.Address{0xB0}
)

func newBank(t *testing.T) (*bank.Bank, *bank.Store) {
	t.Helper()
	store := bank.NewStore()
	b := bank.New(store, harvest.EventSinkFunc(func(types.Event) {}))
	require.NoError(t, b.Credit(alice, 100))
	return b, store
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	b, _ := newBank(t)

	require.NoError(t, b.Transfer(ctx, alice, bob, 40))
	assert.Equal(t, uint64(60), b.Balance(alice))
	assert.Equal(t, uint64(40), b.Balance(bob))
}

func TestTransferFailuresLeaveBalances(t *testing.T) {
	ctx := context.Background()
	b, store := newBank(t)
	before := store.Export()

	assert.ErrorIs(t, b.Transfer(ctx, alice, bob, 0), bank.ErrZeroAmount)
	assert.ErrorIs(t, b.Transfer(ctx, alice, bob, 101), bank.ErrInsufficientFunds)
	assert.ErrorIs(t, b.Transfer(ctx, bob, alice, 1), bank.ErrInsufficientFunds)

	require.NoError(t, b.Credit(bob, math.MaxUint64))
	assert.ErrorIs(t, b.Transfer(ctx, alice, bob, 1), bank.ErrOverflow)

	assert.Equal(t, before[0], store.Export()[0])
}

func TestExportSortedAndDropsEmpty(t *testing.T) {
	ctx := context.Background()
	b, store := newBank(t)
	require.NoError(t, b.Credit(types.Address{0x01}, 5))
	require.NoError(t, b.Transfer(ctx, alice, bob, 100))

	rows := store.Export()
	require.Len(t, rows, 2)
	assert.Equal(t, types.Address{0x01}, rows[0].Account)
	assert.Equal(t, bob, rows[1].Account)

	imported, err := bank.Import(rows)
	require.NoError(t, err)
	assert.Equal(t, rows, imported.Export())
}
