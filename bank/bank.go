// Package bank keeps account balances inside ledger state and moves
// value between them. It is the production Treasury.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

var (
	// ErrInsufficientFunds is returned when the sender's balance is
	// below the transfer amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrZeroAmount is returned for zero-value transfers.
	ErrZeroAmount = errors.New("zero amount")
	// ErrOverflow is returned when a credit would overflow a balance.
	ErrOverflow = errors.New("balance overflow")
)

// Store holds balances by account.
type Store struct {
	balances map[types.Address]uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{balances: make(map[types.Address]uint64)}
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	c := &Store{balances: make(map[types.Address]uint64, len(s.balances))}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

// Export returns non-zero balances sorted by account.
func (s *Store) Export() []types.Balance {
	out := make([]types.Balance, 0, len(s.balances))
	for acct, amt := range s.balances {
		if amt > 0 {
			out = append(out, types.Balance{Account: acct, Amount: amt})
		}
	}
	slices.SortFunc(out, func(a, b types.Balance) int { return a.Account.Compare(b.Account) })
	return out
}

// Import rebuilds a Store from exported balances.
func Import(rows []types.Balance) (*Store, error) {
	s := NewStore()
	for _, r := range rows {
		if err := s.credit(r.Account, r.Amount); err != nil {
			return nil, fmt.Errorf("import balance %s: %w", r.Account, err)
		}
	}
	return s, nil
}

func (s *Store) credit(to types.Address, amount uint64) error {
	if s.balances[to] > math.MaxUint64-amount {
		return ErrOverflow
	}
	s.balances[to] += amount
	return nil
}

// Bank moves value between accounts of a Store.
type Bank struct {
	store  *Store
	events harvest.EventSink
}

var _ harvest.Treasury = (*Bank)(nil)

// New returns a Bank over store.
func New(store *Store, events harvest.EventSink) *Bank {
	return &Bank{store: store, events: events}
}

// Balance returns the balance of acct.
func (b *Bank) Balance(acct types.Address) uint64 {
	return b.store.balances[acct]
}

// Credit mints amount into acct. Only genesis uses it.
func (b *Bank) Credit(acct types.Address, amount uint64) error {
	return b.store.credit(acct, amount)
}

// Transfer moves amount from one account to another. Nothing changes
// on error.
func (b *Bank) Transfer(_ context.Context, from, to types.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	have := b.store.balances[from]
	if have < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, have, amount)
	}
	if from != to && b.store.balances[to] > math.MaxUint64-amount {
		return ErrOverflow
	}
	b.store.balances[from] = have - amount
	b.store.balances[to] += amount
	if b.store.balances[from] == 0 {
		delete(b.store.balances, from)
	}
	b.events.Emit(types.Event{Kind: types.EventTransfer, Attributes: []types.EventAttribute{
		types.Attr("from", from.String()),
		types.Attr("to", to.String()),
		{Key: "amount", Value: strconv.FormatUint(amount, 10)},
	}})
	return nil
}
