// Package budget is the per-season budget ledger. It is the only
// writer of allocated, paid and remaining totals.
package budget

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strconv"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// Authority gates administrative budget operations.
type Authority interface {
	RequireAdmin(caller types.Address, op string) error
}

// Store holds season budgets.
type Store struct {
	budgets map[types.SeasonID]types.SeasonBudget
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{budgets: make(map[types.SeasonID]types.SeasonBudget)}
}

// Clone returns a copy of s. Records are values, so a shallow map copy
// is deep.
func (s *Store) Clone() *Store {
	c := &Store{budgets: make(map[types.SeasonID]types.SeasonBudget, len(s.budgets))}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	return c
}

// Export returns every budget sorted by season.
func (s *Store) Export() []types.SeasonBudget {
	out := make([]types.SeasonBudget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b types.SeasonBudget) int {
		return cmp.Compare(a.SeasonID, b.SeasonID)
	})
	return out
}

// Import rebuilds a Store from exported budgets.
func Import(rows []types.SeasonBudget) *Store {
	s := NewStore()
	for _, b := range rows {
		s.budgets[b.SeasonID] = b
	}
	return s
}

// Ledger applies budget operations to a Store.
type Ledger struct {
	store  *Store
	auth   Authority
	events harvest.EventSink
}

// New returns a Ledger over store.
func New(store *Store, auth Authority, events harvest.EventSink) *Ledger {
	return &Ledger{store: store, auth: auth, events: events}
}

// Budget returns the budget of a season.
func (l *Ledger) Budget(id types.SeasonID) (types.SeasonBudget, bool) {
	b, ok := l.store.budgets[id]
	return b, ok
}

// Initialize allocates total to a season that has no budget yet.
func (l *Ledger) Initialize(_ context.Context, caller types.Address, id types.SeasonID, total uint64) error {
	const op = "budget.initialize"
	if err := l.auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	if total == 0 {
		return harvest.Errorf(harvest.InvalidAmount, op, "total must be positive")
	}
	if _, ok := l.store.budgets[id]; ok {
		return harvest.Errorf(harvest.InvalidState, op, "season %d budget already initialized", id)
	}
	l.store.budgets[id] = types.SeasonBudget{SeasonID: id, TotalAllocated: total, Remaining: total}
	l.emit(types.EventBudgetInitialized, id, total)
	return nil
}

// TopUp increases a season's allocation.
func (l *Ledger) TopUp(_ context.Context, caller types.Address, id types.SeasonID, amount uint64) error {
	const op = "budget.top_up"
	if err := l.auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	if amount == 0 {
		return harvest.Errorf(harvest.InvalidAmount, op, "amount must be positive")
	}
	b, ok := l.store.budgets[id]
	if !ok {
		return harvest.Errorf(harvest.InvalidSeason, op, "season %d has no budget", id)
	}
	if b.TotalAllocated > math.MaxUint64-amount {
		return harvest.Errorf(harvest.InvalidAmount, op, "allocation overflow")
	}
	b.TotalAllocated += amount
	b.Remaining += amount
	l.store.budgets[id] = b
	l.emit(types.EventBudgetToppedUp, id, amount)
	return nil
}

// Debit draws amount from a season's remaining funds.
func (l *Ledger) Debit(id types.SeasonID, amount uint64) error {
	const op = "budget.debit"
	b, ok := l.store.budgets[id]
	if !ok {
		return harvest.Errorf(harvest.InvalidSeason, op, "season %d has no budget", id)
	}
	if amount == 0 {
		return harvest.Errorf(harvest.InvalidAmount, op, "amount must be positive")
	}
	if b.Remaining < amount {
		return harvest.Errorf(harvest.InsufficientBudget, op, "season %d remaining %d < %d", id, b.Remaining, amount)
	}
	b.TotalPaid += amount
	b.Remaining = b.TotalAllocated - b.TotalPaid
	l.store.budgets[id] = b
	return nil
}

// Credit returns amount to a season after a clawback.
func (l *Ledger) Credit(id types.SeasonID, amount uint64) error {
	const op = "budget.credit"
	b, ok := l.store.budgets[id]
	if !ok {
		return harvest.Errorf(harvest.InvalidSeason, op, "season %d has no budget", id)
	}
	if amount == 0 || amount > b.TotalPaid {
		return harvest.Errorf(harvest.InvalidAmount, op, "credit %d exceeds paid %d", amount, b.TotalPaid)
	}
	b.TotalPaid -= amount
	b.Remaining = b.TotalAllocated - b.TotalPaid
	l.store.budgets[id] = b
	return nil
}

// Check returns the first budget whose totals disagree, if any.
func (l *Ledger) Check() (types.SeasonBudget, bool) {
	for _, b := range l.store.Export() {
		if !b.Consistent() {
			return b, false
		}
	}
	return types.SeasonBudget{}, true
}

func (l *Ledger) emit(kind string, id types.SeasonID, amount uint64) {
	b := l.store.budgets[id]
	l.events.Emit(types.Event{Kind: kind, Attributes: []types.EventAttribute{
		types.Attr("season", strconv.FormatUint(uint64(id), 10)),
		{Key: "amount", Value: strconv.FormatUint(amount, 10)},
		{Key: "remaining", Value: strconv.FormatUint(b.Remaining, 10)},
	}})
}
