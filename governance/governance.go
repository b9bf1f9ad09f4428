// Package governance holds the ledger's administrative state: the
// administrator identity, the verification and payout pause flags and
// the advisory per-governor parameters.
package governance

import (
	"context"
	"slices"
	"strconv"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// MaxMinScore bounds GovernanceParams.MinScore.
const MaxMinScore = 100

// Store is the governance state.
type Store struct {
	flags  types.Flags
	params map[types.Address]types.GovernanceParams
}

// NewStore returns a store administered by admin with both pause flags
// cleared.
func NewStore(admin types.Address) *Store {
	return &Store{
		flags:  types.Flags{Admin: admin},
		params: make(map[types.Address]types.GovernanceParams),
	}
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	c := &Store{flags: s.flags, params: make(map[types.Address]types.GovernanceParams, len(s.params))}
	for k, v := range s.params {
		c.params[k] = v
	}
	return c
}

// Export is the deterministic form of a Store.
type Export struct {
	Flags  types.Flags              `cramberry:"1"`
	Params []types.GovernanceParams `cramberry:"2"`
}

// Export returns the store's contents with params sorted by governor.
func (s *Store) Export() Export {
	out := Export{Flags: s.flags, Params: make([]types.GovernanceParams, 0, len(s.params))}
	for _, p := range s.params {
		out.Params = append(out.Params, p)
	}
	slices.SortFunc(out.Params, func(a, b types.GovernanceParams) int {
		return a.Governor.Compare(b.Governor)
	})
	return out
}

// Import rebuilds a Store from its export.
func Import(e Export) *Store {
	s := NewStore(e.Flags.Admin)
	s.flags = e.Flags
	for _, p := range e.Params {
		s.params[p.Governor] = p
	}
	return s
}

// Governance applies administrative operations to a Store.
type Governance struct {
	store  *Store
	clock  harvest.Clock
	events harvest.EventSink
}

// New returns a Governance over store.
func New(store *Store, clock harvest.Clock, events harvest.EventSink) *Governance {
	return &Governance{store: store, clock: clock, events: events}
}

// Admin returns the current administrator.
func (g *Governance) Admin() types.Address { return g.store.flags.Admin }

// Flags returns the administrator and pause flags.
func (g *Governance) Flags() types.Flags { return g.store.flags }

// RequireAdmin returns NotAuthorized unless caller is the administrator.
func (g *Governance) RequireAdmin(caller types.Address, op string) error {
	if caller != g.store.flags.Admin {
		return harvest.Errorf(harvest.NotAuthorized, op, "%s is not the administrator", caller)
	}
	return nil
}

// VerificationPaused reports the verification pause flag.
func (g *Governance) VerificationPaused() bool { return g.store.flags.VerificationPaused }

// PayoutPaused reports the payout pause flag.
func (g *Governance) PayoutPaused() bool { return g.store.flags.PayoutPaused }

// TransferAdmin hands the administrator role to next.
func (g *Governance) TransferAdmin(_ context.Context, caller, next types.Address) error {
	const op = "governance.transfer_admin"
	if err := g.RequireAdmin(caller, op); err != nil {
		return err
	}
	if next.IsZero() {
		return harvest.Errorf(harvest.InvalidParameter, op, "new administrator is the zero address")
	}
	g.store.flags.Admin = next
	g.events.Emit(types.Event{Kind: types.EventAdminTransferred, Attributes: []types.EventAttribute{
		types.Attr("from", caller.String()),
		types.Attr("to", next.String()),
	}})
	return nil
}

// SetPause sets one of the two pause flags.
func (g *Governance) SetPause(_ context.Context, caller types.Address, target types.PauseTarget, paused bool) error {
	const op = "governance.set_pause"
	if err := g.RequireAdmin(caller, op); err != nil {
		return err
	}
	var name string
	switch target {
	case types.PauseVerification:
		g.store.flags.VerificationPaused = paused
		name = "verification"
	case types.PausePayout:
		g.store.flags.PayoutPaused = paused
		name = "payout"
	default:
		return harvest.Errorf(harvest.InvalidParameter, op, "unknown pause target %d", target)
	}
	g.events.Emit(types.Event{Kind: types.EventPauseChanged, Attributes: []types.EventAttribute{
		types.Attr("target", name),
		types.Attr("paused", strconv.FormatBool(paused)),
	}})
	return nil
}

// SetParams records advisory parameters for a governor.
func (g *Governance) SetParams(_ context.Context, caller types.Address, p types.GovernanceParams) error {
	const op = "governance.set_params"
	if err := g.RequireAdmin(caller, op); err != nil {
		return err
	}
	if p.Governor.IsZero() {
		return harvest.Errorf(harvest.InvalidParameter, op, "governor is the zero address")
	}
	if p.MinScore > MaxMinScore {
		return harvest.Errorf(harvest.InvalidParameter, op, "min score %d exceeds %d", p.MinScore, MaxMinScore)
	}
	p.LastUpdate = g.clock.Height()
	g.store.params[p.Governor] = p
	g.events.Emit(types.Event{Kind: types.EventGovernanceParams, Attributes: []types.EventAttribute{
		types.Attr("governor", p.Governor.String()),
		types.Attr("min_score", strconv.Itoa(int(p.MinScore))),
		types.Attr("paused", strconv.FormatBool(p.Paused)),
	}})
	return nil
}

// Params returns the advisory parameters recorded for governor.
func (g *Governance) Params(governor types.Address) (types.GovernanceParams, bool) {
	p, ok := g.store.params[governor]
	return p, ok
}
