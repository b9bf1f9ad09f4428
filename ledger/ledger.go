// Package ledger is the process-wide disbursement ledger. It composes
// the governance, bank, budget, eligibility, lifecycle and payout
// components over one State and makes every public operation atomic:
// the operation runs against a clone, and the clone replaces the
// committed state only if the operation succeeds.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/bank"
	"github.com/blockberries/harvest/budget"
	"github.com/blockberries/harvest/eligibility"
	"github.com/blockberries/harvest/governance"
	"github.com/blockberries/harvest/lifecycle"
	"github.com/blockberries/harvest/payout"
	"github.com/blockberries/harvest/types"
)

// Recorder receives operation metrics.
type Recorder interface {
	RecordOperation(ctx context.Context, op string, kind harvest.Kind)
	RecordPayout(ctx context.Context, amount uint64)
	RecordScore(ctx context.Context, score uint8)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(context.Context, string, harvest.Kind) {}
func (nopRecorder) RecordPayout(context.Context, uint64)                  {}
func (nopRecorder) RecordScore(context.Context, uint8)                    {}

// pendingMetrics buffers the measurements of a staged fork for its
// live Recorder.
type pendingMetrics struct {
	live    Recorder
	ops     []pendingOp
	payouts []uint64
	scores  []uint8
}

type pendingOp struct {
	op   string
	kind harvest.Kind
}

func (p *pendingMetrics) RecordOperation(_ context.Context, op string, kind harvest.Kind) {
	p.ops = append(p.ops, pendingOp{op, kind})
}

func (p *pendingMetrics) RecordPayout(_ context.Context, amount uint64) {
	p.payouts = append(p.payouts, amount)
}

func (p *pendingMetrics) RecordScore(_ context.Context, score uint8) {
	p.scores = append(p.scores, score)
}

func (p *pendingMetrics) flush(ctx context.Context) {
	for _, o := range p.ops {
		p.live.RecordOperation(ctx, o.op, o.kind)
	}
	for _, a := range p.payouts {
		p.live.RecordPayout(ctx, a)
	}
	for _, s := range p.scores {
		p.live.RecordScore(ctx, s)
	}
	p.ops, p.payouts, p.scores = nil, nil, nil
}

// Deps are the external collaborators of a Ledger.
type Deps struct {
	Identity  harvest.IdentityDirectory
	Documents harvest.DocumentStore
	Policy    harvest.PolicyRegistry
	// Receives the events of committed operations. Optional.
	Events  harvest.EventSink
	Logger  *zap.Logger
	Metrics Recorder
}

// Ledger serializes writers over a State.
type Ledger struct {
	mu    sync.RWMutex
	state *State
	deps  Deps
}

// New returns a Ledger over state.
func New(state *State, deps Deps) *Ledger {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Events == nil {
		deps.Events = harvest.EventSinkFunc(func(types.Event) {})
	}
	return &Ledger{state: state, deps: deps}
}

// Fork returns an independent Ledger over a copy of the committed
// state. Committed events of the fork go to events.
func (l *Ledger) Fork(events harvest.EventSink) *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	deps := l.deps
	deps.Events = events
	return New(l.state.Clone(), deps)
}

// Staged returns a fork that holds its metrics back until Settle. A
// staged fork that is dropped records nothing.
func (l *Ledger) Staged(events harvest.EventSink) *Ledger {
	f := l.Fork(events)
	live := f.deps.Metrics
	if p, ok := live.(*pendingMetrics); ok {
		live = p.live
	}
	f.deps.Metrics = &pendingMetrics{live: live}
	return f
}

// Settle records the metrics a staged fork held back and switches it to
// recording directly. It is a no-op on other ledgers.
func (l *Ledger) Settle(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.deps.Metrics.(*pendingMetrics); ok {
		p.flush(ctx)
		l.deps.Metrics = p.live
	}
}

// Dry returns a fork that records no metrics and logs nothing.
func (l *Ledger) Dry(events harvest.EventSink) *Ledger {
	f := l.Fork(events)
	f.deps.Logger = zap.NewNop()
	f.deps.Metrics = nopRecorder{}
	return f
}

// components are the domain components wired over one State.
type components struct {
	params types.Params
	gov    *governance.Governance
	bank   *bank.Bank
	budget *budget.Ledger
	elig   *eligibility.Engine
	life   *lifecycle.Lifecycle
	pay    *payout.Engine
}

func (l *Ledger) wire(st *State, events harvest.EventSink) *components {
	clock := harvest.ClockFunc(func() uint64 { return st.Height })
	c := &components{params: st.Params}
	c.gov = governance.New(st.governance, clock, events)
	c.bank = bank.New(st.bank, events)
	c.budget = budget.New(st.budget, c.gov, events)

	var verifier lifecycle.Verifier
	if st.Params.VerifyOnSubmit {
		verifier = lifecycle.VerifierFunc(func(ctx context.Context, app types.Application) error {
			_, err := c.elig.VerifyApplication(ctx, app, app.DataHash, false)
			return err
		})
	}
	c.life = lifecycle.New(st.lifecycle, lifecycle.Deps{
		Auth:           c.gov,
		Identity:       l.deps.Identity,
		Verifier:       verifier,
		Clock:          clock,
		Events:         events,
		DeadlineOffset: st.Params.DeadlineOffset,
	})
	c.elig = eligibility.New(st.eligibility, eligibility.Deps{
		Applications: c.life,
		Gate:         c.gov,
		Documents:    l.deps.Documents,
		Policy:       l.deps.Policy,
		Clock:        clock,
		Events:       events,
		ExpiryWindow: st.Params.ExpiryWindow,
	})
	c.pay = payout.New(st.payout, payout.Deps{
		Auth:            c.gov,
		Applications:    c.life,
		Budget:          c.budget,
		Treasury:        c.bank,
		TreasuryAccount: st.Params.Treasury,
		Clock:           clock,
		Events:          events,
		MaxBatchSize:    st.Params.MaxBatchSize,
	})
	return c
}

// apply runs fn against a clone of the committed state and commits the
// clone if fn succeeds.
func (l *Ledger) apply(ctx context.Context, op string, fn func(c *components) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.state.Clone()
	var events []types.Event
	c := l.wire(next, harvest.EventSinkFunc(func(ev types.Event) { events = append(events, ev) }))
	if err := fn(c); err != nil {
		kind := harvest.KindOf(err)
		l.deps.Metrics.RecordOperation(ctx, op, kind)
		l.deps.Logger.Info("operation rejected",
			zap.String("op", op),
			zap.Stringer("kind", kind),
			zap.Uint64("height", next.Height),
			zap.Error(err))
		return err
	}
	l.state = next
	l.deps.Metrics.RecordOperation(ctx, op, harvest.KindNone)
	l.deps.Logger.Debug("operation committed",
		zap.String("op", op),
		zap.Uint64("height", next.Height),
		zap.Int("events", len(events)))
	for _, ev := range events {
		l.deps.Events.Emit(ev)
	}
	return nil
}

func (l *Ledger) recorder() Recorder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.deps.Metrics
}

// view runs fn against the committed state under the read lock.
func (l *Ledger) view(fn func(c *components, st *State)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.wire(l.state, harvest.EventSinkFunc(func(types.Event) {})), l.state)
}

// AdvanceTo moves the clock to height. The clock never moves back.
func (l *Ledger) AdvanceTo(height uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if height < l.state.Height {
		return fmt.Errorf("ledger: height %d is behind %d", height, l.state.Height)
	}
	l.state.Height = height
	return nil
}

// Height returns the current clock.
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Height
}

// State returns a copy of the committed state.
func (l *Ledger) State() *State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// AppHash hashes the committed state.
func (l *Ledger) AppHash() (types.AppHash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.AppHash()
}

// Invariants checks that every budget balances and that payout records
// and paid applications correspond one to one.
func (l *Ledger) Invariants() error {
	var err error
	l.view(func(c *components, st *State) {
		if b, ok := c.budget.Check(); !ok {
			err = fmt.Errorf("season %d budget inconsistent: allocated %d paid %d remaining %d",
				b.SeasonID, b.TotalAllocated, b.TotalPaid, b.Remaining)
			return
		}
		paid := 0
		for rec := range c.pay.Records() {
			app, ok := c.life.Application(rec.Applicant, rec.SeasonID)
			if !ok || app.State != types.StatePaid {
				err = fmt.Errorf("payout to %s for season %d has no paid application", rec.Applicant, rec.SeasonID)
				return
			}
			paid++
		}
		for _, app := range st.lifecycle.Export().Applications {
			if app.State == types.StatePaid {
				paid--
			}
		}
		if paid != 0 {
			err = fmt.Errorf("paid applications and payout records differ by %d", -paid)
		}
	})
	return err
}
