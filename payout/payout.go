// Package payout disburses approved claims from season budgets. It
// executes single payouts, folds batches of them, and reverses them
// with clawbacks.
package payout

import (
	"context"
	"encoding/binary"
	"errors"
	"iter"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// DefaultMaxBatchSize caps the entries of one batch.
const DefaultMaxBatchSize = 10

// transferNamespace scopes the name-based UUIDs used as transfer
// references.
var transferNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("harvest:payout"))

// Authority gates payouts.
type Authority interface {
	RequireAdmin(caller types.Address, op string) error
	PayoutPaused() bool
}

// Applications is the view of the application lifecycle payouts need.
type Applications interface {
	Application(applicant types.Address, seasonID types.SeasonID) (types.Application, bool)
	MarkPaid(applicant types.Address, seasonID types.SeasonID) error
	MarkApproved(applicant types.Address, seasonID types.SeasonID) error
}

// Budget is the view of the budget ledger payouts need.
type Budget interface {
	Budget(id types.SeasonID) (types.SeasonBudget, bool)
	Debit(id types.SeasonID, amount uint64) error
	Credit(id types.SeasonID, amount uint64) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Auth         Authority
	Applications Applications
	Budget       Budget
	Treasury     harvest.Treasury
	// Account the treasury pays from and clawbacks return to.
	TreasuryAccount types.Address
	Clock           harvest.Clock
	Events          harvest.EventSink
	// Zero means DefaultMaxBatchSize.
	MaxBatchSize uint32
}

// Engine applies payout operations to a Store.
type Engine struct {
	store *Store
	deps  Deps
}

// New returns an Engine over store.
func New(store *Store, deps Deps) *Engine {
	if deps.MaxBatchSize == 0 {
		deps.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Engine{store: store, deps: deps}
}

// CanPayout reports whether a payout of amount would pass the record,
// application and budget checks. It ignores authorization and pausing.
func (e *Engine) CanPayout(applicant types.Address, seasonID types.SeasonID, amount uint64) bool {
	if _, paid := e.store.records[recordKey{applicant, seasonID}]; paid {
		return false
	}
	app, ok := e.deps.Applications.Application(applicant, seasonID)
	if !ok || app.State != types.StateApproved {
		return false
	}
	b, ok := e.deps.Budget.Budget(seasonID)
	return ok && b.Remaining >= amount
}

// ExecutePayout pays amount to an approved applicant from the season
// budget.
func (e *Engine) ExecutePayout(ctx context.Context, executor, applicant types.Address, seasonID types.SeasonID, amount uint64) (types.PayoutRecord, error) {
	const op = "payout.execute"
	if err := e.deps.Auth.RequireAdmin(executor, op); err != nil {
		return types.PayoutRecord{}, err
	}
	if e.deps.Auth.PayoutPaused() {
		return types.PayoutRecord{}, harvest.Errorf(harvest.Paused, op, "payouts are paused")
	}
	rec, err := e.execute(ctx, op, types.BatchEntry{Applicant: applicant, SeasonID: seasonID, Amount: amount}, 0)
	if err != nil {
		return types.PayoutRecord{}, err
	}
	e.emitPayout(rec)
	return rec, nil
}

// check validates one payout against current state, in the order
// amount, duplicate, budget, application.
func (e *Engine) check(op string, entry types.BatchEntry) error {
	if entry.Amount == 0 {
		return harvest.Errorf(harvest.InvalidAmount, op, "amount must be positive")
	}
	if _, paid := e.store.records[recordKey{entry.Applicant, entry.SeasonID}]; paid {
		return harvest.Errorf(harvest.AlreadyPaid, op, "%s already paid for season %d", entry.Applicant, entry.SeasonID)
	}
	b, ok := e.deps.Budget.Budget(entry.SeasonID)
	if !ok {
		return harvest.Errorf(harvest.InvalidSeason, op, "season %d has no budget", entry.SeasonID)
	}
	if b.Remaining < entry.Amount {
		return harvest.Errorf(harvest.InsufficientBudget, op, "season %d remaining %d < %d", entry.SeasonID, b.Remaining, entry.Amount)
	}
	app, ok := e.deps.Applications.Application(entry.Applicant, entry.SeasonID)
	if !ok {
		return harvest.Errorf(harvest.NoApplication, op, "no application by %s in season %d", entry.Applicant, entry.SeasonID)
	}
	if app.State != types.StateApproved {
		return harvest.Errorf(harvest.InvalidState, op, "application is %s, want approved", app.State)
	}
	if entry.Amount > app.RequestedAmount {
		return harvest.Errorf(harvest.InvalidAmount, op, "amount %d exceeds requested %d", entry.Amount, app.RequestedAmount)
	}
	return nil
}

// execute checks and applies one payout. On error nothing is changed.
func (e *Engine) execute(ctx context.Context, op string, entry types.BatchEntry, batch types.BatchID) (types.PayoutRecord, error) {
	if err := e.check(op, entry); err != nil {
		return types.PayoutRecord{}, err
	}
	treasury := e.deps.TreasuryAccount
	if err := e.deps.Treasury.Transfer(ctx, treasury, entry.Applicant, entry.Amount); err != nil {
		return types.PayoutRecord{}, harvest.Wrap(harvest.TransferFailed, op, err)
	}
	if err := e.deps.Budget.Debit(entry.SeasonID, entry.Amount); err != nil {
		return types.PayoutRecord{}, e.undoTransfer(ctx, entry, err)
	}
	now := e.deps.Clock.Height()
	rec := types.PayoutRecord{
		Applicant:   entry.Applicant,
		SeasonID:    entry.SeasonID,
		Amount:      entry.Amount,
		PaidAt:      now,
		TransferRef: TransferRef(entry.Applicant, entry.SeasonID, now, batch),
		BatchID:     batch,
	}
	key := recordKey{entry.Applicant, entry.SeasonID}
	e.store.records[key] = rec
	if err := e.deps.Applications.MarkPaid(entry.Applicant, entry.SeasonID); err != nil {
		delete(e.store.records, key)
		if cerr := e.deps.Budget.Credit(entry.SeasonID, entry.Amount); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return types.PayoutRecord{}, e.undoTransfer(ctx, entry, err)
	}
	return rec, nil
}

func (e *Engine) undoTransfer(ctx context.Context, entry types.BatchEntry, cause error) error {
	if err := e.deps.Treasury.Transfer(ctx, entry.Applicant, e.deps.TreasuryAccount, entry.Amount); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// BatchPayout executes entries in order. Each entry succeeds or fails
// on its own; the batch summary is written either way.
func (e *Engine) BatchPayout(ctx context.Context, executor types.Address, entries []types.BatchEntry) (types.BatchResult, error) {
	const op = "payout.batch"
	if err := e.deps.Auth.RequireAdmin(executor, op); err != nil {
		return types.BatchResult{}, err
	}
	if e.deps.Auth.PayoutPaused() {
		return types.BatchResult{}, harvest.Errorf(harvest.Paused, op, "payouts are paused")
	}
	if len(entries) == 0 || len(entries) > int(e.deps.MaxBatchSize) {
		return types.BatchResult{}, harvest.Errorf(harvest.InvalidParameter, op, "batch of %d entries, want 1..%d", len(entries), e.deps.MaxBatchSize)
	}

	id := e.store.lastBatch + 1
	result := types.BatchResult{
		Summary: types.BatchPayout{
			BatchID:    id,
			ExecutedAt: e.deps.Clock.Height(),
			Executor:   executor,
		},
		Outcomes: make([]types.EntryOutcome, 0, len(entries)),
	}
	for _, entry := range entries {
		result = e.fold(ctx, result, entry)
	}
	e.store.lastBatch = id
	e.store.batches[id] = result.Summary

	e.deps.Events.Emit(types.Event{Kind: types.EventBatchPayout, Attributes: []types.EventAttribute{
		types.Attr("batch", strconv.FormatUint(uint64(id), 10)),
		{Key: "total", Value: strconv.FormatUint(result.Summary.TotalAmount, 10)},
		{Key: "succeeded", Value: strconv.FormatUint(uint64(result.Summary.SuccessCount), 10)},
		{Key: "failed", Value: strconv.FormatUint(uint64(result.Summary.FailedCount), 10)},
	}})
	return result, nil
}

// fold applies one entry and accumulates its outcome.
func (e *Engine) fold(ctx context.Context, acc types.BatchResult, entry types.BatchEntry) types.BatchResult {
	rec, err := e.execute(ctx, "payout.batch_entry", entry, acc.Summary.BatchID)
	outcome := types.EntryOutcome{Entry: entry}
	if err != nil {
		outcome.Code = harvest.KindOf(err).Code()
		outcome.Info = err.Error()
		acc.Summary.FailedCount++
	} else {
		acc.Summary.SuccessCount++
		acc.Summary.TotalAmount += rec.Amount
		e.emitPayout(rec)
	}
	acc.Outcomes = append(acc.Outcomes, outcome)
	return acc
}

// Clawback reverses a payout: the applicant returns the funds, the
// budget is credited and the application goes back to Approved.
func (e *Engine) Clawback(ctx context.Context, caller, applicant types.Address, seasonID types.SeasonID) error {
	const op = "payout.clawback"
	if err := e.deps.Auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	key := recordKey{applicant, seasonID}
	rec, ok := e.store.records[key]
	if !ok {
		return harvest.Errorf(harvest.InvalidState, op, "no payout to %s for season %d", applicant, seasonID)
	}
	if app, ok := e.deps.Applications.Application(applicant, seasonID); !ok || app.State != types.StatePaid {
		return harvest.Errorf(harvest.InvalidState, op, "application is not paid")
	}
	if err := e.deps.Treasury.Transfer(ctx, applicant, e.deps.TreasuryAccount, rec.Amount); err != nil {
		return harvest.Wrap(harvest.TransferFailed, op, err)
	}
	entry := types.BatchEntry{Applicant: applicant, SeasonID: seasonID, Amount: rec.Amount}
	if err := e.deps.Budget.Credit(seasonID, rec.Amount); err != nil {
		return e.redoTransfer(ctx, entry, err)
	}
	delete(e.store.records, key)
	if err := e.deps.Applications.MarkApproved(applicant, seasonID); err != nil {
		e.store.records[key] = rec
		if derr := e.deps.Budget.Debit(seasonID, rec.Amount); derr != nil {
			err = errors.Join(err, derr)
		}
		return e.redoTransfer(ctx, entry, err)
	}
	e.deps.Events.Emit(types.Event{Kind: types.EventClawback, Attributes: []types.EventAttribute{
		types.Attr("applicant", applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(seasonID), 10)),
		{Key: "amount", Value: strconv.FormatUint(rec.Amount, 10)},
		types.Attr("transfer_ref", rec.TransferRef),
	}})
	return nil
}

func (e *Engine) redoTransfer(ctx context.Context, entry types.BatchEntry, cause error) error {
	if err := e.deps.Treasury.Transfer(ctx, e.deps.TreasuryAccount, entry.Applicant, entry.Amount); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Engine) emitPayout(rec types.PayoutRecord) {
	e.deps.Events.Emit(types.Event{Kind: types.EventPayout, Attributes: []types.EventAttribute{
		types.Attr("applicant", rec.Applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(rec.SeasonID), 10)),
		{Key: "amount", Value: strconv.FormatUint(rec.Amount, 10)},
		types.Attr("transfer_ref", rec.TransferRef),
		types.Attr("batch", strconv.FormatUint(uint64(rec.BatchID), 10)),
	}})
}

// Record returns the payout record of applicant for a season.
func (e *Engine) Record(applicant types.Address, seasonID types.SeasonID) (types.PayoutRecord, bool) {
	r, ok := e.store.records[recordKey{applicant, seasonID}]
	return r, ok
}

// Batch returns a batch summary by id.
func (e *Engine) Batch(id types.BatchID) (types.BatchPayout, bool) {
	b, ok := e.store.batches[id]
	return b, ok
}

// Records iterates payout records in (applicant, season) order.
func (e *Engine) Records() iter.Seq[types.PayoutRecord] {
	return slices.Values(e.store.Export().Records)
}

// TransferRef derives the deterministic transfer reference of a
// payout.
func TransferRef(applicant types.Address, seasonID types.SeasonID, height uint64, batch types.BatchID) string {
	name := make([]byte, 0, types.AddressLength+24)
	name = append(name, applicant[:]...)
	name = binary.BigEndian.AppendUint64(name, uint64(seasonID))
	name = binary.BigEndian.AppendUint64(name, height)
	name = binary.BigEndian.AppendUint64(name, uint64(batch))
	return uuid.NewSHA1(transferNamespace, name).String()
}
