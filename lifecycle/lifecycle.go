// Package lifecycle owns seasons and the per-applicant claim state
// machine: submission inside a season's window, administrative state
// transitions, and the paid/approved transitions driven by payouts.
package lifecycle

import (
	"context"
	"strconv"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

const (
	// DefaultDeadlineOffset is how many heights after its start a
	// season accepts submissions.
	DefaultDeadlineOffset = 4320
	// MaxNotesLength bounds Application.Notes in bytes.
	MaxNotesLength = 256
	// MaxScore bounds Application.VerifierScore.
	MaxScore = 100
)

// Authority gates administrative operations and submissions.
type Authority interface {
	RequireAdmin(caller types.Address, op string) error
	VerificationPaused() bool
}

// Verifier is triggered synchronously for every accepted submission.
// An error aborts the submission.
type Verifier interface {
	OnSubmit(ctx context.Context, app types.Application) error
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, app types.Application) error

// OnSubmit calls f(ctx, app).
func (f VerifierFunc) OnSubmit(ctx context.Context, app types.Application) error { return f(ctx, app) }

// Deps are the collaborators of a Lifecycle.
type Deps struct {
	Auth     Authority
	Identity harvest.IdentityDirectory
	// Nil disables the submission trigger.
	Verifier Verifier
	Clock    harvest.Clock
	Events   harvest.EventSink
	// Zero means DefaultDeadlineOffset.
	DeadlineOffset uint64
}

// Lifecycle applies season and application operations to a Store.
type Lifecycle struct {
	store *Store
	deps  Deps
}

// New returns a Lifecycle over store.
func New(store *Store, deps Deps) *Lifecycle {
	if deps.DeadlineOffset == 0 {
		deps.DeadlineOffset = DefaultDeadlineOffset
	}
	return &Lifecycle{store: store, deps: deps}
}

// CreateSeason opens a new season and makes it current.
func (l *Lifecycle) CreateSeason(_ context.Context, caller types.Address, startHeight, totalBudget, maxPerApplicant uint64) (types.SeasonID, error) {
	const op = "lifecycle.create_season"
	if err := l.deps.Auth.RequireAdmin(caller, op); err != nil {
		return 0, err
	}
	if totalBudget == 0 || maxPerApplicant == 0 {
		return 0, harvest.Errorf(harvest.InvalidAmount, op, "budget and per-applicant cap must be positive")
	}
	if maxPerApplicant > totalBudget {
		return 0, harvest.Errorf(harvest.InvalidAmount, op, "per-applicant cap %d exceeds budget %d", maxPerApplicant, totalBudget)
	}
	id := l.store.currentSeason + 1
	l.store.seasons[id] = types.Season{
		ID:              id,
		StartHeight:     startHeight,
		TotalBudget:     totalBudget,
		MaxPerApplicant: maxPerApplicant,
		IsActive:        true,
	}
	l.store.currentSeason = id
	l.deps.Events.Emit(types.Event{Kind: types.EventSeasonCreated, Attributes: []types.EventAttribute{
		types.Attr("season", strconv.FormatUint(uint64(id), 10)),
		{Key: "start", Value: strconv.FormatUint(startHeight, 10)},
		{Key: "budget", Value: strconv.FormatUint(totalBudget, 10)},
	}})
	return id, nil
}

// CloseSeason stops a season from accepting submissions.
func (l *Lifecycle) CloseSeason(_ context.Context, caller types.Address, id types.SeasonID) error {
	const op = "lifecycle.close_season"
	if err := l.deps.Auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	s, ok := l.store.seasons[id]
	if !ok {
		return harvest.Errorf(harvest.InvalidSeason, op, "season %d does not exist", id)
	}
	if !s.IsActive {
		return harvest.Errorf(harvest.SeasonClosed, op, "season %d already closed", id)
	}
	s.IsActive = false
	l.store.seasons[id] = s
	l.deps.Events.Emit(types.Event{Kind: types.EventSeasonClosed, Attributes: []types.EventAttribute{
		types.Attr("season", strconv.FormatUint(uint64(id), 10)),
	}})
	return nil
}

// Submit files a claim and runs the verification trigger. If the
// trigger fails the claim is not recorded.
func (l *Lifecycle) Submit(ctx context.Context, applicant types.Address, seasonID types.SeasonID, dataHash types.Hash, amount uint64, notes string) (types.ApplicationID, error) {
	const op = "lifecycle.submit"
	if l.deps.Auth.VerificationPaused() {
		return 0, harvest.Errorf(harvest.Paused, op, "verification is paused")
	}
	season, ok := l.store.seasons[seasonID]
	if !ok {
		return 0, harvest.Errorf(harvest.InvalidSeason, op, "season %d does not exist", seasonID)
	}
	now := l.deps.Clock.Height()
	if !season.IsActive {
		return 0, harvest.Errorf(harvest.SeasonClosed, op, "season %d is closed", seasonID)
	}
	if deadline := season.Deadline(l.deps.DeadlineOffset); now > deadline {
		return 0, harvest.Errorf(harvest.SeasonClosed, op, "season %d closed for submissions at %d", seasonID, deadline)
	}
	if amount == 0 || amount > season.MaxPerApplicant {
		return 0, harvest.Errorf(harvest.InvalidAmount, op, "amount %d outside (0, %d]", amount, season.MaxPerApplicant)
	}
	if len(notes) > MaxNotesLength {
		return 0, harvest.Errorf(harvest.InvalidParameter, op, "notes are %d bytes, max %d", len(notes), MaxNotesLength)
	}
	registered, err := l.deps.Identity.IsRegistered(ctx, applicant)
	if err != nil {
		return 0, harvest.Wrap(harvest.NotAuthorized, op, err)
	}
	if !registered {
		return 0, harvest.Errorf(harvest.NotAuthorized, op, "%s is not a registered applicant", applicant)
	}
	key := appKey{applicant, seasonID}
	if _, dup := l.store.apps[key]; dup {
		return 0, harvest.Errorf(harvest.AlreadySubmitted, op, "%s already applied to season %d", applicant, seasonID)
	}

	app := types.Application{
		Applicant:       applicant,
		SeasonID:        seasonID,
		ApplicationID:   types.ApplicationID(season.ApplicationCount + 1),
		DataHash:        dataHash,
		RequestedAmount: amount,
		State:           types.StateSubmitted,
		SubmittedAt:     now,
		Notes:           notes,
	}
	prev := season
	season.ApplicationCount++
	l.store.seasons[seasonID] = season
	l.store.apps[key] = app

	if l.deps.Verifier != nil {
		if err := l.deps.Verifier.OnSubmit(ctx, app); err != nil {
			l.store.seasons[seasonID] = prev
			delete(l.store.apps, key)
			return 0, harvest.Wrap(harvest.VerificationFailed, op, err)
		}
	}
	l.deps.Events.Emit(types.Event{Kind: types.EventSubmitted, Attributes: []types.EventAttribute{
		types.Attr("applicant", applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(seasonID), 10)),
		types.Attr("application", strconv.FormatUint(uint64(app.ApplicationID), 10)),
		{Key: "amount", Value: strconv.FormatUint(amount, 10)},
	}})
	return app.ApplicationID, nil
}

// UpdateState forces an application into a new state. It is the only
// way into Approved and Rejected, and cannot touch Paid.
func (l *Lifecycle) UpdateState(_ context.Context, caller, applicant types.Address, seasonID types.SeasonID, state types.ApplicationState, score uint8) error {
	const op = "lifecycle.update_state"
	if err := l.deps.Auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	key := appKey{applicant, seasonID}
	app, ok := l.store.apps[key]
	if !ok {
		return harvest.Errorf(harvest.NoApplication, op, "no application by %s in season %d", applicant, seasonID)
	}
	if score > MaxScore {
		return harvest.Errorf(harvest.InvalidParameter, op, "score %d exceeds %d", score, MaxScore)
	}
	if !state.Valid() {
		return harvest.Errorf(harvest.InvalidParameter, op, "unknown state %d", state)
	}
	if state == types.StatePaid || app.State == types.StatePaid {
		return harvest.Errorf(harvest.InvalidState, op, "paid state is owned by payouts")
	}
	from := app.State
	app.State = state
	app.VerifierScore = score
	app.VerifiedAt = l.deps.Clock.Height()
	l.store.apps[key] = app
	l.deps.Events.Emit(types.Event{Kind: types.EventStateUpdated, Attributes: []types.EventAttribute{
		types.Attr("applicant", applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(seasonID), 10)),
		{Key: "from", Value: from.String()},
		{Key: "to", Value: state.String()},
		{Key: "score", Value: strconv.Itoa(int(score))},
	}})
	return nil
}

// ClearApplication deletes an unpaid application.
func (l *Lifecycle) ClearApplication(_ context.Context, caller, applicant types.Address, seasonID types.SeasonID) error {
	const op = "lifecycle.clear_application"
	if err := l.deps.Auth.RequireAdmin(caller, op); err != nil {
		return err
	}
	key := appKey{applicant, seasonID}
	app, ok := l.store.apps[key]
	if !ok {
		return harvest.Errorf(harvest.NoApplication, op, "no application by %s in season %d", applicant, seasonID)
	}
	if app.State == types.StatePaid {
		return harvest.Errorf(harvest.InvalidState, op, "application is paid; claw back first")
	}
	delete(l.store.apps, key)
	l.deps.Events.Emit(types.Event{Kind: types.EventCleared, Attributes: []types.EventAttribute{
		types.Attr("applicant", applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(seasonID), 10)),
	}})
	return nil
}

// MarkPaid moves an Approved application to Paid.
func (l *Lifecycle) MarkPaid(applicant types.Address, seasonID types.SeasonID) error {
	return l.transition("lifecycle.mark_paid", applicant, seasonID, types.StateApproved, types.StatePaid)
}

// MarkApproved moves a Paid application back to Approved.
func (l *Lifecycle) MarkApproved(applicant types.Address, seasonID types.SeasonID) error {
	return l.transition("lifecycle.mark_approved", applicant, seasonID, types.StatePaid, types.StateApproved)
}

func (l *Lifecycle) transition(op string, applicant types.Address, seasonID types.SeasonID, from, to types.ApplicationState) error {
	key := appKey{applicant, seasonID}
	app, ok := l.store.apps[key]
	if !ok {
		return harvest.Errorf(harvest.NoApplication, op, "no application by %s in season %d", applicant, seasonID)
	}
	if app.State != from {
		return harvest.Errorf(harvest.InvalidState, op, "application is %s, want %s", app.State, from)
	}
	app.State = to
	l.store.apps[key] = app
	return nil
}

// Season returns a season by id.
func (l *Lifecycle) Season(id types.SeasonID) (types.Season, bool) {
	s, ok := l.store.seasons[id]
	return s, ok
}

// CurrentSeason returns the most recently created season.
func (l *Lifecycle) CurrentSeason() (types.Season, bool) {
	return l.Season(l.store.currentSeason)
}

// Application returns the application of applicant in a season.
func (l *Lifecycle) Application(applicant types.Address, seasonID types.SeasonID) (types.Application, bool) {
	app, ok := l.store.apps[appKey{applicant, seasonID}]
	return app, ok
}

// ApplicationByID finds an application by applicant and per-season id.
// Ids repeat across seasons, so the current season is searched first
// and then older seasons from newest to oldest.
func (l *Lifecycle) ApplicationByID(applicant types.Address, id types.ApplicationID) (types.Application, bool) {
	for s := l.store.currentSeason; s > 0; s-- {
		if app, ok := l.store.apps[appKey{applicant, s}]; ok && app.ApplicationID == id {
			return app, true
		}
	}
	return types.Application{}, false
}
