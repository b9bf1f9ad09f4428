package lifecycle_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/lifecycle"
	"github.com/blockberries/harvest/types"
)

var (
	admin = types.Address{0xAD}
	f1    = types.Address{0xF1}
	f2    = types.Address{0xF2}
)

type authority struct{ paused bool }

func (a *authority) RequireAdmin(caller types.Address, op string) error {
	if caller != admin {
		return harvest.E(harvest.NotAuthorized, op)
	}
	return nil
}

func (a *authority) VerificationPaused() bool { return a.paused }

type directory map[types.Address]bool

func (d directory) IsRegistered(_ context.Context, who types.Address) (bool, error) {
	return d[who], nil
}

type fixture struct {
	lc       *lifecycle.Lifecycle
	store    *lifecycle.Store
	auth     *authority
	height   uint64
	verifier lifecycle.VerifierFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: lifecycle.NewStore(), auth: &authority{}, height: 1000}
	f.lc = lifecycle.New(f.store, lifecycle.Deps{
		Auth:     f.auth,
		Identity: directory{f1: true, f2: true},
		Verifier: lifecycle.VerifierFunc(func(ctx context.Context, app types.Application) error {
			if f.verifier != nil {
				return f.verifier(ctx, app)
			}
			return nil
		}),
		Clock:  harvest.ClockFunc(func() uint64 { return f.height }),
		Events: harvest.EventSinkFunc(func(types.Event) {}),
	})
	id, err := f.lc.CreateSeason(context.Background(), admin, 1000, 1_000_000, 50_000)
	require.NoError(t, err)
	require.Equal(t, types.SeasonID(1), id)
	return f
}

func TestSubmit_ScenarioA(t *testing.T) {
	f := newFixture(t)
	id, err := f.lc.Submit(context.Background(), f1, 1, types.Hash{0x0E}, 40_000, "north field")
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationID(1), id)

	app, ok := f.lc.Application(f1, 1)
	require.True(t, ok)
	assert.Equal(t, types.StateSubmitted, app.State)
	assert.Equal(t, uint64(40_000), app.RequestedAmount)
	assert.Equal(t, uint64(1000), app.SubmittedAt)

	season, _ := f.lc.Season(1)
	assert.Equal(t, uint64(1), season.ApplicationCount)

	id, err = f.lc.Submit(context.Background(), f2, 1, types.Hash{}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationID(2), id)
}

func TestSubmit_DeadlineBoundary(t *testing.T) {
	f := newFixture(t)
	f.height = 1000 + lifecycle.DefaultDeadlineOffset
	_, err := f.lc.Submit(context.Background(), f1, 1, types.Hash{}, 10, "")
	require.NoError(t, err)

	f.height++
	_, err = f.lc.Submit(context.Background(), f2, 1, types.Hash{}, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.SeasonClosed), "got %v", err)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.lc.Submit(ctx, f1, 1, types.Hash{}, 10, "")
	require.NoError(t, err)

	tests := []struct {
		name      string
		applicant types.Address
		season    types.SeasonID
		amount    uint64
		notes     string
		kind      harvest.Kind
	}{
		{"duplicate", f1, 1, 10, "", harvest.AlreadySubmitted},
		{"unknown season", f2, 9, 10, "", harvest.InvalidSeason},
		{"zero amount", f2, 1, 0, "", harvest.InvalidAmount},
		{"over cap", f2, 1, 50_001, "", harvest.InvalidAmount},
		{"long notes", f2, 1, 10, strings.Repeat("x", lifecycle.MaxNotesLength+1), harvest.InvalidParameter},
		{"unregistered", types.Address{0x77}, 1, 10, "", harvest.NotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lc.Submit(ctx, tt.applicant, tt.season, types.Hash{}, tt.amount, tt.notes)
			assert.True(t, harvest.IsKind(err, tt.kind), "got %v", err)
		})
	}
	season, _ := f.lc.Season(1)
	assert.Equal(t, uint64(1), season.ApplicationCount)
}

func TestSubmit_PausedAndClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.auth.paused = true
	_, err := f.lc.Submit(ctx, f1, 1, types.Hash{}, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.Paused))
	f.auth.paused = false

	require.NoError(t, f.lc.CloseSeason(ctx, admin, 1))
	_, err = f.lc.Submit(ctx, f1, 1, types.Hash{}, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.SeasonClosed))
	assert.True(t, harvest.IsKind(f.lc.CloseSeason(ctx, admin, 1), harvest.SeasonClosed))
	assert.True(t, harvest.IsKind(f.lc.CloseSeason(ctx, f1, 1), harvest.NotAuthorized))
}

func TestSubmit_VerifierFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	var seen types.Application
	f.verifier = func(_ context.Context, app types.Application) error {
		seen = app
		return errors.New("document store offline")
	}
	before := f.store.Export()

	_, err := f.lc.Submit(context.Background(), f1, 1, types.Hash{1}, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.VerificationFailed), "got %v", err)
	assert.Equal(t, types.ApplicationID(1), seen.ApplicationID)
	assert.Equal(t, before, f.store.Export())
}

func TestUpdateState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.lc.Submit(ctx, f1, 1, types.Hash{}, 10, "")
	require.NoError(t, err)

	assert.True(t, harvest.IsKind(f.lc.UpdateState(ctx, f1, f1, 1, types.StateApproved, 90), harvest.NotAuthorized))
	assert.True(t, harvest.IsKind(f.lc.UpdateState(ctx, admin, f2, 1, types.StateApproved, 90), harvest.NoApplication))
	assert.True(t, harvest.IsKind(f.lc.UpdateState(ctx, admin, f1, 1, types.StateApproved, 101), harvest.InvalidParameter))
	assert.True(t, harvest.IsKind(f.lc.UpdateState(ctx, admin, f1, 1, types.StatePaid, 90), harvest.InvalidState))

	f.height = 1010
	require.NoError(t, f.lc.UpdateState(ctx, admin, f1, 1, types.StateApproved, 90))
	app, _ := f.lc.Application(f1, 1)
	assert.Equal(t, types.StateApproved, app.State)
	assert.Equal(t, uint8(90), app.VerifierScore)
	assert.Equal(t, uint64(1010), app.VerifiedAt)

	require.NoError(t, f.lc.MarkPaid(f1, 1))
	assert.True(t, harvest.IsKind(f.lc.UpdateState(ctx, admin, f1, 1, types.StateRejected, 0), harvest.InvalidState))
	assert.True(t, harvest.IsKind(f.lc.ClearApplication(ctx, admin, f1, 1), harvest.InvalidState))
	assert.True(t, harvest.IsKind(f.lc.MarkPaid(f1, 1), harvest.InvalidState))

	require.NoError(t, f.lc.MarkApproved(f1, 1))
	require.NoError(t, f.lc.ClearApplication(ctx, admin, f1, 1))
	_, ok := f.lc.Application(f1, 1)
	assert.False(t, ok)
}

func TestApplicationByIDPrefersCurrentSeason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.lc.Submit(ctx, f1, 1, types.Hash{}, 10, "old")
	require.NoError(t, err)

	_, err = f.lc.CreateSeason(ctx, admin, 1000, 100, 100)
	require.NoError(t, err)
	_, err = f.lc.Submit(ctx, f1, 2, types.Hash{}, 20, "new")
	require.NoError(t, err)

	app, ok := f.lc.ApplicationByID(f1, 1)
	require.True(t, ok)
	assert.Equal(t, types.SeasonID(2), app.SeasonID)

	require.NoError(t, f.lc.ClearApplication(ctx, admin, f1, 2))
	app, ok = f.lc.ApplicationByID(f1, 1)
	require.True(t, ok)
	assert.Equal(t, "old", app.Notes)

	current, _ := f.lc.CurrentSeason()
	assert.Equal(t, types.SeasonID(2), current.ID)
	assert.Equal(t, f.store.Export(), lifecycle.Import(f.store.Export()).Export())
}
