package ledger_test

import (
	"context"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/registry"
	"github.com/blockberries/harvest/types"
)

var (
	admin     = types.Address{0xAD}
	treasury  = types.Address{0x7E}
	f1        = types.Address{0xF1}
	f2        = types.Address{0xF2}
	ownership = types.Hash{0x0E}
)

type fixture struct {
	ledger *ledger.Ledger
	reg    *registry.Registry
	events []types.Event
}

func newFixture(t *testing.T, mutate func(*types.AppGenesis)) *fixture {
	t.Helper()
	reg := registry.New()
	reg.SetCriteria(types.Criteria{
		MinLandSize:    100,
		AllowedCrops:   []string{"wheat"},
		YieldFloor:     400,
		ValidLocations: []string{"valid"},
	})
	farm := types.FarmData{LandSize: 150, CropType: "wheat", Yield: 500, OwnershipHash: ownership, Location: "valid"}
	require.NoError(t, reg.Register(f1, farm))
	require.NoError(t, reg.Register(f2, farm))

	g := types.AppGenesis{
		Admin:    admin,
		Balances: []types.Balance{{Account: treasury, Amount: 10_000_000}},
		Params:   types.Params{Treasury: treasury},
	}
	if mutate != nil {
		mutate(&g)
	}
	st, err := ledger.NewState(g, 1000)
	require.NoError(t, err)

	f := &fixture{reg: reg}
	f.ledger = ledger.New(st, ledger.Deps{
		Identity:  reg,
		Documents: reg,
		Policy:    reg,
		Events:    harvest.EventSinkFunc(func(ev types.Event) { f.events = append(f.events, ev) }),
	})
	return f
}

// TestScenarios walks the reference flow: season, submission,
// verification, budget, payout and the two rejected payouts.
func TestScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	l := f.ledger

	// A
	season, err := l.CreateSeason(ctx, admin, 1000, 1_000_000, 50_000)
	require.NoError(t, err)
	require.Equal(t, types.SeasonID(1), season)
	appID, err := l.Submit(ctx, f1, 1, ownership, 40_000, "")
	require.NoError(t, err)
	assert.Equal(t, types.ApplicationID(1), appID)
	app, _ := l.Application(f1, 1)
	assert.Equal(t, types.StateSubmitted, app.State)

	// B
	res, err := l.Verify(ctx, f1, 1, ownership, false)
	require.NoError(t, err)
	assert.Equal(t, uint8(100), res.Score)
	assert.True(t, res.IsEligible)
	assert.Empty(t, res.Reasons.List())

	// C
	require.NoError(t, l.InitializeBudget(ctx, admin, 1, 500_000))
	require.NoError(t, l.UpdateState(ctx, admin, f1, 1, types.StateApproved, res.Score))
	rec, err := l.ExecutePayout(ctx, admin, f1, 1, 40_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(40_000), rec.Amount)
	b, _ := l.Budget(1)
	assert.Equal(t, uint64(460_000), b.Remaining)

	// D
	_, err = l.ExecutePayout(ctx, admin, f1, 1, 40_000)
	assert.True(t, harvest.IsKind(err, harvest.AlreadyPaid))
	b, _ = l.Budget(1)
	assert.Equal(t, uint64(460_000), b.Remaining)

	// E
	_, err = l.CreateSeason(ctx, admin, 1000, 1_000_000, 50_000)
	require.NoError(t, err)
	_, err = l.Submit(ctx, f1, 2, ownership, 40_000, "")
	require.NoError(t, err)
	require.NoError(t, l.UpdateState(ctx, admin, f1, 2, types.StateApproved, 100))
	require.NoError(t, l.InitializeBudget(ctx, admin, 2, 30_000))
	_, err = l.ExecutePayout(ctx, admin, f1, 2, 40_000)
	assert.True(t, harvest.IsKind(err, harvest.InsufficientBudget))
	_, ok := l.Payout(f1, 2)
	assert.False(t, ok)

	require.NoError(t, l.Invariants())
	assert.Equal(t, uint64(40_000), l.Balance(f1))
	assert.Equal(t, uint64(10_000_000-40_000), l.Balance(treasury))
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.ledger.CreateSeason(ctx, f1, 1000, 10, 10)
	assert.True(t, harvest.IsKind(err, harvest.NotAuthorized))
	assert.Empty(t, f.events)

	_, err = f.ledger.CreateSeason(ctx, admin, 1000, 10, 10)
	require.NoError(t, err)
	require.Len(t, f.events, 1)
	assert.Equal(t, types.EventSeasonCreated, f.events[0].Kind)
}

func TestVerifyOnSubmitIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(g *types.AppGenesis) { g.Params.VerifyOnSubmit = true })
	l := f.ledger
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)

	_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)
	res, ok := l.Verification(f1, 1)
	require.True(t, ok)
	assert.Equal(t, uint8(100), res.Score)

	// f2 loses its documents; the embedded verification fails and the
	// submission leaves no trace.
	before, err := l.AppHash()
	require.NoError(t, err)
	broken := ledger.New(l.State(), ledger.Deps{Identity: f.reg, Documents: registry.New(), Policy: f.reg})
	_, err = broken.Submit(ctx, f2, 1, ownership, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.VerificationFailed), "got %v", err)
	after, err := broken.AppHash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	season, _ := broken.Season(1)
	assert.Equal(t, uint64(1), season.ApplicationCount)
}

func TestReverifyAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	l := f.ledger
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)
	first, err := l.Verify(ctx, f1, 1, ownership, false)
	require.NoError(t, err)
	want, _ := cramberry.Marshal(first)

	require.NoError(t, l.AdvanceTo(1143))
	_, err = l.Verify(ctx, f1, 1, ownership, true)
	assert.True(t, harvest.IsKind(err, harvest.AlreadyVerified))
	cached, _ := l.Verification(f1, 1)
	got, _ := cramberry.Marshal(cached)
	assert.Equal(t, want, got)
	_, ok := l.Oracle(1)
	assert.False(t, ok, "rejected verification allocates no oracle request")

	require.NoError(t, l.AdvanceTo(1144))
	res, err := l.Verify(ctx, f1, 1, ownership, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1144), res.CheckedAt)
	assert.Equal(t, types.RequestID(1), res.RequestID)

	assert.Error(t, l.AdvanceTo(1000))
	assert.Equal(t, uint64(1144), l.Height())
}

// Application ids restart in every season; a claim in the next season
// gets its own verification even while the previous one is fresh.
func TestVerificationIsPerSeason(t *testing.T) {
	ctx := context.Background()

	t.Run("on_submit", func(t *testing.T) {
		f := newFixture(t, func(g *types.AppGenesis) { g.Params.VerifyOnSubmit = true })
		l := f.ledger
		_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
		require.NoError(t, err)
		_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
		require.NoError(t, err)

		_, err = l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
		require.NoError(t, err)
		id, err := l.Submit(ctx, f1, 2, types.Hash{0x99}, 10, "")
		require.NoError(t, err)
		assert.Equal(t, types.ApplicationID(1), id)

		res, ok := l.Verification(f1, 1)
		require.True(t, ok)
		assert.Equal(t, types.SeasonID(2), res.SeasonID)
		assert.Equal(t, uint8(80), res.Score)
		require.NoError(t, l.Invariants())
	})

	t.Run("explicit", func(t *testing.T) {
		f := newFixture(t, nil)
		l := f.ledger
		_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
		require.NoError(t, err)
		_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
		require.NoError(t, err)
		first, err := l.Verify(ctx, f1, 1, ownership, false)
		require.NoError(t, err)
		assert.True(t, first.IsEligible)

		_, err = l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
		require.NoError(t, err)
		_, err = l.Submit(ctx, f1, 2, types.Hash{0x99}, 10, "")
		require.NoError(t, err)
		_, ok := l.Verification(f1, 1)
		assert.False(t, ok, "season 1 result must not answer for season 2")

		res, err := l.Verify(ctx, f1, 1, types.Hash{0x99}, false)
		require.NoError(t, err)
		assert.Equal(t, types.SeasonID(2), res.SeasonID)
		assert.Equal(t, []types.ReasonCode{types.ReasonOwnershipMismatch}, res.Reasons.List())
		checks, ok := l.Checks(f1, 1)
		require.True(t, ok)
		assert.Equal(t, types.SeasonID(2), checks.SeasonID)
	})
}

func TestDefaultGenesisLeavesVerificationToVerify(t *testing.T) {
	assert.False(t, ledger.DefaultParams().VerifyOnSubmit)

	ctx := context.Background()
	l := newFixture(t, nil).ledger
	assert.False(t, l.Params().VerifyOnSubmit)
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)
	_, ok := l.Verification(f1, 1)
	assert.False(t, ok, "submission alone records no verification")
	_, err = l.Verify(ctx, f1, 1, ownership, false)
	require.NoError(t, err)
}

func TestClawbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := newFixture(t, nil).ledger
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	_, err = l.Submit(ctx, f1, 1, ownership, 40_000, "")
	require.NoError(t, err)
	require.NoError(t, l.UpdateState(ctx, admin, f1, 1, types.StateApproved, 90))
	require.NoError(t, l.InitializeBudget(ctx, admin, 1, 100_000))

	first, err := l.ExecutePayout(ctx, admin, f1, 1, 40_000)
	require.NoError(t, err)
	require.NoError(t, l.Clawback(ctx, admin, f1, 1))
	b, _ := l.Budget(1)
	assert.Equal(t, uint64(100_000), b.Remaining)
	assert.True(t, l.CanPayout(f1, 1, 40_000))
	require.NoError(t, l.Invariants())

	second, err := l.ExecutePayout(ctx, admin, f1, 1, 40_000)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, harvest.IsKind(l.Clawback(ctx, admin, f2, 1), harvest.InvalidState))
}

func TestPauseFlags(t *testing.T) {
	ctx := context.Background()
	l := newFixture(t, nil).ledger
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)

	require.NoError(t, l.SetPause(ctx, admin, types.PauseVerification, true))
	_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
	assert.True(t, harvest.IsKind(err, harvest.Paused))
	require.NoError(t, l.SetPause(ctx, admin, types.PauseVerification, false))
	_, err = l.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)
	require.NoError(t, l.UpdateState(ctx, admin, f1, 1, types.StateApproved, 90))
	require.NoError(t, l.InitializeBudget(ctx, admin, 1, 100))

	require.NoError(t, l.SetPause(ctx, admin, types.PausePayout, true))
	_, err = l.BatchPayout(ctx, admin, []types.BatchEntry{{Applicant: f1, SeasonID: 1, Amount: 10}})
	assert.True(t, harvest.IsKind(err, harvest.Paused))
	assert.True(t, l.Flags().PayoutPaused)

	// Administrative transitions are not gated.
	require.NoError(t, l.UpdateState(ctx, admin, f1, 1, types.StateRejected, 10))
}

func TestFundTreasuryAndGovernance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(g *types.AppGenesis) {
		g.Balances = append(g.Balances, types.Balance{Account: f2, Amount: 50})
	})
	l := f.ledger

	require.NoError(t, l.FundTreasury(ctx, f2, 50))
	assert.Equal(t, uint64(10_000_050), l.Balance(treasury))
	assert.True(t, harvest.IsKind(l.FundTreasury(ctx, f2, 1), harvest.TransferFailed))
	assert.True(t, harvest.IsKind(l.FundTreasury(ctx, f2, 0), harvest.InvalidAmount))

	require.NoError(t, l.SetGovernanceParams(ctx, admin, types.GovernanceParams{Governor: f1, MinScore: 80}))
	p, ok := l.GovernanceParams(f1)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), p.LastUpdate)

	require.NoError(t, l.TransferAdmin(ctx, admin, f1))
	assert.True(t, harvest.IsKind(l.TransferAdmin(ctx, admin, f2), harvest.NotAuthorized))
	assert.Equal(t, f1, l.Flags().Admin)
}

func TestForkIsolationAndStateEncoding(t *testing.T) {
	ctx := context.Background()
	l := newFixture(t, nil).ledger
	_, err := l.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	base, err := l.AppHash()
	require.NoError(t, err)

	fork := l.Fork(nil)
	require.NoError(t, fork.AdvanceTo(1001))
	_, err = fork.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)

	unchanged, err := l.AppHash()
	require.NoError(t, err)
	assert.Equal(t, base, unchanged)
	forked, err := fork.AppHash()
	require.NoError(t, err)
	assert.NotEqual(t, base, forked)

	data, err := fork.State().Encode()
	require.NoError(t, err)
	decoded, err := ledger.DecodeState(data)
	require.NoError(t, err)
	h, err := decoded.AppHash()
	require.NoError(t, err)
	assert.Equal(t, forked, h)
}

func TestNewStateValidation(t *testing.T) {
	_, err := ledger.NewState(types.AppGenesis{Params: types.Params{Treasury: treasury}}, 1)
	assert.Error(t, err)
	_, err = ledger.NewState(types.AppGenesis{Admin: admin}, 1)
	assert.Error(t, err)

	st, err := ledger.NewState(types.AppGenesis{Admin: admin, Params: types.Params{Treasury: treasury}}, 1)
	require.NoError(t, err)
	def := ledger.DefaultParams()
	assert.Equal(t, def.ExpiryWindow, st.Params.ExpiryWindow)
	assert.Equal(t, def.DeadlineOffset, st.Params.DeadlineOffset)
	assert.Equal(t, def.MaxBatchSize, st.Params.MaxBatchSize)
}

type countingRecorder struct {
	ops     map[string]int
	payouts []uint64
	scores  []uint8
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{ops: make(map[string]int)}
}

func (r *countingRecorder) RecordOperation(_ context.Context, op string, kind harvest.Kind) {
	r.ops[op+"/"+kind.String()]++
}

func (r *countingRecorder) RecordPayout(_ context.Context, amount uint64) {
	r.payouts = append(r.payouts, amount)
}

func (r *countingRecorder) RecordScore(_ context.Context, score uint8) {
	r.scores = append(r.scores, score)
}

func TestStagedForkHoldsMetricsUntilSettled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	rec := newCountingRecorder()
	l := ledger.New(f.ledger.State(), ledger.Deps{Identity: f.reg, Documents: f.reg, Policy: f.reg, Metrics: rec})

	dropped := l.Staged(nil)
	_, err := dropped.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	assert.Empty(t, rec.ops, "a staged fork that is never settled records nothing")

	staged := l.Staged(nil)
	_, err = staged.CreateSeason(ctx, admin, 1000, 100_000, 50_000)
	require.NoError(t, err)
	_, err = staged.Submit(ctx, f1, 1, ownership, 10, "")
	require.NoError(t, err)
	_, err = staged.Verify(ctx, f1, 1, ownership, false)
	require.NoError(t, err)
	_, err = staged.Verify(ctx, f1, 1, ownership, false)
	require.Error(t, err)
	assert.Empty(t, rec.ops)

	staged.Settle(ctx)
	assert.Equal(t, 1, rec.ops["create_season/ok"])
	assert.Equal(t, 1, rec.ops["verify/ok"])
	assert.Equal(t, 1, rec.ops["verify/already_verified"])
	assert.Equal(t, []uint8{100}, rec.scores)

	// Settled ledgers record directly, and their next block is held
	// back again.
	require.NoError(t, staged.FundTreasury(ctx, treasury, 1))
	assert.Equal(t, 1, rec.ops["fund_treasury/ok"])
	next := staged.Staged(nil)
	require.NoError(t, next.FundTreasury(ctx, treasury, 1))
	assert.Equal(t, 1, rec.ops["fund_treasury/ok"])
}
