package app_test

import (
	"context"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/app"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/registry"
	harvesttest "github.com/blockberries/harvest/testing"
	"github.com/blockberries/harvest/types"
)

var (
	admin     = types.Address{0xAD}
	treasury  = types.Address{0x7E}
	farmer    = types.Address{0xF1}
	stranger  = types.Address{0x99}
	ownership = types.Hash{0x0E}
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.SetCriteria(types.Criteria{
		MinLandSize:    100,
		AllowedCrops:   []string{"wheat"},
		YieldFloor:     400,
		ValidLocations: []string{"valid"},
	})
	require.NoError(t, reg.Register(farmer, types.FarmData{
		LandSize: 150, CropType: "wheat", Yield: 500, OwnershipHash: ownership, Location: "valid",
	}))
	return reg
}

func newApp(t *testing.T) *app.App {
	t.Helper()
	reg := newRegistry(t)
	a := app.New(ledger.Deps{Identity: reg, Documents: reg, Policy: reg})
	doc, err := app.NewGenesisDoc("harvest-test", types.AppGenesis{
		Admin:    admin,
		Balances: []types.Balance{{Account: treasury, Amount: 1_000_000}},
		Params:   types.Params{Treasury: treasury},
	})
	require.NoError(t, err)
	resp, err := a.Handshake(context.Background(), types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)
	require.NotNil(t, resp.AppHash)
	return a
}

func execute(t *testing.T, a *app.App, height uint64, txs ...types.Tx) types.BlockOutcome {
	t.Helper()
	ctx := context.Background()
	out, err := a.ExecuteBlock(ctx, types.FinalizedBlock{Height: height, Txs: txs})
	require.NoError(t, err)
	_, err = a.Commit(ctx)
	require.NoError(t, err)
	return out
}

func query(t *testing.T, a *app.App, path types.QueryPath, args types.QueryArgs, into any) types.StateQueryResult {
	t.Helper()
	req, err := app.EncodeQuery(path, args)
	require.NoError(t, err)
	res, err := a.Query(context.Background(), req)
	require.NoError(t, err)
	if res.Found() && into != nil {
		require.NoError(t, cramberry.Unmarshal(res.Value, into))
	}
	return res
}

func disburse(t *testing.T, a *app.App) types.BlockOutcome {
	t.Helper()
	return execute(t, a, 1,
		app.CreateSeasonTx(admin, 1, 500_000, 50_000),
		app.SubmitTx(farmer, 1, ownership, 40_000, "north field"),
		app.VerifyTx(farmer, farmer, 1, ownership, false),
		app.InitBudgetTx(admin, 1, 200_000),
		app.UpdateStateTx(admin, farmer, 1, types.StateApproved, 100),
		app.PayoutTx(admin, farmer, 1, 40_000),
	)
}

func TestApp_Compliance(t *testing.T) {
	harvesttest.RunComplianceSuite(t, func() harvest.Lifecycle {
		reg := newRegistry(t)
		return app.New(ledger.Deps{Identity: reg, Documents: reg, Policy: reg})
	})
}

// TestApp_Harness runs the disbursement flow through the lifecycle
// guard using the shared test genesis.
func TestApp_Harness(t *testing.T) {
	reg := newRegistry(t)
	h := harvesttest.NewHarness(t, app.New(ledger.Deps{Identity: reg, Documents: reg, Policy: reg}))
	h.GenesisDefault()
	boss := harvesttest.Admin

	h.MustAcceptTx(app.CreateSeasonTx(boss, 1, 500_000, 50_000))
	h.MustRejectTx(types.Tx{0x00})

	harvesttest.MustSucceed(t, h.Next(
		app.CreateSeasonTx(boss, 1, 500_000, 50_000),
		app.InitBudgetTx(boss, 1, 100_000),
		app.SubmitTx(farmer, 1, ownership, 30_000, ""),
	))
	out := h.Next(
		app.PayoutTx(boss, farmer, 1, 30_000),
		app.UpdateStateTx(boss, farmer, 1, types.StateApproved, 90),
		app.PayoutTx(boss, farmer, 1, 30_000),
	)
	harvesttest.MustFailWith(t, out, 0, harvest.InvalidState)
	harvesttest.MustFailWith(t, out, 2, harvest.KindNone)

	var bal types.Balance
	require.True(t, h.QueryInto(types.PathBalance, types.QueryArgs{Applicant: harvesttest.Treasury}, &bal))
	assert.Equal(t, harvesttest.TreasuryFunds-30_000, bal.Amount)
}

func TestApp_Capabilities(t *testing.T) {
	a := newApp(t)
	resp, err := a.Handshake(context.Background(), types.HandshakeRequest{LastCommitted: &types.BlockID{}})
	require.NoError(t, err)
	assert.True(t, resp.Capabilities.Has(types.CapStateSync))
	assert.True(t, resp.Capabilities.Has(types.CapSimulation))
	require.NotNil(t, resp.LastBlock)
	assert.Equal(t, uint64(0), resp.LastBlock.Height)
}

func TestApp_Disbursement(t *testing.T) {
	a := newApp(t)
	out := disburse(t, a)

	require.Len(t, out.TxOutcomes, 6)
	for i, o := range out.TxOutcomes {
		assert.Truef(t, o.OK(), "tx %d: code %d %s", i, o.Code, o.Info)
		assert.Equal(t, uint32(i), o.Index)
		assert.NotEmpty(t, o.Events, "tx %d emitted no events", i)
	}
	season, ok := app.DecodeID(out.TxOutcomes[0].Data)
	require.True(t, ok)
	assert.Equal(t, uint64(1), season)

	var rec types.PayoutRecord
	require.NoError(t, cramberry.Unmarshal(out.TxOutcomes[5].Data, &rec))
	assert.Equal(t, uint64(40_000), rec.Amount)
	assert.NotEmpty(t, rec.TransferRef)

	require.Len(t, out.BlockEvents, 1)
	assert.Equal(t, types.EventHeight, out.BlockEvents[0].Kind)

	var got types.Application
	res := query(t, a, types.PathApplication, types.QueryArgs{Applicant: farmer, SeasonID: 1}, &got)
	require.True(t, res.Found())
	assert.Equal(t, types.StatePaid, got.State)
	assert.Equal(t, uint64(1), res.Height)

	var bal types.Balance
	query(t, a, types.PathBalance, types.QueryArgs{Applicant: farmer}, &bal)
	assert.Equal(t, uint64(40_000), bal.Amount)

	var b types.SeasonBudget
	query(t, a, types.PathBudget, types.QueryArgs{SeasonID: 1}, &b)
	assert.Equal(t, uint64(160_000), b.Remaining)
}

func TestApp_FailedTxReportsKind(t *testing.T) {
	a := newApp(t)
	out := execute(t, a, 1,
		app.CreateSeasonTx(stranger, 1, 500_000, 50_000),
		app.SubmitTx(farmer, 7, ownership, 40_000, ""),
		types.Tx{0xFF, 0x00},
	)
	require.Len(t, out.TxOutcomes, 3)
	assert.Equal(t, harvest.NotAuthorized.Code(), out.TxOutcomes[0].Code)
	assert.Equal(t, harvest.InvalidSeason.Code(), out.TxOutcomes[1].Code)
	assert.Equal(t, harvest.InvalidTx.Code(), out.TxOutcomes[2].Code)
	for _, o := range out.TxOutcomes {
		assert.Empty(t, o.Events)
		assert.NotEmpty(t, o.Info)
	}

	res := query(t, a, types.PathCurrentSeason, types.QueryArgs{}, nil)
	assert.Equal(t, harvest.InvalidSeason.Code(), res.Code)
}

func TestApp_CheckTx(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	v, err := a.CheckTx(ctx, types.Tx("garbage"), types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, harvest.InvalidTx.Code(), v.Code)

	v, err = a.CheckTx(ctx, app.CreateSeasonTx(admin, 1, 10, 10), types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.True(t, v.Accepted())
	assert.Equal(t, app.PriorityAdmin, v.Priority)
	assert.Equal(t, admin, v.Sender)

	v, err = a.CheckTx(ctx, app.SubmitTx(farmer, 1, ownership, 10, ""), types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, app.PriorityApplicant, v.Priority)
}

func TestApp_HaltsOnHeightRegression(t *testing.T) {
	a := newApp(t)
	execute(t, a, 1)
	execute(t, a, 2)

	_, err := a.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 2})
	he, ok := harvest.IsHalt(err)
	require.True(t, ok, "expected halt, got %v", err)
	assert.Equal(t, uint64(2), he.Height)
}

func TestApp_UncommittedBlockIsInvisible(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	_, err := a.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{
		app.CreateSeasonTx(admin, 1, 500_000, 50_000),
	}})
	require.NoError(t, err)

	res := query(t, a, types.PathSeason, types.QueryArgs{SeasonID: 1}, nil)
	assert.False(t, res.Found())

	_, err = a.Commit(ctx)
	require.NoError(t, err)
	res = query(t, a, types.PathSeason, types.QueryArgs{SeasonID: 1}, nil)
	assert.True(t, res.Found())
}

func TestApp_Simulate(t *testing.T) {
	a := newApp(t)
	execute(t, a, 1, app.CreateSeasonTx(admin, 1, 500_000, 50_000))

	out, err := a.Simulate(context.Background(), app.SubmitTx(farmer, 1, ownership, 40_000, ""))
	require.NoError(t, err)
	assert.True(t, out.OK(), out.Info)
	assert.NotEmpty(t, out.Events)

	res := query(t, a, types.PathApplication, types.QueryArgs{Applicant: farmer, SeasonID: 1}, nil)
	assert.False(t, res.Found(), "simulation leaked into committed state")

	out, err = a.Simulate(context.Background(), app.SubmitTx(farmer, 1, ownership, 60_000, ""))
	require.NoError(t, err)
	assert.Equal(t, harvest.InvalidAmount.Code(), out.Code)
}

func TestApp_Deterministic(t *testing.T) {
	a1, a2 := newApp(t), newApp(t)
	o1 := disburse(t, a1)
	o2 := disburse(t, a2)
	assert.Equal(t, o1.AppHash, o2.AppHash)

	o1 = execute(t, a1, 2, app.ClawbackTx(admin, farmer, 1))
	o2 = execute(t, a2, 2, app.ClawbackTx(admin, farmer, 1))
	assert.Equal(t, o1.AppHash, o2.AppHash)
}

func TestApp_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newApp(t)
	out := disburse(t, src)

	descs, err := src.AvailableSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, uint64(1), descs[0].Height)
	assert.Equal(t, out.AppHash, descs[0].AppHash)

	chunks, desc, err := src.ExportSnapshot(ctx, 1, types.SnapshotFormat)
	require.NoError(t, err)

	reg := newRegistry(t)
	dst := app.New(ledger.Deps{Identity: reg, Documents: reg, Policy: reg})
	res, err := dst.ImportSnapshot(ctx, *desc, chunks)
	require.NoError(t, err)
	require.Equal(t, types.ImportOK, res.Status, res.Reason)
	assert.Equal(t, out.AppHash, *res.AppHash)

	var got types.PayoutRecord
	r := query(t, dst, types.PathPayout, types.QueryArgs{Applicant: farmer, SeasonID: 1}, &got)
	require.True(t, r.Found())
	assert.Equal(t, uint64(40_000), got.Amount)

	// Both replicas keep agreeing after the restore.
	o1 := execute(t, src, 2, app.FundTreasuryTx(farmer, 1_000))
	o2 := execute(t, dst, 2, app.FundTreasuryTx(farmer, 1_000))
	assert.Equal(t, o1.AppHash, o2.AppHash)
}

func TestApp_SnapshotImportRejects(t *testing.T) {
	ctx := context.Background()
	src := newApp(t)
	disburse(t, src)
	_, desc, err := src.ExportSnapshot(ctx, 1, types.SnapshotFormat)
	require.NoError(t, err)

	empty := make(chan types.SnapshotChunk)
	close(empty)
	res, err := app.New(ledger.Deps{}).ImportSnapshot(ctx, *desc, empty)
	require.NoError(t, err)
	assert.Equal(t, types.ImportRetryChunks, res.Status)
	assert.Len(t, res.RetryIndices, int(desc.Chunks))

	bad := *desc
	bad.Hash = types.Hash{0x01}
	chunks, _, err := src.ExportSnapshot(ctx, 1, types.SnapshotFormat)
	require.NoError(t, err)
	res, err = app.New(ledger.Deps{}).ImportSnapshot(ctx, bad, chunks)
	require.NoError(t, err)
	assert.Equal(t, types.ImportReject, res.Status)

	forged := *desc
	forged.AppHash = types.AppHash{0x02}
	chunks, _, err = src.ExportSnapshot(ctx, 1, types.SnapshotFormat)
	require.NoError(t, err)
	res, err = app.New(ledger.Deps{}).ImportSnapshot(ctx, forged, chunks)
	require.NoError(t, err)
	assert.Equal(t, types.ImportReject, res.Status)
	assert.Contains(t, res.Reason, "app hash")

	_, _, err = src.ExportSnapshot(ctx, 9, types.SnapshotFormat)
	assert.Error(t, err)
}

func TestApp_QueryPaths(t *testing.T) {
	a := newApp(t)
	disburse(t, a)

	var check types.PayoutCheck
	query(t, a, types.PathCanPayout, types.QueryArgs{Applicant: farmer, SeasonID: 1, Amount: 1}, &check)
	assert.False(t, check.Allowed, "already paid")

	var flags types.Flags
	query(t, a, types.PathAdmin, types.QueryArgs{}, &flags)
	assert.Equal(t, admin, flags.Admin)

	var params types.Params
	query(t, a, types.PathParams, types.QueryArgs{}, &params)
	assert.Equal(t, treasury, params.Treasury)
	assert.Equal(t, ledger.DefaultParams().ExpiryWindow, params.ExpiryWindow)

	var res types.VerificationResult
	query(t, a, types.PathVerification, types.QueryArgs{Applicant: farmer, ApplicationID: 1}, &res)
	assert.True(t, res.IsEligible)

	r := query(t, a, types.PathBatch, types.QueryArgs{BatchID: 3}, nil)
	assert.Equal(t, harvest.InvalidParameter.Code(), r.Code)

	r = query(t, a, "/nope", types.QueryArgs{}, nil)
	assert.False(t, r.Found())
}

type opRecorder struct {
	ops    []string
	scores []uint8
}

func (r *opRecorder) RecordOperation(_ context.Context, op string, kind harvest.Kind) {
	r.ops = append(r.ops, op+"/"+kind.String())
}
func (r *opRecorder) RecordPayout(context.Context, uint64) {}
func (r *opRecorder) RecordScore(_ context.Context, score uint8) {
	r.scores = append(r.scores, score)
}

func TestApp_MetricsOnlyForCommittedBlocks(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)
	rec := &opRecorder{}
	a := app.New(ledger.Deps{Identity: reg, Documents: reg, Policy: reg, Metrics: rec})
	doc, err := app.NewGenesisDoc("harvest-test", types.AppGenesis{
		Admin:  admin,
		Params: types.Params{Treasury: treasury},
	})
	require.NoError(t, err)
	_, err = a.Handshake(ctx, types.HandshakeRequest{Genesis: &doc})
	require.NoError(t, err)

	// Executed, then replaced before commit.
	_, err = a.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{
		app.CreateSeasonTx(admin, 1, 500_000, 50_000),
		app.SubmitTx(farmer, 1, ownership, 40_000, ""),
		app.VerifyTx(farmer, farmer, 1, ownership, false),
	}})
	require.NoError(t, err)
	assert.Empty(t, rec.ops)
	assert.Empty(t, rec.scores)

	_, err = a.ExecuteBlock(ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{
		app.CreateSeasonTx(admin, 1, 500_000, 50_000),
		app.CloseSeasonTx(stranger, 1),
	}})
	require.NoError(t, err)
	assert.Empty(t, rec.ops)

	_, err = a.Commit(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"create_season/ok", "close_season/not_authorized"}, rec.ops)
	assert.Empty(t, rec.scores)

	// Simulation never records.
	_, err = a.Simulate(ctx, app.SubmitTx(farmer, 1, ownership, 40_000, ""))
	require.NoError(t, err)
	assert.Len(t, rec.ops, 2)
}
