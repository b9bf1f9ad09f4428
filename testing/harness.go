package harvesttest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"go.uber.org/zap/zaptest"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/server"
	"github.com/blockberries/harvest/types"
)

// Accounts funded or empowered by DefaultGenesis.
var (
	Admin    = types.Address{0xAD}
	Treasury = types.Address{0x7E}
)

// TreasuryFunds is the genesis balance of Treasury.
const TreasuryFunds uint64 = 10_000_000

// Harness drives an application through the lifecycle guard.
type Harness struct {
	t   *testing.T
	srv *server.Server
}

// NewHarness creates a test harness wrapping the given application.
// Server logs go to the test log.
func NewHarness(t *testing.T, app harvest.Lifecycle) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, server.WithLogger(zaptest.NewLogger(t)))}
}

// Server returns the underlying server for direct access.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Genesis performs a genesis handshake with the given genesis doc.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{Genesis: &genesis})
	if err != nil {
		h.t.Fatalf("Handshake (genesis) failed: %v", err)
	}
	return resp
}

// GenesisDefault performs a genesis handshake with DefaultGenesis.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// Restart performs a restart handshake at the given block.
func (h *Harness) Restart(block types.BlockID) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{LastCommitted: &block})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	return resp
}

// ExecuteBlock executes a block without committing.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(context.Background(), block)
	if err != nil {
		h.t.Fatalf("ExecuteBlock (height=%d) failed: %v", block.Height, err)
	}
	return outcome
}

// Commit commits the last executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(context.Background())
	if err != nil {
		h.t.Fatalf("Commit failed: %v", err)
	}
	return result
}

// ExecuteAndCommit executes a block and commits it.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	return outcome
}

// Next executes and commits a block one above the committed height.
func (h *Harness) Next(txs ...types.Tx) types.BlockOutcome {
	h.t.Helper()
	return h.ExecuteAndCommit(MakeBlock(h.srv.Height()+1, txs...))
}

// CheckTx submits a transaction for mempool gate-checking.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
	if err != nil {
		h.t.Fatalf("CheckTx failed: %v", err)
	}
	return verdict
}

// RecheckTx re-validates a previously admitted transaction.
func (h *Harness) RecheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolRevalidation)
	if err != nil {
		h.t.Fatalf("RecheckTx failed: %v", err)
	}
	return verdict
}

// Query reads application state at the latest height.
func (h *Harness) Query(path types.QueryPath, data []byte) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), types.StateQuery{Path: path, Data: data})
	if err != nil {
		h.t.Fatalf("Query failed: %v", err)
	}
	return result
}

// QueryInto runs a ledger query and decodes a found value into out.
// It reports whether the record was found.
func (h *Harness) QueryInto(path types.QueryPath, args types.QueryArgs, out any) bool {
	h.t.Helper()
	data, err := cramberry.Marshal(args)
	if err != nil {
		h.t.Fatalf("encode query args: %v", err)
	}
	res := h.Query(path, data)
	if !res.Found() {
		return false
	}
	if err := cramberry.Unmarshal(res.Value, out); err != nil {
		h.t.Fatalf("decode %s: %v", path, err)
	}
	return true
}

// MustAcceptTx asserts that a transaction is accepted.
func (h *Harness) MustAcceptTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	if !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got code=%d info=%q", v.Code, v.Info)
	}
}

// MustRejectTx asserts that a transaction is rejected.
func (h *Harness) MustRejectTx(tx types.Tx) {
	h.t.Helper()
	if h.CheckTx(tx).Accepted() {
		h.t.Fatal("expected tx rejected, got accepted")
	}
}

// MustSucceed fails the test unless every transaction in outcome
// succeeded.
func MustSucceed(t testing.TB, outcome types.BlockOutcome) {
	t.Helper()
	for _, o := range outcome.TxOutcomes {
		if !o.OK() {
			t.Fatalf("tx %d failed: %s (%s)", o.Index, harvest.Kind(o.Code), o.Info)
		}
	}
}

// MustFailWith fails the test unless tx index i failed with kind.
func MustFailWith(t testing.TB, outcome types.BlockOutcome, i int, kind harvest.Kind) {
	t.Helper()
	if i >= len(outcome.TxOutcomes) {
		t.Fatalf("no outcome for tx %d", i)
	}
	if got := harvest.Kind(outcome.TxOutcomes[i].Code); got != kind {
		t.Fatalf("tx %d: got %s (%s), want %s", i, got, outcome.TxOutcomes[i].Info, kind)
	}
}

// --- Helper factories ---

// DefaultAppGenesis funds Treasury and makes Admin the administrator.
func DefaultAppGenesis() types.AppGenesis {
	return types.AppGenesis{
		Admin:    Admin,
		Balances: []types.Balance{{Account: Treasury, Amount: TreasuryFunds}},
		Params:   types.Params{Treasury: Treasury},
	}
}

// DefaultGenesis returns a genesis document carrying
// DefaultAppGenesis, starting at height 1.
func DefaultGenesis() types.GenesisDoc {
	return GenesisWith(DefaultAppGenesis())
}

// GenesisWith wraps g in a genesis document starting at height 1.
func GenesisWith(g types.AppGenesis) types.GenesisDoc {
	state, err := json.Marshal(g)
	if err != nil {
		panic(err)
	}
	return types.GenesisDoc{
		ChainID:       "test-chain",
		GenesisTime:   types.TimestampOf(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		InitialHeight: 1,
		AppState:      state,
	}
}

// MakeBlock creates a FinalizedBlock at the given height with the
// provided transactions.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(height) * 5 * time.Second)
	return types.FinalizedBlock{
		Height: height,
		Time:   types.TimestampOf(t),
		Txs:    txs,
	}
}

// MakeEmptyBlock creates an empty FinalizedBlock at the given height.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}
