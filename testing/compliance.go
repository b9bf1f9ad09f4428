package harvesttest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/server"
	"github.com/blockberries/harvest/types"
)

// junkTxs are payloads no well-formed application should accept.
var junkTxs = []types.Tx{
	{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
	{0x02, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
	{0x03, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
}

// RunComplianceSuite runs the lifecycle compliance suite against an
// application. The factory must return a fresh instance per call; each
// instance is started with DefaultGenesis.
func RunComplianceSuite(t *testing.T, factory func() harvest.Lifecycle) {
	t.Helper()

	started := func(t *testing.T) *Harness {
		h := NewHarness(t, factory())
		h.GenesisDefault()
		return h
	}

	t.Run("genesis_handshake", func(t *testing.T) {
		resp := NewHarness(t, factory()).GenesisDefault()
		if resp.LastBlock != nil {
			t.Error("genesis handshake should return nil LastBlock")
		}
		if resp.AppHash == nil {
			t.Error("genesis handshake should return a non-nil AppHash")
		}
	})

	t.Run("execute_commit_cycle", func(t *testing.T) {
		h := started(t)
		for i := uint64(1); i <= 5; i++ {
			outcome := h.ExecuteAndCommit(MakeEmptyBlock(i))
			if outcome.AppHash == (types.AppHash{}) {
				t.Errorf("height %d: zero app hash", i)
			}
		}
	})

	t.Run("height_must_advance", func(t *testing.T) {
		h := started(t)
		h.ExecuteAndCommit(MakeEmptyBlock(1))
		h.ExecuteAndCommit(MakeEmptyBlock(2))
		_, err := h.Server().ExecuteBlock(context.Background(), MakeEmptyBlock(2))
		if !errors.Is(err, server.ErrHeightRegression) {
			t.Fatalf("replayed height: expected ErrHeightRegression, got %v", err)
		}
		h.ExecuteAndCommit(MakeEmptyBlock(3))
	})

	t.Run("empty_blocks_deterministic", func(t *testing.T) {
		h1, h2 := started(t), started(t)
		for i := uint64(1); i <= 3; i++ {
			o1 := h1.ExecuteAndCommit(MakeEmptyBlock(i))
			o2 := h2.ExecuteAndCommit(MakeEmptyBlock(i))
			if o1.AppHash != o2.AppHash {
				t.Errorf("height %d: non-deterministic: %x != %x", i, o1.AppHash, o2.AppHash)
			}
		}
	})

	t.Run("deterministic_with_txs", func(t *testing.T) {
		h1, h2 := started(t), started(t)
		block := MakeBlock(1, junkTxs...)
		o1 := h1.ExecuteAndCommit(block)
		o2 := h2.ExecuteAndCommit(block)
		if o1.AppHash != o2.AppHash {
			t.Errorf("non-deterministic with txs: %x != %x", o1.AppHash, o2.AppHash)
		}
		if len(o1.TxOutcomes) != len(o2.TxOutcomes) {
			t.Fatalf("outcome count mismatch: %d != %d", len(o1.TxOutcomes), len(o2.TxOutcomes))
		}
		for i := range o1.TxOutcomes {
			if o1.TxOutcomes[i].Code != o2.TxOutcomes[i].Code {
				t.Errorf("tx %d: code %d != %d", i, o1.TxOutcomes[i].Code, o2.TxOutcomes[i].Code)
			}
		}
	})

	t.Run("failed_txs_emit_nothing", func(t *testing.T) {
		h := started(t)
		outcome := h.ExecuteAndCommit(MakeBlock(1, junkTxs...))
		for _, o := range outcome.TxOutcomes {
			if !o.OK() && len(o.Events) > 0 {
				t.Errorf("tx %d failed with code %d but emitted %d events", o.Index, o.Code, len(o.Events))
			}
		}
	})

	t.Run("concurrent_checktx_after_handshake", func(t *testing.T) {
		h := started(t)
		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Server().CheckTx(context.Background(), junkTxs[i%len(junkTxs)], types.MempoolFirstSeen)
				if err != nil {
					t.Errorf("concurrent CheckTx failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("concurrent_query_after_handshake", func(t *testing.T) {
		h := started(t)
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Server().Query(context.Background(), types.StateQuery{Path: types.PathParams})
				if err != nil {
					t.Errorf("concurrent Query failed: %v", err)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("query_returns_height", func(t *testing.T) {
		h := started(t)
		h.ExecuteAndCommit(MakeEmptyBlock(1))
		h.ExecuteAndCommit(MakeEmptyBlock(2))
		if result := h.Query(types.PathParams, nil); result.Height != 2 {
			t.Errorf("query height = %d after committing 2 blocks", result.Height)
		}
	})

	t.Run("tx_outcome_indices", func(t *testing.T) {
		h := started(t)
		outcome := h.ExecuteAndCommit(MakeBlock(1, junkTxs...))
		if len(outcome.TxOutcomes) != len(junkTxs) {
			t.Fatalf("expected %d tx outcomes, got %d", len(junkTxs), len(outcome.TxOutcomes))
		}
		for i, o := range outcome.TxOutcomes {
			if o.Index != uint32(i) {
				t.Errorf("tx %d: expected index %d, got %d", i, i, o.Index)
			}
		}
	})
}
