package local

import (
	"context"
	"sync"
	"testing"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest/app"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/types"
)

var (
	admin    = types.Address{0xAD}
	treasury = types.Address{0x7E}
	donor    = types.Address{0xD0}
)

func handshake(t *testing.T, conn *Connection) {
	t.Helper()
	doc, err := app.NewGenesisDoc("test", types.AppGenesis{
		Admin:    admin,
		Balances: []types.Balance{{Account: donor, Amount: 500}},
		Params:   types.Params{Treasury: treasury},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Handshake(context.Background(), types.HandshakeRequest{Genesis: &doc}); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
}

func TestLocalConnection_FullCycle(t *testing.T) {
	conn := NewLedgerConnection(ledger.Deps{})
	defer conn.Close()
	handshake(t, conn)

	if !conn.Capabilities().Has(types.CapStateSync | types.CapSimulation) {
		t.Errorf("unexpected capabilities %s", conn.Capabilities())
	}
	if conn.AsStateSync() == nil || conn.AsSimulator() == nil {
		t.Fatal("expected declared capabilities to be reachable")
	}

	outcome, err := conn.ExecuteBlock(context.Background(), types.FinalizedBlock{
		Height: 1,
		Txs:    []types.Tx{app.FundTreasuryTx(donor, 200)},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !outcome.TxOutcomes[0].OK() {
		t.Fatalf("tx failed: %s", outcome.TxOutcomes[0].Info)
	}
	if _, err := conn.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	req, err := app.EncodeQuery(types.PathBalance, types.QueryArgs{Applicant: treasury})
	if err != nil {
		t.Fatal(err)
	}
	result, err := conn.Query(context.Background(), req)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var bal types.Balance
	if err := cramberry.Unmarshal(result.Value, &bal); err != nil {
		t.Fatal(err)
	}
	if bal.Amount != 200 {
		t.Errorf("expected treasury balance 200, got %d", bal.Amount)
	}
}

func TestLocalConnection_CheckTxConcurrent(t *testing.T) {
	conn := NewLedgerConnection(ledger.Deps{})
	handshake(t, conn)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := conn.CheckTx(context.Background(), app.FundTreasuryTx(donor, 1), types.MempoolFirstSeen)
			if err != nil {
				t.Errorf("CheckTx error: %v", err)
				return
			}
			if !v.Accepted() {
				t.Errorf("CheckTx rejected: %s", v.Info)
			}
		}()
	}
	wg.Wait()
}
