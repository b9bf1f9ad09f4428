// Package app is the harvest block application. It decodes
// transaction envelopes, dispatches them to the ledger in block order,
// and serves queries, snapshots and simulations over committed state.
//
// Transactions are cramberry-encoded types.Msg envelopes; see the
// builders in tx.go.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/types"
)

// Compile-time interface checks.
var (
	_ harvest.Lifecycle   = (*App)(nil)
	_ harvest.StateSync   = (*App)(nil)
	_ harvest.Simulator   = (*App)(nil)
	_ harvest.Application = (*App)(nil)
)

// Priorities assigned by CheckTx.
const (
	PriorityAdmin     int64 = 10
	PriorityApplicant int64 = 1
)

// ErrNotInitialized is returned by calls that need ledger state before
// Handshake has produced any.
var ErrNotInitialized = errors.New("app: ledger not initialized")

// NewGenesisDoc wraps g in a genesis document starting at height 1.
func NewGenesisDoc(chainID string, g types.AppGenesis) (types.GenesisDoc, error) {
	state, err := json.Marshal(g)
	if err != nil {
		return types.GenesisDoc{}, fmt.Errorf("app: encode genesis: %w", err)
	}
	return types.GenesisDoc{ChainID: chainID, InitialHeight: 1, AppState: state}, nil
}

// App hosts one Ledger behind the harvest.Application interface.
type App struct {
	mu      sync.RWMutex
	deps    ledger.Deps
	log     *zap.Logger
	current *ledger.Ledger
	staged  *ledger.Ledger
}

// New creates an application whose ledger will use deps. The ledger
// itself is created by Handshake or ImportSnapshot.
func New(deps ledger.Deps) *App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &App{deps: deps, log: deps.Logger.Named("app")}
}

// Ledger returns the committed ledger, or nil before initialization.
func (app *App) Ledger() *ledger.Ledger {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.current
}

func (app *App) committed() (*ledger.Ledger, error) {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.current == nil {
		return nil, ErrNotInitialized
	}
	return app.current, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

const capabilities = types.CapStateSync | types.CapSimulation

func (app *App) Handshake(_ context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if req.LastCommitted == nil && app.current == nil {
		if req.Genesis == nil {
			return types.HandshakeResponse{}, errors.New("app: genesis handshake without genesis document")
		}
		var g types.AppGenesis
		if err := json.Unmarshal(req.Genesis.AppState, &g); err != nil {
			return types.HandshakeResponse{}, fmt.Errorf("app: parse genesis app state: %w", err)
		}
		height := uint64(0)
		if req.Genesis.InitialHeight > 0 {
			height = req.Genesis.InitialHeight - 1
		}
		st, err := ledger.NewState(g, height)
		if err != nil {
			return types.HandshakeResponse{}, fmt.Errorf("app: %w", err)
		}
		app.current = ledger.New(st, app.deps)
		app.log.Info("initialized from genesis",
			zap.String("chain_id", req.Genesis.ChainID),
			zap.Stringer("admin", g.Admin),
			zap.Uint64("height", height))
	}

	resp := types.HandshakeResponse{Capabilities: capabilities}
	if app.current == nil {
		// Restarted without state: the engine has to state-sync us.
		return resp, nil
	}
	h, err := app.current.AppHash()
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	resp.AppHash = &h
	if req.LastCommitted != nil {
		resp.LastBlock = &types.BlockID{Height: app.current.Height()}
	}
	return resp, nil
}

func (app *App) CheckTx(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	m, err := DecodeTx(tx)
	if err != nil {
		return types.GateVerdict{Code: harvest.InvalidTx.Code(), Info: err.Error()}, nil
	}
	priority := PriorityApplicant
	if m.IsAdmin() {
		priority = PriorityAdmin
	}
	return types.GateVerdict{Priority: priority, Sender: m.Sender}, nil
}

func (app *App) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	base, err := app.committed()
	if err != nil {
		return types.BlockOutcome{}, err
	}
	if block.Height <= base.Height() {
		return types.BlockOutcome{}, harvest.NewHaltError(block.Height,
			fmt.Sprintf("block height does not advance past %d", base.Height()))
	}

	var collected []types.Event
	fork := base.Staged(harvest.EventSinkFunc(func(ev types.Event) { collected = append(collected, ev) }))
	if err := fork.AdvanceTo(block.Height); err != nil {
		return types.BlockOutcome{}, harvest.NewHaltError(block.Height, err.Error())
	}

	outcomes := make([]types.TxOutcome, len(block.Txs))
	failed := 0
	for i, tx := range block.Txs {
		collected = nil
		outcomes[i] = deliver(ctx, fork, uint32(i), tx)
		outcomes[i].Events = collected
		if !outcomes[i].OK() {
			failed++
		}
	}
	if err := fork.Invariants(); err != nil {
		return types.BlockOutcome{}, harvest.NewHaltError(block.Height, err.Error())
	}
	h, err := fork.AppHash()
	if err != nil {
		return types.BlockOutcome{}, err
	}

	app.mu.Lock()
	app.staged = fork
	app.mu.Unlock()

	app.log.Debug("executed block",
		zap.Uint64("height", block.Height),
		zap.Int("txs", len(block.Txs)),
		zap.Int("failed", failed))

	return types.BlockOutcome{
		TxOutcomes: outcomes,
		BlockEvents: []types.Event{{Kind: types.EventHeight, Attributes: []types.EventAttribute{
			types.Attr("height", fmt.Sprint(block.Height)),
		}}},
		AppHash: h,
	}, nil
}

func (app *App) Commit(ctx context.Context) (types.CommitResult, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.staged == nil {
		return types.CommitResult{}, errors.New("app: commit without executed block")
	}
	app.staged.Settle(ctx)
	app.current = app.staged
	app.staged = nil
	return types.CommitResult{}, nil
}

// ---------------------------------------------------------------------------
// Simulator
// ---------------------------------------------------------------------------

func (app *App) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	base, err := app.committed()
	if err != nil {
		return types.TxOutcome{}, err
	}
	var collected []types.Event
	dry := base.Dry(harvest.EventSinkFunc(func(ev types.Event) { collected = append(collected, ev) }))
	outcome := deliver(ctx, dry, 0, tx)
	outcome.Events = collected
	return outcome, nil
}
