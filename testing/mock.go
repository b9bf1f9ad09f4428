// Package harvesttest provides test utilities for harvest nodes: a
// configurable mock application, a harness that drives an application
// through the lifecycle guard, and a lifecycle compliance suite.
package harvesttest

import (
	"context"
	"sync/atomic"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

var _ harvest.Application = (*MockApp)(nil)

// MockApp is a configurable mock application for transport and engine
// tests. Unconfigured methods return zero-value defaults.
//
// MockApp implements every optional interface; DeclaredCapabilities
// controls which ones it advertises at handshake.
type MockApp struct {
	DeclaredCapabilities types.Capabilities

	HandshakeFn          func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error)
	CheckTxFn            func(context.Context, types.Tx, types.MempoolContext) (types.GateVerdict, error)
	ExecuteBlockFn       func(context.Context, types.FinalizedBlock) (types.BlockOutcome, error)
	CommitFn             func(context.Context) (types.CommitResult, error)
	QueryFn              func(context.Context, types.StateQuery) (types.StateQueryResult, error)
	AvailableSnapshotsFn func(context.Context) ([]types.SnapshotDescriptor, error)
	ExportSnapshotFn     func(context.Context, uint64, uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)
	ImportSnapshotFn     func(context.Context, types.SnapshotDescriptor, <-chan types.SnapshotChunk) (types.ImportResult, error)
	SimulateFn           func(context.Context, types.Tx) (types.TxOutcome, error)

	HandshakeCalls    atomic.Int64
	CheckTxCalls      atomic.Int64
	ExecuteBlockCalls atomic.Int64
	CommitCalls       atomic.Int64
	QueryCalls        atomic.Int64
}

func (m *MockApp) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	m.HandshakeCalls.Add(1)
	if m.HandshakeFn != nil {
		return m.HandshakeFn(ctx, req)
	}
	ah := types.AppHash{}
	return types.HandshakeResponse{AppHash: &ah, Capabilities: m.DeclaredCapabilities}, nil
}

func (m *MockApp) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	m.CheckTxCalls.Add(1)
	if m.CheckTxFn != nil {
		return m.CheckTxFn(ctx, tx, mctx)
	}
	return types.GateVerdict{}, nil
}

func (m *MockApp) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	m.ExecuteBlockCalls.Add(1)
	if m.ExecuteBlockFn != nil {
		return m.ExecuteBlockFn(ctx, block)
	}
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i := range block.Txs {
		outcomes[i] = types.TxOutcome{Index: uint32(i)}
	}
	return types.BlockOutcome{TxOutcomes: outcomes, AppHash: types.AppHash{0x01}}, nil
}

func (m *MockApp) Commit(ctx context.Context) (types.CommitResult, error) {
	m.CommitCalls.Add(1)
	if m.CommitFn != nil {
		return m.CommitFn(ctx)
	}
	return types.CommitResult{}, nil
}

func (m *MockApp) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	m.QueryCalls.Add(1)
	if m.QueryFn != nil {
		return m.QueryFn(ctx, req)
	}
	return types.StateQueryResult{}, nil
}

func (m *MockApp) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	if m.AvailableSnapshotsFn != nil {
		return m.AvailableSnapshotsFn(ctx)
	}
	return nil, nil
}

func (m *MockApp) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	if m.ExportSnapshotFn != nil {
		return m.ExportSnapshotFn(ctx, height, format)
	}
	ch := make(chan types.SnapshotChunk)
	close(ch)
	return ch, &types.SnapshotDescriptor{Height: height, Format: format}, nil
}

func (m *MockApp) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	if m.ImportSnapshotFn != nil {
		return m.ImportSnapshotFn(ctx, desc, chunks)
	}
	for range chunks {
	}
	ah := types.AppHash{0x01}
	return types.ImportResult{Status: types.ImportOK, AppHash: &ah}, nil
}

func (m *MockApp) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if m.SimulateFn != nil {
		return m.SimulateFn(ctx, tx)
	}
	return types.TxOutcome{}, nil
}

// HaltAt returns an ExecuteBlockFn that halts at height and otherwise
// succeeds with empty outcomes.
func HaltAt(height uint64, reason string) func(context.Context, types.FinalizedBlock) (types.BlockOutcome, error) {
	return func(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
		if block.Height == height {
			return types.BlockOutcome{}, harvest.NewHaltError(height, reason)
		}
		return types.BlockOutcome{TxOutcomes: make([]types.TxOutcome, len(block.Txs)), AppHash: types.AppHash{0x01}}, nil
	}
}
