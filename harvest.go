// Package harvest defines the node-facing interfaces of the harvest
// benefits-disbursement ledger, the ports through which the ledger
// reaches its external collaborators, and its error taxonomy.
//
// The core [Lifecycle] interface is required. [StateSync] and
// [Simulator] are optional capabilities discovered via Go type
// assertion at handshake time.
package harvest

import (
	"context"

	"github.com/blockberries/harvest/types"
)

// Lifecycle is the interface every harvest node application implements.
// It covers the path from boot to steady-state block execution.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h,
//     with strictly increasing h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx and Query may be called concurrently at any time after
//     Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup.
	//
	// If LastCommitted is nil this is a fresh chain and Genesis carries
	// the ledger's initial administrator, balances and parameters.
	// Otherwise the application reports its own last committed block so
	// the engine can detect divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx statelessly validates a transaction envelope before it
	// enters the mempool. It MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock executes every transaction of a finalized block in
	// order against a staged copy of the ledger. A transaction that
	// fails leaves the ledger unchanged and reports its error kind in
	// the outcome code.
	//
	// The block height becomes the ledger's clock before the first
	// transaction runs. A HaltError is returned when the height does not
	// advance or the staged ledger breaks an accounting invariant.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit makes the state staged by the last ExecuteBlock the
	// committed state.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads committed ledger state by path. It MUST be safe for
	// concurrent use, including concurrently with ExecuteBlock.
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// StateSync enables snapshot-based bootstrapping of a node.
//
// Declared via: types.CapStateSync in HandshakeResponse.Capabilities
type StateSync interface {
	// AvailableSnapshots lists snapshots the application can export.
	AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error)

	// ExportSnapshot exports a snapshot as a pull-based stream of chunks.
	// The channel is closed after the last chunk.
	ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error)

	// ImportSnapshot rebuilds ledger state from a stream of chunks and
	// returns the resulting AppHash.
	ImportSnapshot(ctx context.Context, descriptor types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error)
}

// Simulator dry-runs a transaction against committed state.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	// Simulate executes tx on a copy of committed state and discards the
	// result. It MUST be safe for concurrent use.
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
}

// Application embeds every interface a full harvest node serves.
type Application interface {
	Lifecycle
	StateSync
	Simulator
}

// Connection represents a transport-agnostic connection to an
// application. Both gRPC clients and in-process adapters implement it.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	Capabilities() types.Capabilities

	// AsStateSync returns the StateSync interface if available, or nil.
	AsStateSync() StateSync

	// AsSimulator returns the Simulator interface if available, or nil.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}
