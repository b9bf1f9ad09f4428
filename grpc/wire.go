package harvestgrpc

import "github.com/blockberries/harvest/types"

// Transport-only wrappers for RPCs whose interface signatures don't
// map to a single request/response struct.

// CheckTxRequest wraps the parameters of Lifecycle.CheckTx.
type CheckTxRequest struct {
	Tx      types.Tx             `cramberry:"1"`
	Context types.MempoolContext `cramberry:"2"`
}

// CommitRequest is the empty request of Lifecycle.Commit.
type CommitRequest struct{}

// AvailableSnapshotsRequest is the empty request of
// StateSync.AvailableSnapshots.
type AvailableSnapshotsRequest struct{}

type AvailableSnapshotsResponse struct {
	Snapshots []types.SnapshotDescriptor `cramberry:"1"`
}

type ExportSnapshotRequest struct {
	Height uint64 `cramberry:"1"`
	Format uint32 `cramberry:"2"`
}

// SnapshotMessage carries either a descriptor or a chunk. Both
// snapshot streams open with a descriptor and continue with chunks.
type SnapshotMessage struct {
	Descriptor *types.SnapshotDescriptor `cramberry:"1"`
	Chunk      *types.SnapshotChunk      `cramberry:"2"`
}

type SimulateRequest struct {
	Tx types.Tx `cramberry:"1"`
}
