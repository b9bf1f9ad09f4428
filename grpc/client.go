package harvestgrpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/server"
	"github.com/blockberries/harvest/types"
)

var _ harvest.Connection = (*Client)(nil)

// Client implements harvest.Connection for a remote node over gRPC
// with cramberry serialization. It enforces the same call ordering as
// the in-process server.
type Client struct {
	cc    *grpc.ClientConn
	caps  types.Capabilities
	guard *server.LifecycleGuard
}

// Dial creates a client for the node at addr. The connection is
// established lazily on the first call; transport credentials must be
// supplied in opts.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("harvest client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc, guard: server.NewLifecycleGuard()}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// invoke runs a unary call and rebuilds halt errors from the trailer.
func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	if err := c.cc.Invoke(ctx, fullMethod(method), req, resp, grpc.Trailer(&trailer)); err != nil {
		return fromStatus(err, trailer)
	}
	return nil
}

// --- Lifecycle ---

func (c *Client) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if err := c.guard.AcquireHandshake(); err != nil {
		return types.HandshakeResponse{}, err
	}

	resp := new(types.HandshakeResponse)
	if err := c.invoke(ctx, "Handshake", &req, resp); err != nil {
		c.guard.FailHandshake()
		return types.HandshakeResponse{}, err
	}

	var height uint64
	switch {
	case resp.LastBlock != nil:
		height = resp.LastBlock.Height
	case req.Genesis != nil && req.Genesis.InitialHeight > 0:
		height = req.Genesis.InitialHeight - 1
	}
	c.caps = resp.Capabilities
	c.guard.CompleteHandshake(height)
	return *resp, nil
}

func (c *Client) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	if err := c.guard.CheckConcurrent("CheckTx"); err != nil {
		return types.GateVerdict{}, err
	}
	resp := new(types.GateVerdict)
	if err := c.invoke(ctx, "CheckTx", &CheckTxRequest{Tx: tx, Context: mctx}, resp); err != nil {
		return types.GateVerdict{}, err
	}
	return *resp, nil
}

func (c *Client) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if err := c.guard.AcquireExecute(block.Height); err != nil {
		return types.BlockOutcome{}, err
	}
	resp := new(types.BlockOutcome)
	if err := c.invoke(ctx, "ExecuteBlock", &block, resp); err != nil {
		c.guard.FailExecute()
		return types.BlockOutcome{}, err
	}
	c.guard.CompleteExecute()
	return *resp, nil
}

func (c *Client) Commit(ctx context.Context) (types.CommitResult, error) {
	if err := c.guard.AcquireCommit(); err != nil {
		return types.CommitResult{}, err
	}
	resp := new(types.CommitResult)
	if err := c.invoke(ctx, "Commit", &CommitRequest{}, resp); err != nil {
		c.guard.FailCommit()
		return types.CommitResult{}, err
	}
	c.guard.CompleteCommit()
	return *resp, nil
}

func (c *Client) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	if err := c.guard.CheckConcurrent("Query"); err != nil {
		return types.StateQueryResult{}, err
	}
	resp := new(types.StateQueryResult)
	if err := c.invoke(ctx, "Query", &req, resp); err != nil {
		return types.StateQueryResult{}, err
	}
	return *resp, nil
}

// --- Capability accessors ---

func (c *Client) Capabilities() types.Capabilities { return c.caps }

func (c *Client) AsStateSync() harvest.StateSync {
	if c.caps.Has(types.CapStateSync) {
		return &clientStateSync{c}
	}
	return nil
}

func (c *Client) AsSimulator() harvest.Simulator {
	if c.caps.Has(types.CapSimulation) {
		return &clientSimulator{c}
	}
	return nil
}

// --- StateSync wrapper ---

type clientStateSync struct{ c *Client }

func (w *clientStateSync) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	resp := new(AvailableSnapshotsResponse)
	if err := w.c.invoke(ctx, "AvailableSnapshots", &AvailableSnapshotsRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Snapshots, nil
}

// ExportSnapshot reads the descriptor synchronously and streams the
// chunks in the background. The channel closes early if the stream
// fails; ImportSnapshot then reports the missing chunks.
func (w *clientStateSync) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	stream, err := w.c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("ExportSnapshot"))
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(&ExportSnapshotRequest{Height: height, Format: format}); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	first := new(SnapshotMessage)
	if err := stream.RecvMsg(first); err != nil {
		return nil, nil, fromStatus(err, stream.Trailer())
	}
	if first.Descriptor == nil {
		return nil, nil, errors.New("harvest client: export stream did not start with a descriptor")
	}

	ch := make(chan types.SnapshotChunk)
	go func() {
		defer close(ch)
		for {
			msg := new(SnapshotMessage)
			if err := stream.RecvMsg(msg); err != nil {
				return
			}
			if msg.Chunk == nil {
				continue
			}
			select {
			case ch <- *msg.Chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, first.Descriptor, nil
}

func (w *clientStateSync) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	stream, err := w.c.cc.NewStream(ctx, &serviceDesc.Streams[1], fullMethod("ImportSnapshot"))
	if err != nil {
		return types.ImportResult{}, err
	}
	if err := stream.SendMsg(&SnapshotMessage{Descriptor: &desc}); err != nil {
		return types.ImportResult{}, err
	}
	for chunk := range chunks {
		if err := stream.SendMsg(&SnapshotMessage{Chunk: &chunk}); err != nil {
			if errors.Is(err, io.EOF) {
				// The server ended the stream; RecvMsg has the reason.
				break
			}
			return types.ImportResult{}, err
		}
	}
	if err := stream.CloseSend(); err != nil {
		return types.ImportResult{}, err
	}

	result := new(types.ImportResult)
	if err := stream.RecvMsg(result); err != nil {
		return types.ImportResult{}, fromStatus(err, stream.Trailer())
	}
	if result.Status == types.ImportOK {
		if err := w.c.guard.Restore(desc.Height); err != nil {
			return *result, err
		}
	}
	return *result, nil
}

// --- Simulator wrapper ---

type clientSimulator struct{ c *Client }

func (w *clientSimulator) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	resp := new(types.TxOutcome)
	if err := w.c.invoke(ctx, "Simulate", &SimulateRequest{Tx: tx}, resp); err != nil {
		return types.TxOutcome{}, err
	}
	return *resp, nil
}
