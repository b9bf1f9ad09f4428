package harvestgrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/server"
	"github.com/blockberries/harvest/types"
)

var _ NodeServer = (*GRPCServer)(nil)

// GRPCServer serves an application as the harvest.v1.Node service.
type GRPCServer struct {
	srv *server.Server
	log *zap.Logger
}

// NewGRPCServer creates a gRPC server wrapping the given application.
func NewGRPCServer(app harvest.Lifecycle, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCServer{
		srv: server.New(app, server.WithLogger(log)),
		log: log.Named("grpc"),
	}
}

// Register adds the node service to a gRPC server.
func (s *GRPCServer) Register(gs grpc.ServiceRegistrar) {
	RegisterNodeServer(gs, s)
}

// ServerOptions returns the options NewServer installs: OpenTelemetry
// instrumentation and request logging.
func (s *GRPCServer) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.logUnary),
	}
}

// NewServer builds a grpc.Server with the node service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(append(s.ServerOptions(), opts...)...)
	s.Register(gs)
	return gs
}

// Serve runs a new grpc.Server on lis until ctx is done, then stops it
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	gs := s.NewServer(opts...)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			gs.GracefulStop()
		case <-done:
		}
	}()
	defer close(done)

	s.log.Info("serving", zap.String("addr", lis.Addr().String()))
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Server returns the underlying server for advanced use.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

func (s *GRPCServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		s.log.Warn("rpc failed", append(fields, zap.Stringer("code", status.Code(err)), zap.Error(err))...)
	} else {
		s.log.Debug("rpc", fields...)
	}
	return resp, err
}

// --- Lifecycle RPCs ---

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &resp, nil
}

func (s *GRPCServer) CheckTx(ctx context.Context, req *CheckTxRequest) (*types.GateVerdict, error) {
	verdict, err := s.srv.CheckTx(ctx, req.Tx, req.Context)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &verdict, nil
}

func (s *GRPCServer) ExecuteBlock(ctx context.Context, block *types.FinalizedBlock) (*types.BlockOutcome, error) {
	outcome, err := s.srv.ExecuteBlock(ctx, *block)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &outcome, nil
}

func (s *GRPCServer) Commit(ctx context.Context, _ *CommitRequest) (*types.CommitResult, error) {
	result, err := s.srv.Commit(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &result, nil
}

func (s *GRPCServer) Query(ctx context.Context, req *types.StateQuery) (*types.StateQueryResult, error) {
	result, err := s.srv.Query(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &result, nil
}

// --- StateSync RPCs ---

func (s *GRPCServer) AvailableSnapshots(ctx context.Context, _ *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error) {
	snaps, err := s.srv.AvailableSnapshots(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &AvailableSnapshotsResponse{Snapshots: snaps}, nil
}

func (s *GRPCServer) ExportSnapshot(req *ExportSnapshotRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ch, desc, err := s.srv.ExportSnapshot(ctx, req.Height, req.Format)
	if err != nil {
		return toStatus(ctx, err)
	}
	if err := stream.SendMsg(&SnapshotMessage{Descriptor: desc}); err != nil {
		return err
	}
	for chunk := range ch {
		if err := stream.SendMsg(&SnapshotMessage{Chunk: &chunk}); err != nil {
			return err
		}
	}
	return nil
}

func (s *GRPCServer) ImportSnapshot(stream grpc.ServerStream) error {
	ctx := stream.Context()
	first := new(SnapshotMessage)
	if err := stream.RecvMsg(first); err != nil {
		return err
	}
	if first.Descriptor == nil {
		return toStatus(ctx, errors.New("harvest grpc: first ImportSnapshot message must contain a descriptor"))
	}

	chunks := make(chan types.SnapshotChunk)
	recvErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		for {
			msg := new(SnapshotMessage)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) {
					recvErr <- err
				}
				return
			}
			if msg.Chunk == nil {
				continue
			}
			select {
			case chunks <- *msg.Chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	result, err := s.srv.ImportSnapshot(ctx, *first.Descriptor, chunks)
	if err != nil {
		return toStatus(ctx, err)
	}
	select {
	case err := <-recvErr:
		return err
	default:
	}
	return stream.SendMsg(&result)
}

// --- Simulator RPC ---

func (s *GRPCServer) Simulate(ctx context.Context, req *SimulateRequest) (*types.TxOutcome, error) {
	outcome, err := s.srv.Simulate(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &outcome, nil
}
