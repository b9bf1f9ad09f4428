package harvestgrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/blockberries/harvest/types"
)

const serviceName = "harvest.v1.Node"

// NodeServer is the server-side interface of the harvest.v1.Node
// service.
type NodeServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	AvailableSnapshots(context.Context, *AvailableSnapshotsRequest) (*AvailableSnapshotsResponse, error)
	ExportSnapshot(*ExportSnapshotRequest, grpc.ServerStream) error
	ImportSnapshot(grpc.ServerStream) error
	Simulate(context.Context, *SimulateRequest) (*types.TxOutcome, error)
}

// RegisterNodeServer registers srv on a gRPC server.
func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&serviceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler, running
// the server's interceptor chain.
func unary[Req any, Resp any](method string, call func(NodeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(NodeServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(NodeServer), ctx, req.(*Req))
			})
		},
	}
}

func handlerExportSnapshot(srv any, stream grpc.ServerStream) error {
	req := new(ExportSnapshotRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(NodeServer).ExportSnapshot(req, stream)
}

func handlerImportSnapshot(srv any, stream grpc.ServerStream) error {
	return srv.(NodeServer).ImportSnapshot(stream)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor of harvest.v1.Node.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Handshake", NodeServer.Handshake),
		unary("CheckTx", NodeServer.CheckTx),
		unary("ExecuteBlock", NodeServer.ExecuteBlock),
		unary("Commit", NodeServer.Commit),
		unary("Query", NodeServer.Query),
		unary("AvailableSnapshots", NodeServer.AvailableSnapshots),
		unary("Simulate", NodeServer.Simulate),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ExportSnapshot",
			Handler:       handlerExportSnapshot,
			ServerStreams: true,
		},
		{
			StreamName:    "ImportSnapshot",
			Handler:       handlerImportSnapshot,
			ClientStreams: true,
		},
	},
	Metadata: "harvest/v1/node.cram",
}
