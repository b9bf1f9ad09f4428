package harvestgrpc

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/server"
)

// haltHeightKey carries a HaltError's height in the response trailer.
const haltHeightKey = "harvest-halt-height"

// toStatus converts a node error into a gRPC status error. A halt also
// sets the halt height trailer so the client can rebuild it.
func toStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if he, ok := harvest.IsHalt(err); ok {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(haltHeightKey, strconv.FormatUint(he.Height, 10)))
		return status.Error(codes.Aborted, he.Reason)
	}
	switch {
	case errors.Is(err, server.ErrOutOfOrder), errors.Is(err, server.ErrHeightRegression):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, server.ErrUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus rebuilds a HaltError from an Aborted status and its
// trailer; other errors pass through.
func fromStatus(err error, trailer metadata.MD) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return err
	}
	vals := trailer.Get(haltHeightKey)
	if len(vals) == 0 {
		return err
	}
	height, perr := strconv.ParseUint(vals[0], 10, 64)
	if perr != nil {
		return err
	}
	return harvest.NewHaltError(height, st.Message())
}
