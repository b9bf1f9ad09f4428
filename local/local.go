// Package local provides an in-process harvest connection.
//
// For engines compiled into the same binary as the ledger, this adapter
// puts the lifecycle guard and capability discovery in front of the
// application with no serialization in between.
package local

import (
	"context"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/app"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/server"
	"github.com/blockberries/harvest/types"
)

var _ harvest.Connection = (*Connection)(nil)

// Connection wraps an application with lifecycle enforcement and
// capability discovery.
type Connection struct {
	srv *server.Server
}

// NewConnection creates an in-process connection to application.
func NewConnection(application harvest.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{srv: server.New(application, opts...)}
}

// NewLedgerConnection creates an in-process connection to a fresh
// ledger application built over deps.
func NewLedgerConnection(deps ledger.Deps, opts ...server.Option) *Connection {
	if deps.Logger != nil {
		opts = append([]server.Option{server.WithLogger(deps.Logger)}, opts...)
	}
	return NewConnection(app.New(deps), opts...)
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	return c.srv.CheckTx(ctx, tx, mctx)
}

func (c *Connection) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	return c.srv.ExecuteBlock(ctx, block)
}

func (c *Connection) Commit(ctx context.Context) (types.CommitResult, error) {
	return c.srv.Commit(ctx)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsStateSync() harvest.StateSync {
	return c.srv.AsStateSync()
}

func (c *Connection) AsSimulator() harvest.Simulator {
	return c.srv.AsSimulator()
}

func (c *Connection) Close() error { return c.srv.Close() }

// Server returns the underlying server for advanced use cases.
func (c *Connection) Server() *server.Server {
	return c.srv
}
