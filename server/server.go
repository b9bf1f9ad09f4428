package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// ErrUnsupported is returned by capability-gated calls the application
// does not serve.
var ErrUnsupported = errors.New("harvest: capability not supported")

// Server wraps an application with lifecycle enforcement and
// capability routing. Transports talk to the application exclusively
// through a Server.
type Server struct {
	app   harvest.Lifecycle
	guard *LifecycleGuard
	log   *zap.Logger
	caps  types.Capabilities

	// Optional interfaces (nil if not supported).
	stateSync harvest.StateSync
	simulator harvest.Simulator

	// Held between ExecuteBlock and Commit.
	mu          sync.Mutex
	lastOutcome *types.BlockOutcome
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) { s.log = log.Named("server") }
}

// New creates a new Server wrapping the given application.
func New(app harvest.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:   app,
		guard: NewLifecycleGuard(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.stateSync, _ = app.(harvest.StateSync)
	s.simulator, _ = app.(harvest.Simulator)
	return s
}

var _ harvest.Connection = (*Server)(nil)

// Handshake performs the startup handshake, validates capability
// declarations, and transitions the state machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if err := s.guard.AcquireHandshake(); err != nil {
		return types.HandshakeResponse{}, err
	}

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}
	if err := s.discoverCapabilities(resp.Capabilities); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	var height uint64
	switch {
	case resp.LastBlock != nil:
		height = resp.LastBlock.Height
	case req.Genesis != nil && req.Genesis.InitialHeight > 0:
		height = req.Genesis.InitialHeight - 1
	}
	s.caps = resp.Capabilities
	s.guard.CompleteHandshake(height)
	s.log.Info("handshake complete",
		zap.Stringer("capabilities", resp.Capabilities),
		zap.Uint64("height", height))
	return resp, nil
}

// CheckTx gate-checks a transaction for mempool admission.
// Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	if err := s.guard.CheckConcurrent("CheckTx"); err != nil {
		return types.GateVerdict{}, err
	}
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock deterministically executes a finalized block. The block
// must be higher than the last committed one.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if err := s.guard.AcquireExecute(block.Height); err != nil {
		return types.BlockOutcome{}, err
	}

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		s.guard.FailExecute()
		if he, ok := harvest.IsHalt(err); ok {
			s.log.Error("application halted", zap.Uint64("height", he.Height), zap.String("reason", he.Reason))
		}
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = &outcome
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit persists state changes from the last ExecuteBlock.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	if err := s.guard.AcquireCommit(); err != nil {
		return types.CommitResult{}, err
	}

	result, err := s.app.Commit(ctx)

	if err != nil {
		s.guard.FailCommit()
		return result, err
	}

	s.mu.Lock()
	s.lastOutcome = nil
	s.mu.Unlock()
	s.guard.CompleteCommit()
	return result, nil
}

// Query reads application state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	if err := s.guard.CheckConcurrent("Query"); err != nil {
		return types.StateQueryResult{}, err
	}
	return s.app.Query(ctx, req)
}

// Capabilities returns the application's declared capabilities.
// Only valid after Handshake completes.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// Height returns the last committed block height.
func (s *Server) Height() uint64 { return s.guard.Committed() }

// ---------------------------------------------------------------------------
// Capability-gated calls
// ---------------------------------------------------------------------------

func (s *Server) syncer() (harvest.StateSync, error) {
	if s.stateSync == nil || !s.caps.Has(types.CapStateSync) {
		return nil, fmt.Errorf("%w: StateSync", ErrUnsupported)
	}
	return s.stateSync, nil
}

// AvailableSnapshots delegates to StateSync if supported.
func (s *Server) AvailableSnapshots(ctx context.Context) ([]types.SnapshotDescriptor, error) {
	ss, err := s.syncer()
	if err != nil {
		return nil, err
	}
	return ss.AvailableSnapshots(ctx)
}

// ExportSnapshot delegates to StateSync if supported.
func (s *Server) ExportSnapshot(ctx context.Context, height uint64, format uint32) (<-chan types.SnapshotChunk, *types.SnapshotDescriptor, error) {
	ss, err := s.syncer()
	if err != nil {
		return nil, nil, err
	}
	return ss.ExportSnapshot(ctx, height, format)
}

// ImportSnapshot delegates to StateSync if supported. A successful
// import moves the committed height to the snapshot's.
func (s *Server) ImportSnapshot(ctx context.Context, desc types.SnapshotDescriptor, chunks <-chan types.SnapshotChunk) (types.ImportResult, error) {
	ss, err := s.syncer()
	if err != nil {
		return types.ImportResult{}, err
	}
	res, err := ss.ImportSnapshot(ctx, desc, chunks)
	if err != nil || res.Status != types.ImportOK {
		return res, err
	}
	if err := s.guard.Restore(desc.Height); err != nil {
		return res, err
	}
	s.log.Info("snapshot imported", zap.Uint64("height", desc.Height))
	return res, nil
}

// Simulate delegates to Simulator if supported.
// Safe for concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if s.simulator == nil || !s.caps.Has(types.CapSimulation) {
		return types.TxOutcome{}, fmt.Errorf("%w: Simulator", ErrUnsupported)
	}
	if err := s.guard.CheckConcurrent("Simulate"); err != nil {
		return types.TxOutcome{}, err
	}
	return s.simulator.Simulate(ctx, tx)
}

// AsStateSync returns the StateSync interface or nil.
func (s *Server) AsStateSync() harvest.StateSync {
	if s.caps.Has(types.CapStateSync) {
		return s
	}
	return nil
}

// AsSimulator returns the Simulator interface or nil.
func (s *Server) AsSimulator() harvest.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s
	}
	return nil
}

// LastOutcome returns the most recent BlockOutcome (between
// ExecuteBlock and Commit). Returns nil if no outcome is pending.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

// discoverCapabilities checks that every declared capability is
// backed by an implementation.
func (s *Server) discoverCapabilities(declared types.Capabilities) error {
	hasStateSync := s.stateSync != nil
	hasSimulator := s.simulator != nil

	if declared.Has(types.CapStateSync) && !hasStateSync {
		return errors.New("harvest: app declared CapStateSync but does not implement StateSync")
	}
	if declared.Has(types.CapSimulation) && !hasSimulator {
		return errors.New("harvest: app declared CapSimulation but does not implement Simulator")
	}

	if !declared.Has(types.CapStateSync) && hasStateSync {
		s.log.Warn("app implements StateSync but did not declare it; capability will not be used")
	}
	if !declared.Has(types.CapSimulation) && hasSimulator {
		s.log.Warn("app implements Simulator but did not declare it; capability will not be used")
	}
	return nil
}
