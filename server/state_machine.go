// Package server provides the engine-side wrapper that enforces the
// ledger node's call ordering and routes capability-gated calls.
package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrOutOfOrder is returned for calls the lifecycle does not allow in
// the current state.
var ErrOutOfOrder = errors.New("harvest: call out of order")

// ErrHeightRegression is returned when a block does not advance past
// the last committed height.
var ErrHeightRegression = errors.New("harvest: block height does not advance")

// lifecycleState is a state of the call-ordering state machine.
type lifecycleState uint32

const (
	// Waiting for Handshake. No other calls allowed.
	stateInit lifecycleState = iota
	// Handshake complete. CheckTx, Query and Simulate may run
	// concurrently; ExecuteBlock is the only valid sequential call.
	stateReady
	stateExecuting
	// ExecuteBlock returned. Commit is the only valid sequential call.
	stateExecuted
	stateCommitting
)

func (s lifecycleState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateReady:
		return "Ready"
	case stateExecuting:
		return "Executing"
	case stateExecuted:
		return "Executed"
	case stateCommitting:
		return "Committing"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// LifecycleGuard enforces the lifecycle state machine and the strictly
// increasing block heights of the ledger's logical clock.
type LifecycleGuard struct {
	state atomic.Uint32
	// Serializes ExecuteBlock and Commit.
	seqMu         sync.Mutex
	handshakeDone atomic.Bool

	// Guarded by seqMu.
	committed uint64
	executing uint64
}

// NewLifecycleGuard creates a guard in the Init state.
func NewLifecycleGuard() *LifecycleGuard {
	g := &LifecycleGuard{}
	g.state.Store(uint32(stateInit))
	return g
}

// State returns the current lifecycle state.
func (g *LifecycleGuard) State() string {
	return lifecycleState(g.state.Load()).String()
}

func (g *LifecycleGuard) outOfOrder(call string, want lifecycleState) error {
	return fmt.Errorf("%w: %s in state %s (expected %s)",
		ErrOutOfOrder, call, lifecycleState(g.state.Load()), want)
}

// AcquireHandshake transitions Init → Ready.
func (g *LifecycleGuard) AcquireHandshake() error {
	if !g.state.CompareAndSwap(uint32(stateInit), uint32(stateReady)) {
		return g.outOfOrder("Handshake", stateInit)
	}
	return nil
}

// CompleteHandshake records the height the application reported and
// enables concurrent calls.
func (g *LifecycleGuard) CompleteHandshake(height uint64) {
	g.seqMu.Lock()
	g.committed = height
	g.seqMu.Unlock()
	g.handshakeDone.Store(true)
}

// FailHandshake rolls back state to Init if handshake fails.
func (g *LifecycleGuard) FailHandshake() {
	g.state.Store(uint32(stateInit))
}

// AcquireExecute transitions Ready → Executing for a block at height.
// Blocks while another sequential call is in progress.
func (g *LifecycleGuard) AcquireExecute(height uint64) error {
	g.seqMu.Lock()
	if state := lifecycleState(g.state.Load()); state != stateReady {
		g.seqMu.Unlock()
		return g.outOfOrder("ExecuteBlock", stateReady)
	}
	if height <= g.committed {
		committed := g.committed
		g.seqMu.Unlock()
		return fmt.Errorf("%w: got %d, committed %d", ErrHeightRegression, height, committed)
	}
	g.executing = height
	g.state.Store(uint32(stateExecuting))
	return nil
}

// CompleteExecute transitions Executing → Executed.
func (g *LifecycleGuard) CompleteExecute() {
	g.state.Store(uint32(stateExecuted))
	g.seqMu.Unlock()
}

// FailExecute transitions Executing → Ready on error, allowing retry.
func (g *LifecycleGuard) FailExecute() {
	g.executing = 0
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

// AcquireCommit transitions Executed → Committing.
func (g *LifecycleGuard) AcquireCommit() error {
	g.seqMu.Lock()
	if lifecycleState(g.state.Load()) != stateExecuted {
		g.seqMu.Unlock()
		return g.outOfOrder("Commit", stateExecuted)
	}
	g.state.Store(uint32(stateCommitting))
	return nil
}

// CompleteCommit transitions Committing → Ready and advances the
// committed height.
func (g *LifecycleGuard) CompleteCommit() {
	g.committed = g.executing
	g.executing = 0
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

// FailCommit transitions Committing → Executed so Commit can be retried.
func (g *LifecycleGuard) FailCommit() {
	g.state.Store(uint32(stateExecuted))
	g.seqMu.Unlock()
}

// Restore resets the committed height after a snapshot import.
func (g *LifecycleGuard) Restore(height uint64) error {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	if lifecycleState(g.state.Load()) != stateReady {
		return g.outOfOrder("ImportSnapshot", stateReady)
	}
	g.committed = height
	return nil
}

// Committed returns the last committed height.
func (g *LifecycleGuard) Committed() uint64 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	return g.committed
}

// CheckConcurrent reports whether concurrent calls are allowed (any
// state after Handshake).
func (g *LifecycleGuard) CheckConcurrent(call string) error {
	if !g.handshakeDone.Load() {
		return fmt.Errorf("%w: %s before Handshake completed", ErrOutOfOrder, call)
	}
	return nil
}

// IsReady returns true if the guard is in the Ready state.
func (g *LifecycleGuard) IsReady() bool {
	return lifecycleState(g.state.Load()) == stateReady
}
