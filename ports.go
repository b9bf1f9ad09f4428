package harvest

import (
	"context"

	"github.com/blockberries/harvest/types"
)

// Clock reports the ledger's logical time. Expiry windows and
// submission deadlines are measured against it.
type Clock interface {
	Height() uint64
}

// IdentityDirectory answers whether a principal is a registered
// applicant.
type IdentityDirectory interface {
	IsRegistered(ctx context.Context, who types.Address) (bool, error)
}

// DocumentStore serves the farm-data snapshot backing an applicant's
// claim and the content hash of their supporting documents.
type DocumentStore interface {
	FarmData(ctx context.Context, who types.Address) (types.FarmData, error)
	DataHash(ctx context.Context, who types.Address) (types.Hash, error)
}

// PolicyRegistry supplies the eligibility criteria in force. Each call
// returns an independent snapshot.
type PolicyRegistry interface {
	Criteria(ctx context.Context) (types.Criteria, error)
}

// Treasury moves value between principals. A non-nil error means
// nothing moved.
type Treasury interface {
	Transfer(ctx context.Context, from, to types.Address, amount uint64) error
}

// EventSink receives the public record of every ledger write.
type EventSink interface {
	Emit(ev types.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(types.Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev types.Event) { f(ev) }

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

// Height calls f().
func (f ClockFunc) Height() uint64 { return f() }
