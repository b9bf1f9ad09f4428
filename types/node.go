package types

import "strings"

// HandshakeRequest opens every session between the engine and a node.
// A fresh chain sends Genesis; a restart sends LastCommitted.
type HandshakeRequest struct {
	LastCommitted *BlockID    `cramberry:"1"`
	Genesis       *GenesisDoc `cramberry:"2"`
}

// HandshakeResponse reports where the node's ledger stands.
type HandshakeResponse struct {
	// Nil when the node has no committed block to report: either it
	// was just initialized from genesis or it must be state-synced.
	LastBlock *BlockID `cramberry:"1"`
	// Hash of the ledger state, nil when there is no state at all.
	AppHash      *AppHash     `cramberry:"2"`
	Capabilities Capabilities `cramberry:"3"`
}

// Capabilities is the set of optional node services.
type Capabilities uint8

const (
	// CapStateSync: snapshot export and import.
	CapStateSync Capabilities = 1 << iota
	// CapSimulation: dry-run execution against committed state.
	CapSimulation
)

var capabilityNames = []struct {
	c    Capabilities
	name string
}{
	{CapStateSync, "StateSync"},
	{CapSimulation, "Simulation"},
}

// Has reports whether every service in want is present.
func (c Capabilities) Has(want Capabilities) bool { return c&want == want }

func (c Capabilities) String() string {
	var names []string
	for _, n := range capabilityNames {
		if c.Has(n.c) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// MempoolContext says why a transaction is being checked.
type MempoolContext uint8

const (
	MempoolFirstSeen    MempoolContext = 1
	MempoolRevalidation MempoolContext = 2 // after a commit
)

// GateVerdict is the admission decision for one transaction. Code uses
// the same kind codes as transaction outcomes; zero admits.
type GateVerdict struct {
	Code uint32 `cramberry:"1"`
	Info string `cramberry:"2"`
	// Administrative operations are ordered ahead of applicant ones.
	Priority int64 `cramberry:"3"`
	// Envelope signer, for per-sender sequencing.
	Sender Address `cramberry:"4"`
}

// Accepted reports whether the transaction may enter the mempool.
func (v GateVerdict) Accepted() bool { return v.Code == 0 }
