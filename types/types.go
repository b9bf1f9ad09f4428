// Package types defines the wire and domain types of the harvest
// disbursement ledger.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Collections that take part in
// the application hash are always carried as sorted slices, never
// maps, so every node encodes the same state to the same bytes.
package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// String returns the lowercase hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// MarshalText encodes h as hex.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText decodes a 64-character hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parse hash: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("parse hash: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

// AppHash is a deterministic fingerprint of the application
// state after execution.
type AppHash [32]byte

// Tx is an opaque transaction. The engine never inspects its
// contents; the application decodes it as a Msg envelope.
type Tx []byte

// QueryPath is a structured key for state queries (e.g., "/budget").
type QueryPath string

// BlockID uniquely identifies a point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}

// AddressLength is the size of an Address in bytes.
const AddressLength = 20

// Address is an opaque principal: applicants, governors, the
// administrator and the treasury are all addresses.
type Address [AddressLength]byte

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int { return bytes.Compare(a[:], b[:]) }

// String returns the lowercase hex encoding of a.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// MarshalText encodes a as hex so addresses read naturally in JSON
// genesis documents and YAML registry files.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a hex address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress decodes a 40-character hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(b) != AddressLength {
		return a, fmt.Errorf("parse address %q: want %d bytes, got %d", s, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// SeasonID identifies a season. Seasons are numbered from 1.
type SeasonID uint64

// ApplicationID is a per-season counter assigned at submission.
type ApplicationID uint64

// RequestID identifies an oracle request. Global counter from 1.
type RequestID uint64

// BatchID identifies a batch payout. Global counter from 1; zero
// means "not part of a batch".
type BatchID uint64
