package types

import "fmt"

// ApplicationState is the position of a claim in its lifecycle.
type ApplicationState uint8

const (
	StateSubmitted ApplicationState = 1
	StateVerified  ApplicationState = 2
	StateRejected  ApplicationState = 3
	StateApproved  ApplicationState = 4
	// StatePaid is terminal and owned by the payout engine.
	StatePaid ApplicationState = 5
)

// String returns the lowercase state name.
func (s ApplicationState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateVerified:
		return "verified"
	case StateRejected:
		return "rejected"
	case StateApproved:
		return "approved"
	case StatePaid:
		return "paid"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Valid reports whether s is a known state.
func (s ApplicationState) Valid() bool {
	return s >= StateSubmitted && s <= StatePaid
}

// Application is a claim by one applicant against one season. At most
// one exists per (Applicant, SeasonID).
type Application struct {
	Applicant       Address          `cramberry:"1"`
	SeasonID        SeasonID         `cramberry:"2"`
	ApplicationID   ApplicationID    `cramberry:"3"`
	DataHash        Hash             `cramberry:"4"`
	RequestedAmount uint64           `cramberry:"5"`
	State           ApplicationState `cramberry:"6"`
	SubmittedAt     uint64           `cramberry:"7"`
	VerifiedAt      uint64           `cramberry:"8"`
	Notes           string           `cramberry:"9"`
	VerifierScore   uint8            `cramberry:"10"`
}
