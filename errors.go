package harvest

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors. Its numeric value is the stable code
// reported in transaction outcomes; zero is success.
type Kind uint32

const (
	KindNone Kind = iota
	NotAuthorized
	Paused
	InvalidState
	NoApplication
	AlreadyVerified
	AlreadyPaid
	AlreadySubmitted
	InvalidAmount
	InsufficientBudget
	SeasonClosed
	InvalidSeason
	TransferFailed
	OracleFailure
	InvalidParameter
	InvalidData
	InvalidCriteria
	VerificationFailed
	InvalidTx
	// Internal covers failures that are not part of the taxonomy,
	// such as encoding errors.
	Internal
)

var kindNames = [...]string{
	KindNone:           "ok",
	NotAuthorized:      "not_authorized",
	Paused:             "paused",
	InvalidState:       "invalid_state",
	NoApplication:      "no_application",
	AlreadyVerified:    "already_verified",
	AlreadyPaid:        "already_paid",
	AlreadySubmitted:   "already_submitted",
	InvalidAmount:      "invalid_amount",
	InsufficientBudget: "insufficient_budget",
	SeasonClosed:       "season_closed",
	InvalidSeason:      "invalid_season",
	TransferFailed:     "transfer_failed",
	OracleFailure:      "oracle_failure",
	InvalidParameter:   "invalid_parameter",
	InvalidData:        "invalid_data",
	InvalidCriteria:    "invalid_criteria",
	VerificationFailed: "verification_failed",
	InvalidTx:          "invalid_tx",
	Internal:           "internal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Code returns the outcome code for k.
func (k Kind) Code() uint32 { return uint32(k) }

// Error is a ledger error carrying its Kind and the operation that
// produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: k})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

// Errorf returns an *Error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// E returns an *Error of the given kind with no further detail.
func E(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap attaches a kind and op to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain,
// KindNone for nil and Internal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HaltError signals that the application detected an irrecoverable
// inconsistency and requests an immediate chain halt.
//
// When the engine receives a HaltError from ExecuteBlock, it must
// stop, log the error, and not proceed to Commit.
type HaltError struct {
	Reason string
	Height uint64
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("HALT at height %d: %s", e.Height, e.Reason)
}

// NewHaltError creates a new HaltError.
func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// IsHalt checks whether an error is a HaltError and returns it.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}
