package types

// StateQuery is a request to read ledger state.
type StateQuery struct {
	Path QueryPath `cramberry:"1"`
	Data []byte    `cramberry:"2"`
}

// StateQueryResult is the application's response to a state query.
// Value holds the cramberry encoding of the requested record.
type StateQueryResult struct {
	Code   uint32 `cramberry:"1"`
	Key    []byte `cramberry:"2"`
	Value  []byte `cramberry:"3"`
	Height uint64 `cramberry:"4"`
	Info   string `cramberry:"5"`
}

// Found reports whether the query matched a record.
func (r StateQueryResult) Found() bool { return r.Code == 0 }

// QueryArgs is the cramberry-encoded StateQuery.Data of every ledger
// query path. Each path reads only the fields it needs.
type QueryArgs struct {
	Applicant     Address       `cramberry:"1"`
	SeasonID      SeasonID      `cramberry:"2"`
	ApplicationID ApplicationID `cramberry:"3"`
	RequestID     RequestID     `cramberry:"4"`
	BatchID       BatchID       `cramberry:"5"`
	Amount        uint64        `cramberry:"6"`
}

// Query paths served by the ledger application.
const (
	PathSeason        QueryPath = "/season"
	PathCurrentSeason QueryPath = "/season/current"
	PathApplication   QueryPath = "/application"
	PathVerification  QueryPath = "/verification"
	PathChecks        QueryPath = "/checks"
	PathOracle        QueryPath = "/oracle"
	PathBudget        QueryPath = "/budget"
	PathPayout        QueryPath = "/payout"
	PathBatch         QueryPath = "/batch"
	PathGovernance    QueryPath = "/governance"
	PathAdmin         QueryPath = "/admin"
	PathParams        QueryPath = "/params"
	PathBalance       QueryPath = "/balance"
	PathCanPayout     QueryPath = "/can-payout"
)

// PayoutCheck is the value of a PathCanPayout query.
type PayoutCheck struct {
	Applicant Address  `cramberry:"1"`
	SeasonID  SeasonID `cramberry:"2"`
	Amount    uint64   `cramberry:"3"`
	Allowed   bool     `cramberry:"4"`
}
