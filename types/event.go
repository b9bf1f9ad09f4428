package types

// EventAttribute is a single key-value tag within an event.
type EventAttribute struct {
	Key   string `cramberry:"1"`
	Value string `cramberry:"2"`
	Index bool   `cramberry:"3"` // Whether indexers should pick this up.
}

// Event is a public record of a ledger write. Audit readers rebuild
// the history of verifications, payouts and batches from these.
type Event struct {
	Kind       string           `cramberry:"1"`
	Attributes []EventAttribute `cramberry:"2"`
}

// Event kinds emitted by the ledger.
const (
	EventSeasonCreated     = "season_created"
	EventSeasonClosed      = "season_closed"
	EventSubmitted         = "application_submitted"
	EventStateUpdated      = "application_state_updated"
	EventCleared           = "application_cleared"
	EventVerification      = "verification"
	EventOracleValidated   = "oracle_validated"
	EventBudgetInitialized = "budget_initialized"
	EventBudgetToppedUp    = "budget_topped_up"
	EventPayout            = "payout"
	EventBatchPayout       = "batch_payout"
	EventClawback          = "clawback"
	EventAdminTransferred  = "admin_transferred"
	EventPauseChanged      = "pause_changed"
	EventGovernanceParams  = "governance_params"
	EventTransfer          = "transfer"
	EventHeight            = "height"
)

// Attr returns an indexed attribute.
func Attr(key, value string) EventAttribute {
	return EventAttribute{Key: key, Value: value, Index: true}
}

// Get returns the value of the first attribute with the given key.
func (e Event) Get(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
