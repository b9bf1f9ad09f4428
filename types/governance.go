package types

// GovernanceParams is advisory per-governor configuration. It is
// recorded and queryable; no enforcement path reads it.
type GovernanceParams struct {
	Governor      Address `cramberry:"1"`
	Paused        bool    `cramberry:"2"`
	OracleAddress Address `cramberry:"3"`
	MinScore      uint8   `cramberry:"4"`
	LastUpdate    uint64  `cramberry:"5"`
}

// Params are the consensus-critical ledger parameters fixed at
// genesis.
type Params struct {
	// Heights a verification result stays fresh.
	ExpiryWindow uint64 `cramberry:"1" json:"expiry_window,omitempty"`
	// Heights after a season's start during which it accepts claims.
	DeadlineOffset uint64 `cramberry:"2" json:"deadline_offset,omitempty"`
	MaxBatchSize   uint32 `cramberry:"3" json:"max_batch_size,omitempty"`
	// Run the eligibility engine inside every submission. Off by
	// default: the trigger caches a result at submission height, so an
	// explicit verify of the same claim then fails AlreadyVerified until
	// ExpiryWindow has passed. Leave it off when claims are verified by
	// a separate verify transaction; a failing trigger rejects the
	// submission with VerificationFailed.
	VerifyOnSubmit bool    `cramberry:"4" json:"verify_on_submit"`
	Treasury       Address `cramberry:"5" json:"treasury"`
}

// Balance is one row of the in-state bank.
type Balance struct {
	Account Address `cramberry:"1" json:"account"`
	Amount  uint64  `cramberry:"2" json:"amount"`
}

// Flags are the global administrative switches.
type Flags struct {
	Admin              Address `cramberry:"1"`
	VerificationPaused bool    `cramberry:"2"`
	PayoutPaused       bool    `cramberry:"3"`
}
