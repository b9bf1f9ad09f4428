package types

// GenesisDoc is the raw genesis document for chain initialization.
type GenesisDoc struct {
	ChainID       string    `cramberry:"1"`
	GenesisTime   Timestamp `cramberry:"2"`
	InitialHeight uint64    `cramberry:"3"`
	// Ledger genesis state, JSON-encoded AppGenesis.
	AppState []byte `cramberry:"4"`
}

// AppGenesis is the JSON document carried in GenesisDoc.AppState.
// Zero-valued params fall back to the ledger defaults.
type AppGenesis struct {
	Admin    Address   `json:"admin"`
	Balances []Balance `json:"balances,omitempty"`
	Params   Params    `json:"params"`
}
