package types

// FinalizedBlock is an ordered batch of transactions the engine has
// decided on. Its height becomes the ledger clock before any of the
// transactions run.
type FinalizedBlock struct {
	Height        uint64    `cramberry:"1"`
	Time          Timestamp `cramberry:"2"`
	Proposer      Address   `cramberry:"3"`
	Txs           []Tx      `cramberry:"4"`
	LastBlockHash Hash      `cramberry:"5"`
}

// TxOutcome reports one delivered transaction. Code is a kind code;
// on failure Data and Events are empty and Info carries the error.
type TxOutcome struct {
	Index  uint32  `cramberry:"1"`
	Code   uint32  `cramberry:"2"`
	Info   string  `cramberry:"3"`
	Data   []byte  `cramberry:"4"` // allocated id or encoded record
	Events []Event `cramberry:"5"`
}

// OK reports whether the transaction was applied.
func (t TxOutcome) OK() bool { return t.Code == 0 }

// BlockOutcome lists the outcomes in block order together with the
// app hash of the staged state.
type BlockOutcome struct {
	TxOutcomes  []TxOutcome `cramberry:"1"`
	BlockEvents []Event     `cramberry:"2"`
	AppHash     AppHash     `cramberry:"3"`
}

// CommitResult is returned once the staged block becomes committed
// state. The ledger keeps no block history, so RetainHeight is always
// zero.
type CommitResult struct {
	RetainHeight uint64 `cramberry:"1"`
}
