package types

// SeasonBudget is the accounting record of one season's funds.
// Remaining always equals TotalAllocated - TotalPaid.
type SeasonBudget struct {
	SeasonID       SeasonID `cramberry:"1"`
	TotalAllocated uint64   `cramberry:"2"`
	TotalPaid      uint64   `cramberry:"3"`
	Remaining      uint64   `cramberry:"4"`
}

// Consistent reports whether the budget's totals agree.
func (b SeasonBudget) Consistent() bool {
	return b.TotalPaid <= b.TotalAllocated && b.Remaining == b.TotalAllocated-b.TotalPaid
}

// PayoutRecord marks a disbursement to one applicant for one season.
// Its existence is what "already paid" means.
type PayoutRecord struct {
	Applicant   Address  `cramberry:"1"`
	SeasonID    SeasonID `cramberry:"2"`
	Amount      uint64   `cramberry:"3"`
	PaidAt      uint64   `cramberry:"4"`
	TransferRef string   `cramberry:"5"`
	// Zero for single payouts.
	BatchID BatchID `cramberry:"6"`
}

// BatchEntry is one requested payout within a batch.
type BatchEntry struct {
	Applicant Address  `cramberry:"1"`
	SeasonID  SeasonID `cramberry:"2"`
	Amount    uint64   `cramberry:"3"`
}

// BatchPayout is the immutable summary of an executed batch.
type BatchPayout struct {
	BatchID      BatchID `cramberry:"1"`
	TotalAmount  uint64  `cramberry:"2"`
	SuccessCount uint32  `cramberry:"3"`
	FailedCount  uint32  `cramberry:"4"`
	ExecutedAt   uint64  `cramberry:"5"`
	Executor     Address `cramberry:"6"`
}

// EntryOutcome is the result of one batch entry. Code is the error
// kind code, zero on success.
type EntryOutcome struct {
	Entry BatchEntry `cramberry:"1"`
	Code  uint32     `cramberry:"2"`
	Info  string     `cramberry:"3"`
}

// BatchResult is returned to the caller of a batch payout.
type BatchResult struct {
	Summary  BatchPayout    `cramberry:"1"`
	Outcomes []EntryOutcome `cramberry:"2"`
}
