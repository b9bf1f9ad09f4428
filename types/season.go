package types

// Season is a time-boxed disbursement program. Seasons are never
// deleted; closing one only clears IsActive.
type Season struct {
	ID               SeasonID `cramberry:"1"`
	StartHeight      uint64   `cramberry:"2"`
	TotalBudget      uint64   `cramberry:"3"`
	MaxPerApplicant  uint64   `cramberry:"4"`
	IsActive         bool     `cramberry:"5"`
	ApplicationCount uint64   `cramberry:"6"`
}

// Deadline returns the last height at which the season accepts
// submissions.
func (s Season) Deadline(offset uint64) uint64 {
	return s.StartHeight + offset
}
