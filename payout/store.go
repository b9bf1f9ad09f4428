package payout

import (
	"cmp"
	"maps"
	"slices"

	"github.com/blockberries/harvest/types"
)

type recordKey struct {
	applicant types.Address
	season    types.SeasonID
}

// Store holds payout records and batch summaries.
type Store struct {
	records   map[recordKey]types.PayoutRecord
	batches   map[types.BatchID]types.BatchPayout
	lastBatch types.BatchID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[recordKey]types.PayoutRecord),
		batches: make(map[types.BatchID]types.BatchPayout),
	}
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	return &Store{
		records:   maps.Clone(s.records),
		batches:   maps.Clone(s.batches),
		lastBatch: s.lastBatch,
	}
}

// Export is the deterministic form of a Store.
type Export struct {
	Records   []types.PayoutRecord `cramberry:"1"`
	Batches   []types.BatchPayout  `cramberry:"2"`
	LastBatch types.BatchID        `cramberry:"3"`
}

// Export returns records by (applicant, season) and batches by id.
func (s *Store) Export() Export {
	out := Export{LastBatch: s.lastBatch}
	keys := slices.SortedFunc(maps.Keys(s.records), func(a, b recordKey) int {
		if c := a.applicant.Compare(b.applicant); c != 0 {
			return c
		}
		return cmp.Compare(a.season, b.season)
	})
	for _, k := range keys {
		out.Records = append(out.Records, s.records[k])
	}
	for _, id := range slices.Sorted(maps.Keys(s.batches)) {
		out.Batches = append(out.Batches, s.batches[id])
	}
	return out
}

// Import rebuilds a Store from its export.
func Import(e Export) *Store {
	s := NewStore()
	s.lastBatch = e.LastBatch
	for _, r := range e.Records {
		s.records[recordKey{r.Applicant, r.SeasonID}] = r
	}
	for _, b := range e.Batches {
		s.batches[b.BatchID] = b
	}
	return s
}
