package eligibility

import (
	"cmp"
	"maps"
	"slices"

	"github.com/blockberries/harvest/types"
)

type resultKey struct {
	applicant types.Address
	season    types.SeasonID
	app       types.ApplicationID
}

func keyOf(app types.Application) resultKey {
	return resultKey{app.Applicant, app.SeasonID, app.ApplicationID}
}

func compareKey(a, b resultKey) int {
	if c := a.applicant.Compare(b.applicant); c != 0 {
		return c
	}
	if c := cmp.Compare(a.season, b.season); c != 0 {
		return c
	}
	return cmp.Compare(a.app, b.app)
}

// Store holds verification results, their detailed checks and oracle
// responses.
type Store struct {
	results     map[resultKey]types.VerificationResult
	checks      map[resultKey]types.DetailedChecks
	oracle      map[types.RequestID]types.OracleResponse
	lastRequest types.RequestID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		results: make(map[resultKey]types.VerificationResult),
		checks:  make(map[resultKey]types.DetailedChecks),
		oracle:  make(map[types.RequestID]types.OracleResponse),
	}
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	return &Store{
		results:     maps.Clone(s.results),
		checks:      maps.Clone(s.checks),
		oracle:      maps.Clone(s.oracle),
		lastRequest: s.lastRequest,
	}
}

// Export is the deterministic form of a Store.
type Export struct {
	Results     []types.VerificationResult `cramberry:"1"`
	Checks      []types.DetailedChecks     `cramberry:"2"`
	Oracle      []types.OracleResponse     `cramberry:"3"`
	LastRequest types.RequestID            `cramberry:"4"`
}

// Export returns the store's contents in key order.
func (s *Store) Export() Export {
	out := Export{LastRequest: s.lastRequest}
	for _, k := range slices.SortedFunc(maps.Keys(s.results), compareKey) {
		out.Results = append(out.Results, s.results[k])
	}
	for _, k := range slices.SortedFunc(maps.Keys(s.checks), compareKey) {
		out.Checks = append(out.Checks, s.checks[k])
	}
	for _, id := range slices.Sorted(maps.Keys(s.oracle)) {
		out.Oracle = append(out.Oracle, s.oracle[id])
	}
	return out
}

// Import rebuilds a Store from its export.
func Import(e Export) *Store {
	s := NewStore()
	s.lastRequest = e.LastRequest
	for _, r := range e.Results {
		s.results[resultKey{r.Applicant, r.SeasonID, r.ApplicationID}] = r
	}
	for _, c := range e.Checks {
		s.checks[resultKey{c.Applicant, c.SeasonID, c.ApplicationID}] = c
	}
	for _, o := range e.Oracle {
		s.oracle[o.RequestID] = o
	}
	return s
}
