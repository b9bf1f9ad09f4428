package lifecycle

import (
	"cmp"
	"maps"
	"slices"

	"github.com/blockberries/harvest/types"
)

type appKey struct {
	applicant types.Address
	season    types.SeasonID
}

// Store holds seasons and applications.
type Store struct {
	seasons map[types.SeasonID]types.Season
	apps    map[appKey]types.Application
	// Seasons are numbered densely from 1, so the current season is
	// also the highest id.
	currentSeason types.SeasonID
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		seasons: make(map[types.SeasonID]types.Season),
		apps:    make(map[appKey]types.Application),
	}
}

// Clone returns a deep copy of s.
func (s *Store) Clone() *Store {
	return &Store{
		seasons:       maps.Clone(s.seasons),
		apps:          maps.Clone(s.apps),
		currentSeason: s.currentSeason,
	}
}

// Export is the deterministic form of a Store.
type Export struct {
	Seasons       []types.Season      `cramberry:"1"`
	Applications  []types.Application `cramberry:"2"`
	CurrentSeason types.SeasonID      `cramberry:"3"`
}

// Export returns seasons by id and applications by (applicant, season).
func (s *Store) Export() Export {
	out := Export{CurrentSeason: s.currentSeason}
	for _, id := range slices.Sorted(maps.Keys(s.seasons)) {
		out.Seasons = append(out.Seasons, s.seasons[id])
	}
	keys := slices.SortedFunc(maps.Keys(s.apps), func(a, b appKey) int {
		if c := a.applicant.Compare(b.applicant); c != 0 {
			return c
		}
		return cmp.Compare(a.season, b.season)
	})
	for _, k := range keys {
		out.Applications = append(out.Applications, s.apps[k])
	}
	return out
}

// Import rebuilds a Store from its export.
func Import(e Export) *Store {
	s := NewStore()
	s.currentSeason = e.CurrentSeason
	for _, season := range e.Seasons {
		s.seasons[season.ID] = season
	}
	for _, app := range e.Applications {
		s.apps[appKey{app.Applicant, app.SeasonID}] = app
	}
	return s
}
