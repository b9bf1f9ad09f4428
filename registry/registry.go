// Package registry is a static, in-memory implementation of the
// Identity Directory, Document Store and Policy Registry ports. Nodes
// load it from a YAML file; tests build it directly.
package registry

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"gopkg.in/yaml.v3"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

var (
	// ErrUnknownApplicant is returned for documents of an address the
	// registry has never seen.
	ErrUnknownApplicant = errors.New("registry: unknown applicant")
	// ErrNoCriteria is returned when no criteria are configured.
	ErrNoCriteria = errors.New("registry: no criteria configured")
)

// Applicant is one entry of the registry file.
type Applicant struct {
	Address    types.Address  `yaml:"address"`
	Registered *bool          `yaml:"registered,omitempty"`
	Farm       types.FarmData `yaml:"farm"`
	// Digest of the supporting documents. Defaults to the SHA-256 of
	// the encoded farm data.
	DataHash *types.Hash `yaml:"data_hash,omitempty"`
}

// File is the layout of a registry YAML file.
type File struct {
	Criteria   *types.Criteria `yaml:"criteria"`
	Applicants []Applicant     `yaml:"applicants"`
}

type record struct {
	registered bool
	farm       types.FarmData
	dataHash   types.Hash
}

// Registry serves static applicant and policy data. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	applicants map[types.Address]record
	criteria   *types.Criteria
}

var (
	_ harvest.IdentityDirectory = (*Registry)(nil)
	_ harvest.DocumentStore     = (*Registry)(nil)
	_ harvest.PolicyRegistry    = (*Registry)(nil)
)

// New returns an empty registry.
func New() *Registry {
	return &Registry{applicants: make(map[types.Address]record)}
}

// Load reads a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a registry file from YAML.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	r := New()
	if f.Criteria != nil {
		r.SetCriteria(*f.Criteria)
	}
	for i, a := range f.Applicants {
		if a.Address.IsZero() {
			return nil, fmt.Errorf("applicant %d: missing address", i)
		}
		if err := r.Register(a.Address, a.Farm); err != nil {
			return nil, err
		}
		if a.DataHash != nil {
			r.SetDataHash(a.Address, *a.DataHash)
		}
		if a.Registered != nil && !*a.Registered {
			r.Unregister(a.Address)
		}
	}
	return r, nil
}

// Register adds or replaces a registered applicant.
func (r *Registry) Register(who types.Address, farm types.FarmData) error {
	digest, err := FarmDigest(farm)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applicants[who] = record{registered: true, farm: farm, dataHash: digest}
	return nil
}

// Unregister keeps an applicant's documents but removes their
// registration.
func (r *Registry) Unregister(who types.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.applicants[who]; ok {
		rec.registered = false
		r.applicants[who] = rec
	}
}

// SetDataHash overrides an applicant's document digest.
func (r *Registry) SetDataHash(who types.Address, h types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.applicants[who]; ok {
		rec.dataHash = h
		r.applicants[who] = rec
	}
}

// SetCriteria replaces the eligibility criteria.
func (r *Registry) SetCriteria(c types.Criteria) {
	c = cloneCriteria(c)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.criteria = &c
}

// IsRegistered implements harvest.IdentityDirectory.
func (r *Registry) IsRegistered(_ context.Context, who types.Address) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.applicants[who].registered, nil
}

// FarmData implements harvest.DocumentStore.
func (r *Registry) FarmData(_ context.Context, who types.Address) (types.FarmData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.applicants[who]
	if !ok {
		return types.FarmData{}, fmt.Errorf("%w: %s", ErrUnknownApplicant, who)
	}
	return rec.farm, nil
}

// DataHash implements harvest.DocumentStore.
func (r *Registry) DataHash(_ context.Context, who types.Address) (types.Hash, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.applicants[who]
	if !ok {
		return types.Hash{}, fmt.Errorf("%w: %s", ErrUnknownApplicant, who)
	}
	return rec.dataHash, nil
}

// Criteria implements harvest.PolicyRegistry. The result shares no
// memory with the registry.
func (r *Registry) Criteria(context.Context) (types.Criteria, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.criteria == nil {
		return types.Criteria{}, ErrNoCriteria
	}
	return cloneCriteria(*r.criteria), nil
}

// FarmDigest is the default document digest of farm data.
func FarmDigest(farm types.FarmData) (types.Hash, error) {
	data, err := cramberry.Marshal(farm)
	if err != nil {
		return types.Hash{}, fmt.Errorf("registry: digest farm data: %w", err)
	}
	return sha256.Sum256(data), nil
}

func cloneCriteria(c types.Criteria) types.Criteria {
	c.AllowedCrops = slices.Clone(c.AllowedCrops)
	c.ValidLocations = slices.Clone(c.ValidLocations)
	return c
}
