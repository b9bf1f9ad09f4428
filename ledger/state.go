package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest/bank"
	"github.com/blockberries/harvest/budget"
	"github.com/blockberries/harvest/eligibility"
	"github.com/blockberries/harvest/governance"
	"github.com/blockberries/harvest/lifecycle"
	"github.com/blockberries/harvest/payout"
	"github.com/blockberries/harvest/types"
)

// DefaultParams returns the parameters used for zero-valued genesis
// fields. The submission trigger stays off unless genesis enables it;
// see types.Params.VerifyOnSubmit.
func DefaultParams() types.Params {
	return types.Params{
		ExpiryWindow:   eligibility.DefaultExpiryWindow,
		DeadlineOffset: lifecycle.DefaultDeadlineOffset,
		MaxBatchSize:   payout.DefaultMaxBatchSize,
		VerifyOnSubmit: false,
	}
}

// State is the complete ledger state. Each component owns its store;
// nothing outside the component mutates it.
type State struct {
	Height uint64
	Params types.Params

	governance  *governance.Store
	bank        *bank.Store
	budget      *budget.Store
	eligibility *eligibility.Store
	lifecycle   *lifecycle.Store
	payout      *payout.Store
}

// NewState builds the genesis state at height.
func NewState(g types.AppGenesis, height uint64) (*State, error) {
	if g.Admin.IsZero() {
		return nil, errors.New("genesis: admin is required")
	}
	p := g.Params
	def := DefaultParams()
	if p.ExpiryWindow == 0 {
		p.ExpiryWindow = def.ExpiryWindow
	}
	if p.DeadlineOffset == 0 {
		p.DeadlineOffset = def.DeadlineOffset
	}
	if p.MaxBatchSize == 0 {
		p.MaxBatchSize = def.MaxBatchSize
	}
	if p.Treasury.IsZero() {
		return nil, errors.New("genesis: treasury account is required")
	}
	bal, err := bank.Import(g.Balances)
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return &State{
		Height:      height,
		Params:      p,
		governance:  governance.NewStore(g.Admin),
		bank:        bal,
		budget:      budget.NewStore(),
		eligibility: eligibility.NewStore(),
		lifecycle:   lifecycle.NewStore(),
		payout:      payout.NewStore(),
	}, nil
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	return &State{
		Height:      s.Height,
		Params:      s.Params,
		governance:  s.governance.Clone(),
		bank:        s.bank.Clone(),
		budget:      s.budget.Clone(),
		eligibility: s.eligibility.Clone(),
		lifecycle:   s.lifecycle.Clone(),
		payout:      s.payout.Clone(),
	}
}

// Export is the deterministic encoding of a State. It is what the
// app hash covers and what snapshots carry.
type Export struct {
	Height      uint64               `cramberry:"1"`
	Params      types.Params         `cramberry:"2"`
	Governance  governance.Export    `cramberry:"3"`
	Balances    []types.Balance      `cramberry:"4"`
	Budgets     []types.SeasonBudget `cramberry:"5"`
	Eligibility eligibility.Export   `cramberry:"6"`
	Lifecycle   lifecycle.Export     `cramberry:"7"`
	Payouts     payout.Export        `cramberry:"8"`
}

// Export returns the deterministic form of s.
func (s *State) Export() Export {
	return Export{
		Height:      s.Height,
		Params:      s.Params,
		Governance:  s.governance.Export(),
		Balances:    s.bank.Export(),
		Budgets:     s.budget.Export(),
		Eligibility: s.eligibility.Export(),
		Lifecycle:   s.lifecycle.Export(),
		Payouts:     s.payout.Export(),
	}
}

// ImportState rebuilds a State from its export.
func ImportState(e Export) (*State, error) {
	bal, err := bank.Import(e.Balances)
	if err != nil {
		return nil, err
	}
	return &State{
		Height:      e.Height,
		Params:      e.Params,
		governance:  governance.Import(e.Governance),
		bank:        bal,
		budget:      budget.Import(e.Budgets),
		eligibility: eligibility.Import(e.Eligibility),
		lifecycle:   lifecycle.Import(e.Lifecycle),
		payout:      payout.Import(e.Payouts),
	}, nil
}

// Encode returns the cramberry encoding of the exported state.
func (s *State) Encode() ([]byte, error) {
	return cramberry.Marshal(s.Export())
}

// DecodeState parses the output of Encode.
func DecodeState(data []byte) (*State, error) {
	var e Export
	if err := cramberry.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return ImportState(e)
}

// AppHash is the SHA-256 of the encoded state.
func (s *State) AppHash() (types.AppHash, error) {
	data, err := s.Encode()
	if err != nil {
		return types.AppHash{}, fmt.Errorf("app hash: %w", err)
	}
	return sha256.Sum256(data), nil
}
