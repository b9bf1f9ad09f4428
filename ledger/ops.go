package ledger

import (
	"context"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// ---------------------------------------------------------------------------
// Seasons and applications
// ---------------------------------------------------------------------------

// CreateSeason opens a season and makes it current.
func (l *Ledger) CreateSeason(ctx context.Context, caller types.Address, startHeight, totalBudget, maxPerApplicant uint64) (types.SeasonID, error) {
	var id types.SeasonID
	err := l.apply(ctx, "create_season", func(c *components) (err error) {
		id, err = c.life.CreateSeason(ctx, caller, startHeight, totalBudget, maxPerApplicant)
		return err
	})
	return id, err
}

// CloseSeason closes a season to submissions.
func (l *Ledger) CloseSeason(ctx context.Context, caller types.Address, id types.SeasonID) error {
	return l.apply(ctx, "close_season", func(c *components) error {
		return c.life.CloseSeason(ctx, caller, id)
	})
}

// Submit files a claim for applicant. With VerifyOnSubmit the claim is
// verified in the same unit; a failed verification files nothing.
func (l *Ledger) Submit(ctx context.Context, applicant types.Address, seasonID types.SeasonID, dataHash types.Hash, amount uint64, notes string) (types.ApplicationID, error) {
	var id types.ApplicationID
	err := l.apply(ctx, "submit", func(c *components) (err error) {
		id, err = c.life.Submit(ctx, applicant, seasonID, dataHash, amount, notes)
		return err
	})
	return id, err
}

// UpdateState forces an application's state.
func (l *Ledger) UpdateState(ctx context.Context, caller, applicant types.Address, seasonID types.SeasonID, state types.ApplicationState, score uint8) error {
	return l.apply(ctx, "update_state", func(c *components) error {
		return c.life.UpdateState(ctx, caller, applicant, seasonID, state, score)
	})
}

// ClearApplication deletes an unpaid application.
func (l *Ledger) ClearApplication(ctx context.Context, caller, applicant types.Address, seasonID types.SeasonID) error {
	return l.apply(ctx, "clear_application", func(c *components) error {
		return c.life.ClearApplication(ctx, caller, applicant, seasonID)
	})
}

// ---------------------------------------------------------------------------
// Eligibility
// ---------------------------------------------------------------------------

// Verify scores an application and caches the result.
func (l *Ledger) Verify(ctx context.Context, applicant types.Address, appID types.ApplicationID, claimed types.Hash, requestOracle bool) (types.VerificationResult, error) {
	var res types.VerificationResult
	err := l.apply(ctx, "verify", func(c *components) (err error) {
		res, err = c.elig.Verify(ctx, applicant, appID, claimed, requestOracle)
		return err
	})
	if err == nil {
		l.recorder().RecordScore(ctx, res.Score)
	}
	return res, err
}

// ValidateOracle checks a raw oracle response against its digest.
func (l *Ledger) ValidateOracle(ctx context.Context, id types.RequestID, raw []byte, expected types.Hash) error {
	return l.apply(ctx, "validate_oracle", func(c *components) error {
		return c.elig.ValidateOracle(ctx, id, raw, expected)
	})
}

// ---------------------------------------------------------------------------
// Budgets and payouts
// ---------------------------------------------------------------------------

// InitializeBudget allocates a season's budget.
func (l *Ledger) InitializeBudget(ctx context.Context, caller types.Address, id types.SeasonID, total uint64) error {
	return l.apply(ctx, "init_budget", func(c *components) error {
		return c.budget.Initialize(ctx, caller, id, total)
	})
}

// TopUpBudget increases a season's allocation.
func (l *Ledger) TopUpBudget(ctx context.Context, caller types.Address, id types.SeasonID, amount uint64) error {
	return l.apply(ctx, "top_up_budget", func(c *components) error {
		return c.budget.TopUp(ctx, caller, id, amount)
	})
}

// ExecutePayout pays an approved applicant.
func (l *Ledger) ExecutePayout(ctx context.Context, executor, applicant types.Address, seasonID types.SeasonID, amount uint64) (types.PayoutRecord, error) {
	var rec types.PayoutRecord
	err := l.apply(ctx, "execute_payout", func(c *components) (err error) {
		rec, err = c.pay.ExecutePayout(ctx, executor, applicant, seasonID, amount)
		return err
	})
	if err == nil {
		l.recorder().RecordPayout(ctx, rec.Amount)
	}
	return rec, err
}

// BatchPayout executes up to MaxBatchSize payouts.
func (l *Ledger) BatchPayout(ctx context.Context, executor types.Address, entries []types.BatchEntry) (types.BatchResult, error) {
	var res types.BatchResult
	err := l.apply(ctx, "batch_payout", func(c *components) (err error) {
		res, err = c.pay.BatchPayout(ctx, executor, entries)
		return err
	})
	if err == nil && res.Summary.TotalAmount > 0 {
		l.recorder().RecordPayout(ctx, res.Summary.TotalAmount)
	}
	return res, err
}

// Clawback reverses a payout.
func (l *Ledger) Clawback(ctx context.Context, caller, applicant types.Address, seasonID types.SeasonID) error {
	return l.apply(ctx, "clawback", func(c *components) error {
		return c.pay.Clawback(ctx, caller, applicant, seasonID)
	})
}

// FundTreasury moves amount from sender to the treasury account.
func (l *Ledger) FundTreasury(ctx context.Context, sender types.Address, amount uint64) error {
	const op = "fund_treasury"
	return l.apply(ctx, op, func(c *components) error {
		if amount == 0 {
			return harvest.Errorf(harvest.InvalidAmount, "ledger."+op, "amount must be positive")
		}
		if err := c.bank.Transfer(ctx, sender, c.params.Treasury, amount); err != nil {
			return harvest.Wrap(harvest.TransferFailed, "ledger."+op, err)
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Governance
// ---------------------------------------------------------------------------

// TransferAdmin hands over the administrator role.
func (l *Ledger) TransferAdmin(ctx context.Context, caller, next types.Address) error {
	return l.apply(ctx, "transfer_admin", func(c *components) error {
		return c.gov.TransferAdmin(ctx, caller, next)
	})
}

// SetPause sets the verification or payout pause flag.
func (l *Ledger) SetPause(ctx context.Context, caller types.Address, target types.PauseTarget, paused bool) error {
	return l.apply(ctx, "set_pause", func(c *components) error {
		return c.gov.SetPause(ctx, caller, target, paused)
	})
}

// SetGovernanceParams records advisory parameters for a governor.
func (l *Ledger) SetGovernanceParams(ctx context.Context, caller types.Address, p types.GovernanceParams) error {
	return l.apply(ctx, "set_governance_params", func(c *components) error {
		return c.gov.SetParams(ctx, caller, p)
	})
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// Season returns a season by id.
func (l *Ledger) Season(id types.SeasonID) (s types.Season, ok bool) {
	l.view(func(c *components, _ *State) { s, ok = c.life.Season(id) })
	return s, ok
}

// CurrentSeason returns the most recently created season.
func (l *Ledger) CurrentSeason() (s types.Season, ok bool) {
	l.view(func(c *components, _ *State) { s, ok = c.life.CurrentSeason() })
	return s, ok
}

// Application returns applicant's claim in a season.
func (l *Ledger) Application(applicant types.Address, seasonID types.SeasonID) (a types.Application, ok bool) {
	l.view(func(c *components, _ *State) { a, ok = c.life.Application(applicant, seasonID) })
	return a, ok
}

// Verification returns the cached verification of an application.
func (l *Ledger) Verification(applicant types.Address, appID types.ApplicationID) (r types.VerificationResult, ok bool) {
	l.view(func(c *components, _ *State) { r, ok = c.elig.Result(applicant, appID) })
	return r, ok
}

// Checks returns the detailed checks of an application's verification.
func (l *Ledger) Checks(applicant types.Address, appID types.ApplicationID) (d types.DetailedChecks, ok bool) {
	l.view(func(c *components, _ *State) { d, ok = c.elig.Checks(applicant, appID) })
	return d, ok
}

// Oracle returns an oracle response.
func (l *Ledger) Oracle(id types.RequestID) (r types.OracleResponse, ok bool) {
	l.view(func(c *components, _ *State) { r, ok = c.elig.Oracle(id) })
	return r, ok
}

// Budget returns a season's budget.
func (l *Ledger) Budget(id types.SeasonID) (b types.SeasonBudget, ok bool) {
	l.view(func(c *components, _ *State) { b, ok = c.budget.Budget(id) })
	return b, ok
}

// Payout returns applicant's payout record for a season.
func (l *Ledger) Payout(applicant types.Address, seasonID types.SeasonID) (r types.PayoutRecord, ok bool) {
	l.view(func(c *components, _ *State) { r, ok = c.pay.Record(applicant, seasonID) })
	return r, ok
}

// Batch returns a batch summary.
func (l *Ledger) Batch(id types.BatchID) (b types.BatchPayout, ok bool) {
	l.view(func(c *components, _ *State) { b, ok = c.pay.Batch(id) })
	return b, ok
}

// CanPayout reports whether a payout would pass the record, state and
// budget checks.
func (l *Ledger) CanPayout(applicant types.Address, seasonID types.SeasonID, amount uint64) (ok bool) {
	l.view(func(c *components, _ *State) { ok = c.pay.CanPayout(applicant, seasonID, amount) })
	return ok
}

// GovernanceParams returns a governor's advisory parameters.
func (l *Ledger) GovernanceParams(governor types.Address) (p types.GovernanceParams, ok bool) {
	l.view(func(c *components, _ *State) { p, ok = c.gov.Params(governor) })
	return p, ok
}

// Flags returns the administrator and pause flags.
func (l *Ledger) Flags() (f types.Flags) {
	l.view(func(c *components, _ *State) { f = c.gov.Flags() })
	return f
}

// Params returns the ledger parameters.
func (l *Ledger) Params() (p types.Params) {
	l.view(func(_ *components, st *State) { p = st.Params })
	return p
}

// Balance returns an account's bank balance.
func (l *Ledger) Balance(acct types.Address) (amount uint64) {
	l.view(func(c *components, _ *State) { amount = c.bank.Balance(acct) })
	return amount
}
