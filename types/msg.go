package types

import (
	"errors"
	"fmt"
)

// Msg is the transaction envelope: the signing sender plus exactly
// one operation payload.
type Msg struct {
	Sender Address `cramberry:"1"`

	CreateSeason        *MsgCreateSeason        `cramberry:"2"`
	CloseSeason         *MsgCloseSeason         `cramberry:"3"`
	Submit              *MsgSubmit              `cramberry:"4"`
	UpdateState         *MsgUpdateState         `cramberry:"5"`
	ClearApplication    *MsgClearApplication    `cramberry:"6"`
	Verify              *MsgVerify              `cramberry:"7"`
	ValidateOracle      *MsgValidateOracle      `cramberry:"8"`
	InitBudget          *MsgInitBudget          `cramberry:"9"`
	TopUpBudget         *MsgTopUpBudget         `cramberry:"10"`
	ExecutePayout       *MsgExecutePayout       `cramberry:"11"`
	BatchPayout         *MsgBatchPayout         `cramberry:"12"`
	Clawback            *MsgClawback            `cramberry:"13"`
	TransferAdmin       *MsgTransferAdmin       `cramberry:"14"`
	SetPause            *MsgSetPause            `cramberry:"15"`
	SetGovernanceParams *MsgSetGovernanceParams `cramberry:"16"`
	FundTreasury        *MsgFundTreasury        `cramberry:"17"`
}

// MsgCreateSeason opens a season and makes it current. Admin only.
type MsgCreateSeason struct {
	StartHeight     uint64 `cramberry:"1"`
	TotalBudget     uint64 `cramberry:"2"`
	MaxPerApplicant uint64 `cramberry:"3"`
}

// MsgCloseSeason stops a season from accepting submissions. Admin only.
type MsgCloseSeason struct {
	SeasonID SeasonID `cramberry:"1"`
}

// MsgSubmit files a claim for the sender.
type MsgSubmit struct {
	SeasonID SeasonID `cramberry:"1"`
	DataHash Hash     `cramberry:"2"`
	Amount   uint64   `cramberry:"3"`
	Notes    string   `cramberry:"4"`
}

// MsgUpdateState forces an application into a state with a score. Admin only.
type MsgUpdateState struct {
	Applicant Address          `cramberry:"1"`
	SeasonID  SeasonID         `cramberry:"2"`
	State     ApplicationState `cramberry:"3"`
	Score     uint8            `cramberry:"4"`
}

// MsgClearApplication deletes an unpaid application. Admin only.
type MsgClearApplication struct {
	Applicant Address  `cramberry:"1"`
	SeasonID  SeasonID `cramberry:"2"`
}

// MsgVerify scores an application against farm data and criteria.
type MsgVerify struct {
	Applicant     Address       `cramberry:"1"`
	ApplicationID ApplicationID `cramberry:"2"`
	ClaimedHash   Hash          `cramberry:"3"`
	RequestOracle bool          `cramberry:"4"`
}

// MsgValidateOracle checks a raw oracle response against a digest.
type MsgValidateOracle struct {
	RequestID      RequestID `cramberry:"1"`
	RawResponse    []byte    `cramberry:"2"`
	ExpectedDigest Hash      `cramberry:"3"`
}

// MsgInitBudget allocates a season budget. Admin only.
type MsgInitBudget struct {
	SeasonID SeasonID `cramberry:"1"`
	Total    uint64   `cramberry:"2"`
}

// MsgTopUpBudget adds to an existing season budget. Admin only.
type MsgTopUpBudget struct {
	SeasonID SeasonID `cramberry:"1"`
	Amount   uint64   `cramberry:"2"`
}

// MsgExecutePayout disburses an approved claim from the treasury. Admin only.
type MsgExecutePayout struct {
	Applicant Address  `cramberry:"1"`
	SeasonID  SeasonID `cramberry:"2"`
	Amount    uint64   `cramberry:"3"`
}

// MsgBatchPayout runs up to Params.MaxBatchSize payouts, each one
// succeeding or failing on its own. Admin only.
type MsgBatchPayout struct {
	Entries []BatchEntry `cramberry:"1"`
}

// MsgClawback reverses a payout and returns the claim to Approved. Admin only.
type MsgClawback struct {
	Applicant Address  `cramberry:"1"`
	SeasonID  SeasonID `cramberry:"2"`
}

// MsgTransferAdmin hands the administrator role to NewAdmin. Only the
// current admin may send it.
type MsgTransferAdmin struct {
	NewAdmin Address `cramberry:"1"`
}

// PauseTarget selects which pause flag a MsgSetPause toggles.
type PauseTarget uint8

const (
	PauseVerification PauseTarget = 1
	PausePayout       PauseTarget = 2
)

// MsgSetPause sets or clears one pause flag. Admin only.
type MsgSetPause struct {
	Target PauseTarget `cramberry:"1"`
	Paused bool        `cramberry:"2"`
}

// MsgSetGovernanceParams records advisory parameters for a governor. Admin only.
type MsgSetGovernanceParams struct {
	Governor      Address `cramberry:"1"`
	Paused        bool    `cramberry:"2"`
	OracleAddress Address `cramberry:"3"`
	MinScore      uint8   `cramberry:"4"`
}

// MsgFundTreasury moves Amount from the sender to the treasury.
type MsgFundTreasury struct {
	Amount uint64 `cramberry:"1"`
}

// Kind returns the operation name of the populated payload, or ""
// when none is set.
func (m *Msg) Kind() string {
	kinds := m.kinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// IsAdmin reports whether the payload is an administrative operation.
func (m *Msg) IsAdmin() bool {
	switch m.Kind() {
	case "submit", "verify", "validate_oracle", "fund_treasury", "":
		return false
	}
	return true
}

// ValidateBasic performs stateless checks on the envelope.
func (m *Msg) ValidateBasic() error {
	if m.Sender.IsZero() {
		return errors.New("msg: missing sender")
	}
	kinds := m.kinds()
	switch len(kinds) {
	case 0:
		return errors.New("msg: no operation")
	case 1:
	default:
		return fmt.Errorf("msg: %d operations set, want 1", len(kinds))
	}
	if m.SetPause != nil && m.SetPause.Target != PauseVerification && m.SetPause.Target != PausePayout {
		return fmt.Errorf("msg: unknown pause target %d", m.SetPause.Target)
	}
	if m.BatchPayout != nil && len(m.BatchPayout.Entries) == 0 {
		return errors.New("msg: empty batch")
	}
	return nil
}

func (m *Msg) kinds() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(m.CreateSeason != nil, "create_season")
	add(m.CloseSeason != nil, "close_season")
	add(m.Submit != nil, "submit")
	add(m.UpdateState != nil, "update_state")
	add(m.ClearApplication != nil, "clear_application")
	add(m.Verify != nil, "verify")
	add(m.ValidateOracle != nil, "validate_oracle")
	add(m.InitBudget != nil, "init_budget")
	add(m.TopUpBudget != nil, "top_up_budget")
	add(m.ExecutePayout != nil, "execute_payout")
	add(m.BatchPayout != nil, "batch_payout")
	add(m.Clawback != nil, "clawback")
	add(m.TransferAdmin != nil, "transfer_admin")
	add(m.SetPause != nil, "set_pause")
	add(m.SetGovernanceParams != nil, "set_governance_params")
	add(m.FundTreasury != nil, "fund_treasury")
	return out
}
