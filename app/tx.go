package app

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest/types"
)

// EncodeMsg encodes a transaction envelope.
func EncodeMsg(m types.Msg) (types.Tx, error) {
	data, err := cramberry.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode msg: %w", err)
	}
	return data, nil
}

// DecodeTx decodes and statelessly validates a transaction envelope.
func DecodeTx(tx types.Tx) (types.Msg, error) {
	var m types.Msg
	if len(tx) == 0 {
		return m, fmt.Errorf("empty transaction")
	}
	if err := cramberry.Unmarshal(tx, &m); err != nil {
		return m, fmt.Errorf("decode msg: %w", err)
	}
	if err := m.ValidateBasic(); err != nil {
		return m, err
	}
	return m, nil
}

// ---------------------------------------------------------------------------
// Transaction builders
// ---------------------------------------------------------------------------

func mustEncode(m types.Msg) types.Tx {
	tx, err := EncodeMsg(m)
	if err != nil {
		panic(err)
	}
	return tx
}

// CreateSeasonTx opens a season.
func CreateSeasonTx(sender types.Address, start, budget, maxPerApplicant uint64) types.Tx {
	return mustEncode(types.Msg{Sender: sender, CreateSeason: &types.MsgCreateSeason{
		StartHeight: start, TotalBudget: budget, MaxPerApplicant: maxPerApplicant,
	}})
}

// CloseSeasonTx closes a season.
func CloseSeasonTx(sender types.Address, season types.SeasonID) types.Tx {
	return mustEncode(types.Msg{Sender: sender, CloseSeason: &types.MsgCloseSeason{SeasonID: season}})
}

// SubmitTx files a claim for sender.
func SubmitTx(sender types.Address, season types.SeasonID, dataHash types.Hash, amount uint64, notes string) types.Tx {
	return mustEncode(types.Msg{Sender: sender, Submit: &types.MsgSubmit{
		SeasonID: season, DataHash: dataHash, Amount: amount, Notes: notes,
	}})
}

// UpdateStateTx forces an application's state.
func UpdateStateTx(sender, applicant types.Address, season types.SeasonID, state types.ApplicationState, score uint8) types.Tx {
	return mustEncode(types.Msg{Sender: sender, UpdateState: &types.MsgUpdateState{
		Applicant: applicant, SeasonID: season, State: state, Score: score,
	}})
}

// ClearApplicationTx deletes an unpaid application.
func ClearApplicationTx(sender, applicant types.Address, season types.SeasonID) types.Tx {
	return mustEncode(types.Msg{Sender: sender, ClearApplication: &types.MsgClearApplication{
		Applicant: applicant, SeasonID: season,
	}})
}

// VerifyTx requests verification of an application.
func VerifyTx(sender, applicant types.Address, appID types.ApplicationID, claimed types.Hash, oracle bool) types.Tx {
	return mustEncode(types.Msg{Sender: sender, Verify: &types.MsgVerify{
		Applicant: applicant, ApplicationID: appID, ClaimedHash: claimed, RequestOracle: oracle,
	}})
}

// ValidateOracleTx validates an oracle response.
func ValidateOracleTx(sender types.Address, id types.RequestID, raw []byte, expected types.Hash) types.Tx {
	return mustEncode(types.Msg{Sender: sender, ValidateOracle: &types.MsgValidateOracle{
		RequestID: id, RawResponse: raw, ExpectedDigest: expected,
	}})
}

// InitBudgetTx initializes a season budget.
func InitBudgetTx(sender types.Address, season types.SeasonID, total uint64) types.Tx {
	return mustEncode(types.Msg{Sender: sender, InitBudget: &types.MsgInitBudget{SeasonID: season, Total: total}})
}

// TopUpBudgetTx increases a season budget.
func TopUpBudgetTx(sender types.Address, season types.SeasonID, amount uint64) types.Tx {
	return mustEncode(types.Msg{Sender: sender, TopUpBudget: &types.MsgTopUpBudget{SeasonID: season, Amount: amount}})
}

// PayoutTx executes a single payout.
func PayoutTx(sender, applicant types.Address, season types.SeasonID, amount uint64) types.Tx {
	return mustEncode(types.Msg{Sender: sender, ExecutePayout: &types.MsgExecutePayout{
		Applicant: applicant, SeasonID: season, Amount: amount,
	}})
}

// BatchPayoutTx executes a batch of payouts.
func BatchPayoutTx(sender types.Address, entries ...types.BatchEntry) types.Tx {
	return mustEncode(types.Msg{Sender: sender, BatchPayout: &types.MsgBatchPayout{Entries: entries}})
}

// ClawbackTx reverses a payout.
func ClawbackTx(sender, applicant types.Address, season types.SeasonID) types.Tx {
	return mustEncode(types.Msg{Sender: sender, Clawback: &types.MsgClawback{Applicant: applicant, SeasonID: season}})
}

// TransferAdminTx hands over the administrator role.
func TransferAdminTx(sender, next types.Address) types.Tx {
	return mustEncode(types.Msg{Sender: sender, TransferAdmin: &types.MsgTransferAdmin{NewAdmin: next}})
}

// SetPauseTx sets a pause flag.
func SetPauseTx(sender types.Address, target types.PauseTarget, paused bool) types.Tx {
	return mustEncode(types.Msg{Sender: sender, SetPause: &types.MsgSetPause{Target: target, Paused: paused}})
}

// SetGovernanceParamsTx records advisory parameters for a governor.
func SetGovernanceParamsTx(sender, governor types.Address, paused bool, oracle types.Address, minScore uint8) types.Tx {
	return mustEncode(types.Msg{Sender: sender, SetGovernanceParams: &types.MsgSetGovernanceParams{
		Governor: governor, Paused: paused, OracleAddress: oracle, MinScore: minScore,
	}})
}

// FundTreasuryTx moves funds from sender to the treasury.
func FundTreasuryTx(sender types.Address, amount uint64) types.Tx {
	return mustEncode(types.Msg{Sender: sender, FundTreasury: &types.MsgFundTreasury{Amount: amount}})
}
