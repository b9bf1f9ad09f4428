package app

import (
	"context"
	"encoding/binary"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/types"
)

// deliver decodes tx and applies it to l. A failed operation leaves
// l untouched and reports its error kind as the outcome code.
func deliver(ctx context.Context, l *ledger.Ledger, index uint32, tx types.Tx) types.TxOutcome {
	out := types.TxOutcome{Index: index}
	m, err := DecodeTx(tx)
	if err != nil {
		out.Code = harvest.InvalidTx.Code()
		out.Info = err.Error()
		return out
	}
	data, err := dispatch(ctx, l, m)
	if err != nil {
		out.Code = harvest.KindOf(err).Code()
		out.Info = err.Error()
		return out
	}
	out.Data = data
	return out
}

func dispatch(ctx context.Context, l *ledger.Ledger, m types.Msg) ([]byte, error) {
	from := m.Sender
	switch {
	case m.CreateSeason != nil:
		p := m.CreateSeason
		id, err := l.CreateSeason(ctx, from, p.StartHeight, p.TotalBudget, p.MaxPerApplicant)
		if err != nil {
			return nil, err
		}
		return encodeID(uint64(id)), nil

	case m.CloseSeason != nil:
		return nil, l.CloseSeason(ctx, from, m.CloseSeason.SeasonID)

	case m.Submit != nil:
		p := m.Submit
		id, err := l.Submit(ctx, from, p.SeasonID, p.DataHash, p.Amount, p.Notes)
		if err != nil {
			return nil, err
		}
		return encodeID(uint64(id)), nil

	case m.UpdateState != nil:
		p := m.UpdateState
		return nil, l.UpdateState(ctx, from, p.Applicant, p.SeasonID, p.State, p.Score)

	case m.ClearApplication != nil:
		p := m.ClearApplication
		return nil, l.ClearApplication(ctx, from, p.Applicant, p.SeasonID)

	case m.Verify != nil:
		p := m.Verify
		res, err := l.Verify(ctx, p.Applicant, p.ApplicationID, p.ClaimedHash, p.RequestOracle)
		if err != nil {
			return nil, err
		}
		return encodeRecord(res)

	case m.ValidateOracle != nil:
		p := m.ValidateOracle
		return nil, l.ValidateOracle(ctx, p.RequestID, p.RawResponse, p.ExpectedDigest)

	case m.InitBudget != nil:
		p := m.InitBudget
		return nil, l.InitializeBudget(ctx, from, p.SeasonID, p.Total)

	case m.TopUpBudget != nil:
		p := m.TopUpBudget
		return nil, l.TopUpBudget(ctx, from, p.SeasonID, p.Amount)

	case m.ExecutePayout != nil:
		p := m.ExecutePayout
		rec, err := l.ExecutePayout(ctx, from, p.Applicant, p.SeasonID, p.Amount)
		if err != nil {
			return nil, err
		}
		return encodeRecord(rec)

	case m.BatchPayout != nil:
		res, err := l.BatchPayout(ctx, from, m.BatchPayout.Entries)
		if err != nil {
			return nil, err
		}
		return encodeRecord(res)

	case m.Clawback != nil:
		p := m.Clawback
		return nil, l.Clawback(ctx, from, p.Applicant, p.SeasonID)

	case m.TransferAdmin != nil:
		return nil, l.TransferAdmin(ctx, from, m.TransferAdmin.NewAdmin)

	case m.SetPause != nil:
		p := m.SetPause
		return nil, l.SetPause(ctx, from, p.Target, p.Paused)

	case m.SetGovernanceParams != nil:
		p := m.SetGovernanceParams
		return nil, l.SetGovernanceParams(ctx, from, types.GovernanceParams{
			Governor:      p.Governor,
			Paused:        p.Paused,
			OracleAddress: p.OracleAddress,
			MinScore:      p.MinScore,
		})

	case m.FundTreasury != nil:
		return nil, l.FundTreasury(ctx, from, m.FundTreasury.Amount)
	}
	return nil, harvest.Errorf(harvest.InvalidTx, "dispatch", "no operation in envelope")
}

// encodeID is the outcome data of operations that allocate an ID:
// 8 bytes, big-endian.
func encodeID(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

// DecodeID reverses encodeID.
func DecodeID(data []byte) (uint64, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

func encodeRecord(v any) ([]byte, error) {
	b, err := cramberry.Marshal(v)
	if err != nil {
		return nil, harvest.Wrap(harvest.Internal, "encode outcome", err)
	}
	return b, nil
}
