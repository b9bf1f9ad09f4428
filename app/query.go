package app

import (
	"context"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/types"
)

// EncodeQuery builds a StateQuery for path with args.
func EncodeQuery(path types.QueryPath, args types.QueryArgs) (types.StateQuery, error) {
	data, err := cramberry.Marshal(args)
	if err != nil {
		return types.StateQuery{}, err
	}
	return types.StateQuery{Path: path, Data: data}, nil
}

// Query reads committed state. Misses are reported through Code, using
// the same kind codes as transaction outcomes.
func (app *App) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	l, err := app.committed()
	if err != nil {
		return types.StateQueryResult{}, err
	}
	height := l.Height()

	var args types.QueryArgs
	if len(req.Data) > 0 {
		if err := cramberry.Unmarshal(req.Data, &args); err != nil {
			return missing(harvest.InvalidParameter, height, "decode query args: "+err.Error()), nil
		}
	}

	value, kind := lookup(l, req.Path, args)
	if kind != harvest.KindNone {
		return missing(kind, height, string(req.Path)+": "+kind.String()), nil
	}
	data, err := cramberry.Marshal(value)
	if err != nil {
		return types.StateQueryResult{}, harvest.Wrap(harvest.Internal, "query", err)
	}
	return types.StateQueryResult{Key: req.Data, Value: data, Height: height}, nil
}

func lookup(l *ledger.Ledger, path types.QueryPath, args types.QueryArgs) (any, harvest.Kind) {
	found := func(v any, ok bool, miss harvest.Kind) (any, harvest.Kind) {
		if !ok {
			return nil, miss
		}
		return v, harvest.KindNone
	}

	switch path {
	case types.PathSeason:
		s, ok := l.Season(args.SeasonID)
		return found(s, ok, harvest.InvalidSeason)
	case types.PathCurrentSeason:
		s, ok := l.CurrentSeason()
		return found(s, ok, harvest.InvalidSeason)
	case types.PathApplication:
		a, ok := l.Application(args.Applicant, args.SeasonID)
		return found(a, ok, harvest.NoApplication)
	case types.PathVerification:
		r, ok := l.Verification(args.Applicant, args.ApplicationID)
		return found(r, ok, harvest.NoApplication)
	case types.PathChecks:
		d, ok := l.Checks(args.Applicant, args.ApplicationID)
		return found(d, ok, harvest.NoApplication)
	case types.PathOracle:
		r, ok := l.Oracle(args.RequestID)
		return found(r, ok, harvest.InvalidParameter)
	case types.PathBudget:
		b, ok := l.Budget(args.SeasonID)
		return found(b, ok, harvest.InvalidSeason)
	case types.PathPayout:
		r, ok := l.Payout(args.Applicant, args.SeasonID)
		return found(r, ok, harvest.NoApplication)
	case types.PathBatch:
		b, ok := l.Batch(args.BatchID)
		return found(b, ok, harvest.InvalidParameter)
	case types.PathGovernance:
		p, ok := l.GovernanceParams(args.Applicant)
		return found(p, ok, harvest.InvalidParameter)
	case types.PathAdmin:
		return l.Flags(), harvest.KindNone
	case types.PathParams:
		return l.Params(), harvest.KindNone
	case types.PathBalance:
		return types.Balance{Account: args.Applicant, Amount: l.Balance(args.Applicant)}, harvest.KindNone
	case types.PathCanPayout:
		return types.PayoutCheck{
			Applicant: args.Applicant,
			SeasonID:  args.SeasonID,
			Amount:    args.Amount,
			Allowed:   l.CanPayout(args.Applicant, args.SeasonID, args.Amount),
		}, harvest.KindNone
	}
	return nil, harvest.InvalidParameter
}

func missing(kind harvest.Kind, height uint64, info string) types.StateQueryResult {
	return types.StateQueryResult{Code: kind.Code(), Height: height, Info: info}
}
