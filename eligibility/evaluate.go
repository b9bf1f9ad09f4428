package eligibility

import "github.com/blockberries/harvest/types"

const (
	// PointsPerCheck is the weight of each of the five predicates.
	PointsPerCheck = 20
	// MinEligibleScore is the lowest passing score.
	MinEligibleScore = 70
)

// Evaluation is the pure outcome of scoring a claim.
type Evaluation struct {
	Score    uint8
	Eligible bool
	Reasons  types.Reasons
	Checks   types.DetailedChecks
}

// Evaluate scores farm data against criteria. Reasons are recorded in
// predicate order: land size, crop, yield, ownership, location.
func Evaluate(data types.FarmData, c types.Criteria, claimed types.Hash) Evaluation {
	var ev Evaluation
	n := 0
	check := func(ok bool, reason types.ReasonCode) bool {
		if ok {
			ev.Score += PointsPerCheck
		} else {
			ev.Reasons[n] = reason
			n++
		}
		return ok
	}

	ev.Checks = types.DetailedChecks{
		LandSizeOK:  check(data.LandSize >= c.MinLandSize, types.ReasonLandTooSmall),
		CropTypeOK:  check(c.AllowsCrop(data.CropType), types.ReasonCropNotAllowed),
		YieldOK:     check(data.Yield > c.YieldFloor, types.ReasonYieldTooLow),
		OwnershipOK: check(data.OwnershipHash == claimed, types.ReasonOwnershipMismatch),
		LocationOK:  check(c.AllowsLocation(data.Location), types.ReasonInvalidLocation),
		LandSize:    data.LandSize,
		CropType:    data.CropType,
		Yield:       data.Yield,
		Location:    data.Location,
	}
	ev.Eligible = ev.Score >= MinEligibleScore
	return ev
}
