package types

import (
	"fmt"
	"slices"
)

// MaxReasons is the capacity of a verification's reason list.
const MaxReasons = 5

// ReasonCode names a failed eligibility predicate.
type ReasonCode uint8

const (
	ReasonNone ReasonCode = iota
	ReasonLandTooSmall
	ReasonCropNotAllowed
	ReasonYieldTooLow
	ReasonOwnershipMismatch
	ReasonInvalidLocation
)

func (r ReasonCode) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLandTooSmall:
		return "land_too_small"
	case ReasonCropNotAllowed:
		return "crop_not_allowed"
	case ReasonYieldTooLow:
		return "yield_too_low"
	case ReasonOwnershipMismatch:
		return "ownership_mismatch"
	case ReasonInvalidLocation:
		return "invalid_location"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Reasons holds failure reasons in predicate-evaluation order, padded
// with ReasonNone.
type Reasons [MaxReasons]ReasonCode

// List returns the non-empty reasons.
func (r Reasons) List() []ReasonCode {
	out := make([]ReasonCode, 0, MaxReasons)
	for _, c := range r {
		if c != ReasonNone {
			out = append(out, c)
		}
	}
	return out
}

// VerificationResult is the cached outcome of an eligibility check,
// keyed by (Applicant, SeasonID, ApplicationID). Application ids restart
// in every season, so the season is part of the key.
type VerificationResult struct {
	Applicant       Address       `cramberry:"1"`
	ApplicationID   ApplicationID `cramberry:"2"`
	IsEligible      bool          `cramberry:"3"`
	CheckedAt       uint64        `cramberry:"4"`
	Score           uint8         `cramberry:"5"`
	Reasons         Reasons       `cramberry:"6"`
	OracleValidated bool          `cramberry:"7"`
	// Zero when no oracle request was made.
	RequestID RequestID `cramberry:"8"`
	SeasonID  SeasonID  `cramberry:"9"`
}

// Expired reports whether the result may be replaced at height now.
func (v VerificationResult) Expired(now, window uint64) bool {
	return now < v.CheckedAt || now-v.CheckedAt >= window
}

// DetailedChecks records the per-predicate outcome of a verification.
// Diagnostic only.
type DetailedChecks struct {
	Applicant      Address       `cramberry:"1"`
	ApplicationID  ApplicationID `cramberry:"2"`
	LandSizeOK     bool          `cramberry:"3"`
	CropTypeOK     bool          `cramberry:"4"`
	YieldOK        bool          `cramberry:"5"`
	OwnershipOK    bool          `cramberry:"6"`
	LocationOK     bool          `cramberry:"7"`
	LandSize       uint64        `cramberry:"8"`
	CropType       string        `cramberry:"9"`
	Yield          uint64        `cramberry:"10"`
	Location       string        `cramberry:"11"`
	DocumentDigest Hash          `cramberry:"12"`
	SeasonID       SeasonID      `cramberry:"13"`
}

// OracleResponse is the record of an external validation request.
type OracleResponse struct {
	RequestID      RequestID `cramberry:"1"`
	ResponseDigest Hash      `cramberry:"2"`
	Timestamp      uint64    `cramberry:"3"`
	Verified       bool      `cramberry:"4"`
}

// FarmData is the Document Store's snapshot of an applicant's holding.
type FarmData struct {
	LandSize      uint64 `cramberry:"1" yaml:"land_size"`
	CropType      string `cramberry:"2" yaml:"crop_type"`
	Yield         uint64 `cramberry:"3" yaml:"yield"`
	OwnershipHash Hash   `cramberry:"4" yaml:"ownership_hash"`
	Location      string `cramberry:"5" yaml:"location"`
}

// Criteria is the Policy Registry's eligibility rule snapshot.
type Criteria struct {
	MinLandSize    uint64   `cramberry:"1" yaml:"min_land_size"`
	AllowedCrops   []string `cramberry:"2" yaml:"allowed_crops"`
	YieldFloor     uint64   `cramberry:"3" yaml:"yield_floor"`
	ValidLocations []string `cramberry:"4" yaml:"valid_locations"`
}

// AllowsCrop reports whether crop is in the allowed set.
func (c Criteria) AllowsCrop(crop string) bool {
	return slices.Contains(c.AllowedCrops, crop)
}

// AllowsLocation reports whether loc is a valid location.
func (c Criteria) AllowsLocation(loc string) bool {
	return slices.Contains(c.ValidLocations, loc)
}
