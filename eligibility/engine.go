// Package eligibility scores claims against farm data and policy
// criteria and caches the outcome for a fixed window of heights.
package eligibility

import (
	"context"
	"crypto/sha256"
	"strconv"

	"github.com/blockberries/cramberry/pkg/cramberry"

	"github.com/blockberries/harvest"
	"github.com/blockberries/harvest/types"
)

// DefaultExpiryWindow is the number of heights a verification result
// stays fresh.
const DefaultExpiryWindow = 144

// ApplicationSource resolves an application by applicant and
// application id.
type ApplicationSource interface {
	ApplicationByID(applicant types.Address, id types.ApplicationID) (types.Application, bool)
}

// PauseGate reports the verification pause flag.
type PauseGate interface {
	VerificationPaused() bool
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Applications ApplicationSource
	Gate         PauseGate
	Documents    harvest.DocumentStore
	Policy       harvest.PolicyRegistry
	Clock        harvest.Clock
	Events       harvest.EventSink
	// Zero means DefaultExpiryWindow.
	ExpiryWindow uint64
}

// Engine applies verifications to a Store.
type Engine struct {
	store *Store
	deps  Deps
}

// New returns an Engine over store.
func New(store *Store, deps Deps) *Engine {
	if deps.ExpiryWindow == 0 {
		deps.ExpiryWindow = DefaultExpiryWindow
	}
	return &Engine{store: store, deps: deps}
}

// Verify scores the application and caches the result. A fresh result
// already on record is not replaced. The application, and with it the
// season the result is filed under, is resolved through
// ApplicationSource.
func (e *Engine) Verify(ctx context.Context, applicant types.Address, appID types.ApplicationID, claimed types.Hash, requestOracle bool) (types.VerificationResult, error) {
	const op = "eligibility.verify"
	if e.deps.Gate.VerificationPaused() {
		return types.VerificationResult{}, harvest.Errorf(harvest.Paused, op, "verification is paused")
	}
	app, ok := e.deps.Applications.ApplicationByID(applicant, appID)
	if !ok {
		return types.VerificationResult{}, harvest.Errorf(harvest.NoApplication, op, "no application %d for %s", appID, applicant)
	}
	return e.verify(ctx, op, app, claimed, requestOracle)
}

// VerifyApplication is Verify for an application the caller already
// holds, such as one being submitted.
func (e *Engine) VerifyApplication(ctx context.Context, app types.Application, claimed types.Hash, requestOracle bool) (types.VerificationResult, error) {
	const op = "eligibility.verify"
	if e.deps.Gate.VerificationPaused() {
		return types.VerificationResult{}, harvest.Errorf(harvest.Paused, op, "verification is paused")
	}
	return e.verify(ctx, op, app, claimed, requestOracle)
}

func (e *Engine) verify(ctx context.Context, op string, app types.Application, claimed types.Hash, requestOracle bool) (types.VerificationResult, error) {
	applicant, appID := app.Applicant, app.ApplicationID
	now := e.deps.Clock.Height()
	key := keyOf(app)
	if prev, ok := e.store.results[key]; ok && !prev.Expired(now, e.deps.ExpiryWindow) {
		return types.VerificationResult{}, harvest.Errorf(harvest.AlreadyVerified, op,
			"verified at %d, fresh until %d", prev.CheckedAt, prev.CheckedAt+e.deps.ExpiryWindow)
	}

	data, err := e.deps.Documents.FarmData(ctx, applicant)
	if err != nil {
		return types.VerificationResult{}, harvest.Wrap(harvest.InvalidData, op, err)
	}
	criteria, err := e.deps.Policy.Criteria(ctx)
	if err != nil {
		return types.VerificationResult{}, harvest.Wrap(harvest.InvalidCriteria, op, err)
	}
	digest, err := e.deps.Documents.DataHash(ctx, applicant)
	if err != nil {
		return types.VerificationResult{}, harvest.Wrap(harvest.InvalidData, op, err)
	}

	ev := Evaluate(data, criteria, claimed)
	result := types.VerificationResult{
		Applicant:     applicant,
		SeasonID:      app.SeasonID,
		ApplicationID: appID,
		IsEligible:    ev.Eligible,
		CheckedAt:     now,
		Score:         ev.Score,
		Reasons:       ev.Reasons,
	}
	checks := ev.Checks
	checks.Applicant = applicant
	checks.SeasonID = app.SeasonID
	checks.ApplicationID = appID
	checks.DocumentDigest = digest

	if requestOracle {
		sum, err := OracleDigest(applicant, appID, claimed, now)
		if err != nil {
			return types.VerificationResult{}, harvest.Wrap(harvest.Internal, op, err)
		}
		resp := types.OracleResponse{
			RequestID:      e.store.lastRequest + 1,
			ResponseDigest: sum,
			Timestamp:      now,
			Verified:       true,
		}
		result.RequestID = resp.RequestID
		result.OracleValidated = true
		e.store.lastRequest = resp.RequestID
		e.store.oracle[resp.RequestID] = resp
	}
	e.store.results[key] = result
	e.store.checks[key] = checks

	e.deps.Events.Emit(types.Event{Kind: types.EventVerification, Attributes: []types.EventAttribute{
		types.Attr("applicant", applicant.String()),
		types.Attr("season", strconv.FormatUint(uint64(app.SeasonID), 10)),
		types.Attr("application", strconv.FormatUint(uint64(appID), 10)),
		{Key: "score", Value: strconv.Itoa(int(result.Score))},
		{Key: "eligible", Value: strconv.FormatBool(result.IsEligible)},
		{Key: "request", Value: strconv.FormatUint(uint64(result.RequestID), 10)},
	}})
	return result, nil
}

type oracleInput struct {
	Applicant     types.Address       `cramberry:"1"`
	ApplicationID types.ApplicationID `cramberry:"2"`
	Claimed       types.Hash          `cramberry:"3"`
	Height        uint64              `cramberry:"4"`
}

// ValidateOracle checks a raw oracle response against the expected
// digest and marks the request verified on a match.
func (e *Engine) ValidateOracle(_ context.Context, id types.RequestID, raw []byte, expected types.Hash) error {
	const op = "eligibility.validate_oracle"
	resp, ok := e.store.oracle[id]
	if !ok {
		return harvest.Errorf(harvest.InvalidParameter, op, "unknown oracle request %d", id)
	}
	if types.Hash(sha256.Sum256(raw)) != expected {
		return harvest.Errorf(harvest.OracleFailure, op, "response digest mismatch for request %d", id)
	}
	resp.Verified = true
	e.store.oracle[id] = resp
	e.deps.Events.Emit(types.Event{Kind: types.EventOracleValidated, Attributes: []types.EventAttribute{
		types.Attr("request", strconv.FormatUint(uint64(id), 10)),
	}})
	return nil
}

// Result returns the cached verification of an application, resolved
// to a season the same way Verify does.
func (e *Engine) Result(applicant types.Address, appID types.ApplicationID) (types.VerificationResult, bool) {
	key, ok := e.resolve(applicant, appID)
	if !ok {
		return types.VerificationResult{}, false
	}
	r, ok := e.store.results[key]
	return r, ok
}

// Checks returns the detailed checks of an application's last
// verification.
func (e *Engine) Checks(applicant types.Address, appID types.ApplicationID) (types.DetailedChecks, bool) {
	key, ok := e.resolve(applicant, appID)
	if !ok {
		return types.DetailedChecks{}, false
	}
	c, ok := e.store.checks[key]
	return c, ok
}

// ResultIn returns the cached verification of an application in a
// given season.
func (e *Engine) ResultIn(applicant types.Address, season types.SeasonID, appID types.ApplicationID) (types.VerificationResult, bool) {
	r, ok := e.store.results[resultKey{applicant, season, appID}]
	return r, ok
}

// resolve finds the key of an application. A cleared application is no
// longer resolvable through ApplicationSource; its newest result is
// used instead.
func (e *Engine) resolve(applicant types.Address, appID types.ApplicationID) (resultKey, bool) {
	if app, ok := e.deps.Applications.ApplicationByID(applicant, appID); ok {
		return keyOf(app), true
	}
	var (
		best  resultKey
		found bool
	)
	for k := range e.store.results {
		if k.applicant == applicant && k.app == appID && (!found || k.season > best.season) {
			best, found = k, true
		}
	}
	return best, found
}

// Oracle returns an oracle response by request id.
func (e *Engine) Oracle(id types.RequestID) (types.OracleResponse, bool) {
	r, ok := e.store.oracle[id]
	return r, ok
}

// OracleDigest returns the digest Verify records for an oracle request
// made with these inputs at height.
func OracleDigest(applicant types.Address, appID types.ApplicationID, claimed types.Hash, height uint64) (types.Hash, error) {
	raw, err := cramberry.Marshal(oracleInput{applicant, appID, claimed, height})
	if err != nil {
		return types.Hash{}, err
	}
	return sha256.Sum256(raw), nil
}
