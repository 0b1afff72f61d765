package lifecycle

import (
	"fmt"
	"time"
)

// Engine applies the four report operations and the capability
// administration operations. Each operation either fails a precondition and
// leaves every registry untouched, or applies all of its effects and then
// emits its events.
type Engine struct {
	policy     Policy
	roles      *RoleRegistry
	nullifiers *NullifierRegistry
	reports    *ReportStore
	notifier   Notifier
}

func NewEngine(policy Policy, notifier Notifier, genesis ...Grant) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	for _, g := range genesis {
		if !g.Capability.Valid() {
			return nil, fmt.Errorf("%w: genesis grant for %q", ErrInvalidCapability, g.Principal)
		}
	}
	if notifier == nil {
		notifier = Discard
	}
	return &Engine{
		policy:     policy,
		roles:      NewRoleRegistry(genesis...),
		nullifiers: NewNullifierRegistry(),
		reports:    NewReportStore(),
		notifier:   notifier,
	}, nil
}

// SetNotifier replaces the event sink. A nil notifier discards events.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = Discard
	}
	e.notifier = n
}

func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) Report(id ReportID) (Report, bool) { return e.reports.Get(id) }

func (e *Engine) HasCapability(p Principal, c Capability) bool {
	return e.roles.HasCapability(p, c)
}

func (e *Engine) Grants() []Grant { return e.roles.Grants() }

func (e *Engine) SubmissionUsed(n Nullifier) bool { return e.nullifiers.SubmissionUsed(n) }

func (e *Engine) VoteUsed(k VoteKey) bool { return e.nullifiers.VoteUsed(k) }

// Stats is a point-in-time summary of the registries.
type Stats struct {
	Reports              int            `json:"reports"`
	ByStatus             map[Status]int `json:"by_status"`
	SubmissionNullifiers int            `json:"submission_nullifiers"`
	VoteNullifiers       int            `json:"vote_nullifiers"`
	Grants               int            `json:"grants"`
}

func (e *Engine) Stats() Stats {
	subs, votes := e.nullifiers.Counts()
	return Stats{
		Reports:              e.reports.Len(),
		ByStatus:             e.reports.CountByStatus(),
		SubmissionNullifiers: subs,
		VoteNullifiers:       votes,
		Grants:               len(e.roles.members),
	}
}

func (e *Engine) require(caller Principal, c Capability) error {
	if !e.roles.HasCapability(caller, c) {
		return fmt.Errorf("%w: %q lacks %s", ErrAccessDenied, caller, c)
	}
	return nil
}

func (e *Engine) emit(events ...Event) {
	for _, ev := range events {
		e.notifier.Notify(ev)
	}
}

// SubmitReport creates a report in PendingValidation backed by a fresh
// submission nullifier.
func (e *Engine) SubmitReport(caller Principal, evidence string, nullifier Nullifier, now time.Time) (ReportID, error) {
	if err := e.require(caller, CapabilitySubmit); err != nil {
		return 0, err
	}
	if err := e.nullifiers.registerSubmission(nullifier); err != nil {
		return 0, err
	}
	r := e.reports.create(evidence, nullifier, now, e.policy.ExpirationTimeout)
	e.emit(ReportCreated{ID: r.ID, EvidenceReference: evidence, Timestamp: now})
	return r.ID, nil
}

// VoteOnReport tallies one phase-scoped vote and applies any threshold
// transition in the same step.
//
// In the RejectionReview phase support=true upholds the authority's
// rejection (closing the report) and support=false appeals it.
func (e *Engine) VoteOnReport(caller Principal, id ReportID, support bool, nullifier Nullifier, phase Phase, now time.Time) (Report, error) {
	if err := e.require(caller, CapabilitySubmit); err != nil {
		return Report{}, err
	}
	if !phase.Valid() {
		return Report{}, fmt.Errorf("%w: %d", ErrInvalidPhase, uint8(phase))
	}
	current, ok := e.reports.Get(id)
	if !ok {
		return Report{}, fmt.Errorf("%w: %d", ErrReportNotFound, id)
	}
	if current.Expired(now) {
		return Report{}, fmt.Errorf("%w: report %d expired at %s", ErrReportExpired, id, current.ExpiresAt.Format(time.RFC3339))
	}
	if current.Status != phase.Status() {
		return Report{}, fmt.Errorf("%w: report %d is %s, vote is for %s", ErrWrongPhaseForStatus, id, current.Status, phase)
	}
	if err := e.nullifiers.registerVote(VoteKey{ReportID: id, Phase: phase, Nullifier: nullifier}); err != nil {
		return Report{}, err
	}

	old := current.Status
	updated, err := e.reports.mutate(id, func(r *Report) {
		if support {
			r.VotesFor++
		} else {
			r.VotesAgainst++
		}
		e.evaluate(r, support)
	})
	if err != nil {
		return Report{}, err
	}

	if updated.Status != old {
		e.emit(StatusChanged{ID: id, OldStatus: old, NewStatus: updated.Status, Actor: AutomaticActor, ReopenCount: updated.ReopenCount, Timestamp: now})
	}
	e.emit(VoteCast{ID: id, Phase: phase, Support: support, ResultingStatus: updated.Status, Timestamp: now})
	return updated, nil
}

// evaluate applies the automatic transition triggered by the vote just
// tallied, if its threshold has been reached.
func (e *Engine) evaluate(r *Report, support bool) {
	p := e.policy
	next := r.Status
	switch r.Status {
	case StatusPendingValidation:
		if support && r.VotesFor >= p.ValidationThreshold {
			next = StatusOpen
		} else if !support && r.VotesAgainst >= p.RejectionThreshold {
			next = StatusCommunityRejected
		}
	case StatusPendingVerification:
		if support && r.VotesFor >= p.VerificationThreshold {
			next = StatusClosed
		} else if !support && r.VotesAgainst >= p.ReopenThreshold {
			r.ReopenCount++
			if r.ReopenCount < p.ReopenLimit {
				next = StatusReopened
			} else {
				next = StatusClosed
			}
		}
	case StatusPendingRejectionReview:
		if support && r.VotesFor >= p.UpholdRejectionThreshold {
			next = StatusClosed
		} else if !support && r.VotesAgainst >= p.AppealThreshold {
			next = StatusOpen
		}
	}
	if next != r.Status {
		r.Status = next
		r.ActionedBy = AutomaticActor
	}
}

// MarkAsSolved moves an Open or Reopened report into community verification.
func (e *Engine) MarkAsSolved(caller Principal, id ReportID, now time.Time) (Report, error) {
	return e.authorityAction(caller, id, now, StatusPendingVerification, StatusOpen, StatusReopened)
}

// RejectIssue moves an Open report into rejection review. Reopened reports
// cannot be rejected.
func (e *Engine) RejectIssue(caller Principal, id ReportID, now time.Time) (Report, error) {
	return e.authorityAction(caller, id, now, StatusPendingRejectionReview, StatusOpen)
}

func (e *Engine) authorityAction(caller Principal, id ReportID, now time.Time, to Status, from ...Status) (Report, error) {
	if err := e.require(caller, CapabilityAuthority); err != nil {
		return Report{}, err
	}
	current, ok := e.reports.Get(id)
	if !ok {
		return Report{}, fmt.Errorf("%w: %d", ErrReportNotFound, id)
	}
	allowed := false
	for _, s := range from {
		if current.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return Report{}, fmt.Errorf("%w: report %d is %s", ErrInvalidStateForAction, id, current.Status)
	}

	actor := ManualActor(caller)
	updated, err := e.reports.mutate(id, func(r *Report) {
		r.Status = to
		r.VotesFor = 0
		r.VotesAgainst = 0
		r.ActionedBy = actor
	})
	if err != nil {
		return Report{}, err
	}
	e.emit(StatusChanged{ID: id, OldStatus: current.Status, NewStatus: to, Actor: actor, ReopenCount: updated.ReopenCount, Timestamp: now})
	return updated, nil
}

// GrantCapability adds target to the capability set. Granting an existing
// membership is a no-op and emits nothing.
func (e *Engine) GrantCapability(caller, target Principal, c Capability, now time.Time) error {
	return e.changeCapability(caller, target, c, true, now)
}

// RevokeCapability removes target from the capability set. Revoking a
// missing membership is a no-op and emits nothing.
func (e *Engine) RevokeCapability(caller, target Principal, c Capability, now time.Time) error {
	return e.changeCapability(caller, target, c, false, now)
}

func (e *Engine) changeCapability(caller, target Principal, c Capability, grant bool, now time.Time) error {
	if err := e.require(caller, CapabilityAdmin); err != nil {
		return err
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCapability, uint8(c))
	}
	g := Grant{Principal: target, Capability: c}
	var changed bool
	if grant {
		changed = e.roles.grant(g)
	} else {
		changed = e.roles.revoke(g)
	}
	if changed {
		e.emit(CapabilityChanged{Principal: target, Capability: c, Granted: grant, Actor: ManualActor(caller), Timestamp: now})
	}
	return nil
}
