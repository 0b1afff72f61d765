package lifecycle

import "fmt"

// VoteKey scopes a voting nullifier to one phase of one report.
type VoteKey struct {
	ReportID  ReportID
	Phase     Phase
	Nullifier Nullifier
}

// NullifierRegistry records consumed submission and voting nullifiers.
// Registrations are permanent.
type NullifierRegistry struct {
	submissions map[Nullifier]struct{}
	votes       map[VoteKey]struct{}
}

func NewNullifierRegistry() *NullifierRegistry {
	return &NullifierRegistry{
		submissions: make(map[Nullifier]struct{}),
		votes:       make(map[VoteKey]struct{}),
	}
}

func (r *NullifierRegistry) SubmissionUsed(n Nullifier) bool {
	_, ok := r.submissions[n]
	return ok
}

func (r *NullifierRegistry) VoteUsed(k VoteKey) bool {
	_, ok := r.votes[k]
	return ok
}

func (r *NullifierRegistry) registerSubmission(n Nullifier) error {
	if r.SubmissionUsed(n) {
		return fmt.Errorf("%w: nullifier %s", ErrDuplicateSubmission, n)
	}
	r.submissions[n] = struct{}{}
	return nil
}

func (r *NullifierRegistry) registerVote(k VoteKey) error {
	if r.VoteUsed(k) {
		return fmt.Errorf("%w: report %d phase %s nullifier %s", ErrDuplicateVote, k.ReportID, k.Phase, k.Nullifier)
	}
	r.votes[k] = struct{}{}
	return nil
}

// Counts returns the number of consumed submission and vote nullifiers.
func (r *NullifierRegistry) Counts() (submissions, votes int) {
	return len(r.submissions), len(r.votes)
}
