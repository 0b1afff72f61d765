// Package lifecycle holds the report lifecycle state machine: the role,
// nullifier and report registries and the engine that mutates them.
//
// The engine is not safe for concurrent use. Callers serialize operations
// through a single writer (see internal/sequencer).
package lifecycle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ReportID uint64

// Nullifier is an opaque 32-byte participation identifier issued by the
// identity subsystem.
type Nullifier [32]byte

func ParseNullifier(s string) (Nullifier, error) {
	var n Nullifier
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != hex.EncodedLen(len(n)) {
		return n, fmt.Errorf("nullifier must be %d hex characters", hex.EncodedLen(len(n)))
	}
	if _, err := hex.Decode(n[:], []byte(s)); err != nil {
		return n, fmt.Errorf("nullifier is not hex: %w", err)
	}
	return n, nil
}

func (n Nullifier) String() string {
	return "0x" + hex.EncodeToString(n[:])
}

func (n Nullifier) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Nullifier) UnmarshalText(b []byte) error {
	parsed, err := ParseNullifier(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

type Status uint8

const (
	StatusPendingValidation Status = iota
	StatusCommunityRejected
	StatusOpen
	StatusPendingRejectionReview
	StatusPendingVerification
	StatusClosed
	StatusReopened
)

var statusNames = [...]string{
	StatusPendingValidation:      "PendingValidation",
	StatusCommunityRejected:      "CommunityRejected",
	StatusOpen:                   "Open",
	StatusPendingRejectionReview: "PendingRejectionReview",
	StatusPendingVerification:    "PendingVerification",
	StatusClosed:                 "Closed",
	StatusReopened:               "Reopened",
}

// AllStatuses lists every lifecycle status in declaration order.
func AllStatuses() []Status {
	out := make([]Status, len(statusNames))
	for i := range statusNames {
		out[i] = Status(i)
	}
	return out
}

func (s Status) Valid() bool { return int(s) < len(statusNames) }

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCommunityRejected
}

func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(name, s) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Phase is a votable stage. Each phase is open only while the report sits in
// the matching status.
type Phase uint8

const (
	PhaseValidation Phase = iota
	PhaseRejectionReview
	PhaseVerification
)

var phaseNames = [...]string{
	PhaseValidation:      "Validation",
	PhaseRejectionReview: "RejectionReview",
	PhaseVerification:    "Verification",
}

var phaseStatus = [...]Status{
	PhaseValidation:      StatusPendingValidation,
	PhaseRejectionReview: StatusPendingRejectionReview,
	PhaseVerification:    StatusPendingVerification,
}

func (p Phase) Valid() bool { return int(p) < len(phaseNames) }

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
	return phaseNames[p]
}

// Status returns the report status during which votes for p are accepted.
func (p Phase) Status() Status { return phaseStatus[p] }

func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if strings.EqualFold(name, s) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPhase, uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Principal identifies a caller. The core never derives it; the transport
// layer supplies it.
type Principal string

// Actor records who performed the last transition: a specific principal for
// manual authority actions, or the automatic marker for threshold-driven
// transitions. The zero value is AutomaticActor.
type Actor struct {
	principal Principal
	manual    bool
}

var AutomaticActor = Actor{}

func ManualActor(p Principal) Actor {
	return Actor{principal: p, manual: true}
}

func (a Actor) IsAutomatic() bool { return !a.manual }

// Principal returns the acting principal and false for automatic actors.
func (a Actor) Principal() (Principal, bool) {
	return a.principal, a.manual
}

func (a Actor) String() string {
	if !a.manual {
		return "automatic"
	}
	return "manual:" + string(a.principal)
}

type actorJSON struct {
	Kind      string    `json:"kind"`
	Principal Principal `json:"principal,omitempty"`
}

func (a Actor) MarshalJSON() ([]byte, error) {
	if !a.manual {
		return json.Marshal(actorJSON{Kind: "automatic"})
	}
	return json.Marshal(actorJSON{Kind: "manual", Principal: a.principal})
}

func (a *Actor) UnmarshalJSON(b []byte) error {
	var v actorJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.Kind {
	case "automatic":
		*a = AutomaticActor
	case "manual":
		if v.Principal == "" {
			return fmt.Errorf("manual actor without principal")
		}
		*a = ManualActor(v.Principal)
	default:
		return fmt.Errorf("unknown actor kind %q", v.Kind)
	}
	return nil
}

// Report is one submitted civic issue. Values handed out by the store are
// copies; mutation goes through the engine only.
type Report struct {
	ID                  ReportID  `json:"id"`
	EvidenceReference   string    `json:"evidence_reference"`
	SubmissionNullifier Nullifier `json:"submission_nullifier"`
	Status              Status    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	ActionedBy          Actor     `json:"actioned_by"`
	VotesFor            uint32    `json:"votes_for"`
	VotesAgainst        uint32    `json:"votes_against"`
	ReopenCount         uint32    `json:"reopen_count"`
}

// Expired reports whether votes are no longer accepted at now.
func (r Report) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
