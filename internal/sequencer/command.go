package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

type Op string

const (
	OpSubmit Op = "submit"
	OpVote   Op = "vote"
	OpSolve  Op = "solve"
	OpReject Op = "reject"
	OpGrant  Op = "grant"
	OpRevoke Op = "revoke"

	// OpGenesis is only valid as the first journal entry.
	OpGenesis Op = "genesis"
)

var (
	ErrUnknownOp        = errors.New("unknown command op")
	ErrMisplacedGenesis = errors.New("genesis record outside the first journal entry")
)

// Command is one journaled ledger operation. At is fixed on admission so
// that replay is deterministic.
type Command struct {
	Op         Op                    `json:"op"`
	Caller     lifecycle.Principal   `json:"caller"`
	At         time.Time             `json:"at"`
	ReportID   lifecycle.ReportID    `json:"report_id,omitempty"`
	Evidence   string                `json:"evidence,omitempty"`
	Nullifier  *lifecycle.Nullifier  `json:"nullifier,omitempty"`
	Support    bool                  `json:"support,omitempty"`
	Phase      *lifecycle.Phase      `json:"phase,omitempty"`
	Target     lifecycle.Principal   `json:"target,omitempty"`
	Capability *lifecycle.Capability `json:"capability,omitempty"`
	Genesis    *Genesis              `json:"genesis,omitempty"`
}

func Submit(caller lifecycle.Principal, evidence string, n lifecycle.Nullifier) Command {
	return Command{Op: OpSubmit, Caller: caller, Evidence: evidence, Nullifier: &n}
}

func Vote(caller lifecycle.Principal, id lifecycle.ReportID, support bool, n lifecycle.Nullifier, phase lifecycle.Phase) Command {
	return Command{Op: OpVote, Caller: caller, ReportID: id, Support: support, Nullifier: &n, Phase: &phase}
}

func Solve(caller lifecycle.Principal, id lifecycle.ReportID) Command {
	return Command{Op: OpSolve, Caller: caller, ReportID: id}
}

func Reject(caller lifecycle.Principal, id lifecycle.ReportID) Command {
	return Command{Op: OpReject, Caller: caller, ReportID: id}
}

func GrantCapability(caller, target lifecycle.Principal, c lifecycle.Capability) Command {
	return Command{Op: OpGrant, Caller: caller, Target: target, Capability: &c}
}

func RevokeCapability(caller, target lifecycle.Principal, c lifecycle.Capability) Command {
	return Command{Op: OpRevoke, Caller: caller, Target: target, Capability: &c}
}

// Result is what a successfully applied command produced. Seq is the
// journal position the command was recorded at.
type Result struct {
	Seq    uint64            `json:"seq"`
	Report *lifecycle.Report `json:"report,omitempty"`
}

// apply runs cmd against the engine.
func apply(e *lifecycle.Engine, cmd Command) (*lifecycle.Report, error) {
	switch cmd.Op {
	case OpSubmit:
		if cmd.Nullifier == nil {
			return nil, fmt.Errorf("submit: missing nullifier")
		}
		id, err := e.SubmitReport(cmd.Caller, cmd.Evidence, *cmd.Nullifier, cmd.At)
		if err != nil {
			return nil, err
		}
		r, _ := e.Report(id)
		return &r, nil
	case OpVote:
		if cmd.Nullifier == nil || cmd.Phase == nil {
			return nil, fmt.Errorf("vote: missing nullifier or phase")
		}
		r, err := e.VoteOnReport(cmd.Caller, cmd.ReportID, cmd.Support, *cmd.Nullifier, *cmd.Phase, cmd.At)
		return reportOrNil(r, err)
	case OpSolve:
		return reportOrNil(e.MarkAsSolved(cmd.Caller, cmd.ReportID, cmd.At))
	case OpReject:
		return reportOrNil(e.RejectIssue(cmd.Caller, cmd.ReportID, cmd.At))
	case OpGrant, OpRevoke:
		if cmd.Capability == nil {
			return nil, fmt.Errorf("%s: missing capability", cmd.Op)
		}
		if cmd.Op == OpGrant {
			return nil, e.GrantCapability(cmd.Caller, cmd.Target, *cmd.Capability, cmd.At)
		}
		return nil, e.RevokeCapability(cmd.Caller, cmd.Target, *cmd.Capability, cmd.At)
	case OpGenesis:
		return nil, ErrMisplacedGenesis
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
}

func reportOrNil(r lifecycle.Report, err error) (*lifecycle.Report, error) {
	if err != nil {
		return nil, err
	}
	return &r, nil
}
