package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/civicledger/civic-ledger/internal/journal"
	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

var (
	ErrNoGenesis       = errors.New("sequencer: journal does not start with a genesis record")
	ErrGenesisMismatch = errors.New("sequencer: configured policy or grants differ from the journal genesis")
)

var errStopReplay = errors.New("stop replay")

// Genesis is the threshold policy and role set a journal was started with.
// It is written as entry 1, so the hash chain covers it and every later
// command replays against the same rules.
type Genesis struct {
	Policy lifecycle.Policy  `json:"policy"`
	Grants []lifecycle.Grant `json:"grants"`
}

// GenesisOf captures the configuration of a freshly built engine.
func GenesisOf(e *lifecycle.Engine) Genesis {
	return Genesis{Policy: e.Policy(), Grants: e.Grants()}
}

// Engine builds a fresh engine from the recorded configuration.
func (g Genesis) Engine(notifier lifecycle.Notifier) (*lifecycle.Engine, error) {
	return lifecycle.NewEngine(g.Policy, notifier, g.Grants...)
}

func (g Genesis) command(at time.Time) Command {
	return Command{Op: OpGenesis, At: at, Genesis: &g}
}

// diff describes how g differs from the recorded genesis, or returns "".
func (g Genesis) diff(recorded Genesis) string {
	var diffs []string
	if g.Policy != recorded.Policy {
		diffs = append(diffs, fmt.Sprintf("policy %+v, journal has %+v", g.Policy, recorded.Policy))
	}
	if !slices.Equal(g.Grants, recorded.Grants) {
		diffs = append(diffs, fmt.Sprintf("grants %v, journal has %v", g.Grants, recorded.Grants))
	}
	return strings.Join(diffs, "; ")
}

// ReadGenesis returns the genesis record of a journal.
func ReadGenesis(log Log) (Genesis, error) {
	var g *Genesis
	err := log.Replay(func(e journal.Entry) error {
		cmd, err := decodeEntry(e)
		if err != nil {
			return err
		}
		if cmd.Op != OpGenesis || cmd.Genesis == nil {
			return ErrNoGenesis
		}
		g = cmd.Genesis
		return errStopReplay
	})
	if err != nil && !errors.Is(err, errStopReplay) {
		return Genesis{}, err
	}
	if g == nil {
		return Genesis{}, ErrNoGenesis
	}
	return *g, nil
}

func decodeEntry(e journal.Entry) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(e.Command, &cmd); err != nil {
		return Command{}, fmt.Errorf("sequencer: decode entry %d: %w", e.Seq, err)
	}
	return cmd, nil
}
