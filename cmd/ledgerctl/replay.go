package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
	"github.com/civicledger/civic-ledger/internal/sequencer"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild ledger state from the journal and print a summary",
	Long: `Replays every journaled command into a fresh in-memory engine built from
the policy and grants recorded in the journal's genesis entry. The journal
is not modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		recorded, err := sequencer.ReadGenesis(j)
		if err != nil {
			return err
		}
		engine, err := recorded.Engine(nil)
		if err != nil {
			return err
		}

		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		seq := sequencer.New(engine, j, sequencer.WithLogger(quiet))
		n, err := seq.Start()
		if err != nil {
			return err
		}
		defer seq.Stop()

		stats, err := seq.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
				"replayed": n,
				"policy":   recorded.Policy,
				"stats":    stats,
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "replayed %d commands\n", n)
		fmt.Fprintf(out, "policy: %+v\n", recorded.Policy)
		fmt.Fprintf(out, "reports: %d  submission nullifiers: %d  vote nullifiers: %d  grants: %d\n",
			stats.Reports, stats.SubmissionNullifiers, stats.VoteNullifiers, stats.Grants)
		statuses := make([]lifecycle.Status, 0, len(stats.ByStatus))
		for s := range stats.ByStatus {
			statuses = append(statuses, s)
		}
		sort.Slice(statuses, func(i, k int) bool { return statuses[i] < statuses[k] })
		for _, s := range statuses {
			fmt.Fprintf(out, "  %-24s %d\n", s, stats.ByStatus[s])
		}
		return nil
	},
}
