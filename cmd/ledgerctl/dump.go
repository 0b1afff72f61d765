package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/civicledger/civic-ledger/internal/journal"
)

var (
	dumpFrom  uint64
	dumpLimit int
)

var errDumpDone = errors.New("dump limit reached")

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write journal entries as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		written := 0
		err = j.Replay(func(e journal.Entry) error {
			if e.Seq < dumpFrom {
				return nil
			}
			if dumpLimit > 0 && written >= dumpLimit {
				return errDumpDone
			}
			written++
			return enc.Encode(e)
		})
		if errors.Is(err, errDumpDone) {
			return nil
		}
		return err
	},
}

func init() {
	dumpCmd.Flags().Uint64Var(&dumpFrom, "from", 1, "First sequence number to write")
	dumpCmd.Flags().IntVar(&dumpLimit, "limit", 0, "Maximum entries to write (0 = all)")
}
