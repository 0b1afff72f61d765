// Command ledgerctl inspects a ledger journal offline.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicledger/civic-ledger/internal/config"
	"github.com/civicledger/civic-ledger/internal/journal"
)

var (
	journalPath string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:           "ledgerctl",
	Short:         "Inspect and verify the civic ledger journal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", config.Load().JournalPath, "Journal directory (default: $JOURNAL_PATH)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(verifyCmd, headCmd, dumpCmd, replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openJournal() (*journal.Journal, error) {
	if _, err := os.Stat(journalPath); err != nil {
		return nil, fmt.Errorf("journal %s: %w", journalPath, err)
	}
	return journal.Open(journalPath)
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
