package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the hash chain of every journal entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		n, err := j.Verify()
		if err != nil {
			return fmt.Errorf("verification failed after %d entries: %w", n, err)
		}
		head := j.Head()
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]interface{}{"verified": n, "head": head})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entries, head %d %s\n", n, head.Seq, head.Hash)
		return nil
	},
}

var headCmd = &cobra.Command{
	Use:   "head",
	Short: "Print the last journal position",
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()

		head := j.Head()
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), head)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", head.Seq, head.Hash)
		return nil
	},
}
