package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/internal/storage"
)

var recoverCmd = &cobra.Command{
	Use:   "recover <dataset>",
	Short: "Finish an interrupted commit and remove orphan side files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := app.db.Recover(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printReport(cmd, args[0], rep)
		return nil
	},
}

func printReport(cmd *cobra.Command, name string, rep *storage.RecoveryReport) {
	w := cmd.OutOrStdout()
	if rep.Clean() {
		fmt.Fprintf(w, "%s: nothing to recover\n", name)
		return
	}
	if rep.TxID != "" {
		fmt.Fprintf(w, "%s: rolled forward transaction %s (%v)\n", name, rep.TxID, rep.RolledForward)
	}
	for _, o := range rep.Orphans {
		fmt.Fprintf(w, "%s: removed %s\n", name, o)
	}
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
