package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var failuresLimit int

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect cascades that need attention",
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved cascade failures",
	RunE: func(cmd *cobra.Command, _ []string) error {
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		failures, err := deps.Store.ListFailures(cmd.Context(), failuresLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOut {
			return json.NewEncoder(out).Encode(failures)
		}
		if len(failures) == 0 {
			fmt.Fprintln(out, "no unresolved cascade failures")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMILESTONE\tJOB\tATTEMPTS\tCREATED\tLAST ERROR")
		for _, f := range failures {
			fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\n",
				f.ID, f.MilestoneID, f.JobID, f.Attempts, f.CreatedAt.Format("2006-01-02 15:04"), f.LastError)
		}
		return w.Flush()
	},
}

var failuresResolveCmd = &cobra.Command{
	Use:   "resolve <failure-id>",
	Short: "Mark a cascade failure as handled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid failure id %q", args[0])
		}
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Store.ResolveFailure(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "failure %d resolved\n", id)
		return nil
	},
}

func init() {
	failuresListCmd.Flags().IntVarP(&failuresLimit, "limit", "n", 50, "maximum rows to show")
	failuresCmd.AddCommand(failuresListCmd, failuresResolveCmd)
	rootCmd.AddCommand(failuresCmd)
}
