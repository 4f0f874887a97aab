package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var refresh bool

var progressCmd = &cobra.Command{
	Use:   "progress <milestone-id>",
	Short: "Show a milestone's progress snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid milestone id %q", args[0])
		}
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		svc := deps.Progress()
		if refresh {
			if err := svc.Invalidate(cmd.Context(), id); err != nil {
				return err
			}
		}
		snap, err := svc.GetProgress(cmd.Context(), id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		fmt.Fprintf(out, "milestone %d (%s) version %d\n", snap.MilestoneID, snap.State, snap.Version)
		fmt.Fprintf(out, "  issues:         %d/%d (%.1f%%)\n", snap.CompletedIssues, snap.TotalIssues, snap.Percent()*100)
		if snap.Weighted {
			fmt.Fprintf(out, "  weight:         %d/%d (%.1f%%)\n", snap.CompletedWeight, snap.TotalWeight, snap.WeightedPercent()*100)
		}
		fmt.Fprintf(out, "  merge requests: %d/%d merged\n", snap.MergedRequests, snap.TotalRequests)
		fmt.Fprintf(out, "  days:           %d/%d elapsed\n", snap.ElapsedDays, snap.TotalDays)
		for _, r := range snap.Releases {
			fmt.Fprintf(out, "  release %-12s %s\n", r.Tag, r.Status)
		}
		if snap.PendingCascade > 0 {
			fmt.Fprintf(out, "  pending cascade: %d dependents not yet stamped\n", snap.PendingCascade)
		}
		return nil
	},
}

func init() {
	progressCmd.Flags().BoolVar(&refresh, "refresh", false, "bump the progress version before reading")
	rootCmd.AddCommand(progressCmd)
}
