package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"milestone-service/pkg/mq"
	"milestone-service/pkg/outbox"
)

var requeueOnly bool

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Manage durable outbox events",
}

var outboxReplayCmd = &cobra.Command{
	Use:   "replay <event-id>",
	Short: "Publish an outbox event again",
	Long: `Publish an outbox event again.

With --requeue the event is reset to pending and left for the server's
dispatcher instead of being published from this process.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid event id %q", args[0])
		}
		deps, err := openDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := requirePostgres(deps); err != nil {
			return err
		}

		if requeueOnly {
			svc := outbox.NewReplayService(deps.Outbox, nil, deps.Logger)
			if err := svc.RequeueEvent(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %d requeued\n", id)
			return nil
		}

		publisher, err := mq.NewPublisher(deps.Config.MQ.URL)
		if err != nil {
			return err
		}
		defer publisher.Close()

		svc := outbox.NewReplayService(deps.Outbox, publisher, deps.Logger)
		if err := svc.ReplayEvent(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "event %d published\n", id)
		return nil
	},
}

func init() {
	outboxReplayCmd.Flags().BoolVar(&requeueOnly, "requeue", false, "reset to pending instead of publishing now")
	outboxCmd.AddCommand(outboxReplayCmd)
	rootCmd.AddCommand(outboxCmd)
}
