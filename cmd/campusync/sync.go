package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay queued writes against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			return printJSON(cmd.OutOrStdout(), a.client.SyncPendingOperations(cmd.Context()))
		},
	}
}

func newStatusCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.client.SyncStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

func newQueueCmd(s *rootState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage queued writes",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List queued writes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			ops, err := a.client.PendingOperations(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tENTITY\tTARGET\tSTATUS\tATTEMPTS\tQUEUED AT\tLAST ERROR")
			for _, op := range ops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					op.ID, op.Type, op.EntityName, op.TargetID(), op.Status, op.Attempts,
					op.Timestamp.Local().Format(time.DateTime), op.LastError)
			}
			return w.Flush()
		},
	}

	retry := &cobra.Command{
		Use:   "retry",
		Short: "Give failed writes a fresh retry budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.client.RetryFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d operation(s) reset to pending\n", n)
			return nil
		},
	}

	cmd.AddCommand(list, retry)
	return cmd
}
