package main

import (
	"github.com/spf13/cobra"

	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/offline"
)

// readOutput is what get prints.
type readOutput struct {
	Status  offline.ReadStatus `json:"status"`
	Records []models.Record    `json:"records"`
	Error   string             `json:"error,omitempty"`
}

func newGetCmd(s *rootState) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "get <entity> [id]",
		Short: "Read records, cache first",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			res := a.client.Get(cmd.Context(), args[0], id, offline.GetOptions{ForceRefresh: refresh})

			out := readOutput{Status: res.Status, Records: make([]models.Record, 0, len(res.Records))}
			for _, rec := range res.Records {
				out.Records = append(out.Records, rec.Flatten())
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the server even when the record is cached")
	return cmd
}

func newPostCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "post <entity> <json>",
		Short: "Create a record, queueing it when offline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[1])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.client.Post(cmd.Context(), args[0], rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Flatten())
		},
	}
}

func newPutCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "put <entity> <id> <json>",
		Short: "Update a record, queueing it when offline",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := parseRecord(args[2])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.client.Put(cmd.Context(), args[0], args[1], rec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Flatten())
		},
	}
}

func newDeleteCmd(s *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entity> <id>",
		Short: "Delete a cached record, queueing it when offline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.client.Delete(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}
