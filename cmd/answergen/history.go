package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List past runs, newest first, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := a.history.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Created:  %s\n", run.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Subject:  %s\n", run.Subject)
				fmt.Fprintf(out, "Mode:     %s\n", run.Mode.Label())
				fmt.Fprintf(out, "Source:   %s\n", run.SourceName)
				fmt.Fprintf(out, "Document: %s (%d pages)\n", run.OutputPath, run.PageCount)
				for _, rec := range run.Records {
					status := ""
					if rec.Failed {
						status = " [fallback]"
					}
					fmt.Fprintf(out, "\n%d. %s%s\n", rec.Question.Index+1, rec.Question.Text, status)
				}
				return nil
			}

			runs, err := a.history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs yet.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tSUBJECT\tMODE\tQUESTIONS\tFAILED\tPAGES")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Subject, r.Mode, r.QuestionCount, r.FailedCount, r.PageCount)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "how many runs to list (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a run and its answer document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.history.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	})
	return cmd
}
