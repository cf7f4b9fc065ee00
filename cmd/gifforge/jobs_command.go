package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gifforge/gifforge/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List conversion jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			jobs, err := client.List(cmd.Context())
			if err != nil {
				return describeServerError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobsTable(jobs, isTerminal(os.Stdout)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the jobs as JSON")
	return cmd
}

func renderJobsTable(jobs []*apiclient.Job, colored bool) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			formatStatus(job.Status, colored),
			formatProgress(job.Progress),
			truncate(job.InputName, 32),
			formatSize(job.InputSize),
			formatAge(job.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "STATUS", "PROGRESS", "INPUT", "SIZE", "CREATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
	)
}
