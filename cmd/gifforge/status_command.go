package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gifforge/gifforge/internal/apiclient"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one conversion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return describeServerError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, job)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobDetail(job, isTerminal(os.Stdout)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job as JSON")
	return cmd
}

func renderJobDetail(job *apiclient.Job, colored bool) string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Status", formatStatus(job.Status, colored)},
		{"Progress", formatProgress(job.Progress)},
		{"Input", fmt.Sprintf("%s (%s)", job.InputName, formatSize(job.InputSize))},
		{"Frame rate", fmt.Sprintf("%d fps", job.FrameRate)},
		{"Width", fmt.Sprintf("%d px", job.Width)},
		{"Created", formatAge(job.CreatedAt)},
	}
	if job.Message != "" {
		pairs = append(pairs, [2]string{"Message", truncate(job.Message, 72)})
	}
	if job.Error != "" {
		pairs = append(pairs, [2]string{"Error", job.Error})
	}
	if job.Status == "COMPLETED" {
		pairs = append(pairs, [2]string{"Output size", formatSize(job.OutputSize)})
		if job.CompletedAt != nil {
			pairs = append(pairs, [2]string{"Completed", formatAge(*job.CompletedAt)})
		}
		if job.S3URL != "" {
			pairs = append(pairs, [2]string{"S3 URL", job.S3URL})
		}
	}
	return renderKeyValues(pairs)
}
