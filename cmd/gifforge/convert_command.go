package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/gifforge/gifforge/internal/apiclient"
)

const pollInterval = 500 * time.Millisecond

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var frameRate int
	var width int
	var output string
	var push bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "convert <video>",
		Short: "Upload a video, wait for the conversion, and download the GIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			input := args[0]
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file: %w", err)
			}

			job, err := client.Create(cmd.Context(), input, apiclient.Options{
				FrameRate: frameRate,
				Width:     width,
				PushToS3:  push,
			})
			if err != nil {
				return describeServerError(err)
			}

			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s queued (%s, %s)\n",
					job.ID, job.InputName, formatSize(job.InputSize))
			}

			job, err = waitForJob(cmd, client, job.ID, jsonOutput)
			if err != nil {
				return err
			}
			if job.Status == "FAILED" {
				return fmt.Errorf("conversion failed: %s", orDash(job.Error))
			}

			dst := output
			if dst == "" {
				dst = defaultOutputPath(input, ctx.outputDir())
			}
			if err := client.Download(cmd.Context(), job.ID, dst); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, struct {
					*apiclient.Job
					OutputPath string `json:"output_path"`
				}{job, dst})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", dst, formatSize(job.OutputSize))
			if job.S3URL != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "pushed to %s\n", job.S3URL)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&frameRate, "frame-rate", 0, "Output frame rate (1-30, server default when omitted)")
	cmd.Flags().IntVar(&width, "width", 0, "Output width in pixels (16-1920, server default when omitted)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path for the GIF")
	cmd.Flags().BoolVar(&push, "push", false, "Also push the result to object storage")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final job as JSON")

	return cmd
}

// waitForJob polls until the job is terminal, drawing a progress bar on a
// terminal and plain log lines otherwise.
func waitForJob(cmd *cobra.Command, client apiclient.Client, id string, quiet bool) (*apiclient.Job, error) {
	var onUpdate func(*apiclient.Job)

	switch {
	case quiet:
		// No progress output in JSON mode.
	case isTerminal(os.Stderr):
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		onUpdate = func(j *apiclient.Job) {
			if j.Message != "" {
				bar.Describe(truncate(j.Message, 48))
			}
			_ = bar.Set(int(j.Progress * 100))
			if j.Terminal() {
				_ = bar.Finish()
			}
		}
	default:
		var lastLine string
		onUpdate = func(j *apiclient.Job) {
			line := fmt.Sprintf("%s %s", j.Status, formatProgress(j.Progress))
			if j.Message != "" {
				line += " " + j.Message
			}
			if line != lastLine {
				fmt.Fprintln(cmd.ErrOrStderr(), line)
				lastLine = line
			}
		}
	}

	job, err := client.Wait(cmd.Context(), id, pollInterval, onUpdate)
	if err != nil {
		return nil, describeServerError(err)
	}
	return job, nil
}

// defaultOutputPath places the GIF next to the input, or in outputDir when
// the config sets one, keeping the input's base name.
func defaultOutputPath(input, outputDir string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base)) + ".gif"
	if outputDir != "" {
		return filepath.Join(outputDir, base)
	}
	return filepath.Join(filepath.Dir(input), base)
}

// describeServerError rewrites a few well-known service errors into
// friendlier CLI messages.
func describeServerError(err error) error {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "ENGINE_UNAVAILABLE":
		return fmt.Errorf("the conversion engine is not ready: %s", apiErr.Message)
	case "UNSUPPORTED_MEDIA_TYPE":
		return fmt.Errorf("unsupported input: %s", apiErr.Message)
	default:
		return err
	}
}
