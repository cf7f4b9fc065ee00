package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEngineCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Show the service's conversion engine state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := client.Health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, health)
			}
			pairs := [][2]string{
				{"Service", health.Status},
				{"Engine ready", yesNo(health.Engine.Ready)},
			}
			if health.Engine.Version != "" {
				pairs = append(pairs, [2]string{"Engine version", health.Engine.Version})
			}
			if health.Engine.Error != "" {
				pairs = append(pairs, [2]string{"Engine error", health.Engine.Error})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the health as JSON")
	return cmd
}
