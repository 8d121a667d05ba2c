package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the agent graph",
	Long:  `Loads the config, builds every adapter it names and validates the graph for dead links or unreachable agents.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()
		cli.Validate(app, os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
