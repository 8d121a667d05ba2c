package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agents in the terminal",
	Long: `Starts a conversation as the given user. State is kept in the configured
store, so a later chat with the same --user resumes where it stopped.
Type /reset to start over and /quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		jsonMode, _ := cmd.Flags().GetBool("json")
		showPath, _ := cmd.Flags().GetBool("path")

		app, err := loadApp(cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.RunChat(sigCtx, app, cli.ChatOptions{
			UserID:   user,
			JSON:     jsonMode,
			ShowPath: showPath,
			In:       os.Stdin,
			Out:      os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("user", "u", "local", "User id of the conversation")
	chatCmd.Flags().Bool("json", false, "Read and write line-delimited JSON")
	chatCmd.Flags().Bool("path", false, "Show the agents visited after each reply")
}
