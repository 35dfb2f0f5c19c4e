// Package cmd holds the huddle command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Huddle chat server",
	Long: `Huddle is a single-room real-time chat server with presence,
direct messages, image attachments and moderation.

Configuration is read from HUDDLE_* environment variables, optionally
loaded from a .env file.

Use "huddle [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")
}

func envFiles() []string {
	if envFile == "" {
		return nil
	}
	return []string{envFile}
}
