package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/chat"
)

var topicsFormat string

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the activity topics published on the event bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		topics := chat.ActivityTopics()
		switch topicsFormat {
		case "json":
			return json.NewEncoder(cmd.OutOrStdout()).Encode(topics)
		case "table":
			for _, t := range topics {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		default:
			return fmt.Errorf("invalid format %q: valid formats are table, json", topicsFormat)
		}
	},
}

func init() {
	topicsCmd.Flags().StringVarP(&topicsFormat, "format", "f", "table", "output format: table, json")
	rootCmd.AddCommand(topicsCmd)
}
