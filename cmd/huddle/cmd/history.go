package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/logging"
	"github.com/nfrund/huddle/internal/logstore"
)

var (
	historyFormat string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted message log",
	Long: `Print the message log stored in the configured durable backend
(HUDDLE_LOG_BACKEND). Run it against a stopped server, or with the file or
surreal backends, which tolerate concurrent readers.

Examples:
  huddle history                  # All messages as a table
  huddle history --limit 20       # The 20 most recent messages
  huddle history --format json    # Machine-readable output`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyFormat != "table" && historyFormat != "json" {
			return fmt.Errorf("invalid format %q: valid formats are table, json", historyFormat)
		}

		cfg, err := config.Load(envFiles()...)
		if err != nil {
			return err
		}
		logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogFormat, "warn")

		backend, err := logstore.Open(cmd.Context(), cfg.LogStore(), logger)
		if err != nil {
			return err
		}
		defer closeBackend(backend, logger)

		messages, err := backend.Load(cmd.Context())
		if err != nil {
			return err
		}
		if historyLimit > 0 && len(messages) > historyLimit {
			messages = messages[len(messages)-historyLimit:]
		}

		if historyFormat == "json" {
			return printHistoryJSON(cmd.OutOrStdout(), messages)
		}
		return printHistoryTable(cmd.OutOrStdout(), messages)
	},
}

func closeBackend(backend domain.DurableLog, logger *slog.Logger) {
	if err := backend.Close(); err != nil {
		logger.Warn("Failed to close backend", "error", err)
	}
}

func printHistoryJSON(w io.Writer, messages []domain.Message) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(messages)
}

func printHistoryTable(w io.Writer, messages []domain.Message) error {
	if len(messages) == 0 {
		_, err := fmt.Fprintln(w, "No messages.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tTIME\tAUTHOR\tTO\tTEXT\tATTACHMENT")
	for _, m := range messages {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			m.Index, m.Timestamp.Format(time.DateTime), m.Author, deref(m.Target), m.Text, deref(m.Attachment))
	}
	return tw.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format: table, json")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show only the most recent n messages")
	rootCmd.AddCommand(historyCmd)
}
