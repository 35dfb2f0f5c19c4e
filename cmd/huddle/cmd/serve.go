package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/logging"
	"github.com/nfrund/huddle/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat server",
	Long: `Run the HTTP and WebSocket server until SIGINT or SIGTERM.

On shutdown the server stops accepting requests, closes every live
connection, writes the final message log snapshot and closes the backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFiles()...)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}
		logger := logging.New(cfg.LogFormat, cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		deps, err := app.Build(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to start", "error", err)
			return err
		}

		s := server.New(deps)
		s.RegisterRoutes()
		return s.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HUDDLE_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
