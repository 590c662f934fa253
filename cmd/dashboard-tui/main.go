// Package main is the terminal dashboard following a machine-hub server.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/machine-hub/server/internal/logging"
	"github.com/machine-hub/server/internal/tui/app"
	"github.com/machine-hub/server/internal/tui/client"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		wsURL     string
		logFile   string
		verbosity int
	)

	cmd := &cobra.Command{
		Use:           "dashboard-tui",
		Short:         "Live terminal view of the machine-hub dashboard",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			logs := logging.Setup(logging.Config{Verbosity: verbosity, Quiet: true, File: logFile, MaxSizeMB: 10, MaxBackups: 1})
			defer logs.Close()

			ws := client.NewWSClient(wsURL)
			defer ws.Close()

			_, err := tea.NewProgram(app.New(ws), tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:9000/ws/dashboard", "WebSocket URL of the dashboard channel")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file")
	cmd.Flags().CountVarP(&verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	return cmd
}
