package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aminssutt/AurisTraining/internal/route"
	"github.com/aminssutt/AurisTraining/internal/telemetry"
	"github.com/aminssutt/AurisTraining/internal/tui"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

func newRootCmd() *cobra.Command {
	var flags rootFlags
	var sessionID string

	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Chat with your vehicle manuals",
		Long: "Upload the PDF manuals of a vehicle, wait while they are indexed, then ask questions about them.\n" +
			"Without a subcommand the full-screen interface starts.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, &flags)
			if err != nil {
				return err
			}
			defer a.Close()

			start := route.Home()
			if sessionID != "" {
				start = route.Route{Kind: route.Chat, SessionID: sessionID}
			}
			return tui.Run(cmd.Context(), a.tuiDeps(), start)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "session API base URL (overrides ASSISTANT_API_URL)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "directory for logs and the sessions database")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "open an existing session")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newNewCmd(&flags))
	cmd.AddCommand(newWatchCmd(&flags))
	cmd.AddCommand(newChatCmd(&flags))
	cmd.AddCommand(newSessionsCmd(&flags))
	cmd.AddCommand(newDoctorCmd(&flags))
	cmd.AddCommand(newStubServerCmd(&flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assistant %s (commit: %s)\n", Version, Commit)
		},
	}
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	telemetry.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}
