package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aminssutt/AurisTraining/internal/stubapi"
	"github.com/aminssutt/AurisTraining/internal/telemetry"
)

func newNewCmd(flags *rootFlags) *cobra.Command {
	var vehicle string
	var noChat bool

	cmd := &cobra.Command{
		Use:   "new --vehicle NAME FILE...",
		Short: "Upload manuals for a vehicle and start chatting",
		Long:  "Creates a session, uploads the PDF files in order, follows processing and opens the chat in plain text mode.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			sh := a.shell(cmd)
			id, err := sh.Setup(cmd.Context(), vehicle, args)
			if err != nil {
				return err
			}
			if _, err := sh.Watch(cmd.Context(), id); err != nil {
				return err
			}
			if noChat {
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s is ready\n", id)
				return nil
			}
			return sh.Chat(cmd.Context(), id)
		},
	}

	cmd.Flags().StringVarP(&vehicle, "vehicle", "v", "", "vehicle name, e.g. \"Toyota Auris Hybride 2015\"")
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "stop once processing is done")
	cmd.MarkFlagRequired("vehicle")
	return cmd
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch SESSION_ID",
		Short: "Follow the processing of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			_, err = a.shell(cmd).Watch(cmd.Context(), args[0])
			return err
		},
	}
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat SESSION_ID",
		Short: "Chat with a ready session in plain text mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.shell(cmd).Chat(cmd.Context(), args[0])
		},
	}
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions created from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.store == nil {
				return fmt.Errorf("sessions database unavailable at %s", a.cfg.SessionsDB())
			}

			entries, err := a.store.List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No sessions yet. Start one with: assistant new --vehicle NAME FILE...")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVEHICLE\tCREATED\tLAST STATUS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.VehicleName, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.LastStatus)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "forget SESSION_ID",
		Short: "Remove a session from the local list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.store == nil {
				return fmt.Errorf("sessions database unavailable at %s", a.cfg.SessionsDB())
			}
			return a.store.Delete(args[0])
		},
	})
	return cmd
}

func newStubServerCmd(flags *rootFlags) *cobra.Command {
	var addr string
	var tick time.Duration

	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run a local stand-in for the session API",
		Long:  "Serves the session API from memory and simulates document processing, for trying the client without a backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger, closer, err := telemetry.InitLogger(cfg.LogDir(), cfg.Debug)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer closer.Close()

			stub := stubapi.New(stubapi.Options{Tick: tick, Logger: logger.With(slog.String("component", "stubapi"))})
			return stub.Run(cmd.Context(), addr, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":5000", "listen address")
	cmd.Flags().DurationVar(&tick, "tick", 300*time.Millisecond, "delay between simulated processing steps")
	return cmd
}
