package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/config"
	"github.com/aminssutt/AurisTraining/internal/recent"
)

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func newDoctorCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long:  "Runs diagnostic checks: configuration, data directory, sessions database and session API reachability.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, flags)
		},
	}
}

func runDoctor(cmd *cobra.Command, flags *rootFlags) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Assistant Doctor")
	fmt.Fprintln(out, "================")

	var results []checkResult
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		results = append(results, checkResult{"Config", "FAIL", err.Error()})
	} else {
		results = append(results, checkResult{"Config", "PASS", "api " + cfg.APIURL})
		results = append(results, checkDataDir(cfg))
		results = append(results, checkSessionsDB(cfg))
		results = append(results, checkAPI(cmd.Context(), cfg))
	}

	failed := 0
	for _, r := range results {
		fmt.Fprintf(out, "[%s] %-14s %s\n", r.status, r.name, r.detail)
		if r.status == "FAIL" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func checkDataDir(cfg config.Config) checkResult {
	if err := os.MkdirAll(cfg.LogDir(), 0755); err != nil {
		return checkResult{"Data dir", "FAIL", err.Error()}
	}
	f, err := os.CreateTemp(cfg.DataDir, ".doctor-*")
	if err != nil {
		return checkResult{"Data dir", "FAIL", "not writable: " + err.Error()}
	}
	f.Close()
	os.Remove(f.Name())
	return checkResult{"Data dir", "PASS", cfg.DataDir}
}

func checkSessionsDB(cfg config.Config) checkResult {
	store, err := recent.Open(cfg.SessionsDB())
	if err != nil {
		return checkResult{"Sessions DB", "WARN", err.Error()}
	}
	defer store.Close()
	entries, err := store.List(0)
	if err != nil {
		return checkResult{"Sessions DB", "WARN", err.Error()}
	}
	return checkResult{"Sessions DB", "PASS", fmt.Sprintf("%d remembered session(s)", len(entries))}
}

func checkAPI(ctx context.Context, cfg config.Config) checkResult {
	client, err := api.New(cfg.APIURL)
	if err != nil {
		return checkResult{"Session API", "FAIL", err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Health(ctx); err != nil {
		return checkResult{"Session API", "FAIL", api.UserMessage(err) + " (" + cfg.APIURL + ")"}
	}
	return checkResult{"Session API", "PASS", "reachable"}
}
