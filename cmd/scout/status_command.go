package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if daemonRunning(filepath.Join(cfg.DataDir, "scoutd.lock")) {
				fmt.Println("Daemon:    running")
			} else {
				fmt.Println("Daemon:    not running")
			}
			fmt.Printf("Database:  %s\n", st.Path())
			fmt.Println()

			health, err := st.ItemHealth(cmd.Context())
			if err != nil {
				return err
			}
			sources, err := st.ListSources(cmd.Context())
			if err != nil {
				return err
			}
			active, failing := 0, 0
			for _, s := range sources {
				if s.Active {
					active++
					if s.ConsecutiveFailures > 0 {
						failing++
					}
				}
			}

			rows := [][]string{
				{"Sources", fmt.Sprintf("%d active of %d (%d failing)", active, len(sources), failing)},
				{"Items total", strconv.Itoa(health.Total)},
				{"Awaiting quality check", strconv.Itoa(health.Discovery)},
				{"Approved", strconv.Itoa(health.Approved)},
				{"In flight", strconv.Itoa(health.InFlight)},
				{"Held for review", strconv.Itoa(health.Held)},
				{"Rejected", strconv.Itoa(health.Rejected)},
				{"Published", strconv.Itoa(health.Published)},
			}
			fmt.Println(renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

// daemonRunning probes the daemon lock. A held lock means a daemon owns it.
func daemonRunning(lockPath string) bool {
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return false
	}
	if locked {
		_ = lock.Unlock()
		return false
	}
	return true
}
