package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/db"
)

func statusText(run *db.Run) string {
	status := run.GetStatus()
	switch status {
	case db.RunStatusComplete:
		return color.GreenString(string(status))
	case db.RunStatusFailed:
		return color.RedString(string(status))
	}
	return color.YellowString(string(status))
}

func listCmd() *cobra.Command {
	var (
		listStandard  string
		listScrambler string
		listLimit     int
		listSuccess   bool
		listFailed    bool
		listSince     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List simulation runs",
		Long: `List stored simulation runs, newest first.

Examples:
  # List all runs
  scramsim list

  # Only DVB runs
  scramsim list --standard DVB

  # Last 10 failed runs
  scramsim list --failed --limit 10

  # Runs from the last week
  scramsim list --since 7d`,
		RunE: func(_ *cobra.Command, _ []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			filter := db.RunFilter{
				Standard:  strings.ToUpper(listStandard),
				Scrambler: listScrambler,
				Limit:     listLimit,
			}

			if listSuccess && !listFailed {
				success := true
				filter.Success = &success
			} else if listFailed && !listSuccess {
				success := false
				filter.Success = &success
			}

			if listSince != "" {
				d, err := parseDuration(listSince)
				if err != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
				since := time.Now().Add(-d)
				filter.StartTime = &since
			}

			runs, err := database.ListRuns(filter)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs found")
				return nil
			}

			fmt.Printf("%-6s %-6s %-15s %-20s %-8s %-10s %-8s\n",
				"ID", "Std", "Scrambler", "Start Time", "Trials", "Duration", "Status")
			fmt.Println(strings.Repeat("-", 80))

			for _, run := range runs {
				duration := "-"
				if run.EndTime != nil {
					duration = fmt.Sprintf("%.1fs", run.Duration().Seconds())
				}

				fmt.Printf("%-6d %-6s %-15s %-20s %-8d %-10s %s\n",
					run.ID,
					run.Standard,
					truncate(run.Scrambler, 15),
					run.StartTime.Format("2006-01-02 15:04:05"),
					run.Trials,
					duration,
					statusText(run),
				)
			}

			fmt.Printf("\nTotal: %d runs\n", len(runs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&listStandard, "standard", "s", "", "Filter by standard")
	cmd.Flags().StringVar(&listScrambler, "scrambler", "", "Filter by scrambler variant")
	cmd.Flags().IntVarP(&listLimit, "limit", "l", 0, "Maximum number of runs (0 = all)")
	cmd.Flags().BoolVar(&listSuccess, "success", false, "Only completed runs")
	cmd.Flags().BoolVar(&listFailed, "failed", false, "Only failed runs")
	cmd.Flags().StringVar(&listSince, "since", "", "Only runs started within this duration (e.g. 24h, 7d)")

	return cmd
}

func showCmd() *cobra.Command {
	var showTrials bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show details of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			runID, err := parseInt64(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID: %s", args[0])
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			run, err := database.GetRun(runID)
			if err != nil {
				return err
			}

			fmt.Printf("Run ID:     %d\n", run.ID)
			fmt.Printf("Standard:   %s\n", run.Standard)
			fmt.Printf("Scrambler:  %s\n", run.Scrambler)
			fmt.Printf("Seed:       %d\n", run.Seed)
			fmt.Printf("Trials:     %d\n", run.Trials)
			fmt.Printf("Status:     %s\n", statusText(run))
			fmt.Printf("Start Time: %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
			if run.EndTime != nil {
				fmt.Printf("End Time:   %s\n", run.EndTime.Format("2006-01-02 15:04:05"))
				fmt.Printf("Duration:   %.2fs\n", run.Duration().Seconds())
			}
			if run.Error != "" {
				fmt.Printf("Error:      %s\n", color.RedString(run.Error))
			}

			if len(run.Params) > 0 {
				fmt.Printf("\nParameters:\n")
				keys := make([]string, 0, len(run.Params))
				for k := range run.Params {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("  %s: %v\n", k, run.Params[k])
				}
			}

			results, err := database.GetResults(runID)
			if err != nil {
				return fmt.Errorf("failed to get results: %w", err)
			}
			if len(results) > 0 {
				fmt.Printf("\nResults:\n")
				for _, r := range results {
					fmt.Printf("  %-24s %12.4f %s\n", r.Metric, r.Value, r.Unit)
				}
			}

			if showTrials {
				trials, err := database.GetTrials(runID)
				if err != nil {
					return fmt.Errorf("failed to get trials: %w", err)
				}
				fmt.Printf("\n%-6s %-8s %-14s %-14s\n", "Trial", "Bits", "Unscrambled", "Scrambled")
				for _, t := range trials {
					fmt.Printf("%-6d %-8d %-14s %-14s\n", t.Index, t.FrameLength,
						fmt.Sprintf("%d (%.4f)", t.ErrorsUnscrambled, t.RateUnscrambled),
						fmt.Sprintf("%d (%.4f)", t.ErrorsScrambled, t.RateScrambled))
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&showTrials, "trials", "t", false, "Also print every trial")

	return cmd
}
