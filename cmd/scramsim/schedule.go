package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/channel"
	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/schedule"
	"github.com/mscrnt/scramsim/pkg/scrambler"
)

const maxJSONSeed = 1 << 53

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage simulation schedules",
		Long:  "Create, manage, and run recurring simulation batches",
	}

	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	cmd.AddCommand(scheduleEnableCmd())
	cmd.AddCommand(scheduleDisableCmd())
	cmd.AddCommand(scheduleRunCmd())
	cmd.AddCommand(scheduleStartCmd())
	cmd.AddCommand(scheduleShowCmd())

	return cmd
}

// withStore opens the database and hands a schedule store to fn
func withStore(fn func(*db.DB, *schedule.Store) error) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	return fn(database, schedule.NewStore(database))
}

// findSchedule resolves a schedule by ID or name
func findSchedule(store *schedule.Store, identifier string) (*schedule.Schedule, error) {
	if id, err := parseInt64(identifier); err == nil {
		sched, err := store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("schedule with ID %d not found", id)
		}
		return sched, nil
	}

	sched, err := store.GetByName(identifier)
	if err != nil {
		return nil, fmt.Errorf("schedule '%s' not found", identifier)
	}
	return sched, nil
}

func scheduleAddCmd() *cobra.Command {
	var (
		name        string
		description string
		cronExpr    string
		standard    string
		variant     string
		trials      int
		workers     int
		seed        uint64
		enabled     bool
		noise       = channel.DefaultNoiseModel()
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new schedule",
		Long: `Add a new simulation schedule with cron-style timing.

Cron expression format:
  ┌───────────── minute (0 - 59)
  │ ┌───────────── hour (0 - 23)
  │ │ ┌───────────── day of month (1 - 31)
  │ │ │ ┌───────────── month (1 - 12)
  │ │ │ │ ┌───────────── day of week (0 - 6) (Sunday to Saturday)
  │ │ │ │ │
  * * * * *

Examples:
  # 100 DVB trials every hour
  scramsim schedule add --name "Hourly DVB" --cron "0 * * * *" --standard DVB --trials 100

  # Nightly BLE batch on a harsher channel
  scramsim schedule add --name "Nightly BLE" --cron "0 2 * * *" --standard BLE \
    --trials 1000 --workers 4 --max-run 3 --base-error-rate 0.02`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return fmt.Errorf("schedule name is required")
			}
			if cronExpr == "" {
				return fmt.Errorf("cron expression is required")
			}

			std, err := lfsr.LookupStandard(standard)
			if err != nil {
				return err
			}
			if _, err := scrambler.Get(variant); err != nil {
				return err
			}

			// Only explicitly set flags are stored so later default
			// changes still reach the schedule
			params := make(db.JSONData)
			flags := cmd.Flags()
			if flags.Changed("max-run") {
				params[schedule.ParamMaxRun] = noise.MaxRun
			}
			if flags.Changed("flip-probability") {
				params[schedule.ParamFlipProbability] = noise.FlipProbability
			}
			if flags.Changed("base-error-rate") {
				params[schedule.ParamBaseErrorRate] = noise.BaseErrorRate
			}
			if flags.Changed("seed") {
				// Params are stored as JSON numbers
				if seed > maxJSONSeed {
					return fmt.Errorf("schedule seed must not exceed %d", uint64(maxJSONSeed))
				}
				params[schedule.ParamSeed] = seed
			}
			if flags.Changed("workers") {
				params[schedule.ParamWorkers] = workers
			}

			sched := &schedule.Schedule{
				Name:        name,
				Description: description,
				CronExpr:    cronExpr,
				Standard:    std.Name,
				Scrambler:   variant,
				Trials:      trials,
				Params:      params,
				Enabled:     enabled,
			}

			return withStore(func(_ *db.DB, store *schedule.Store) error {
				if err := store.Create(sched); err != nil {
					return fmt.Errorf("failed to create schedule: %w", err)
				}

				fmt.Printf("Created schedule '%s' (ID: %d)\n", sched.Name, sched.ID)
				fmt.Printf("Cron: %s\n", sched.CronExpr)
				fmt.Printf("Simulation: %s / %s, %d trials\n", sched.Standard, sched.Scrambler, sched.Trials)
				if sched.NextRunTime != nil {
					fmt.Printf("Next run: %s\n", sched.NextRunTime.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Schedule name (required)")
	cmd.Flags().StringVarP(&description, "desc", "d", "", "Schedule description")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (required)")
	cmd.Flags().StringVarP(&standard, "standard", "s", lfsr.TEST.Name, "Scrambler standard")
	cmd.Flags().StringVar(&variant, "scrambler", scrambler.AdditiveName, "Scrambler variant")
	cmd.Flags().IntVarP(&trials, "trials", "t", 100, "Trials per batch")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Parallel workers")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Fixed seed for every batch (0 = random)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable schedule immediately")
	addNoiseFlags(cmd, &noise)

	if err := cmd.MarkFlagRequired("name"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to mark flag 'name' as required: %v\n", err)
	}
	if err := cmd.MarkFlagRequired("cron"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to mark flag 'cron' as required: %v\n", err)
	}

	return cmd
}

func scheduleListCmd() *cobra.Command {
	var (
		all      bool
		disabled bool
		standard string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Long: `List configured schedules.

Examples:
  # List enabled schedules
  scramsim schedule list

  # List all schedules
  scramsim schedule list --all`,
		RunE: func(_ *cobra.Command, _ []string) error {
			filter := schedule.ScheduleFilter{Standard: strings.ToUpper(standard)}
			if !all && !disabled {
				enabled := true
				filter.Enabled = &enabled
			} else if disabled {
				enabled := false
				filter.Enabled = &enabled
			}

			return withStore(func(_ *db.DB, store *schedule.Store) error {
				schedules, err := store.List(filter)
				if err != nil {
					return fmt.Errorf("failed to list schedules: %w", err)
				}

				if len(schedules) == 0 {
					fmt.Println("No schedules found")
					return nil
				}

				fmt.Printf("%-4s %-20s %-6s %-15s %-7s %-15s %-8s %-20s\n",
					"ID", "Name", "Std", "Scrambler", "Trials", "Cron", "Enabled", "Next Run")
				fmt.Println(strings.Repeat("-", 100))

				for _, sched := range schedules {
					nextRun := "N/A"
					if sched.NextRunTime != nil {
						nextRun = sched.NextRunTime.Format("2006-01-02 15:04")
						if sched.IsOverdue() {
							nextRun += " (overdue)"
						}
					}

					fmt.Printf("%-4d %-20s %-6s %-15s %-7d %-15s %-8v %-20s\n",
						sched.ID,
						truncate(sched.Name, 20),
						sched.Standard,
						sched.Scrambler,
						sched.Trials,
						sched.CronExpr,
						sched.Enabled,
						nextRun,
					)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all schedules")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Show only disabled schedules")
	cmd.Flags().StringVarP(&standard, "standard", "s", "", "Filter by standard")

	return cmd
}

func scheduleRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove [id|name]",
		Short: "Remove a schedule",
		Long: `Remove a schedule by ID or name.

Examples:
  scramsim schedule remove 1
  scramsim schedule remove "Hourly DVB" --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withStore(func(_ *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				if !yes {
					fmt.Printf("Delete schedule '%s' (ID: %d)? [y/N] ", sched.Name, sched.ID)
					var confirm string
					if _, err := fmt.Scanln(&confirm); err != nil {
						confirm = "n"
					}
					if !strings.EqualFold(confirm, "y") {
						fmt.Println("Cancelled")
						return nil
					}
				}

				if err := store.Delete(sched.ID); err != nil {
					return fmt.Errorf("failed to delete schedule: %w", err)
				}

				fmt.Printf("Deleted schedule '%s'\n", sched.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func scheduleEnableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable [id|name]",
		Short: "Enable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return toggleSchedule(args[0], true)
		},
	}
}

func scheduleDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable [id|name]",
		Short: "Disable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return toggleSchedule(args[0], false)
		},
	}
}

func toggleSchedule(identifier string, enable bool) error {
	return withStore(func(_ *db.DB, store *schedule.Store) error {
		sched, err := findSchedule(store, identifier)
		if err != nil {
			return err
		}

		if enable {
			if err := store.Enable(sched.ID); err != nil {
				return fmt.Errorf("failed to enable schedule: %w", err)
			}
			fmt.Printf("Enabled schedule '%s'\n", sched.Name)
			return nil
		}

		if err := store.Disable(sched.ID); err != nil {
			return fmt.Errorf("failed to disable schedule: %w", err)
		}
		fmt.Printf("Disabled schedule '%s'\n", sched.Name)
		return nil
	})
}

func scheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [id|name]",
		Short: "Run a schedule's batch once, now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withStore(func(database *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				runner := schedule.NewRunner(database, slog.Default())
				run, err := runner.Execute(ctx, sched)
				if run != nil {
					fmt.Printf("Run ID: %d (%d trials, %s)\n", run.ID, run.Trials, statusText(run))
				}
				return err
			})
		},
	}
}

func scheduleStartCmd() *cobra.Command {
	var (
		checkInterval time.Duration
		stopTimeout   time.Duration
		logFile       string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long: `Start the scheduler daemon to run simulation batches automatically.

The scheduler will:
- Load all enabled schedules
- Run each batch according to its cron expression
- Store every run in the database
- Continue running until interrupted

Examples:
  # Start scheduler in foreground
  scramsim schedule start

  # Start with custom check interval
  scramsim schedule start --check-interval 30s

  # Start with log file
  scramsim schedule start --log scheduler.log`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logger := slog.Default()
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- user-specified log file
				if err != nil {
					return fmt.Errorf("failed to open log file: %w", err)
				}
				defer func() { _ = f.Close() }()
				logger = slog.New(slog.NewJSONHandler(f, nil))
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			runner := schedule.NewRunner(database, logger)
			if err := runner.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			ticker := time.NewTicker(checkInterval)
			defer ticker.Stop()

			fmt.Println("Scheduler started. Press Ctrl+C to stop.")

			for {
				select {
				case <-sigChan:
					logger.Info("received shutdown signal")
					runner.Stop(stopTimeout)
					return nil

				case <-ticker.C:
					if err := runner.CheckDue(); err != nil {
						logger.Error("error checking due schedules", "error", err)
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&checkInterval, "check-interval", 60*time.Second, "Interval to check for overdue schedules")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "How long to wait for running batches on shutdown")
	cmd.Flags().StringVar(&logFile, "log", "", "Log file path (default: stderr)")

	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id|name]",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withStore(func(_ *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				fmt.Printf("Schedule: %s (ID: %d)\n", sched.Name, sched.ID)
				if sched.Description != "" {
					fmt.Printf("Description: %s\n", sched.Description)
				}
				fmt.Printf("Standard: %s\n", sched.Standard)
				fmt.Printf("Scrambler: %s\n", sched.Scrambler)
				fmt.Printf("Trials: %d\n", sched.Trials)
				fmt.Printf("Cron Expression: %s\n", sched.CronExpr)
				fmt.Printf("Enabled: %v\n", sched.Enabled)
				fmt.Printf("Created: %s\n", sched.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("Updated: %s\n", sched.UpdatedAt.Format("2006-01-02 15:04:05"))

				if sched.LastRunTime != nil {
					fmt.Printf("\nLast Run: %s\n", sched.LastRunTime.Format("2006-01-02 15:04:05"))
					if sched.LastRunID != nil {
						fmt.Printf("Last Run ID: %d\n", *sched.LastRunID)
					}
				} else {
					fmt.Printf("\nLast Run: Never\n")
				}

				if sched.NextRunTime != nil {
					fmt.Printf("Next Run: %s", sched.NextRunTime.Format("2006-01-02 15:04:05"))
					if sched.IsOverdue() {
						fmt.Printf(" (OVERDUE)")
					}
					fmt.Println()
				}

				if len(sched.Params) > 0 {
					fmt.Printf("\nParameters:\n")
					keys := make([]string, 0, len(sched.Params))
					for k := range sched.Params {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					for _, k := range keys {
						fmt.Printf("  %s: %v\n", k, sched.Params[k])
					}
				}

				return nil
			})
		},
	}
}
