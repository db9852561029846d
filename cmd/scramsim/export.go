package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/db"
)

var (
	exportRunID  int64
	exportOutput string
	exportAll    bool
	exportPath   string
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export simulation results",
		Long:  "Export stored runs as CSV, JSON or plain error-rate lists",
	}

	cmd.PersistentFlags().Int64Var(&exportRunID, "run", 0, "Run ID to export")
	cmd.PersistentFlags().StringVarP(&exportOutput, "out", "o", "", "Output file (default: stdout)")

	cmd.AddCommand(exportCSVCmd())
	cmd.AddCommand(exportJSONCmd())
	cmd.AddCommand(exportRatesCmd())

	return cmd
}

func exportCSVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Export trials to CSV format",
		Long: `Export the trials of a run to CSV format.

Examples:
  # Export specific run to file
  scramsim export csv --run 42 --out results.csv

  # Export all runs
  scramsim export csv --all --out all-results.csv`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !exportAll && exportRunID == 0 {
				return fmt.Errorf("either --run or --all must be specified")
			}
			return withExport(func(database *db.DB, out io.Writer) error {
				if exportAll {
					return database.ExportAllCSV(out)
				}
				return database.ExportCSV(out, exportRunID)
			})
		},
	}

	cmd.Flags().BoolVar(&exportAll, "all", false, "Export all runs")

	return cmd
}

func exportJSONCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "json",
		Short: "Export a run to JSON format",
		Long: `Export a run with its summary metrics and trials to JSON format.

Examples:
  scramsim export json --run 42 --out results.json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if exportRunID == 0 {
				return fmt.Errorf("--run must be specified")
			}
			return withExport(func(database *db.DB, out io.Writer) error {
				return database.ExportJSON(out, exportRunID)
			})
		},
	}
}

func exportRatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Export error rates, one per line",
		Long: `Write the error rate of every trial on one path, one value per line.
Without --run every stored run is exported, oldest first.

Examples:
  scramsim export rates --path scrambled --out scramble.txt
  scramsim export rates --path unscrambled --run 7`,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := db.ParseRatePath(exportPath)
			if err != nil {
				return err
			}
			return withExport(func(database *db.DB, out io.Writer) error {
				return database.ExportRates(out, exportRunID, path)
			})
		},
	}

	cmd.Flags().StringVar(&exportPath, "path", string(db.RatePathScrambled), "Which path to export (scrambled, unscrambled)")

	return cmd
}

// withExport opens the database and the output, runs fn and reports where
// the data went
func withExport(fn func(*db.DB, io.Writer) error) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	out, err := createOutput(exportOutput)
	if err != nil {
		return err
	}

	if err := fn(database, out); err != nil {
		_ = out.Close()
		return fmt.Errorf("export failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}

	if exportOutput != "" {
		fmt.Printf("Exported to %s\n", exportOutput)
	}
	return nil
}
