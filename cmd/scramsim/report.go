package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mscrnt/scramsim/pkg/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate simulation reports",
		Long:  "Generate HTML and PDF reports from stored runs",
	}

	cmd.AddCommand(reportGenerateCmd())

	return cmd
}

// pageSizes maps page names to width and height in inches
var pageSizes = map[string][2]float64{
	"A3":     {11.69, 16.54},
	"A4":     {8.27, 11.69},
	"LETTER": {8.5, 11.0},
	"LEGAL":  {8.5, 14.0},
}

func reportGenerateCmd() *cobra.Command {
	var (
		format    string
		output    string
		runID     int64
		latest    bool
		standard  string
		landscape bool
		pageSize  string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report",
		Long: `Generate an HTML or PDF report for a stored run. PDF output needs a local
Chrome or Chromium.

Examples:
  # HTML report for the latest run
  scramsim report generate --latest

  # PDF report for a specific run
  scramsim report generate --run 42 --format pdf --out report.pdf

  # Latest DVB run, landscape A4
  scramsim report generate --latest --standard DVB --format pdf --landscape --page-size A4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(format)
			if format != "html" && format != "pdf" {
				return fmt.Errorf("format must be either 'html' or 'pdf'")
			}

			size, ok := pageSizes[strings.ToUpper(pageSize)]
			if !ok {
				return fmt.Errorf("unsupported page size: %s", pageSize)
			}

			database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			run, err := resolveRun(database, runID, latest, standard)
			if err != nil {
				return err
			}

			if output == "" {
				timestamp := time.Now().Format("20060102_150405")
				output = fmt.Sprintf("scramsim_report_%d_%s.%s", run.ID, timestamp, format)
			}

			generator := report.NewGenerator(database)

			switch format {
			case "html":
				html, err := generator.GenerateHTML(run.ID)
				if err != nil {
					return fmt.Errorf("failed to generate HTML report: %w", err)
				}
				if err := os.WriteFile(output, []byte(html), 0o600); err != nil {
					return fmt.Errorf("failed to write HTML file: %w", err)
				}

			case "pdf":
				options := report.DefaultPDFOptions()
				options.Landscape = landscape
				options.PaperWidth, options.PaperHeight = size[0], size[1]
				options.Timeout = timeout

				if err := generator.GeneratePDF(cmd.Context(), run.ID, output, &options); err != nil {
					return fmt.Errorf("failed to generate PDF report: %w", err)
				}
			}

			absPath, err := filepath.Abs(output)
			if err != nil {
				absPath = output
			}

			fmt.Printf("Generated %s report for run #%d\n", strings.ToUpper(format), run.ID)
			fmt.Printf("Simulation: %s / %s\n", run.Standard, run.Scrambler)
			fmt.Printf("Date: %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
			fmt.Printf("Status: %s\n", statusText(run))
			fmt.Printf("Output: %s\n", absPath)

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html or pdf)")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file path")
	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to generate report for")
	cmd.Flags().BoolVar(&latest, "latest", false, "Use latest run")
	cmd.Flags().StringVarP(&standard, "standard", "s", "", "Filter by standard when using --latest")
	cmd.Flags().BoolVar(&landscape, "landscape", false, "Generate PDF in landscape mode")
	cmd.Flags().StringVar(&pageSize, "page-size", "LETTER", "PDF page size (A3, A4, LETTER, LEGAL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "PDF rendering timeout")

	return cmd
}
