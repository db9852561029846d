// Package report renders stored simulation runs as HTML and PDF.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/hostinfo"
)

// MaxTrialRows caps the per-trial table of a report
const MaxTrialRows = 500

// Metric group names, in display order
const (
	GroupUnscrambled = "Unscrambled Path"
	GroupScrambled   = "Scrambled Path"
	GroupFrame       = "Frames"
)

// ReportData contains all data needed for report generation
type ReportData struct {
	Run          *db.Run
	Results      []*db.Result
	Trials       []*db.Trial
	TotalTrials  int
	GeneratedAt  time.Time
	SystemInfo   SystemInfo
	MetricGroups []MetricGroup
}

// SystemInfo contains system information
type SystemInfo struct {
	Hostname     string
	OS           string
	Architecture string
	CPUModel     string
	CPUCores     int
	TotalMemory  string
	GoVersion    string
}

// MetricGroup groups related metrics together
type MetricGroup struct {
	Name    string
	Metrics []MetricDisplay
}

// MetricDisplay represents a metric for display
type MetricDisplay struct {
	Name  string
	Value string
	Unit  string
	Raw   float64
}

// Generator creates reports from stored runs
type Generator struct {
	database *db.DB
	sysinfo  func() SystemInfo
}

// NewGenerator creates a new report generator
func NewGenerator(database *db.DB) *Generator {
	return &Generator{
		database: database,
		sysinfo:  collectSystemInfo,
	}
}

// GenerateHTML generates an HTML report for a run
func (g *Generator) GenerateHTML(runID int64) (string, error) {
	data, err := g.loadReportData(runID)
	if err != nil {
		return "", err
	}

	tmpl, err := loadHTMLTemplate()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func (g *Generator) loadReportData(runID int64) (*ReportData, error) {
	run, err := g.database.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	results, err := g.database.GetResults(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	trials, err := g.database.GetTrials(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trials: %w", err)
	}

	data := &ReportData{
		Run:          run,
		Results:      results,
		TotalTrials:  len(trials),
		GeneratedAt:  time.Now(),
		SystemInfo:   g.sysinfo(),
		MetricGroups: groupMetrics(results),
	}
	if len(trials) > MaxTrialRows {
		trials = trials[:MaxTrialRows]
	}
	data.Trials = trials

	return data, nil
}

func collectSystemInfo() SystemInfo {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info := hostinfo.Collect(ctx)
	return SystemInfo{
		Hostname:     info.Host.Hostname,
		OS:           strings.TrimSpace(info.Host.Platform + " " + info.Host.PlatformVersion),
		Architecture: info.Host.Architecture,
		CPUModel:     info.CPU.ModelName,
		CPUCores:     info.CPU.LogicalCores,
		TotalMemory:  hostinfo.FormatBytes(info.Memory.Total),
		GoVersion:    info.Runtime.Version,
	}
}

// metricGroup places a stored metric name in its display group
func metricGroup(metric string) string {
	switch {
	case strings.Contains(metric, "unscrambled"):
		return GroupUnscrambled
	case strings.Contains(metric, "scrambled"), metric == "improvement":
		return GroupScrambled
	default:
		return GroupFrame
	}
}

func groupMetrics(results []*db.Result) []MetricGroup {
	groups := make(map[string][]MetricDisplay)

	for _, result := range results {
		group := metricGroup(result.Metric)
		groups[group] = append(groups[group], MetricDisplay{
			Name:  formatMetricName(result.Metric),
			Value: formatValue(result.Value, result.Unit),
			Unit:  result.Unit,
			Raw:   result.Value,
		})
	}

	var metricGroups []MetricGroup
	for _, name := range []string{GroupUnscrambled, GroupScrambled, GroupFrame} {
		metrics, ok := groups[name]
		if !ok {
			continue
		}
		sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
		metricGroups = append(metricGroups, MetricGroup{Name: name, Metrics: metrics})
	}

	return metricGroups
}

func loadHTMLTemplate() (*template.Template, error) {
	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},
		"formatDuration": func(d time.Duration) string {
			return fmt.Sprintf("%.2f seconds", d.Seconds())
		},
		"formatRate": func(r float64) string {
			return fmt.Sprintf("%.4f", r)
		},
		"statusClass": func(status db.RunStatus) string {
			if status == db.RunStatusFailed {
				return "failure"
			}
			return "success"
		},
	}

	tmpl, err := template.New("report").Funcs(funcMap).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

func formatMetricName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatValue(value float64, unit string) string {
	switch unit {
	case "ratio":
		return fmt.Sprintf("%.4f", value)
	case "x":
		return fmt.Sprintf("%.2f", value)
	}
	if value >= 1000000 {
		return fmt.Sprintf("%.2fM", value/1000000)
	}
	if value >= 1000 {
		return fmt.Sprintf("%.2fK", value/1000)
	}
	return fmt.Sprintf("%.0f", value)
}

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Scrambler Simulation Report - Run #{{.Run.ID}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 30px;
        }
        h1, h2, h3 { color: #2c3e50; }
        .header {
            border-bottom: 3px solid #2563EB;
            padding-bottom: 20px;
            margin-bottom: 30px;
        }
        .status {
            display: inline-block;
            padding: 5px 15px;
            border-radius: 4px;
            font-weight: bold;
            text-transform: uppercase;
            color: white;
        }
        .status.success { background-color: #10B981; }
        .status.failure { background-color: #EF4444; }
        .info-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
            gap: 20px;
            margin: 20px 0;
        }
        .info-card {
            background-color: #f8f9fa;
            padding: 15px;
            border-radius: 4px;
            border-left: 4px solid #2563EB;
        }
        .info-card h3 {
            margin: 0 0 10px 0;
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
        }
        .info-card p { margin: 0; font-size: 1.1em; font-weight: 500; }
        .section { margin: 30px 0; }
        .metric-group h3 {
            background-color: #f0f0f0;
            padding: 10px;
            margin: 0 0 15px 0;
            border-radius: 4px;
        }
        table { width: 100%; border-collapse: collapse; }
        th, td { padding: 8px; text-align: left; border-bottom: 1px solid #e0e0e0; }
        th { background-color: #f8f9fa; font-weight: 600; color: #666; }
        .error-section {
            background-color: #FEE;
            border: 1px solid #FCC;
            border-radius: 4px;
            padding: 15px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e0e0e0;
            text-align: center;
            color: #666;
            font-size: 0.9em;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Scrambler Simulation Report</h1>
            <p>Run ID: #{{.Run.ID}} | Standard: {{.Run.Standard}} | Scrambler: {{.Run.Scrambler}} |
               Status: <span class="status {{statusClass .Run.GetStatus}}">{{.Run.GetStatus}}</span>
            </p>
        </div>

        <div class="info-grid">
            <div class="info-card"><h3>Start Time</h3><p>{{formatTime .Run.StartTime}}</p></div>
            <div class="info-card"><h3>End Time</h3><p>{{if .Run.EndTime}}{{formatTime .Run.EndTime}}{{else}}Still Running{{end}}</p></div>
            <div class="info-card"><h3>Duration</h3><p>{{if .Run.EndTime}}{{formatDuration .Run.Duration}}{{else}}N/A{{end}}</p></div>
            <div class="info-card"><h3>Trials</h3><p>{{.Run.Trials}}</p></div>
            <div class="info-card"><h3>Seed</h3><p>{{.Run.Seed}}</p></div>
        </div>

        {{if .Run.Error}}
        <div class="error-section">
            <h3>Error Details</h3>
            <pre>{{.Run.Error}}</pre>
        </div>
        {{end}}

        {{if .Run.Params}}
        <div class="section">
            <h2>Parameters</h2>
            <table>
                <thead><tr><th>Parameter</th><th>Value</th></tr></thead>
                <tbody>
                    {{range $key, $value := .Run.Params}}
                    <tr><td>{{$key}}</td><td>{{$value}}</td></tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Summary</h2>
            {{range .MetricGroups}}
            <div class="metric-group">
                <h3>{{.Name}}</h3>
                <table>
                    <thead><tr><th>Metric</th><th>Value</th><th>Unit</th></tr></thead>
                    <tbody>
                        {{range .Metrics}}
                        <tr><td>{{.Name}}</td><td>{{.Value}}</td><td>{{.Unit}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>

        {{if .Trials}}
        <div class="section">
            <h2>Trials</h2>
            {{if gt .TotalTrials (len .Trials)}}<p>Showing the first {{len .Trials}} of {{.TotalTrials}} trials.</p>{{end}}
            <table>
                <thead>
                    <tr><th>#</th><th>Frame Bits</th><th>Errors (unscrambled)</th><th>Errors (scrambled)</th><th>Rate (unscrambled)</th><th>Rate (scrambled)</th></tr>
                </thead>
                <tbody>
                    {{range .Trials}}
                    <tr>
                        <td>{{.Index}}</td>
                        <td>{{.FrameLength}}</td>
                        <td>{{.ErrorsUnscrambled}}</td>
                        <td>{{.ErrorsScrambled}}</td>
                        <td>{{formatRate .RateUnscrambled}}</td>
                        <td>{{formatRate .RateScrambled}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Host</h2>
            <div class="info-grid">
                <div class="info-card"><h3>Hostname</h3><p>{{.SystemInfo.Hostname}}</p></div>
                <div class="info-card"><h3>OS</h3><p>{{.SystemInfo.OS}} ({{.SystemInfo.Architecture}})</p></div>
                <div class="info-card"><h3>CPU</h3><p>{{.SystemInfo.CPUModel}} x{{.SystemInfo.CPUCores}}</p></div>
                <div class="info-card"><h3>Memory</h3><p>{{.SystemInfo.TotalMemory}}</p></div>
                <div class="info-card"><h3>Go</h3><p>{{.SystemInfo.GoVersion}}</p></div>
            </div>
        </div>

        <div class="footer">
            <p>Generated by scramsim on {{formatTime .GeneratedAt}}</p>
        </div>
    </div>
</body>
</html>
`
