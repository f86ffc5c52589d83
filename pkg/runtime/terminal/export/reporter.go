package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/de-tools/cost-digest/pkg/models/api"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

type TableConfig struct {
	IDWidth      int
	StatusWidth  int
	TriggerWidth int
	StartedWidth int
	CountWidth   int
	SavingsWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		IDWidth:      36,
		StatusWidth:  18,
		TriggerWidth: 8,
		StartedWidth: 20,
		CountWidth:   7,
		SavingsWidth: 14,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

// HandleRuns prints run history in the requested format.
func (c *Reporter) HandleRuns(runs []api.Run, format string) error {
	switch format {
	case FormatJSON:
		return c.writeJSON(runs)
	case FormatYAML:
		return c.writeYAML(runs)
	case "", FormatTable:
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	funcMap := template.FuncMap{
		"formatRow": func(id, status, trigger, started, count, savings string) string {
			return fmt.Sprintf("| %-*s | %-*s | %-*s | %-*s | %*s | %*s |",
				c.config.IDWidth, id,
				c.config.StatusWidth, status,
				c.config.TriggerWidth, trigger,
				c.config.StartedWidth, started,
				c.config.CountWidth, count,
				c.config.SavingsWidth, savings)
		},
		"separator": func() string {
			return fmt.Sprintf("+%s+%s+%s+%s+%s+%s+",
				strings.Repeat("-", c.config.IDWidth+2),
				strings.Repeat("-", c.config.StatusWidth+2),
				strings.Repeat("-", c.config.TriggerWidth+2),
				strings.Repeat("-", c.config.StartedWidth+2),
				strings.Repeat("-", c.config.CountWidth+2),
				strings.Repeat("-", c.config.SavingsWidth+2))
		},
		"started": func(r api.Run) string {
			return r.StartedAt.UTC().Format("2006-01-02 15:04:05")
		},
		"count": func(n int) string {
			return fmt.Sprint(n)
		},
	}

	tmpl := `{{separator}}
{{formatRow "Run" "Status" "Trigger" "Started (UTC)" "Recs" "Savings"}}
{{separator}}
{{range .}}{{formatRow .ID .Status .Trigger (started .) (count .TotalRecommendations) .TotalSavings}}
{{end}}{{separator}}
`

	t, err := template.New("runs").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, runs)
}

// HandleRun prints the outcome of a single run.
func (c *Reporter) HandleRun(run api.Run, format string) error {
	switch format {
	case FormatJSON:
		return c.writeJSON(run)
	case FormatYAML:
		return c.writeYAML(run)
	case "", FormatTable:
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	tmpl := `
Run {{.ID}} ({{.Trigger}})
Status:          {{.Status}}
Started:         {{.StartedAt.Format "2006-01-02 15:04:05 MST"}}
{{- if .CompletedAt}}
Completed:       {{.CompletedAt.Format "2006-01-02 15:04:05 MST"}}{{end}}
Recommendations: {{.TotalRecommendations}} ({{.TotalSkipped}} skipped)
Savings:         {{.TotalSavings}} {{.Currency}}
{{- if .Delivery}}
Delivery:        {{.Delivery}}{{end}}
{{- if .SummaryDegraded}}
Summary:         unavailable{{end}}
{{- if .ExportKey}}
Export:          {{.ExportKey}}{{end}}
{{- if .Error}}
Error:           {{.Error}}{{end}}
{{range .Groups}}
- {{.ResourceType}}: {{.RecommendationCount}} recommendations, {{.TotalEstimatedSavings}} total
{{- end}}
`

	t, err := template.New("run").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	return t.Execute(c.writer, run)
}

func (c *Reporter) writeJSON(v any) error {
	enc := json.NewEncoder(c.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *Reporter) writeYAML(v any) error {
	enc := yaml.NewEncoder(c.writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
