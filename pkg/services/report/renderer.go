package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/shopspring/decimal"
)

const SummaryPlaceholder = "AI summary unavailable for this run."

// ExportColumns is the fixed column order of the CSV export.
var ExportColumns = []string{
	"resourceId",
	"resourceType",
	"accountId",
	"region",
	"currentConfiguration",
	"recommendedAction",
	"estimatedMonthlySavings",
	"currencyCode",
	"confidenceLevel",
	"actionType",
	"implementationEffort",
}

type TableConfig struct {
	TypeWidth    int
	CountWidth   int
	AmountWidth  int
	ActionsWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		TypeWidth:    28,
		CountWidth:   7,
		AmountWidth:  16,
		ActionsWidth: 32,
	}
}

type Renderer struct {
	title  string
	config TableConfig
	text   *template.Template
	html   *htmltemplate.Template
}

func NewRenderer(title string) *Renderer {
	if title == "" {
		title = "AWS Cost Optimization Report"
	}

	r := &Renderer{title: title, config: DefaultTableConfig()}
	r.text = template.Must(template.New("narrative").Funcs(template.FuncMap{
		"formatRow": r.formatRow,
		"separator": r.separator,
		"header": func() groupRow {
			return groupRow{
				ResourceType: "Resource type",
				Count:        "Count",
				Total:        "Total",
				Average:      "Average",
				Actions:      "Actions",
			}
		},
	}).Parse(narrativeTemplate))
	r.html = htmltemplate.Must(htmltemplate.New("html").Parse(htmlTemplate))
	return r
}

// Render produces the CSV export and the plain-text narrative body. It never
// fails for a run produced by the pipeline.
func (r *Renderer) Render(run *domain.ReportRun) ([]byte, string) {
	return r.RenderExport(run), r.RenderNarrative(run)
}

func (r *Renderer) RenderExport(run *domain.ReportRun) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	// bytes.Buffer writes cannot fail, so csv errors are not possible here.
	_ = w.Write(ExportColumns)
	for _, rec := range run.Recommendations {
		_ = w.Write([]string{
			rec.ResourceID,
			rec.ResourceType,
			rec.AccountID,
			rec.Region,
			rec.CurrentConfiguration,
			rec.RecommendedAction,
			rec.EstimatedMonthlySavings.String(),
			rec.CurrencyCode,
			string(rec.ConfidenceLevel),
			rec.ActionType,
			rec.ImplementationEffort,
		})
	}
	w.Flush()

	return buf.Bytes()
}

func (r *Renderer) RenderNarrative(run *domain.ReportRun) string {
	view := r.newView(run)

	var buf bytes.Buffer
	if err := r.text.Execute(&buf, view); err != nil {
		return fmt.Sprintf("%s\n\nRun: %s\nPotential monthly savings: %s\n", view.Title, view.RunID, view.Headline)
	}
	return buf.String()
}

// RenderHTML is the HTML alternative of the narrative body.
func (r *Renderer) RenderHTML(run *domain.ReportRun) string {
	view := r.newView(run)

	var buf bytes.Buffer
	if err := r.html.Execute(&buf, view); err != nil {
		return "<html><body><pre>" + htmltemplate.HTMLEscapeString(r.RenderNarrative(run)) + "</pre></body></html>"
	}
	return buf.String()
}

// ExportFileName is the attachment and archive name for a run started at t.
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("cost_optimization_recommendations_%s.csv", t.UTC().Format("20060102"))
}

// FormatMoney rounds half-to-even to two places and appends the currency code.
func FormatMoney(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	return amount.StringFixedBank(2) + " " + currency
}

type groupRow struct {
	ResourceType string
	Count        string
	Total        string
	Average      string
	Actions      string
}

type narrativeView struct {
	Title           string
	RunID           string
	Generated       string
	Recommendations int
	Skipped         int
	Headline        string
	Summary         string
	Placeholder     string
	Rows            []groupRow
	Total           groupRow
}

func (r *Renderer) newView(run *domain.ReportRun) narrativeView {
	currency := run.CurrencyCode
	view := narrativeView{
		Title:           r.title,
		RunID:           run.RunID,
		Generated:       run.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		Recommendations: len(run.Recommendations),
		Skipped:         run.TotalSkipped,
		Headline:        FormatMoney(run.TotalSavings(), currency),
		Summary:         strings.TrimSpace(run.NarrativeSummary),
		Placeholder:     SummaryPlaceholder,
		Rows:            make([]groupRow, 0, len(run.Groups)),
	}

	for _, g := range run.Groups {
		view.Rows = append(view.Rows, groupRow{
			ResourceType: g.ResourceType,
			Count:        strconv.Itoa(g.RecommendationCount),
			Total:        FormatMoney(g.TotalEstimatedSavings, currency),
			Average:      FormatMoney(g.AverageEstimatedSavings, currency),
			Actions:      strings.Join(g.ActionTypes, ", "),
		})
	}
	view.Total = groupRow{
		ResourceType: "Total",
		Count:        strconv.Itoa(len(run.Recommendations)),
		Total:        view.Headline,
		Average:      "-",
		Actions:      "-",
	}

	return view
}

func (r *Renderer) formatRow(row groupRow) string {
	return fmt.Sprintf("| %-*s | %*s | %*s | %*s | %-*s |",
		r.config.TypeWidth, row.ResourceType,
		r.config.CountWidth, row.Count,
		r.config.AmountWidth, row.Total,
		r.config.AmountWidth, row.Average,
		r.config.ActionsWidth, row.Actions)
}

func (r *Renderer) separator() string {
	return fmt.Sprintf("+%s+%s+%s+%s+%s+",
		strings.Repeat("-", r.config.TypeWidth+2),
		strings.Repeat("-", r.config.CountWidth+2),
		strings.Repeat("-", r.config.AmountWidth+2),
		strings.Repeat("-", r.config.AmountWidth+2),
		strings.Repeat("-", r.config.ActionsWidth+2))
}

const narrativeTemplate = `{{.Title}}

Run ID:                {{.RunID}}
Generated:             {{.Generated}}
Total recommendations: {{.Recommendations}}
Skipped records:       {{.Skipped}}

Potential monthly savings: {{.Headline}}

=== Summary ===
{{if .Summary}}{{.Summary}}{{else}}{{.Placeholder}}{{end}}

=== Savings by resource type ===
{{separator}}
{{formatRow (header)}}
{{separator}}
{{range .Rows}}{{formatRow .}}
{{end}}{{separator}}
{{formatRow .Total}}
{{separator}}

A CSV export with every recommendation is attached.
`

const htmlTemplate = `<html>
  <head>
    <style>
      body { font-family: 'Segoe UI', Arial, sans-serif; line-height: 1.6; color: #2c3e50; }
      table { border-collapse: collapse; width: 100%; }
      th, td { padding: 8px; border: 1px solid #e1e8ed; }
      th { background-color: #f2f2f2; text-align: left; }
      td.amount { text-align: right; }
      .total-savings { background-color: #2e7d32; color: white; padding: 20px; text-align: center; font-size: 1.4em; }
    </style>
  </head>
  <body>
    <h1>{{.Title}}</h1>
    <p>Run {{.RunID}} generated {{.Generated}}: {{.Recommendations}} recommendations, {{.Skipped}} skipped records.</p>
    <div class="total-savings">Potential Monthly Savings<br>{{.Headline}}</div>
    <h2>Summary</h2>
    <pre style="white-space: pre-wrap;">{{if .Summary}}{{.Summary}}{{else}}{{.Placeholder}}{{end}}</pre>
    <h2>Savings by resource type</h2>
    <table>
      <tr><th>Resource Type</th><th>Count</th><th>Total</th><th>Average</th><th>Actions</th></tr>
      {{range .Rows}}<tr><td>{{.ResourceType}}</td><td class="amount">{{.Count}}</td><td class="amount">{{.Total}}</td><td class="amount">{{.Average}}</td><td>{{.Actions}}</td></tr>
      {{end}}<tr style="font-weight: bold;"><td>{{.Total.ResourceType}}</td><td class="amount">{{.Total.Count}}</td><td class="amount">{{.Total.Total}}</td><td class="amount">-</td><td>-</td></tr>
    </table>
    <p><em>A detailed CSV report is attached to this email.</em></p>
  </body>
</html>
`
