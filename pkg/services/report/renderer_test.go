package report

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRun(t *testing.T, recs ...domain.Recommendation) *domain.ReportRun {
	t.Helper()
	run := domain.NewReportRun("run-1", domain.TriggerManual, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	run.CurrencyCode = "USD"
	run.Recommendations = recs
	run.Groups = Aggregate(recs)
	return run
}

func TestRenderer_RenderExport(t *testing.T) {
	r := NewRenderer("")

	t.Run("header and one row per recommendation in input order", func(t *testing.T) {
		run := newRun(t,
			rec("i-1", "EC2Instance", "10.00", "Rightsize"),
			rec("i-2", "EC2Instance", "20.00", "Stop"),
			rec("vol-1", "EBSVolume", "5.00", "Delete"),
		)

		rows, err := csv.NewReader(strings.NewReader(string(r.RenderExport(run)))).ReadAll()
		require.NoError(t, err)

		require.Len(t, rows, 4)
		assert.Equal(t, ExportColumns, rows[0])
		assert.Equal(t, "i-1", rows[1][0])
		assert.Equal(t, "i-2", rows[2][0])
		assert.Equal(t, "vol-1", rows[3][0])
		assert.Equal(t, "10", rows[1][6])
	})

	t.Run("header is present for an empty run", func(t *testing.T) {
		out := string(r.RenderExport(newRun(t)))
		assert.Equal(t, strings.Join(ExportColumns, ",")+"\r\n", out)
	})

	t.Run("fields with commas and newlines are quoted", func(t *testing.T) {
		x := rec("i-1", "EC2Instance", "1.5", "")
		x.CurrentConfiguration = "m5.xlarge, 4 vCPU"
		x.RecommendedAction = "Rightsize\nto m5.large \"now\""

		out := string(r.RenderExport(newRun(t, x)))

		assert.Contains(t, out, `"m5.xlarge, 4 vCPU"`)
		assert.Contains(t, out, "\"Rightsize\r\nto m5.large \"\"now\"\"\"")
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		assert.Equal(t, x.RecommendedAction, rows[1][5])
	})
}

func TestRenderer_RenderNarrative(t *testing.T) {
	r := NewRenderer("Weekly Savings")

	t.Run("sections appear in fixed order", func(t *testing.T) {
		run := newRun(t,
			rec("i-1", "EC2Instance", "10.00", "Rightsize"),
			rec("i-2", "EC2Instance", "20.00", "Stop"),
			rec("vol-1", "EBSVolume", "5.00", "Delete"),
		)
		run.TotalSkipped = 2
		run.NarrativeSummary = "Stop idle instances first."

		body := r.RenderNarrative(run)

		meta := strings.Index(body, "Total recommendations: 3")
		headline := strings.Index(body, "Potential monthly savings: 35.00 USD")
		summary := strings.Index(body, "Stop idle instances first.")
		ec2 := strings.Index(body, "| EC2Instance")
		ebs := strings.Index(body, "| EBSVolume")

		assert.True(t, strings.HasPrefix(body, "Weekly Savings"))
		assert.Contains(t, body, "Skipped records:       2")
		assert.Contains(t, body, "2026-10-19 08:00:00 UTC")
		require.True(t, meta > 0 && headline > meta && summary > headline && ec2 > summary && ebs > ec2, body)
		assert.NotContains(t, body, SummaryPlaceholder)
		assert.Contains(t, body, "30.00 USD")
		assert.Contains(t, body, "Rightsize, Stop")
	})

	t.Run("missing summary renders the placeholder", func(t *testing.T) {
		body := r.RenderNarrative(newRun(t, rec("i-1", "EC2Instance", "1", "")))
		assert.Contains(t, body, SummaryPlaceholder)
	})

	t.Run("empty run renders", func(t *testing.T) {
		body := r.RenderNarrative(newRun(t))
		assert.Contains(t, body, "Total recommendations: 0")
		assert.Contains(t, body, "0.00 USD")
	})
}

func TestRenderer_RenderHTML(t *testing.T) {
	run := newRun(t, rec("i-1", "EC2<Instance>", "12.345", ""))
	run.NarrativeSummary = "<b>save</b>"

	out := NewRenderer("").RenderHTML(run)

	assert.Contains(t, out, "EC2&lt;Instance&gt;")
	assert.Contains(t, out, "&lt;b&gt;save&lt;/b&gt;")
	assert.Contains(t, out, "12.34 USD")
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{amount: "2.345", want: "2.34 USD"},
		{amount: "2.355", want: "2.36 USD"},
		{amount: "2.3451", want: "2.35 USD"},
		{amount: "10", want: "10.00 USD"},
		{amount: "0.005", want: "0.00 USD"},
	}

	for _, tc := range tests {
		t.Run(tc.amount, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatMoney(decimal.RequireFromString(tc.amount), "USD"))
		})
	}
	assert.Equal(t, "1.00 USD", FormatMoney(decimal.NewFromInt(1), ""))
}

func TestExportFileName(t *testing.T) {
	name := ExportFileName(time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, "cost_optimization_recommendations_20260102.csv", name)
}
