package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RunStatus string

const (
	RunStatusRunning           RunStatus = "RUNNING"
	RunStatusSucceeded         RunStatus = "SUCCEEDED"
	RunStatusFailed            RunStatus = "FAILED"
	RunStatusSkippedConcurrent RunStatus = "SKIPPED_CONCURRENT"
)

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerLambda   Trigger = "lambda"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = ""
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliverySkipped DeliveryStatus = "SKIPPED"
)

type DeliveryResult struct {
	Status    DeliveryStatus
	Reason    string
	MessageID string
}

// ReportRun is one execution of the report pipeline. It is mutated in place by
// every stage and finalized exactly once.
type ReportRun struct {
	RunID        string
	Trigger      Trigger
	StartedAt    time.Time
	CompletedAt  time.Time
	Status       RunStatus
	CurrencyCode string

	Recommendations  []Recommendation
	Groups           []ResourceGroupSummary
	NarrativeSummary string
	SummaryDegraded  bool
	TotalRaw         int
	TotalSkipped     int

	Delivery  DeliveryResult
	ExportKey string
	Error     string
}

func NewReportRun(runID string, trigger Trigger, startedAt time.Time) *ReportRun {
	return &ReportRun{
		RunID:     runID,
		Trigger:   trigger,
		StartedAt: startedAt,
		Status:    RunStatusRunning,
	}
}

func (r *ReportRun) Finalized() bool {
	return r.Status != "" && r.Status != RunStatusRunning
}

// Succeed, Fail and Skip finalize the run. Only the first call has an effect.
func (r *ReportRun) Succeed(at time.Time) {
	r.finalize(RunStatusSucceeded, at, "")
}

func (r *ReportRun) Fail(at time.Time, err error) {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	r.finalize(RunStatusFailed, at, reason)
}

func (r *ReportRun) Skip(at time.Time, reason string) {
	r.finalize(RunStatusSkippedConcurrent, at, reason)
}

func (r *ReportRun) finalize(status RunStatus, at time.Time, reason string) {
	if r.Finalized() {
		return
	}
	r.Status = status
	r.CompletedAt = at
	r.Error = reason
}

// TotalSavings is the sum of every group total.
func (r *ReportRun) TotalSavings() decimal.Decimal {
	total := decimal.Zero
	for _, g := range r.Groups {
		total = total.Add(g.TotalEstimatedSavings)
	}
	return total
}

func (r *ReportRun) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
