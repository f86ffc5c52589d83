package store

import "time"

// Run is one row of the report_runs table.
type Run struct {
	ID                   string
	Trigger              string
	Status               string
	StartedAt            time.Time
	CompletedAt          *time.Time
	TotalRecommendations int
	TotalSkipped         int
	TotalSavings         string
	Currency             string
	SummaryDegraded      bool
	DeliveryStatus       string
	ExportKey            string
	Error                *string
}

type ListOptions struct {
	Status string
	Limit  int
}
