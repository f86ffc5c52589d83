package api

import "time"

type ResourceGroup struct {
	ResourceType            string   `json:"resource_type" yaml:"resource_type"`
	RecommendationCount     int      `json:"recommendation_count" yaml:"recommendation_count"`
	TotalEstimatedSavings   string   `json:"total_estimated_savings" yaml:"total_estimated_savings"`
	AverageEstimatedSavings string   `json:"average_estimated_savings" yaml:"average_estimated_savings"`
	ActionTypes             []string `json:"action_types,omitempty" yaml:"action_types,omitempty"`
}

type Run struct {
	ID                   string          `json:"id" yaml:"id"`
	Trigger              string          `json:"trigger" yaml:"trigger"`
	Status               string          `json:"status" yaml:"status"`
	StartedAt            time.Time       `json:"started_at" yaml:"started_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	TotalRecommendations int             `json:"total_recommendations" yaml:"total_recommendations"`
	TotalSkipped         int             `json:"total_skipped" yaml:"total_skipped"`
	TotalSavings         string          `json:"total_savings" yaml:"total_savings"`
	Currency             string          `json:"currency,omitempty" yaml:"currency,omitempty"`
	SummaryDegraded      bool            `json:"summary_degraded" yaml:"summary_degraded"`
	Delivery             string          `json:"delivery,omitempty" yaml:"delivery,omitempty"`
	ExportKey            string          `json:"export_key,omitempty" yaml:"export_key,omitempty"`
	Error                string          `json:"error,omitempty" yaml:"error,omitempty"`
	Groups               []ResourceGroup `json:"groups,omitempty" yaml:"groups,omitempty"`
}
