package domain

import "github.com/shopspring/decimal"

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// RawRecord is a recommendation as returned by a source, before validation.
// Every field is text; savings carry the provider's decimal representation.
type RawRecord struct {
	ResourceID              string
	ResourceType            string
	AccountID               string
	Region                  string
	CurrentConfiguration    string
	RecommendedAction       string
	EstimatedMonthlySavings string
	CurrencyCode            string
	ConfidenceLevel         string
	ActionType              string
	ImplementationEffort    string
}

// Recommendation is one validated cost-optimization suggestion.
type Recommendation struct {
	ResourceID              string
	ResourceType            string // EC2Instance
	AccountID               string
	Region                  string
	CurrentConfiguration    string          // "m5.2xlarge, 8 vCPU"
	RecommendedAction       string          // "Rightsize to m5.large"
	EstimatedMonthlySavings decimal.Decimal // never negative
	CurrencyCode            string          // USD
	ConfidenceLevel         ConfidenceLevel // optional
	ActionType              string          // Rightsize, Stop, Upgrade...
	ImplementationEffort    string          // VeryLow .. VeryHigh
}

// ResourceGroupSummary aggregates the recommendations sharing a resource type.
type ResourceGroupSummary struct {
	ResourceType            string
	RecommendationCount     int
	TotalEstimatedSavings   decimal.Decimal
	AverageEstimatedSavings decimal.Decimal
	ActionTypes             []string
}
