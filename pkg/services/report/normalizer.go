package report

import (
	"strings"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// Normalizer validates raw source records into recommendations. Every
// recommendation it returns is in the report currency, so savings can be
// summed without conversion.
type Normalizer struct {
	currency string
}

func NewNormalizer(currency string) *Normalizer {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return &Normalizer{currency: currency}
}

// Currency is the report currency.
func (n *Normalizer) Currency() string {
	return n.currency
}

// Normalize keeps input order. len(recs)+skipped always equals len(raw).
func (n *Normalizer) Normalize(raw []domain.RawRecord) ([]domain.Recommendation, int) {
	recs := make([]domain.Recommendation, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	skipped := 0

	for _, r := range raw {
		rec, ok := n.normalizeRecord(r)
		if !ok {
			skipped++
			continue
		}
		if _, dup := seen[rec.ResourceID]; dup {
			skipped++
			continue
		}
		seen[rec.ResourceID] = struct{}{}
		recs = append(recs, rec)
	}

	return recs, skipped
}

func (n *Normalizer) normalizeRecord(r domain.RawRecord) (domain.Recommendation, bool) {
	id := strings.TrimSpace(r.ResourceID)
	resourceType := strings.TrimSpace(r.ResourceType)
	if id == "" || resourceType == "" {
		return domain.Recommendation{}, false
	}

	savings, ok := ParseSavings(r.EstimatedMonthlySavings)
	if !ok {
		return domain.Recommendation{}, false
	}

	currency := strings.ToUpper(strings.TrimSpace(r.CurrencyCode))
	if currency == "" {
		currency = n.currency
	}
	// Records in another currency cannot be added to the report totals.
	if !isCurrencyCode(currency) || currency != n.currency {
		return domain.Recommendation{}, false
	}

	return domain.Recommendation{
		ResourceID:              id,
		ResourceType:            resourceType,
		AccountID:               strings.TrimSpace(r.AccountID),
		Region:                  strings.TrimSpace(r.Region),
		CurrentConfiguration:    strings.TrimSpace(r.CurrentConfiguration),
		RecommendedAction:       strings.TrimSpace(r.RecommendedAction),
		EstimatedMonthlySavings: savings,
		CurrencyCode:            currency,
		ConfidenceLevel:         parseConfidence(r.ConfidenceLevel),
		ActionType:              strings.TrimSpace(r.ActionType),
		ImplementationEffort:    strings.TrimSpace(r.ImplementationEffort),
	}, true
}

// ParseSavings accepts plain decimal text with a '.' separator ("12.5", "0",
// "1e3"). Thousands separators, currency symbols and negatives are rejected.
func ParseSavings(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, ", ") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// isCurrencyCode reports whether s has the ISO 4217 alphabetic code shape.
func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func parseConfidence(s string) domain.ConfidenceLevel {
	switch c := domain.ConfidenceLevel(strings.ToUpper(strings.TrimSpace(s))); c {
	case domain.ConfidenceLow, domain.ConfidenceMedium, domain.ConfidenceHigh:
		return c
	default:
		return ""
	}
}
