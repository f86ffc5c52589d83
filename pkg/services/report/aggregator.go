package report

import (
	"sort"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/shopspring/decimal"
)

// averagePrecision bounds the division only; nothing is rounded for display here.
const averagePrecision = 16

// Aggregate groups recommendations by resource type, ordered by descending
// total savings and then by resource type name.
func Aggregate(recs []domain.Recommendation) []domain.ResourceGroupSummary {
	index := make(map[string]int)
	groups := make([]domain.ResourceGroupSummary, 0)
	actions := make([]map[string]struct{}, 0)

	for _, rec := range recs {
		i, ok := index[rec.ResourceType]
		if !ok {
			i = len(groups)
			index[rec.ResourceType] = i
			groups = append(groups, domain.ResourceGroupSummary{
				ResourceType:          rec.ResourceType,
				TotalEstimatedSavings: decimal.Zero,
			})
			actions = append(actions, make(map[string]struct{}))
		}

		groups[i].RecommendationCount++
		groups[i].TotalEstimatedSavings = groups[i].TotalEstimatedSavings.Add(rec.EstimatedMonthlySavings)
		if rec.ActionType != "" {
			actions[i][rec.ActionType] = struct{}{}
		}
	}

	for i := range groups {
		count := decimal.NewFromInt(int64(groups[i].RecommendationCount))
		groups[i].AverageEstimatedSavings = groups[i].TotalEstimatedSavings.DivRound(count, averagePrecision)
		groups[i].ActionTypes = sortedKeys(actions[i])
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].TotalEstimatedSavings.Cmp(groups[j].TotalEstimatedSavings); c != 0 {
			return c > 0
		}
		return groups[i].ResourceType < groups[j].ResourceType
	})

	return groups
}

func TotalSavings(groups []domain.ResourceGroupSummary) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.TotalEstimatedSavings)
	}
	return total
}

// TopRecommendations returns at most n recommendations by descending savings.
// The input slice is not reordered.
func TopRecommendations(recs []domain.Recommendation, n int) []domain.Recommendation {
	top := make([]domain.Recommendation, len(recs))
	copy(top, recs)

	sort.SliceStable(top, func(i, j int) bool {
		if c := top[i].EstimatedMonthlySavings.Cmp(top[j].EstimatedMonthlySavings); c != 0 {
			return c > 0
		}
		return top[i].ResourceID < top[j].ResourceID
	})

	if n >= 0 && len(top) > n {
		top = top[:n]
	}
	return top
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
