package adapters

import (
	"time"

	"github.com/de-tools/cost-digest/pkg/models/api"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/models/store"
)

func MapDomainRunToStore(r *domain.ReportRun) *store.Run {
	if r == nil {
		return nil
	}

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		t := r.CompletedAt
		completedAt = &t
	}

	var runErr *string
	if r.Error != "" {
		e := r.Error
		runErr = &e
	}

	return &store.Run{
		ID:                   r.RunID,
		Trigger:              string(r.Trigger),
		Status:               string(r.Status),
		StartedAt:            r.StartedAt,
		CompletedAt:          completedAt,
		TotalRecommendations: len(r.Recommendations),
		TotalSkipped:         r.TotalSkipped,
		TotalSavings:         r.TotalSavings().String(),
		Currency:             r.CurrencyCode,
		SummaryDegraded:      r.SummaryDegraded,
		DeliveryStatus:       string(r.Delivery.Status),
		ExportKey:            r.ExportKey,
		Error:                runErr,
	}
}

func MapStoreRunToAPI(r *store.Run) api.Run {
	out := api.Run{
		ID:                   r.ID,
		Trigger:              r.Trigger,
		Status:               r.Status,
		StartedAt:            r.StartedAt,
		CompletedAt:          r.CompletedAt,
		TotalRecommendations: r.TotalRecommendations,
		TotalSkipped:         r.TotalSkipped,
		TotalSavings:         r.TotalSavings,
		Currency:             r.Currency,
		SummaryDegraded:      r.SummaryDegraded,
		Delivery:             r.DeliveryStatus,
		ExportKey:            r.ExportKey,
	}
	if r.Error != nil {
		out.Error = *r.Error
	}
	return out
}

func MapStoreRunsToAPI(runs []*store.Run) []api.Run {
	out := make([]api.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, MapStoreRunToAPI(r))
	}
	return out
}

// MapDomainRunToAPI includes the per-group breakdown, which is not persisted.
func MapDomainRunToAPI(r *domain.ReportRun) api.Run {
	out := MapStoreRunToAPI(MapDomainRunToStore(r))
	for _, g := range r.Groups {
		out.Groups = append(out.Groups, api.ResourceGroup{
			ResourceType:            g.ResourceType,
			RecommendationCount:     g.RecommendationCount,
			TotalEstimatedSavings:   g.TotalEstimatedSavings.String(),
			AverageEstimatedSavings: g.AverageEstimatedSavings.StringFixedBank(2),
			ActionTypes:             g.ActionTypes,
		})
	}
	return out
}
