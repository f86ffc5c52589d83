package source

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costoptimizationhub"
	"github.com/aws/aws-sdk-go-v2/service/costoptimizationhub/types"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/rs/zerolog"
)

// HubRegion is the only region Cost Optimization Hub is served from.
const HubRegion = "us-east-1"

// HubAPI is the subset of the Cost Optimization Hub client we use.
type HubAPI interface {
	ListRecommendations(
		ctx context.Context,
		params *costoptimizationhub.ListRecommendationsInput,
		optFns ...func(*costoptimizationhub.Options),
	) (*costoptimizationhub.ListRecommendationsOutput, error)
}

type HubSource struct {
	client HubAPI
}

func NewHubSource(cfg aws.Config) *HubSource {
	regional := cfg.Copy()
	regional.Region = HubRegion
	return NewHubSourceWithAPI(costoptimizationhub.NewFromConfig(regional))
}

func NewHubSourceWithAPI(api HubAPI) *HubSource {
	return &HubSource{client: api}
}

func (s *HubSource) Name() string {
	return "cost-optimization-hub"
}

func (s *HubSource) Fetch(ctx context.Context, scope Scope) ([]domain.RawRecord, error) {
	logger := zerolog.Ctx(ctx)

	input := &costoptimizationhub.ListRecommendationsInput{}
	filter := &types.Filter{}
	if scope.AccountID != "" {
		filter.AccountIds = []string{scope.AccountID}
	}
	if scope.Region != "" {
		filter.Regions = []string{scope.Region}
	}
	if len(filter.AccountIds) > 0 || len(filter.Regions) > 0 {
		input.Filter = filter
	}

	var records []domain.RawRecord
	paginator := costoptimizationhub.NewListRecommendationsPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, NewError(s.Name(), scope, err)
		}
		for _, item := range page.Items {
			records = append(records, mapHubRecommendation(item))
		}
	}

	logger.Debug().
		Int("records", len(records)).
		Str("source", s.Name()).
		Msg("fetched recommendations")
	return records, nil
}

func mapHubRecommendation(r types.Recommendation) domain.RawRecord {
	var savings string
	if r.EstimatedMonthlySavings != nil {
		savings = strconv.FormatFloat(*r.EstimatedMonthlySavings, 'f', -1, 64)
	}

	action := aws.ToString(r.ActionType)
	if target := aws.ToString(r.RecommendedResourceSummary); target != "" {
		if action != "" {
			action += ": "
		}
		action += target
	}

	return domain.RawRecord{
		ResourceID:              aws.ToString(r.ResourceId),
		ResourceType:            aws.ToString(r.CurrentResourceType),
		AccountID:               aws.ToString(r.AccountId),
		Region:                  aws.ToString(r.Region),
		CurrentConfiguration:    aws.ToString(r.CurrentResourceSummary),
		RecommendedAction:       action,
		EstimatedMonthlySavings: savings,
		CurrencyCode:            aws.ToString(r.CurrencyCode),
		ActionType:              aws.ToString(r.ActionType),
		ImplementationEffort:    aws.ToString(r.ImplementationEffort),
	}
}
