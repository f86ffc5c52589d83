package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const rightsizingService = "AmazonEC2"

// RightsizingAPI is the subset of the Cost Explorer client we use.
type RightsizingAPI interface {
	GetRightsizingRecommendation(
		ctx context.Context,
		params *costexplorer.GetRightsizingRecommendationInput,
		optFns ...func(*costexplorer.Options),
	) (*costexplorer.GetRightsizingRecommendationOutput, error)
}

// RightsizingSource reads EC2 rightsizing recommendations from Cost Explorer.
type RightsizingSource struct {
	client RightsizingAPI
}

func NewRightsizingSource(cfg aws.Config) *RightsizingSource {
	return NewRightsizingSourceWithAPI(costexplorer.NewFromConfig(cfg))
}

func NewRightsizingSourceWithAPI(api RightsizingAPI) *RightsizingSource {
	return &RightsizingSource{client: api}
}

func (s *RightsizingSource) Name() string {
	return "cost-explorer-rightsizing"
}

func (s *RightsizingSource) Fetch(ctx context.Context, scope Scope) ([]domain.RawRecord, error) {
	logger := zerolog.Ctx(ctx)

	var records []domain.RawRecord
	var token *string
	for {
		out, err := s.client.GetRightsizingRecommendation(ctx, &costexplorer.GetRightsizingRecommendationInput{
			Service:       aws.String(rightsizingService),
			NextPageToken: token,
		})
		if err != nil {
			return nil, NewError(s.Name(), scope, err)
		}

		for _, r := range out.RightsizingRecommendations {
			record := mapRightsizingRecommendation(r)
			if scope.AccountID != "" && record.AccountID != "" && record.AccountID != scope.AccountID {
				continue
			}
			if scope.Region != "" && record.Region != "" && record.Region != scope.Region {
				continue
			}
			records = append(records, record)
		}

		token = out.NextPageToken
		if aws.ToString(token) == "" {
			break
		}
	}

	logger.Debug().
		Int("records", len(records)).
		Str("source", s.Name()).
		Msg("fetched recommendations")
	return records, nil
}

func mapRightsizingRecommendation(r types.RightsizingRecommendation) domain.RawRecord {
	record := domain.RawRecord{
		ResourceType: "EC2Instance",
		AccountID:    aws.ToString(r.AccountId),
	}

	if cur := r.CurrentInstance; cur != nil {
		record.ResourceID = aws.ToString(cur.ResourceId)
		record.CurrencyCode = aws.ToString(cur.CurrencyCode)
		if details := cur.ResourceDetails; details != nil && details.EC2ResourceDetails != nil {
			record.Region = aws.ToString(details.EC2ResourceDetails.Region)
			record.CurrentConfiguration = aws.ToString(details.EC2ResourceDetails.InstanceType)
		}
		if name := aws.ToString(cur.InstanceName); name != "" {
			record.CurrentConfiguration = fmt.Sprintf("%s (%s)", record.CurrentConfiguration, name)
		}
	}

	switch r.RightsizingType {
	case types.RightsizingTypeTerminate:
		record.ActionType = "Terminate"
		record.RecommendedAction = "Terminate idle instance"
		if d := r.TerminateRecommendationDetail; d != nil {
			record.EstimatedMonthlySavings = aws.ToString(d.EstimatedMonthlySavings)
			if c := aws.ToString(d.CurrencyCode); c != "" {
				record.CurrencyCode = c
			}
		}
	case types.RightsizingTypeModify:
		record.ActionType = "Rightsize"
		if d := r.ModifyRecommendationDetail; d != nil {
			if target, ok := bestTarget(d.TargetInstances); ok {
				record.EstimatedMonthlySavings = aws.ToString(target.EstimatedMonthlySavings)
				record.RecommendedAction = "Rightsize"
				if rd := target.ResourceDetails; rd != nil && rd.EC2ResourceDetails != nil {
					record.RecommendedAction = "Rightsize to " + aws.ToString(rd.EC2ResourceDetails.InstanceType)
				}
				if c := aws.ToString(target.CurrencyCode); c != "" {
					record.CurrencyCode = c
				}
			}
		}
	}

	return record
}

// bestTarget picks the target instance with the highest parseable savings.
func bestTarget(targets []types.TargetInstance) (types.TargetInstance, bool) {
	var best types.TargetInstance
	bestSavings := decimal.NewFromInt(-1)
	found := false

	for _, t := range targets {
		savings, err := decimal.NewFromString(aws.ToString(t.EstimatedMonthlySavings))
		if err != nil {
			continue
		}
		if savings.GreaterThan(bestSavings) {
			best, bestSavings, found = t, savings, true
		}
	}

	return best, found
}
