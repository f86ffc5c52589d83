package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/de-tools/cost-digest/pkg/models/domain"
)

const DefaultNamespace = "CostDigest"

// Publisher emits the outcome of a finished run.
type Publisher interface {
	Publish(ctx context.Context, run *domain.ReportRun) error
}

type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type CloudWatchPublisher struct {
	client    PutMetricDataAPI
	namespace string
}

func NewCloudWatchPublisher(cfg aws.Config, namespace string) *CloudWatchPublisher {
	return NewCloudWatchPublisherWithAPI(cloudwatch.NewFromConfig(cfg), namespace)
}

func NewCloudWatchPublisherWithAPI(client PutMetricDataAPI, namespace string) *CloudWatchPublisher {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CloudWatchPublisher{client: client, namespace: namespace}
}

func (p *CloudWatchPublisher) Publish(ctx context.Context, run *domain.ReportRun) error {
	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: Datums(run),
	})
	if err != nil {
		return fmt.Errorf("failed to publish run metrics: %w", err)
	}
	return nil
}

// Datums is the metric set recorded for every finalized run.
func Datums(run *domain.ReportRun) []types.MetricDatum {
	at := run.CompletedAt
	if at.IsZero() {
		at = run.StartedAt
	}
	status := []types.Dimension{{Name: aws.String("Status"), Value: aws.String(string(run.Status))}}

	datums := []types.MetricDatum{
		{
			MetricName: aws.String("RunStatus"),
			Dimensions: status,
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(at),
		},
		{
			MetricName: aws.String("RunDuration"),
			Value:      aws.Float64(run.Duration().Seconds()),
			Unit:       types.StandardUnitSeconds,
			Timestamp:  aws.Time(at),
		},
	}

	if run.Status != domain.RunStatusSkippedConcurrent {
		savings, _ := run.TotalSavings().Float64()
		datums = append(datums,
			types.MetricDatum{
				MetricName: aws.String("EstimatedMonthlySavings"),
				Value:      aws.Float64(savings),
				Unit:       types.StandardUnitNone,
				Timestamp:  aws.Time(at),
			},
			types.MetricDatum{
				MetricName: aws.String("RecommendationCount"),
				Value:      aws.Float64(float64(len(run.Recommendations))),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(at),
			},
		)
	}
	if run.SummaryDegraded {
		datums = append(datums, types.MetricDatum{
			MetricName: aws.String("SummaryDegraded"),
			Value:      aws.Float64(1),
			Unit:       types.StandardUnitCount,
			Timestamp:  aws.Time(at),
		})
	}
	return datums
}

type Nop struct{}

func (Nop) Publish(context.Context, *domain.ReportRun) error {
	return nil
}
