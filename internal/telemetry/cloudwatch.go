package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"subadmin/internal/types"
)

// Metric and dimension names published to CloudWatch.
const (
	MetricAPIRequestCount = "APIRequestCount"
	MetricAPILatency      = "APILatency"
	MetricTransition      = "LifecycleTransition"
	MetricBusEvent        = "BusEvent"

	DimMethod   = "Method"
	DimEndpoint = "Endpoint"
	DimStatus   = "Status"
	DimEntity   = "Entity"
	DimTo       = "To"
	DimTopic    = "Topic"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes metrics with one PutMetricData call per observation.
// Calls are bounded by timeout and failures are only logged.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, timeout: 2 * time.Second, logger: logger}
}

func (c *CloudWatch) put(data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	})
	if err != nil {
		c.logger.Error("failed to put metric data", "error", err.Error(), "metric", aws.ToString(data[0].MetricName))
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (c *CloudWatch) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{dim(DimMethod, method), dim(DimEndpoint, endpoint)}
	c.put(
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: append(dims, dim(DimStatus, status)),
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
	)
}

func (c *CloudWatch) RecordTransition(entity types.EntityType, _, to string) {
	c.put(cwtypes.MetricDatum{
		MetricName: aws.String(MetricTransition),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimEntity, string(entity)), dim(DimTo, to)},
	})
}

func (c *CloudWatch) RecordEvent(topic types.Topic) {
	c.put(cwtypes.MetricDatum{
		MetricName: aws.String(MetricBusEvent),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{dim(DimTopic, string(topic))},
	})
}
