// Package metrics publishes business counters to CloudWatch.
package metrics

import (
	"context"
	"log"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/RaufCode/venella-pharmacy/internal/aws"
)

const (
	OrdersPlaced       = "OrdersPlaced"
	OfflineSales       = "OfflineSales"
	OrderStatusChanged = "OrderStatusChanged"
	LowStockAlerts     = "LowStockAlerts"
	PaymentsInitiated  = "PaymentsInitiated"
	PaymentsVerified   = "PaymentsVerified"
)

// Recorder counts business events. Implementations must not fail the caller.
type Recorder interface {
	Count(ctx context.Context, name string, value float64)
}

// Nop discards every metric.
type Nop struct{}

func (Nop) Count(context.Context, string, float64) {}

// CloudWatch writes each count as a single PutMetricData datum.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, nowFunc: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, value float64) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  sdkaws.Time(c.nowFunc()),
		}},
	})
	if err != nil {
		log.Printf("[metrics] put %s: %v", name, err)
	}
}

// New returns a CloudWatch recorder, or Nop when namespace or client is empty.
func New(client aws.CloudWatchAPI, namespace string) Recorder {
	if client == nil || namespace == "" {
		return Nop{}
	}
	return NewCloudWatch(client, namespace)
}
