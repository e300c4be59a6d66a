// Package metrics emits best-effort operational counters to CloudWatch.
// A metric that cannot be delivered is logged and dropped; metrics never
// fail the operation they describe.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/orderhub/go-orderhub/internal/aws"
)

// Counter names published by the services.
const (
	MetricInvoicesCreated   = "InvoicesCreated"
	MetricDuplicateEvents   = "DuplicateEvents"
	MetricDeadLettered      = "DeadLettered"
	MetricRetryableFailures = "RetryableFailures"
	MetricPublishFailures   = "PublishFailures"
)

const putTimeout = 2 * time.Second

// Emitter publishes counters under one namespace with a service dimension.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	logger    *slog.Logger
}

// NewEmitter returns an Emitter. A nil client disables emission, which keeps
// tests and local runs free of CloudWatch traffic.
func NewEmitter(client aws.CloudWatchAPI, namespace, service string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		client:    client,
		namespace: namespace,
		service:   service,
		logger:    logger,
	}
}

// Count adds n to the named counter.
func (e *Emitter) Count(ctx context.Context, name string, n float64) {
	if e == nil || e.client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	value := n
	now := time.Now().UTC()
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Value:      &value,
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{
				Name:  awsString("Service"),
				Value: &e.service,
			}},
		}},
	})
	if err != nil {
		e.logger.Warn("metric emit failed", "metric", name, "error", err)
	}
}

func awsString(s string) *string { return &s }
