// Package billing consumes order-creation events and applies them to the
// invoice store exactly-once-in-effect: the store's uniqueness constraint on
// the order id absorbs the duplicates an at-least-once broker produces.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/orderhub/go-orderhub/internal/aws"
	"github.com/orderhub/go-orderhub/internal/events"
	"github.com/orderhub/go-orderhub/internal/invoices"
	"github.com/orderhub/go-orderhub/internal/metrics"
)

const (
	// defaultMaxInFlight bounds unacknowledged deliveries. A slow invoice
	// store holds prefetch budget instead of growing unbounded in-flight work.
	defaultMaxInFlight = 20

	receiveWaitSeconds  = 20
	receiveBackoff      = time.Second
	defaultDrainTimeout = 30 * time.Second
)

// ConsumerConfig groups the consumer's dependencies.
type ConsumerConfig struct {
	SQS         aws.SQSAPI
	QueueURL    string
	Invoices    *invoices.Store
	DeadLetters *DeadLetterSink
	Metrics     *metrics.Emitter
	Logger      *slog.Logger
	MaxInFlight int
}

// Consumer is a long-running SQS poller. Any number of instances may share
// one queue; they coordinate only through the invoice store's uniqueness
// constraint, never through shared memory.
type Consumer struct {
	sqs          aws.SQSAPI
	queueURL     string
	invoices     *invoices.Store
	dead         *DeadLetterSink
	metrics      *metrics.Emitter
	logger       *slog.Logger
	maxInFlight  int
	drainTimeout time.Duration
}

// NewConsumer returns a configured Consumer.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{
		sqs:          cfg.SQS,
		queueURL:     cfg.QueueURL,
		invoices:     cfg.Invoices,
		dead:         cfg.DeadLetters,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		maxInFlight:  cfg.MaxInFlight,
		drainTimeout: defaultDrainTimeout,
	}
}

// Run polls the queue until ctx is cancelled. On shutdown it stops
// receiving, lets in-flight deliveries finish their insert and
// acknowledge, and only then returns — no phantom redeliveries of work
// that actually completed.
func (c *Consumer) Run(ctx context.Context) error {
	sem := make(chan struct{}, c.maxInFlight)
	var wg sync.WaitGroup

receive:
	for ctx.Err() == nil {
		out, err := c.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              &c.queueURL,
			MaxNumberOfMessages:   c.batchSize(len(sem)),
			WaitTimeSeconds:       receiveWaitSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("receive failed", "error", err)
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				break receive
			}
			continue
		}

		for _, msg := range out.Messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				// Not yet dispatched; the broker redelivers it after the
				// visibility timeout.
				break receive
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				// Detached from the run context so an in-flight delivery can
				// complete its write and ack during shutdown.
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.drainTimeout)
				defer cancel()
				c.handle(hctx, m)
			}(msg)
		}
	}

	wg.Wait()
	return nil
}

// batchSize asks for at most the free prefetch budget, capped at the SQS
// receive maximum of 10.
func (c *Consumer) batchSize(inFlight int) int32 {
	free := c.maxInFlight - inFlight
	if free < 1 {
		free = 1
	}
	if free > 10 {
		free = 10
	}
	return int32(free)
}

func (c *Consumer) handle(ctx context.Context, msg sqstypes.Message) {
	var body string
	if msg.Body != nil {
		body = *msg.Body
	}

	evt, err := events.DecodeOrderCreated([]byte(body))
	if err != nil {
		// Poison: no retry will ever make it decodable.
		c.deadLetter(ctx, msg, err)
		return
	}

	err = c.invoices.Insert(ctx, invoices.New(evt.OrderID, evt.Amount))
	switch {
	case err == nil:
		c.logger.Info("invoice created", "orderId", evt.OrderID, "amount", evt.Amount.String())
		c.metrics.Count(ctx, metrics.MetricInvoicesCreated, 1)
		c.ack(ctx, msg)
	case errors.Is(err, invoices.ErrDuplicateOrder):
		// Already billed; a redelivered event converges to a no-op.
		c.logger.Info("duplicate order event", "orderId", evt.OrderID)
		c.metrics.Count(ctx, metrics.MetricDuplicateEvents, 1)
		c.ack(ctx, msg)
	default:
		// Transient storage trouble: leave the event on the queue.
		reason := "insert failed, requeueing"
		if throttled(err) {
			reason = "storage throttled, requeueing"
		}
		c.logger.Warn(reason, "orderId", evt.OrderID, "error", err)
		c.metrics.Count(ctx, metrics.MetricRetryableFailures, 1)
		c.requeue(ctx, msg)
	}
}

// throttled reports whether storage rejected the write for capacity reasons.
func throttled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ProvisionedThroughputExceededException", "RequestLimitExceeded":
		return true
	}
	return false
}

func (c *Consumer) deadLetter(ctx context.Context, msg sqstypes.Message, cause error) {
	c.logger.Warn("dead-lettering event", "messageId", messageID(msg), "error", cause)
	if err := c.dead.Send(ctx, msg, c.queueURL, cause.Error()); err != nil {
		// Keep the message; redelivery beats losing it.
		c.logger.Error("dead-letter send failed", "messageId", messageID(msg), "error", err)
		c.requeue(ctx, msg)
		return
	}
	c.metrics.Count(ctx, metrics.MetricDeadLettered, 1)
	c.ack(ctx, msg)
}

// ack removes the delivery from the queue. An ack that fails is only logged:
// the broker will redeliver and the store's uniqueness constraint makes the
// redelivery a no-op.
func (c *Consumer) ack(ctx context.Context, msg sqstypes.Message) {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.logger.Warn("ack failed", "messageId", messageID(msg), "error", err)
	}
}

// requeue makes the delivery immediately visible again. If the call fails
// the visibility timeout expires on its own, so errors are only logged.
func (c *Consumer) requeue(ctx context.Context, msg sqstypes.Message) {
	_, err := c.sqs.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &c.queueURL,
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: 0,
	})
	if err != nil {
		c.logger.Warn("requeue failed", "messageId", messageID(msg), "error", err)
	}
}

func messageID(msg sqstypes.Message) string {
	if msg.MessageId == nil {
		return ""
	}
	return *msg.MessageId
}
