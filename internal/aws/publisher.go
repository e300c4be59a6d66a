package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/shopspring/decimal"

	"github.com/orderhub/go-orderhub/internal/events"
)

// publishTimeout bounds the broker call. The publish runs after the order
// already committed; callers log a failure and move on, they never block
// order creation on a slow broker.
const publishTimeout = 3 * time.Second

// EventPublisher emits OrderCreated events to the order-events topic.
//
// Contract: PublishOrderCreated must be called only after the order write
// committed, never from inside it. A returned error means the event was
// lost from the publisher's perspective; there is no local retry queue.
type EventPublisher struct {
	SNS      SNSAPI
	TopicARN string
}

// NewEventPublisher returns a publisher bound to a topic ARN.
func NewEventPublisher(snsClient SNSAPI, topicARN string) *EventPublisher {
	return &EventPublisher{
		SNS:      snsClient,
		TopicARN: topicARN,
	}
}

// PublishOrderCreated publishes an OrderCreated event. The order id rides
// along as a message attribute, not just payload, so deliveries stay
// addressable for tracing and manual replay.
func (p *EventPublisher) PublishOrderCreated(ctx context.Context, orderID string, amount decimal.Decimal) error {
	body, err := events.EncodeOrderCreated(events.OrderCreated{OrderID: orderID, Amount: amount})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := string(body)
	input := &sns.PublishInput{
		TopicArn: &p.TopicARN,
		Message:  &msg,
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {
				DataType:    awsString("String"),
				StringValue: awsString(events.TypeOrderCreated),
			},
			"orderId": {
				DataType:    awsString("String"),
				StringValue: &orderID,
			},
		},
	}

	if _, err := p.SNS.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish %s: %w", events.TypeOrderCreated, err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
