package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/orderhub/go-orderhub/internal/aws"
)

// DeadLetterSink retains deliveries the consumer classified as poison.
// The payload is forwarded unmodified; routing and failure metadata travel
// as message attributes so a dead-lettered message can be inspected and
// replayed by hand. Nothing in this repo ever replays automatically.
type DeadLetterSink struct {
	SQS      aws.SQSAPI
	QueueURL string
}

// NewDeadLetterSink returns a sink bound to the dead-letter queue URL.
func NewDeadLetterSink(sqsClient aws.SQSAPI, queueURL string) *DeadLetterSink {
	return &DeadLetterSink{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Send forwards the original message to the dead-letter queue together with
// its arrival metadata and the reason it could not be processed.
func (d *DeadLetterSink) Send(ctx context.Context, msg sqstypes.Message, sourceQueue, reason string) error {
	attrs := map[string]sqstypes.MessageAttributeValue{
		"deadLetterReason": strAttr(reason),
		"sourceQueue":      strAttr(sourceQueue),
		"failedAt":         strAttr(time.Now().UTC().Format(time.RFC3339)),
	}
	if msg.MessageId != nil {
		attrs["originalMessageId"] = strAttr(*msg.MessageId)
	}
	// Keep the producer's own attributes (orderId, eventType) addressable.
	for k, v := range msg.MessageAttributes {
		if _, taken := attrs[k]; !taken {
			attrs[k] = v
		}
	}

	_, err := d.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          &d.QueueURL,
		MessageBody:       msg.Body,
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("dead-letter send: %w", err)
	}
	return nil
}

func strAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    awsString("String"),
		StringValue: &v,
	}
}

func awsString(s string) *string { return &s }
