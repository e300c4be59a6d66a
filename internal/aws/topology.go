package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Topology names the broker resources shared by publisher and consumer.
type Topology struct {
	TopicName           string
	QueueName           string
	DeadLetterQueueName string
	// MaxReceiveCount bounds redeliveries of a perpetually failing message
	// before the broker moves it to the dead-letter queue.
	MaxReceiveCount int
}

// DefaultTopology mirrors the billing wiring: one order-events topic, one
// invoice-creation queue, one dead-letter queue.
func DefaultTopology() Topology {
	return Topology{
		TopicName:           "order-events",
		QueueName:           "billing-invoice-create",
		DeadLetterQueueName: "billing-invoice-dead",
		MaxReceiveCount:     5,
	}
}

// TopologyOutput carries the resolved resource identifiers.
type TopologyOutput struct {
	TopicARN           string
	QueueURL           string
	QueueARN           string
	DeadLetterQueueURL string
	DeadLetterQueueARN string
}

// EnsureTopology declares the topic, queue, dead-letter queue and their
// bindings. Every call is idempotent; services apply it once at startup
// instead of mutating broker state per message.
func EnsureTopology(ctx context.Context, sqsClient SQSAPI, snsClient SNSAPI, t Topology) (TopologyOutput, error) {
	var out TopologyOutput

	dlqURL, dlqARN, err := ensureQueue(ctx, sqsClient, t.DeadLetterQueueName, nil)
	if err != nil {
		return out, fmt.Errorf("ensure dead-letter queue: %w", err)
	}
	out.DeadLetterQueueURL = dlqURL
	out.DeadLetterQueueARN = dlqARN

	redrive, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     fmt.Sprintf("%d", t.MaxReceiveCount),
	})
	if err != nil {
		return out, fmt.Errorf("marshal redrive policy: %w", err)
	}
	queueURL, queueARN, err := ensureQueue(ctx, sqsClient, t.QueueName, map[string]string{
		string(sqstypes.QueueAttributeNameRedrivePolicy): string(redrive),
	})
	if err != nil {
		return out, fmt.Errorf("ensure queue: %w", err)
	}
	out.QueueURL = queueURL
	out.QueueARN = queueARN

	topic, err := snsClient.CreateTopic(ctx, &sns.CreateTopicInput{Name: &t.TopicName})
	if err != nil {
		return out, fmt.Errorf("ensure topic: %w", err)
	}
	out.TopicARN = *topic.TopicArn

	// Allow the topic to deliver into the queue.
	policy, err := json.Marshal(map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Effect":    "Allow",
			"Principal": map[string]string{"Service": "sns.amazonaws.com"},
			"Action":    "sqs:SendMessage",
			"Resource":  queueARN,
			"Condition": map[string]any{"ArnEquals": map[string]string{"aws:SourceArn": out.TopicARN}},
		}},
	})
	if err != nil {
		return out, fmt.Errorf("marshal queue policy: %w", err)
	}
	_, err = sqsClient.SetQueueAttributes(ctx, &sqs.SetQueueAttributesInput{
		QueueUrl: &queueURL,
		Attributes: map[string]string{
			string(sqstypes.QueueAttributeNamePolicy): string(policy),
		},
	})
	if err != nil {
		return out, fmt.Errorf("set queue policy: %w", err)
	}

	// Raw delivery keeps the SNS envelope off the wire so the consumer sees
	// the producer's payload byte-for-byte.
	_, err = snsClient.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: &out.TopicARN,
		Protocol: awsString("sqs"),
		Endpoint: &queueARN,
		Attributes: map[string]string{
			"RawMessageDelivery": "true",
		},
	})
	if err != nil {
		return out, fmt.Errorf("subscribe queue to topic: %w", err)
	}

	return out, nil
}

func ensureQueue(ctx context.Context, client SQSAPI, name string, attrs map[string]string) (url, arn string, err error) {
	input := &sqs.CreateQueueInput{QueueName: &name}
	if len(attrs) > 0 {
		input.Attributes = attrs
	}
	created, err := client.CreateQueue(ctx, input)
	if err != nil {
		return "", "", fmt.Errorf("create queue %s: %w", name, err)
	}

	got, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       created.QueueUrl,
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return "", "", fmt.Errorf("queue %s attributes: %w", name, err)
	}
	return *created.QueueUrl, got.Attributes[string(sqstypes.QueueAttributeNameQueueArn)], nil
}
