package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the slice of the SNS client the channel uses
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicChannel publishes negotiation events to a platform-wide SNS topic
// for downstream consumers (mobile push, analytics).
type TopicChannel struct {
	client   SNSAPI
	topicARN string
}

// NewTopicChannel creates an SNS-backed fan-out channel
func NewTopicChannel(client SNSAPI, topicARN string) *TopicChannel {
	return &TopicChannel{client: client, topicARN: topicARN}
}

func (c *TopicChannel) Name() string { return "sns" }

func (c *TopicChannel) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", event.Type, err)
	}

	_, err = c.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(c.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Type),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing event %s: %w", event.Type, err)
	}
	return nil
}
