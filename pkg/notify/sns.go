package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of *sns.Client used by SNSSink.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicRegion extracts the region from an SNS topic ARN.
func TopicRegion(topicARN string) (string, error) {
	a, err := arn.Parse(topicARN)
	if err != nil {
		return "", fmt.Errorf("parse topic arn: %w", err)
	}
	if a.Service != "sns" || a.Region == "" {
		return "", fmt.Errorf("not an sns topic arn: %q", topicARN)
	}
	return a.Region, nil
}

// SNSSink publishes announcements to one topic.
type SNSSink struct {
	client   SNSAPI
	topicARN string
}

// NewSNSSink builds a sink for topicARN using base for credentials. The client
// region is taken from the ARN. An empty topicARN yields a nil sink whose
// Publish is a no-op.
func NewSNSSink(base aws.Config, topicARN string) (*SNSSink, error) {
	if topicARN == "" {
		return nil, nil
	}
	region, err := TopicRegion(topicARN)
	if err != nil {
		return nil, err
	}
	client := sns.NewFromConfig(base, func(o *sns.Options) {
		o.Region = region
	})
	return NewSNSSinkWithClient(client, topicARN), nil
}

// NewSNSSinkWithClient wraps an existing client.
func NewSNSSinkWithClient(client SNSAPI, topicARN string) *SNSSink {
	return &SNSSink{client: client, topicARN: topicARN}
}

func (s *SNSSink) Name() string {
	return "sns"
}

// Publish sends msg with Body as the message text.
func (s *SNSSink) Publish(ctx context.Context, msg Message) error {
	if s == nil {
		return nil
	}
	attrs := make(map[string]snstypes.MessageAttributeValue)
	for k, v := range msg.Attributes() {
		attrs[k] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(Body),
		MessageAttributes: attrs,
	})
	return err
}
