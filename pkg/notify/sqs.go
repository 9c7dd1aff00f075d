package notify

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of *sqs.Client used by SQSSink.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

var sqsRegionPattern = regexp.MustCompile(`sqs\.([\w-]+)\.amazonaws\.com`)

// QueueRegion extracts the region from an SQS queue URL such as
// https://sqs.eu-west-1.amazonaws.com/123456789012/tracks.
func QueueRegion(queueURL string) (string, error) {
	m := sqsRegionPattern.FindStringSubmatch(queueURL)
	if m == nil {
		return "", fmt.Errorf("cannot determine region from queue url %q", queueURL)
	}
	return m[1], nil
}

// SQSSink sends announcements to one queue.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

// NewSQSSink builds a sink for queueURL using base for credentials. The client
// region is taken from the URL. An empty queueURL yields a nil sink whose
// Publish is a no-op.
func NewSQSSink(base aws.Config, queueURL string) (*SQSSink, error) {
	if queueURL == "" {
		return nil, nil
	}
	region, err := QueueRegion(queueURL)
	if err != nil {
		return nil, err
	}
	client := sqs.NewFromConfig(base, func(o *sqs.Options) {
		o.Region = region
	})
	return NewSQSSinkWithClient(client, queueURL), nil
}

// NewSQSSinkWithClient wraps an existing client.
func NewSQSSinkWithClient(client SQSAPI, queueURL string) *SQSSink {
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Name() string {
	return "sqs"
}

// Publish sends msg with Body as the message body.
func (s *SQSSink) Publish(ctx context.Context, msg Message) error {
	if s == nil {
		return nil
	}
	attrs := make(map[string]sqstypes.MessageAttributeValue)
	for k, v := range msg.Attributes() {
		attrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(Body),
		MessageAttributes: attrs,
	})
	return err
}
