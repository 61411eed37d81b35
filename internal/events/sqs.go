package events

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/go-faster/errors"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends each event as one SQS message.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

// NewSQSPublisher returns a publisher bound to queueURL.
func NewSQSPublisher(client SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// Publish implements order.Publisher.
func (p *SQSPublisher) Publish(ctx context.Context, e order.Event) error {
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(encodeOrderEvent(e))),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(e.Type)},
			"order_id":   {DataType: aws.String("String"), StringValue: aws.String(e.Order.ID)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "send sqs message")
	}
	return nil
}

// Close implements Publisher.
func (p *SQSPublisher) Close() error { return nil }
