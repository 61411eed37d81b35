package events

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/oolio-shop/internal/domain/order"
)

// Driver selects the event bus.
type Driver string

const (
	DriverNone  Driver = "none"
	DriverSQS   Driver = "sqs"
	DriverKafka Driver = "kafka"
)

// Config configures the event publisher.
type Config struct {
	Driver       Driver `default:"none"`
	SQSQueueURL  string
	KafkaBrokers string // comma separated
	KafkaTopic   string `default:"shop.orders"`
}

// Publisher is an order.Publisher that can be closed on shutdown.
type Publisher interface {
	order.Publisher
	Close() error
}

// New builds the publisher for cfg.Driver. awsCfg is only used by the SQS driver.
func New(cfg Config, awsCfg aws.Config) (Publisher, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nop{}, nil
	case DriverSQS:
		if cfg.SQSQueueURL == "" {
			return nil, errors.New("sqs queue url is required")
		}
		return NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL), nil
	case DriverKafka:
		if cfg.KafkaBrokers == "" {
			return nil, errors.New("kafka brokers are required")
		}
		return NewKafkaPublisher(&kafka.Writer{
			Addr:                   kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
			Topic:                  cfg.KafkaTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		}), nil
	default:
		return nil, errors.Errorf("unknown event driver %q", cfg.Driver)
	}
}

type nop struct{ order.NopPublisher }

func (nop) Close() error { return nil }
