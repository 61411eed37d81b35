// Package awsx loads the shared AWS SDK configuration.
package awsx

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-faster/errors"
)

// Config selects the AWS region and an optional endpoint override, used to
// point the SDK at LocalStack in tests and development.
type Config struct {
	Region   string `default:"us-east-1"`
	Endpoint string
}

// Load resolves credentials through the default chain.
func Load(ctx context.Context, cfg Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, errors.Wrap(err, "load aws config")
	}
	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return awsCfg, nil
}
