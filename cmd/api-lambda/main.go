// Command api-lambda serves the REST API from AWS Lambda behind API Gateway.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/oolio-shop/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}

		db, err := appkg.OpenDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		api, err := appkg.NewAPI(ctx, cfg, db, m.MeterProvider())
		if err != nil {
			return errors.Wrap(err, "wire api")
		}
		defer func() { _ = api.Close() }()

		adapter := httpadapter.New(api.HTTPHandler(ctx, lg, cfg, m))
		lg.Info("Starting Lambda handler")
		lambda.StartWithOptions(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			return adapter.ProxyWithContext(ctx, req)
		}, lambda.WithContext(ctx))
		return nil
	})
}
