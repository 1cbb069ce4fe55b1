// Command qbsync-lambda runs the sync-expenses trigger as an AWS Lambda behind API Gateway.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/and161185/ovis-qbsync/internal/app"
	"github.com/and161185/ovis-qbsync/internal/config"
	lambdaserver "github.com/and161185/ovis-qbsync/internal/server/lambda"
)

var version = "dev"

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	// Lambda passes no arguments; configuration comes from the function environment.
	cfg, err := config.Load(flag.NewFlagSet("lambda", flag.ContinueOnError), os.Args[1:])
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// Connections are reused across warm invocations and never closed explicitly.
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("wire", zap.Error(err))
	}
	logger.Info("lambda ready", zap.String("version", version))

	h := lambdaserver.NewHandler(a.Auth, a.Imports, logger)
	lambda.Start(h.Handle)
}
