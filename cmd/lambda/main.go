package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/runtime/app"
	"github.com/de-tools/cost-digest/pkg/services/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("DIGEST_CONFIG"))
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := app.NewLogger(cfg.Log, os.Stdout)
	ctx := logger.WithContext(context.Background())

	a, err := app.Build(ctx, cfg, app.ModeRun)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	lambda.StartWithOptions(NewHandler(a.Runner, logger).Handle, lambda.WithContext(ctx))
}
