package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/glam-checkout/internal/config"
	"github.com/example/glam-checkout/internal/infrastructure/kinesis"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/projection"
)

var (
	projector *projection.Projector
	logger    zerolog.Logger
)

func init() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logging.Setup("lambda-projector", cfg.LogLevel, false)

	db, err := store.ConnectPostgres(context.Background(), cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}

	projector = projection.NewProjector(store.NewPostgresReadStore(sqlx.NewDb(db, "postgres")))
	logger.Info().Msg("initialized")
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	return kinesis.ProcessBatch(ctx, logger, kinesisEvent, projector.Project), nil
}

func main() {
	lambda.Start(handler)
}
