package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/glam-checkout/internal/config"
	"github.com/example/glam-checkout/internal/infrastructure/kafka"
	"github.com/example/glam-checkout/internal/infrastructure/rabbitmq"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/projection"
)

const consumerGroup = "order-projector"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.Setup("projector", cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := store.ConnectPostgres(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	projector := projection.NewProjector(store.NewPostgresReadStore(sqlx.NewDb(db, "postgres")))

	logger.Info().Str("publisher", cfg.Publisher.Kind).Msg("projector consuming order events")
	if err := consume(ctx, cfg, logger, projector.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped")
	}
	logger.Info().Msg("projector stopped")
}

func consume(ctx context.Context, cfg *config.Config, logger zerolog.Logger, handler func(ctx context.Context, key, value []byte) error) error {
	switch cfg.Publisher.Kind {
	case config.PublisherKafka:
		consumer := kafka.NewConsumer(cfg.Publisher.KafkaBrokers, cfg.Publisher.KafkaTopic, consumerGroup)
		defer consumer.Close()
		logger.Info().Strs("brokers", cfg.Publisher.KafkaBrokers).Str("topic", cfg.Publisher.KafkaTopic).Msg("listening on Kafka")
		return consumer.Consume(ctx, handler)
	case config.PublisherRabbitMQ:
		consumer, err := rabbitmq.NewConsumer(cfg.Publisher.RabbitURL, cfg.Publisher.RabbitExchange, consumerGroup)
		if err != nil {
			return err
		}
		defer consumer.Close()
		logger.Info().Str("exchange", cfg.Publisher.RabbitExchange).Msg("listening on RabbitMQ")
		return consumer.Consume(ctx, handler)
	}
	return errors.New("PUBLISHER must be kafka or rabbitmq for a standalone projector")
}
