package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/example/glam-checkout/internal/api"
	"github.com/example/glam-checkout/internal/api/middleware"
	"github.com/example/glam-checkout/internal/auth"
	"github.com/example/glam-checkout/internal/catalog"
	"github.com/example/glam-checkout/internal/config"
	"github.com/example/glam-checkout/internal/domain/order"
	"github.com/example/glam-checkout/internal/infrastructure/kafka"
	"github.com/example/glam-checkout/internal/infrastructure/rabbitmq"
	"github.com/example/glam-checkout/internal/infrastructure/store"
	"github.com/example/glam-checkout/internal/logging"
	"github.com/example/glam-checkout/internal/processor"
	"github.com/example/glam-checkout/internal/projection"
)

const tokenIssuer = "glam-checkout"

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.Setup("api", cfg.LogLevel, cfg.LogPretty)
	if err := cfg.ValidateAPI(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().
		Str("store", cfg.Store.Backend).
		Str("catalog", cfg.Catalog.Backend).
		Str("publisher", cfg.Publisher.Kind).
		Str("processor", cfg.Processor.Kind).
		Msg("starting order service")

	var db *sql.DB
	if cfg.Store.Backend != config.BackendMemory || cfg.Catalog.Backend == config.BackendPostgres {
		db, err = store.ConnectPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
		}
		defer db.Close()
		if err := store.Migrate(db); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		logger.Info().Msg("connected to PostgreSQL")
	}

	var readStore store.OrderReadStore = store.NewReadStore()
	if cfg.Store.Backend != config.BackendMemory {
		readStore = store.NewPostgresReadStore(sqlx.NewDb(db, "postgres"))
	}
	projector := projection.NewProjector(readStore)

	bus, closeBus := newBus(cfg, logger)
	defer closeBus()

	var publishers store.Publishers
	if bus != nil {
		publishers = append(publishers, bus)
	}
	// Without a broker, or with a read model only this process can see, the
	// projector runs inline. DynamoDB deployments project from the table stream.
	inline := cfg.Store.Backend == config.BackendMemory ||
		(bus == nil && cfg.Store.Backend != config.BackendDynamoDB)
	if inline {
		publishers = append(publishers, projection.NewInlinePublisher(projector))
	}

	eventStore, err := newEventStore(ctx, cfg, db, publishers)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise event store")
	}

	if inline && cfg.Store.Backend == config.BackendPostgres {
		replayEvents(ctx, logger, eventStore, projector)
	}

	products, err := newCatalog(cfg, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load catalog")
	}

	var gateway processor.Gateway
	switch cfg.Processor.Kind {
	case config.ProcessorFake:
		logger.Warn().Msg("using the fake payment processor; no real money will move")
		gateway = processor.NewFake(cfg.Processor.KeyID, cfg.Processor.KeySecret)
	default:
		gateway = processor.NewRazorpayGateway(cfg.Processor.KeyID, cfg.Processor.KeySecret)
	}

	orders := order.NewService(eventStore, products, gateway, order.Config{
		KeySecret:       cfg.Processor.KeySecret,
		DefaultCurrency: cfg.Merchant.DefaultCurrency,
		Expiry:          cfg.Orders.Expiry,
	})
	tokens := auth.NewCheckoutTokenService(cfg.Orders.CheckoutSecret, tokenIssuer, cfg.Orders.CheckoutTokenTTL)
	limiter := middleware.NewIPRateLimiter(cfg.Orders.VerifyRateRPS, cfg.Orders.VerifyRateBurst)

	go order.NewSweeper(readStore, orders, cfg.Orders.Expiry, cfg.Orders.SweepInterval).Run(ctx)
	go limiter.Run(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandlers(orders, readStore, tokens), limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Orders.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server exited")
}

func newBus(cfg *config.Config, logger zerolog.Logger) (store.Publisher, func()) {
	switch cfg.Publisher.Kind {
	case config.PublisherKafka:
		producer := kafka.NewProducer(cfg.Publisher.KafkaBrokers, cfg.Publisher.KafkaTopic)
		logger.Info().Strs("brokers", cfg.Publisher.KafkaBrokers).Str("topic", cfg.Publisher.KafkaTopic).Msg("publishing to Kafka")
		return producer, func() { producer.Close() }
	case config.PublisherRabbitMQ:
		publisher, err := rabbitmq.NewPublisher(cfg.Publisher.RabbitURL, cfg.Publisher.RabbitExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		logger.Info().Str("exchange", cfg.Publisher.RabbitExchange).Msg("publishing to RabbitMQ")
		return publisher, func() { publisher.Close() }
	}
	return nil, func() {}
}

func newEventStore(ctx context.Context, cfg *config.Config, db *sql.DB, publisher store.Publisher) (store.EventStoreInterface, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return store.NewPostgresEventStore(db, publisher), nil
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return store.NewDynamoEventStore(client, cfg.Store.DynamoEventsTable, cfg.Store.DynamoSnapshotTable, publisher), nil
	}
	return store.NewEventStore(publisher), nil
}

func newCatalog(cfg *config.Config, db *sql.DB) (catalog.Source, error) {
	if cfg.Catalog.Backend == config.BackendPostgres {
		return catalog.NewPostgresCatalog(sqlx.NewDb(db, "postgres"), cfg.Merchant.DefaultCurrency), nil
	}
	return catalog.LoadFile(cfg.Catalog.File, cfg.Merchant.DefaultCurrency)
}

// replayEvents rebuilds the read model from the event log. Projection skips
// versions it has already seen, so replaying over a warm read model is safe.
func replayEvents(ctx context.Context, logger zerolog.Logger, es store.EventStoreInterface, projector *projection.Projector) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load events for replay")
		return
	}

	failed := 0
	for _, event := range events {
		if err := projector.Project(ctx, event); err != nil {
			failed++
			logger.Warn().Err(err).Str("event_id", event.ID).Str("event_type", event.EventType).Msg("replay failed for event")
		}
	}
	logger.Info().Int("events", len(events)).Int("failed", failed).Msg("read model replayed")
}
