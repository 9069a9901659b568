package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Drivers
	"github.com/exaring/otelpgx"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	// Instrumentation
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Interne
	"github.com/wheaney/social-freedom-sub000/config"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/primary/events"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/primary/rest"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/secondary/clients"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/secondary/dispatch"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/secondary/eventbroker"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/secondary/repository"
	"github.com/wheaney/social-freedom-sub000/internal/adapters/secondary/security"
	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
	"github.com/wheaney/social-freedom-sub000/internal/core/services"
)

func main() {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogger(cfg)
	slog.Info("🚀 Starting account stack",
		"user_id", cfg.Account.UserID,
		"env", cfg.Env,
		"relationships", cfg.Relationships.Backend,
		"dispatch", cfg.Dispatch.Mode,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Télémétrie (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Redis (ensembles, comptes suivis, réglages, abonnements)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		panic(err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("✅ Connected to Redis")

	// 4. Infrastructure: Postgres (journaux Posts et Feed)
	dbConfig, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		slog.Error("Unable to parse database URL", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()
	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := repository.EnsureSchema(ctx, dbPool); err != nil {
		slog.Error("Failed to ensure database schema", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Postgres")

	// 5. Relationship store : Redis par défaut, Neo4j en option
	var relStore ports.RelationshipStore
	switch cfg.Relationships.Backend {
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(cfg.Relationships.Neo4jURI,
			neo4j.BasicAuth(cfg.Relationships.Neo4jUser, cfg.Relationships.Neo4jPassword, ""))
		if err != nil {
			slog.Error("Unable to create Neo4j driver", "error", err)
			os.Exit(1)
		}
		defer driver.Close(ctx)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			slog.Error("Unable to connect to Neo4j", "error", err)
			os.Exit(1)
		}
		neoRepo := repository.NewNeo4jRelationshipRepo(driver, cfg.Account.UserID)
		if err := neoRepo.EnsureSchema(ctx); err != nil {
			slog.Error("Failed to ensure Neo4j schema", "error", err)
			os.Exit(1)
		}
		relStore = neoRepo
		slog.Info("✅ Connected to Neo4j")
	default:
		relStore = repository.NewRedisRelationshipRepo(rdb, cfg.Account.UserID)
	}

	tracked := repository.NewRedisTrackedAccountRepo(rdb)
	settings := repository.NewRedisAccountSettings(rdb)
	self := domain.AccountIdentity{
		UserID:         cfg.Account.UserID,
		APIOrigin:      cfg.Account.APIOrigin,
		PostsTopicID:   domain.PostsTopic(cfg.Account.UserID),
		ProfileTopicID: domain.ProfileTopic(cfg.Account.UserID),
		DisplayName:    cfg.Account.DisplayName,
		PhotoURL:       cfg.Account.PhotoURL,
	}
	if err := settings.EnsureSelf(ctx, self, cfg.Account.Public); err != nil {
		slog.Error("Failed to seed account settings", "error", err)
		os.Exit(1)
	}
	postLog := repository.NewPostgresPostLog(dbPool)
	feedLog := repository.NewPostgresFeedLog(dbPool)

	// 6. Infrastructure: NATS (topics) + JetStream (gate)
	nc, err := nats.Connect(cfg.NatsUrl, nats.Name("account-"+cfg.Account.UserID))
	if err != nil {
		slog.Error("Unable to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("✅ Connected to NATS")

	// 7. Sécurité + client pair
	jwtProvider, err := security.NewJWTProvider(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.Account.APIOrigin)
	if err != nil {
		slog.Error("Failed to init JWT provider", "error", err)
		os.Exit(1)
	}
	peerClient := clients.NewPeerClient(cfg.PeerTimeout)
	defer peerClient.Close()

	// 8. Dispatch gate
	worker := dispatch.NewWorker(peerClient)
	var (
		gate     ports.DispatchGate
		consumer jetstream.ConsumeContext
	)
	var jsGate *dispatch.JetStreamGate
	switch cfg.Dispatch.Mode {
	case "inline":
		gate = dispatch.NewInlineGate(cfg.Dispatch.AllowSyncCalls, worker)
		slog.Warn("Dispatch gate runs inline", "allow_sync_calls", cfg.Dispatch.AllowSyncCalls)
	default:
		js, err := jetstream.New(nc)
		if err != nil {
			slog.Error("JetStream init failed", "error", err)
			os.Exit(1)
		}
		jsGate, err = dispatch.NewJetStreamGate(ctx, js, dispatch.JetStreamConfig{
			Stream:     cfg.Dispatch.Stream,
			Subject:    cfg.Dispatch.Subject,
			Durable:    cfg.Dispatch.Durable,
			MaxDeliver: cfg.Dispatch.MaxDeliver,
			RetryDelay: cfg.Dispatch.RetryDelay,
		})
		if err != nil {
			slog.Error("Failed to init dispatch gate", "error", err)
			os.Exit(1)
		}
		gate = jsGate
	}

	// 9. Initialisation du Core
	fanoutService := services.NewFanoutService(relStore, tracked, settings, postLog, feedLog, eventbroker.NewNatsPublisher(nc))

	handler := events.NewEventHandler(fanoutService)
	subscriber := eventbroker.NewNatsSubscriber(nc, repository.NewRedisSubscriptionRegistry(rdb), handler.Handlers())
	defer subscriber.Close()

	followService := services.NewFollowService(relStore, tracked, settings, subscriber, gate, jwtProvider)
	queryService := services.NewQueryService(relStore, tracked, settings, postLog, feedLog, cfg.PageSize)
	worker.OnFollowResponse(followService.HandleFollowResponse)

	// 10. Consumers (Driving Adapters - Async)
	if err := subscriber.Resubscribe(ctx, cfg.Account.UserID); err != nil {
		slog.Error("Failed to restore subscriptions", "error", err)
		os.Exit(1)
	}
	if jsGate != nil {
		consumer, err = jsGate.Consume(ctx, worker)
		if err != nil {
			slog.Error("Failed to start dispatch worker", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
	}
	slog.Info("👂 Listening for events (NATS)")

	// 11. Serveur HTTP (Driving Adapter - Sync)
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := rest.NewServer(followService, fanoutService, queryService, jwtProvider)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(api.Router(), "account-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("📡 Account API listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server forced to shutdown", "error", err)
	}
	slog.Info("👋 Server exited")
}

// --- Helpers ---

func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("account-stack"),
			semconv.ServiceInstanceIDKey.String(cfg.Account.UserID),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
