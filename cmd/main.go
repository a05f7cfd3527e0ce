/**
 * @description
 * This is the main entry point for the boleto-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection and migrations, the Santander gateway client, the object-store
 * uploader, the message broker, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/santander, pkg/storage, pkg/rabbitmq: External collaborator clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/crismendesconnexions/boleto-service/internal/api"
	"github.com/crismendesconnexions/boleto-service/internal/app"
	"github.com/crismendesconnexions/boleto-service/internal/config"
	"github.com/crismendesconnexions/boleto-service/internal/store"
	"github.com/crismendesconnexions/boleto-service/pkg/rabbitmq"
	"github.com/crismendesconnexions/boleto-service/pkg/santander"
	"github.com/crismendesconnexions/boleto-service/pkg/storage"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	bundle, err := cfg.CredentialBundle()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"santander credentials invalid\" err=%v", err)
	}
	if strings.TrimSpace(cfg.CovenantCode) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"covenant code must be configured\" env=SANTANDER_COVENANT_CODE")
	}

	log.Printf("level=info component=bootstrap msg=\"starting boleto-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMigrate()
	if err := store.RunMigrations(migrateCtx, cfg.DatabaseURL); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"migrations applied\"")

	// Initialize the Santander gateway client with the mTLS bundle.
	gatewayClient, err := santander.NewClient(santander.ClientConfig{
		BaseURL:        cfg.SantanderBaseURL,
		ClientID:       bundle.ClientID,
		ClientSecret:   bundle.ClientSecret,
		CertificatePEM: bundle.CertificatePEM,
		PrivateKeyPEM:  bundle.PrivateKeyPEM,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"santander client init failed\" err=%v", err)
	}

	// Initialize the durable object-store uploader for archived PDFs.
	uploader, err := storage.NewS3Uploader(context.Background(), storage.Config{
		BaseEndpoint: cfg.S3BaseEndpoint,
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
	})
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"object store init failed\" err=%v", err)
	}

	// Initialize the RabbitMQ producer to publish lifecycle events.
	var eventProducer rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rabbitmq.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var redisClient *redis.Client
	if cfg.IssueRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; issuance rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; issuance rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; issuance rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	boletoService := app.NewService(
		repository,
		gatewayClient,
		uploader,
		eventProducer,
		cfg.BoletoEventExchange,
		cfg.CovenantCode,
		cfg.ParticipantCode,
		cfg.DueDateBusinessDays,
		cfg.BusinessTimezone,
	)
	if redisClient != nil {
		boletoService.SetIssueRateLimiter(
			app.NewRedisIssueRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.IssueRateLimitPerMinute,
		)
	}

	// Initialize the API handlers.
	boletoHandlers := api.NewBoletoHandlers(boletoService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/boletos", api.BoletoRoutes(boletoHandlers, cfg.ClerkJWKSURL))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
