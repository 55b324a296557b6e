package main

import (
	"context"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/aws"
	"github.com/RaufCode/venella-pharmacy/internal/config"
	"github.com/RaufCode/venella-pharmacy/internal/db"
	"github.com/RaufCode/venella-pharmacy/internal/handlers"
	"github.com/RaufCode/venella-pharmacy/internal/idempotency"
	"github.com/RaufCode/venella-pharmacy/internal/metrics"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
	"github.com/RaufCode/venella-pharmacy/internal/payments"
	"github.com/RaufCode/venella-pharmacy/internal/schema"
)

func setupRouter(cfg config.Config, hc handlers.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORSAllowedOrigins)))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, hc)

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length", "Location", "Idempotent-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// buildSinks assembles the notification fan-out. The database store is the
// canonical sink unless NOTIFY_TRANSPORT=sqs hands persistence to the worker.
func buildSinks(cfg config.Config, gdb *gorm.DB, clients *aws.Clients, hub *notifications.Hub) (notifications.Fanout, func()) {
	sinks := notifications.Fanout{hub}
	cleanup := func() {}

	if cfg.NotifyTransport == "sqs" && clients != nil && cfg.NotificationsQueueURL != "" {
		sinks = append(sinks, notifications.NewQueueSink(aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL)))
	} else {
		if cfg.NotifyTransport == "sqs" {
			log.Printf("[api] NOTIFY_TRANSPORT=sqs without NOTIFICATIONS_QUEUE_URL, falling back to db")
		}
		sinks = append(sinks, notifications.NewStore(gdb))
	}

	if cfg.AMQPURL != "" {
		broker, err := notifications.DialBroker(cfg.AMQPURL, cfg.AMQPExchange, 4)
		if err != nil {
			log.Printf("[api] rabbitmq disabled: %v", err)
		} else {
			sinks = append(sinks, broker)
			cleanup = broker.Close
		}
	}
	return sinks, cleanup
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	gdb, err := db.Open(db.FromEnv())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	if cfg.AutoMigrate {
		if err := schema.Migrate(gdb); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	var clients *aws.Clients
	if cfg.IdempotencyTable != "" || cfg.MetricsNamespace != "" || cfg.NotifyTransport == "sqs" {
		clients, err = aws.NewClients(context.Background())
		if err != nil {
			log.Fatalf("failed to init aws clients: %v", err)
		}
	}

	hub := notifications.NewHub()
	sinks, closeSinks := buildSinks(cfg, gdb, clients, hub)
	defer closeSinks()

	hc := handlers.Config{
		DB:                gdb,
		JWTSecret:         cfg.JWTSecret,
		Sink:              sinks,
		Hub:               hub,
		Gateway:           payments.NewPaystack(cfg.PaystackBaseURL, cfg.PaystackSecretKey, cfg.PaystackTimeout),
		CallbackURL:       cfg.PaystackCallbackURL,
		DefaultCurrency:   cfg.DefaultCurrency,
		Metrics:           metrics.Recorder(metrics.Nop{}),
		LowStockThreshold: cfg.LowStockThreshold,
	}
	if clients != nil {
		hc.Metrics = metrics.New(clients.CloudWatch, cfg.MetricsNamespace)
		if cfg.IdempotencyTable != "" {
			hc.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
		}
	}

	r := setupRouter(cfg, hc)

	// RUN_LOCAL=true serves plain HTTP for development; otherwise run behind API Gateway.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
