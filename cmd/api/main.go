package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	internalaws "github.com/orderhub/go-orderhub/internal/aws"
	"github.com/orderhub/go-orderhub/internal/handlers"
	"github.com/orderhub/go-orderhub/internal/metrics"
	"github.com/orderhub/go-orderhub/internal/orders"
)

func setupRouter(cfg handlers.OrdersConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func main() {
	ctx := context.Background()

	clients, err := internalaws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	// Idempotent: declares the order-events topic and billing queues once at
	// startup instead of touching broker state per message.
	topo, err := internalaws.EnsureTopology(ctx, clients.SQS, clients.SNS, internalaws.DefaultTopology())
	if err != nil {
		log.Fatalf("failed to ensure broker topology: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "orders-api")

	cfg := handlers.OrdersConfig{
		Store:     orders.NewStore(clients.DynamoDB, getenv("ORDERS_TABLE", "orders")),
		Publisher: internalaws.NewEventPublisher(clients.SNS, topo.TopicARN),
		Metrics:   metrics.NewEmitter(clients.CloudWatch, "OrderHub", "orders-api", logger),
		Logger:    logger,
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":" + getenv("PORT", "8080")
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
