package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	internalaws "github.com/orderhub/go-orderhub/internal/aws"
	"github.com/orderhub/go-orderhub/internal/billing"
	"github.com/orderhub/go-orderhub/internal/handlers"
	"github.com/orderhub/go-orderhub/internal/invoices"
	"github.com/orderhub/go-orderhub/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := internalaws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	topo, err := internalaws.EnsureTopology(ctx, clients.SQS, clients.SNS, internalaws.DefaultTopology())
	if err != nil {
		log.Fatalf("failed to ensure broker topology: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "billing")

	store := invoices.NewStore(clients.DynamoDB, getenv("INVOICES_TABLE", "invoices"))
	emitter := metrics.NewEmitter(clients.CloudWatch, "OrderHub", "billing", logger)

	consumer := billing.NewConsumer(billing.ConsumerConfig{
		SQS:         clients.SQS,
		QueueURL:    topo.QueueURL,
		Invoices:    store,
		DeadLetters: billing.NewDeadLetterSink(clients.SQS, topo.DeadLetterQueueURL),
		Metrics:     emitter,
		Logger:      logger,
		MaxInFlight: intenv("MAX_IN_FLIGHT", 20),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		if _, err := store.Count(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage_error", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterInvoicesRoutes(r, handlers.InvoicesConfig{Store: store})

	srv := &http.Server{
		Addr:              ":" + getenv("PORT", "8082"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("billing listening", "addr", srv.Addr)
		httpErr <- srv.ListenAndServe()
	}()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}

	// Stop receiving; in-flight deliveries finish their insert and ack
	// before the consumer returns.
	stop()
	<-consumerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intenv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
