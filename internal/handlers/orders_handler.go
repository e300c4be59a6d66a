package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalaws "github.com/orderhub/go-orderhub/internal/aws"
	"github.com/orderhub/go-orderhub/internal/metrics"
	"github.com/orderhub/go-orderhub/internal/orders"
	"github.com/orderhub/go-orderhub/internal/validation"
)

// OrdersConfig groups dependencies for the orders API.
type OrdersConfig struct {
	Store     *orders.Store
	Publisher *internalaws.EventPublisher
	Metrics   *metrics.Emitter
	Logger    *slog.Logger
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg OrdersConfig) {
	v := validation.New()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.POST("/api/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		items := make([]orders.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			// validated above; parse cannot fail here
			price, _ := decimal.NewFromString(it.UnitPrice)
			items = append(items, orders.LineItem{SKU: it.SKU, Qty: it.Qty, UnitPrice: price})
		}

		order := orders.Order{
			OrderID:    uuid.NewString(),
			CustomerID: req.CustomerID,
			Total:      orders.TotalOf(items),
			Items:      items,
			CreatedAt:  time.Now().UTC(),
		}

		if err := cfg.Store.Create(ctx, order); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed", "detail": err.Error()})
			return
		}

		// The order is committed. Publishing is fire-and-forget: a broker
		// outage delays the invoice, it never fails or rolls back the order.
		if err := cfg.Publisher.PublishOrderCreated(ctx, order.OrderID, order.Total); err != nil {
			logger.Warn("order event publish failed", "orderId", order.OrderID, "error", err)
			cfg.Metrics.Count(ctx, metrics.MetricPublishFailures, 1)
		}

		c.Header("Location", "/api/orders/"+order.OrderID)
		c.JSON(http.StatusCreated, order)
	})

	r.GET("/api/orders", func(c *gin.Context) {
		list, err := cfg.Store.List(c.Request.Context(), intQuery(c, "limit", 50))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/orders/:id", func(c *gin.Context) {
		order, err := cfg.Store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_get_failed", "detail": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		c.JSON(http.StatusOK, order)
	})
}
