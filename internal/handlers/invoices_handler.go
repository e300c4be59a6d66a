package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/orderhub/go-orderhub/internal/invoices"
	"github.com/orderhub/go-orderhub/internal/validation"
)

// InvoicesConfig groups dependencies for the invoice API.
type InvoicesConfig struct {
	Store *invoices.Store
}

// RegisterInvoicesRoutes registers the invoice query and administrative routes.
func RegisterInvoicesRoutes(r *gin.Engine, cfg InvoicesConfig) {
	v := validation.New()

	// List invoices (newest first), with optional ?limit (default 50).
	r.GET("/api/invoices", func(c *gin.Context) {
		list, err := cfg.Store.ListRecent(c.Request.Context(), intQuery(c, "limit", 50))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	// Recent invoices since ?minutes (default 30).
	r.GET("/api/invoices/recent", func(c *gin.Context) {
		since := time.Now().UTC().Add(-time.Duration(intQuery(c, "minutes", 30)) * time.Minute)
		list, err := cfg.Store.ListSince(c.Request.Context(), since, 200)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_list_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/api/invoices/:id", func(c *gin.Context) {
		inv, err := cfg.Store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	r.GET("/api/invoices/by-order/:orderId", func(c *gin.Context) {
		inv, err := cfg.Store.GetByOrder(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	// Administrative direct create, bypassing the event flow. The same
	// uniqueness constraint applies: one invoice per order, ever.
	r.POST("/api/invoices", func(c *gin.Context) {
		var req validation.CreateInvoiceRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		amount, _ := decimal.NewFromString(req.Amount)
		inv := invoices.New(req.OrderID, amount)
		if err := cfg.Store.Insert(c.Request.Context(), inv); err != nil {
			if errors.Is(err, invoices.ErrDuplicateOrder) {
				c.JSON(http.StatusConflict, gin.H{"error": "invoice_exists_for_order", "orderId": req.OrderID})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_create_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, inv)
	})

	// Mark an invoice paid. Safe to retry: a second call is a no-op success.
	r.POST("/api/invoices/:id/pay", func(c *gin.Context) {
		inv, err := cfg.Store.MarkPaid(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, inv)
	})

	// Delete one invoice by orderId.
	r.DELETE("/api/invoices/:orderId", func(c *gin.Context) {
		found, err := cfg.Store.DeleteByOrder(c.Request.Context(), c.Param("orderId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_delete_failed", "detail": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice_not_found"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	// Bulk delete: either ?all=true or ?olderThanMinutes=N.
	r.DELETE("/api/invoices", func(c *gin.Context) {
		ctx := c.Request.Context()

		if c.Query("all") == "true" {
			n, err := cfg.Store.DeleteAll(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_delete_failed", "detail": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"deleted": n})
			return
		}

		if m := intQuery(c, "olderThanMinutes", 0); m > 0 {
			cutoff := time.Now().UTC().Add(-time.Duration(m) * time.Minute)
			n, err := cfg.Store.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_delete_failed", "detail": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"deleted": n})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{"error": "specify ?all=true or ?olderThanMinutes=N"})
	})
}

func writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, invoices.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice_not_found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "invoice_lookup_failed", "detail": err.Error()})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
