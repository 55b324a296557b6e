// Package handlers exposes the storefront over HTTP with gin.
package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/carts"
	"github.com/RaufCode/venella-pharmacy/internal/catalog"
	"github.com/RaufCode/venella-pharmacy/internal/idempotency"
	"github.com/RaufCode/venella-pharmacy/internal/metrics"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
	"github.com/RaufCode/venella-pharmacy/internal/payments"
	"github.com/RaufCode/venella-pharmacy/internal/validation"
)

// Config groups dependencies for the HTTP surface.
type Config struct {
	DB        *gorm.DB
	JWTSecret string

	// Sink receives every notification. It should include the notifications
	// store, or an async sink whose consumer persists them.
	Sink notifications.Sink
	// Hub serves /notifications/live/. Nil disables the route.
	Hub *notifications.Hub

	Gateway         payments.Gateway
	CallbackURL     string
	DefaultCurrency string

	// Idempotency backs the Idempotency-Key header on checkout. Nil disables it.
	Idempotency *idempotency.Store

	Metrics           metrics.Recorder
	LowStockThreshold int
}

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r *gin.Engine, cfg Config) {
	v := validation.New()
	products := catalog.NewStore(cfg.DB)
	paymentSvc := payments.NewService(cfg.DB, cfg.Gateway, payments.Config{
		CallbackURL:     cfg.CallbackURL,
		DefaultCurrency: cfg.DefaultCurrency,
		Metrics:         cfg.Metrics,
	})
	orderSvc := orders.NewService(cfg.DB, orders.Config{
		Sink:              cfg.Sink,
		Payments:          paymentSvc,
		Metrics:           cfg.Metrics,
		LowStockThreshold: cfg.LowStockThreshold,
	})

	authed := r.Group("/", auth.Middleware(cfg.JWTSecret))

	registerOrderRoutes(authed.Group("/orders"), &ordersHandler{
		svc:  orderSvc,
		idem: cfg.Idempotency,
		v:    v,
	})
	registerCartRoutes(authed.Group("/carts"), &cartsHandler{
		store: carts.NewStore(cfg.DB, products),
		v:     v,
	})
	registerPaymentRoutes(authed.Group("/payments"), &paymentsHandler{svc: paymentSvc, v: v})
	registerNotificationRoutes(authed.Group("/notifications"), &notificationsHandler{
		store: notifications.NewStore(cfg.DB),
		hub:   cfg.Hub,
	})
}

// errorBody renders err as {detail, errors}. Unexpected errors are logged and
// hidden behind a generic detail.
func errorBody(err error) (int, gin.H) {
	ae, ok := apperr.As(err)
	if !ok {
		log.Printf("[http] internal error: %v", err)
		return http.StatusInternalServerError, gin.H{"detail": "A server error occurred."}
	}
	if ae.Kind == apperr.KindInternal || ae.Err != nil {
		log.Printf("[http] %s: %v", ae.Detail, ae.Err)
	}
	body := gin.H{"detail": ae.Detail}
	if len(ae.Fields) > 0 {
		body["errors"] = ae.Fields
	}
	return ae.Status(), body
}

func respondError(c *gin.Context, err error) {
	status, body := errorBody(err)
	c.AbortWithStatusJSON(status, body)
}

// bind wraps BindAndValidate, which writes its own 400.
func bind(c *gin.Context, out any, v *validatorv10.Validate) bool {
	return validation.BindAndValidate(c, out, v) == nil
}
