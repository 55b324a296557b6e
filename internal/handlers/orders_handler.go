package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/RaufCode/venella-pharmacy/internal/accounts"
	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/idempotency"
	"github.com/RaufCode/venella-pharmacy/internal/orders"
	"github.com/RaufCode/venella-pharmacy/internal/validation"
)

const (
	inProgressDetail = "A request with this idempotency key is already in progress."
	recordTimeout    = 5 * time.Second
)

type ordersHandler struct {
	svc  *orders.Service
	idem *idempotency.Store
	v    *validatorv10.Validate
}

func registerOrderRoutes(g *gin.RouterGroup, h *ordersHandler) {
	staff := auth.RequireStaff()

	g.GET("/", staff, h.listAll)
	g.GET("/:id/retrieve/", h.retrieve)
	g.POST("/:id/update-status/", staff, h.updateStatus)
	g.DELETE("/:id/delete/", h.delete)
	g.GET("/customer/orders/", h.listMine)
	g.POST("/create/", h.create)
	g.POST("/sell/", staff, h.sell)
	g.GET("/pending/", staff, h.listByStatus(orders.StatusPending))
	g.GET("/processing/", staff, h.listByStatus(orders.StatusProcessing))
}

func (h *ordersHandler) listAll(c *gin.Context) {
	list, err := h.svc.ListAll(c.Request.Context(), auth.MustIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ordersHandler) listMine(c *gin.Context) {
	list, err := h.svc.ListForCustomer(c.Request.Context(), auth.MustIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ordersHandler) listByStatus(st orders.Status) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.svc.ListByStatus(c.Request.Context(), auth.MustIdentity(c), st)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func (h *ordersHandler) retrieve(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), auth.MustIdentity(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.StatusRequest
	if !bind(c, &req, h.v) {
		return
	}
	view, err := h.svc.UpdateStatus(c.Request.Context(), auth.MustIdentity(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *ordersHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), auth.MustIdentity(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ordersHandler) sell(c *gin.Context) {
	var req validation.SaleRequest
	if !bind(c, &req, h.v) {
		return
	}
	in := orders.SaleInput{
		CustomerID:      req.Customer,
		ShippingAddress: req.ShippingAddress,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, orders.SaleLine{ProductID: it.Product, Quantity: it.Quantity})
	}
	view, err := h.svc.RecordOfflineSale(c.Request.Context(), auth.MustIdentity(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Sale processed successfully.", "sale": view})
}

// create places an order from the caller's cart. With an Idempotency-Key
// header the final response is stored and replayed for retries of the same key.
func (h *ordersHandler) create(c *gin.Context) {
	var req validation.CheckoutRequest
	if !bind(c, &req, h.v) {
		return
	}
	ctx := c.Request.Context()
	who := auth.MustIdentity(c)

	header := c.GetHeader("Idempotency-Key")
	if h.idem == nil || header == "" {
		status, body, _ := h.checkout(c, who, req)
		c.Data(status, "application/json; charset=utf-8", body)
		return
	}
	if len(header) > 255 {
		respondError(c, apperr.BadRequest("Idempotency-Key must be at most 255 characters."))
		return
	}

	key := idempotency.Key(who.AccountID, header)
	created, err := h.idem.CreateIfNotExists(ctx, key)
	if err != nil {
		respondError(c, apperr.Internal("Could not check the idempotency key.", err))
		return
	}
	if !created {
		rec, err := h.idem.Get(ctx, key)
		if err != nil {
			respondError(c, apperr.Internal("Could not check the idempotency key.", err))
			return
		}
		switch {
		case rec == nil:
			// swept between the conditional put and the read
			respondError(c, apperr.Conflict(inProgressDetail))
			return
		case rec.Status == idempotency.StatusDone:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		case rec.Status == idempotency.StatusFailed:
			ok, err := h.idem.Reclaim(ctx, key)
			if err != nil {
				respondError(c, apperr.Internal("Could not check the idempotency key.", err))
				return
			}
			if !ok {
				respondError(c, apperr.Conflict(inProgressDetail))
				return
			}
		default:
			respondError(c, apperr.Conflict(inProgressDetail))
			return
		}
	}

	status, body, orderID := h.checkout(c, who, req)

	// the client may have gone away after commit; the record must still settle
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if status >= http.StatusInternalServerError {
		if err := h.idem.MarkFailed(recCtx, key, fmt.Sprintf("status %d", status)); err != nil {
			log.Printf("[orders] idempotency mark failed key=%s: %v", key, err)
		}
	} else if err := h.idem.MarkDone(recCtx, key, orderID, string(body), status); err != nil {
		log.Printf("[orders] idempotency mark done key=%s: %v", key, err)
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// checkout runs the orchestrator and renders the response so it can be stored.
func (h *ordersHandler) checkout(c *gin.Context, who accounts.Identity, req validation.CheckoutRequest) (int, []byte, string) {
	view, err := h.svc.Checkout(c.Request.Context(), who, orders.CheckoutInput{
		CartID:          req.Cart,
		ShippingAddress: req.ShippingAddress,
	})
	status := http.StatusCreated
	var payload any = view
	if err != nil {
		status, payload = errorBody(err)
	}
	body, merr := json.Marshal(payload)
	if merr != nil {
		log.Printf("[orders] marshal checkout response: %v", merr)
		return http.StatusInternalServerError, []byte(`{"detail":"A server error occurred."}`), ""
	}
	if view == nil {
		return status, body, ""
	}
	c.Header("Location", fmt.Sprintf("/orders/%s/retrieve/", view.ID))
	return status, body, view.ID
}
