package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/carts"
	"github.com/RaufCode/venella-pharmacy/internal/validation"
)

type cartsHandler struct {
	store *carts.Store
	v     *validatorv10.Validate
}

func registerCartRoutes(g *gin.RouterGroup, h *cartsHandler) {
	g.GET("/cart-items/", h.get)
	g.POST("/cart-items/add/", h.add)
	g.PUT("/cart-item/:id/update/", h.update)
	g.DELETE("/cart-item/:id/delete/", h.remove)
}

func (h *cartsHandler) get(c *gin.Context) {
	cart, err := h.store.ForCustomer(c.Request.Context(), auth.MustIdentity(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *cartsHandler) add(c *gin.Context) {
	var req validation.AddCartItemRequest
	if !bind(c, &req, h.v) {
		return
	}
	item, err := h.store.AddItem(c.Request.Context(), auth.MustIdentity(c), req.Product, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *cartsHandler) update(c *gin.Context) {
	var req validation.UpdateCartItemRequest
	if !bind(c, &req, h.v) {
		return
	}
	item, err := h.store.UpdateItem(c.Request.Context(), auth.MustIdentity(c), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *cartsHandler) remove(c *gin.Context) {
	if err := h.store.RemoveItem(c.Request.Context(), auth.MustIdentity(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
