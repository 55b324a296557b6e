package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/notifications"
)

type notificationsHandler struct {
	store *notifications.Store
	hub   *notifications.Hub
}

func registerNotificationRoutes(g *gin.RouterGroup, h *notificationsHandler) {
	g.GET("/customer/", h.listCustomer)
	g.GET("/sales-person/", auth.RequireStaff(), h.listStaff)
	g.PUT("/:id/mark-as-read/", h.markRead)
	g.DELETE("/:id/delete/", h.delete)
	if h.hub != nil {
		g.GET("/live/", h.live)
	}
}

func (h *notificationsHandler) listCustomer(c *gin.Context) {
	list, err := h.store.ListForCustomer(c.Request.Context(), auth.MustIdentity(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *notificationsHandler) listStaff(c *gin.Context) {
	list, err := h.store.ListStaff(c.Request.Context(), notifications.StaffFeedTypes...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *notificationsHandler) markRead(c *gin.Context) {
	n, err := h.store.MarkRead(c.Request.Context(), auth.MustIdentity(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *notificationsHandler) delete(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), auth.MustIdentity(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// live blocks for the lifetime of the websocket.
func (h *notificationsHandler) live(c *gin.Context) {
	if err := h.hub.Serve(c.Writer, c.Request, auth.MustIdentity(c)); err != nil {
		log.Printf("[notifications] live: %v", err)
	}
}
