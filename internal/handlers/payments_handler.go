package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/RaufCode/venella-pharmacy/internal/apperr"
	"github.com/RaufCode/venella-pharmacy/internal/auth"
	"github.com/RaufCode/venella-pharmacy/internal/payments"
	"github.com/RaufCode/venella-pharmacy/internal/validation"
)

type paymentsHandler struct {
	svc *payments.Service
	v   *validatorv10.Validate
}

func registerPaymentRoutes(g *gin.RouterGroup, h *paymentsHandler) {
	g.POST("/initiate/:order_id/", h.initiate)
	g.POST("/verify/:payment_id/", h.verify)
}

func (h *paymentsHandler) initiate(c *gin.Context) {
	var req validation.InitiatePaymentRequest
	if !bind(c, &req, h.v) {
		return
	}
	in := payments.InitiateInput{
		Method:      req.PaymentMethod,
		PhoneNumber: req.PhoneNumber,
		Provider:    req.Provider,
		Currency:    req.Currency,
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			respondError(c, apperr.Invalid("Invalid data.", map[string][]string{"amount": {"A valid number is required."}}))
			return
		}
		in.Amount = &amount
	}

	res, err := h.svc.Initiate(c.Request.Context(), auth.MustIdentity(c), c.Param("order_id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           "Payment initialized successfully",
		"payment":           res.Payment,
		"authorization_url": res.AuthorizationURL,
	})
}

func (h *paymentsHandler) verify(c *gin.Context) {
	p, err := h.svc.Verify(c.Request.Context(), auth.MustIdentity(c), c.Param("payment_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment verified successfully", "payment": p})
}
