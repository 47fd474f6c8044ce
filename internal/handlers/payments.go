package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// CreatePayment handles POST /api/payment
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind payment request", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.payments.CreateSession(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ReconcilePayment handles POST /api/payment/status with a JSON or form body.
func (h *Handlers) ReconcilePayment(c *gin.Context) {
	var req models.ReconcileRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.reconcile(c, &req)
}

// PaymentStatus handles GET /api/payment/status/:orderId
func (h *Handlers) PaymentStatus(c *gin.Context) {
	req := models.ReconcileRequest{
		OrderID:       c.Param("orderId"),
		Data:          c.Query("data"),
		TransactionID: c.Query("transactionId"),
	}

	h.reconcile(c, &req)
}

func (h *Handlers) reconcile(c *gin.Context, req *models.ReconcileRequest) {
	result, err := h.reconciler.Reconcile(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
