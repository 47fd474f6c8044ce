package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/middleware"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// CreateGuestOrder handles POST /api/orders/guest
func (h *Handlers) CreateGuestOrder(c *gin.Context) {
	var req models.GuestOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Failed to bind guest order", logging.Fields{"error": err.Error()})
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, created, err := h.orders.UpsertGuestOrder(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, order)
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/admin/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	filter := &models.OrderListFilter{
		GuestEmail: c.Query("email"),
	}

	if status := c.Query("status"); status != "" {
		s := models.OrderStatus(status)
		filter.Status = &s
	}
	if paymentStatus := c.Query("paymentStatus"); paymentStatus != "" {
		ps := models.PaymentStatus(paymentStatus)
		filter.PaymentStatus = &ps
	}

	if limit := c.Query("limit"); limit != "" {
		l, err := strconv.Atoi(limit)
		if err != nil {
			handleError(c, errors.NewValidationError("limit", "limit must be a number"))
			return
		}
		filter.Limit = l
	}
	if offset := c.Query("offset"); offset != "" {
		o, err := strconv.Atoi(offset)
		if err != nil {
			handleError(c, errors.NewValidationError("offset", "offset must be a number"))
			return
		}
		filter.Offset = o
	}

	orders, total, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// UpdateOrderStatus handles PATCH /api/admin/orders/:id/status
func (h *Handlers) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	h.logger.Info("Order status updated by admin", logging.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"admin":    c.GetString(middleware.AdminSubjectKey),
	})
	c.JSON(http.StatusOK, order)
}
