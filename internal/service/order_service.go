package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/events"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

const emailTimeout = 30 * time.Second

// OrderService handles order business logic.
type OrderService struct {
	orderRepo      repository.OrderRepository
	orderCache     repository.OrderCache
	mailer         Mailer
	eventPublisher events.Publisher
	features       config.FeatureFlags
	metrics        *metrics.Metrics
	logger         *logging.LoggerV2
}

// NewOrderService creates a new order service. orderCache may be nil.
func NewOrderService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	mailer Mailer,
	eventPublisher events.Publisher,
	features config.FeatureFlags,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		orderRepo:      orderRepo,
		orderCache:     orderCache,
		mailer:         mailer,
		eventPublisher: eventPublisher,
		features:       features,
		metrics:        m,
		logger:         logging.NewLoggerV2("order-service"),
	}
}

// UpsertGuestOrder reuses the guest's latest unpaid pending order when one
// exists, otherwise it creates a new order. The boolean reports creation.
func (s *OrderService) UpsertGuestOrder(ctx context.Context, req *models.GuestOrderRequest) (*models.Order, bool, error) {
	if err := ValidateGuestOrderRequest(req); err != nil {
		return nil, false, err
	}

	order := buildGuestOrder(req)

	s.logger.Info("Guest checkout", logging.Fields{
		"guest_email": order.GuestEmail,
		"item_count":  len(order.Items),
		"total":       order.TotalAmount.StringFixed(2),
	})

	existing, err := s.orderRepo.FindLatestPendingGuestOrder(ctx, order.GuestEmail)
	switch {
	case err == nil:
		order.ID = existing.ID
		order.OrderNumber = existing.OrderNumber
		order.CreatedAt = existing.CreatedAt
		order.ShippingAddress.ID = existing.ShippingAddress.ID
		order.BillingAddress.ID = existing.BillingAddress.ID

		err = s.orderRepo.ReplaceGuestOrder(ctx, order)
		if err == nil {
			s.afterUpsert(ctx, order, false)
			return order, false, nil
		}
		if !errors.Is(err, errors.ErrInvalidTransition) {
			return nil, false, err
		}
		// The pending order moved on since the lookup; start a new one.
		s.logger.Info("Pending guest order changed state, creating a new one", logging.Fields{
			"order_id": existing.ID,
		})
		order.ID, order.OrderNumber = "", ""
		order.ShippingAddress.ID, order.BillingAddress.ID = "", ""
	case !errors.Is(err, errors.ErrNotFound):
		return nil, false, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, false, err
	}
	s.afterUpsert(ctx, order, true)
	return order, true, nil
}

func buildGuestOrder(req *models.GuestOrderRequest) *models.Order {
	email, _ := NormalizeEmail(req.Email)

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}
	billing.ID = ""

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	items := make([]models.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = models.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       RoundMoney(it.Price),
			Volume:      it.Volume,
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.ShippingAddress.FullName
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" {
		phone = req.ShippingAddress.Phone
	}

	shipping := req.ShippingAddress
	shipping.ID = ""

	return &models.Order{
		GuestEmail:      email,
		GuestName:       name,
		GuestPhone:      phone,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		TotalAmount:     CalculateOrderTotal(items),
		Currency:        currency,
		Notes:           SanitizeOrderNotes(req.Notes),
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Items:           items,
	}
}

func (s *OrderService) afterUpsert(ctx context.Context, order *models.Order, created bool) {
	action := "updated"
	if created {
		action = "created"
	}
	s.metrics.GuestOrder(action)

	if s.orderCache != nil && !created {
		if err := s.orderCache.Delete(ctx, order.ID); err != nil {
			s.logger.Warn("Failed to invalidate cached order", logging.Fields{"order_id": order.ID})
		}
	}

	if created && s.features.EnableOrderEvents {
		if err := s.eventPublisher.PublishOrderCreated(ctx, order); err != nil {
			// Log but don't fail
			s.logger.Error("Failed to publish order created event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	go s.sendOrderConfirmation(order)

	s.logger.Info("Guest order saved", logging.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"action":       action,
	})
}

// GetOrder retrieves an order by ID or order number.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	if s.cachingEnabled() {
		if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
			return order, nil
		}
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if errors.Is(err, errors.ErrNotFound) && strings.HasPrefix(id, "ORD-") {
		order, err = s.orderRepo.GetByNumber(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if s.cachingEnabled() {
		if err := s.orderCache.Set(ctx, order); err != nil {
			s.logger.Warn("Failed to cache order", logging.Fields{"order_id": order.ID})
		}
	}
	return order, nil
}

// ListOrders lists orders for the admin surface.
func (s *OrderService) ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	if err := ValidateOrderListFilter(filter); err != nil {
		return nil, 0, err
	}
	return s.orderRepo.List(ctx, filter)
}

// UpdateOrderStatus applies an admin status transition.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if err := ValidateUpdateOrderStatusRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("Updating order status", logging.Fields{
		"order_id":   id,
		"new_status": req.Status,
	})

	current, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !isValidStatusTransition(current.Status, req.Status) {
		return nil, errors.NewValidationError("status", fmt.Sprintf(
			"invalid status transition from %s to %s",
			current.Status,
			req.Status,
		))
	}

	previousStatus := current.Status
	if err := s.orderRepo.UpdateStatus(ctx, id, previousStatus, req.Status, SanitizeOrderNotes(req.Notes)); err != nil {
		return nil, err
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.orderCache != nil {
		if err := s.orderCache.Delete(ctx, id); err != nil {
			s.logger.Warn("Failed to invalidate cached order", logging.Fields{"order_id": id})
		}
	}

	if s.features.EnableOrderEvents {
		if err := s.eventPublisher.PublishOrderStatusChanged(ctx, order, previousStatus); err != nil {
			s.logger.Error("Failed to publish status change event", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	return order, nil
}

func (s *OrderService) cachingEnabled() bool {
	return s.orderCache != nil && s.features.EnableOrderCaching
}

func (s *OrderService) sendOrderConfirmation(order *models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), emailTimeout)
	defer cancel()

	if err := s.mailer.SendOrderConfirmation(ctx, order); err != nil {
		s.metrics.Email("failure")
		s.logger.Error("Failed to send order confirmation", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return
	}
	s.metrics.Email("success")
}

func isValidStatusTransition(from, to models.OrderStatus) bool {
	validTransitions := map[models.OrderStatus][]models.OrderStatus{
		models.OrderStatusPending:    {models.OrderStatusConfirmed, models.OrderStatusCancelled},
		models.OrderStatusConfirmed:  {models.OrderStatusProcessing, models.OrderStatusCancelled},
		models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
		models.OrderStatusShipped:    {models.OrderStatusDelivered},
		models.OrderStatusDelivered:  {},
		models.OrderStatusCancelled:  {},
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}
