package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

// PaymentService creates payment sessions with the gateway.
type PaymentService struct {
	gateway   Gateway
	tokens    *TokenManager
	orderRepo repository.OrderRepository
	cache     repository.OrderCache
	config    config.GatewayConfig
	metrics   *metrics.Metrics
	logger    *logging.LoggerV2
	newID     func() string
}

// NewPaymentService creates a new payment service. cache may be nil.
func NewPaymentService(
	gateway Gateway,
	tokens *TokenManager,
	orderRepo repository.OrderRepository,
	cache repository.OrderCache,
	cfg config.GatewayConfig,
	m *metrics.Metrics,
) *PaymentService {
	return &PaymentService{
		gateway:   gateway,
		tokens:    tokens,
		orderRepo: orderRepo,
		cache:     cache,
		config:    cfg,
		metrics:   m,
		logger:    logging.NewLoggerV2("payment-service"),
		newID:     uuid.NewString,
	}
}

// CreateSession validates the request and asks the gateway for a checkout
// redirect. Without gateway credentials a mock session is returned when the
// environment allows it.
func (s *PaymentService) CreateSession(ctx context.Context, req *models.CreatePaymentRequest) (*models.PaymentSession, error) {
	if err := ValidatePaymentRequest(req); err != nil {
		s.metrics.PaymentSession("invalid")
		return nil, err
	}

	payment, err := s.buildPaymentRequest(ctx, req)
	if err != nil {
		if errors.IsValidation(err) {
			s.metrics.PaymentSession("invalid")
		} else {
			s.metrics.PaymentSession("failure")
		}
		return nil, err
	}

	s.logger.Info("Creating payment session", logging.Fields{
		"order_id":    payment.OrderID,
		"amount":      payment.Amount.StringFixed(2),
		"currency":    payment.Currency,
		"installment": payment.InstallmentMonths,
		"retry":       req.Retry,
	})

	if !s.config.HasCredentials() {
		if !s.config.MockAllowed() {
			s.metrics.PaymentSession("not_configured")
			s.logger.Error("Payment gateway credentials missing in production", logging.Fields{
				"order_id": payment.OrderID,
			})
			return nil, errors.ErrGatewayNotConfigured
		}
		return s.mockSession(payment), nil
	}

	result, err := s.submit(ctx, payment)
	if err != nil {
		s.metrics.PaymentSession("failure")
		return nil, err
	}

	if result.TransactionID != "" {
		if err := s.orderRepo.SetTransactionID(ctx, payment.OrderID, result.TransactionID); err != nil {
			// Reconciliation can still resolve the order by id.
			s.logger.Warn("Failed to store transaction ID", logging.Fields{
				"order_id":       payment.OrderID,
				"transaction_id": result.TransactionID,
				"error":          err.Error(),
			})
		} else if s.cache != nil {
			if err := s.cache.Delete(ctx, payment.OrderID); err != nil {
				s.logger.Warn("Failed to invalidate cached order", logging.Fields{"order_id": payment.OrderID})
			}
		}
	}

	s.metrics.PaymentSession("success")
	return &models.PaymentSession{
		Success:       true,
		RedirectURL:   result.RedirectURL,
		TransactionID: result.TransactionID,
	}, nil
}

// submit sends the session request, re-authenticating once on a 401.
func (s *PaymentService) submit(ctx context.Context, payment *models.PaymentRequest) (*clients.SessionResult, error) {
	token, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.CreateSession(ctx, token, payment)
	if err == nil || !clients.IsUnauthorized(err) {
		return result, err
	}

	s.logger.Warn("Gateway rejected token, re-authenticating", logging.Fields{"order_id": payment.OrderID})
	s.tokens.Invalidate(ctx)

	token, err = s.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}
	result, err = s.gateway.CreateSession(ctx, token, payment)
	if clients.IsUnauthorized(err) {
		return nil, errors.ErrGatewayAuth
	}
	return result, err
}

func (s *PaymentService) buildPaymentRequest(ctx context.Context, req *models.CreatePaymentRequest) (*models.PaymentRequest, error) {
	payment := &models.PaymentRequest{
		OrderID:           strings.TrimSpace(req.OrderID),
		Amount:            RoundMoney(req.Amount),
		Currency:          req.Currency,
		Description:       req.Description,
		CustomerName:      req.CustomerInfo.Name,
		CustomerEmail:     req.CustomerInfo.Email,
		CustomerPhone:     req.CustomerInfo.Phone,
		InstallmentMonths: req.Installment,
	}

	if req.Retry {
		order, err := s.orderRepo.GetByID(ctx, payment.OrderID)
		if err != nil {
			return nil, err
		}
		payment.Amount = RoundMoney(order.TotalAmount)
		payment.Currency = order.Currency
		payment.CustomerName = order.CustomerName()
		payment.CustomerEmail = order.GuestEmail
		payment.CustomerPhone = order.CustomerPhone()
		if payment.Description == "" {
			payment.Description = "Sifariş " + order.OrderNumber
		}
		if !payment.Amount.IsPositive() {
			return nil, errors.NewValidationError("amount", "order total must be positive")
		}
	}

	if payment.Currency == "" {
		payment.Currency = DefaultCurrency
	}
	if payment.Description == "" {
		payment.Description = "Sifariş " + payment.OrderID
	}
	return payment, nil
}

func (s *PaymentService) mockSession(payment *models.PaymentRequest) *models.PaymentSession {
	redirect := s.config.SuccessURL
	if u, err := url.Parse(redirect); err == nil {
		q := u.Query()
		q.Set("orderId", payment.OrderID)
		q.Set("mock", "true")
		u.RawQuery = q.Encode()
		redirect = u.String()
	}

	s.metrics.PaymentSession("mock")
	s.logger.Warn("Payment gateway not configured, returning mock session", logging.Fields{
		"order_id":    payment.OrderID,
		"environment": s.config.Environment,
	})

	return &models.PaymentSession{
		Success:       true,
		RedirectURL:   redirect,
		TransactionID: "mock_" + s.newID(),
		IsMock:        true,
	}
}
