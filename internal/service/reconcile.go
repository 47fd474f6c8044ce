package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/events"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
)

// Sources that can decide a payment outcome.
const (
	SourceCallback    = "callback"
	SourceGateway     = "gateway_order"
	SourceStored      = "stored"
	SourceTransaction = "gateway_transaction"
	SourceNone        = "none"
)

// paymentTransitions lists, per target status, the statuses it may be
// applied from. PAID is terminal.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPaid:   {models.PaymentStatusPending, models.PaymentStatusFailed},
	models.PaymentStatusFailed: {models.PaymentStatusPending},
}

// CanTransitionPayment reports whether a payment may move from one status to another.
func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, s := range paymentTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// OutcomeFromStatus maps a gateway status string to a payment outcome.
func OutcomeFromStatus(status string) models.PaymentOutcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "success", "paid":
		return models.OutcomePaid
	case "declined", "failed", "cancelled", "canceled", "error":
		return models.OutcomeFailed
	case "pending", "processing", "created", "new":
		return models.OutcomePending
	default:
		return models.OutcomeUnknown
	}
}

type callbackPayload struct {
	Status      string `json:"status"`
	OrderStatus string `json:"orderStatus"`
	Payload     *struct {
		Status      string `json:"status"`
		OrderStatus string `json:"orderStatus"`
	} `json:"payload"`
}

// DecodeCallback decodes the base64 JSON the gateway appends to the
// redirect-back URL and returns the outcome it carries.
func DecodeCallback(data string) (models.PaymentOutcome, error) {
	data = strings.TrimSpace(data)
	var raw []byte
	var err error
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if raw, err = enc.DecodeString(data); err == nil {
			break
		}
	}
	if err != nil {
		return models.OutcomeUnknown, errors.NewValidationError("data", "callback data is not valid base64")
	}

	var p callbackPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.OutcomeUnknown, errors.NewValidationError("data", "callback data is not valid JSON")
	}

	status := p.Status
	if status == "" {
		status = p.OrderStatus
	}
	if status == "" && p.Payload != nil {
		status = p.Payload.Status
		if status == "" {
			status = p.Payload.OrderStatus
		}
	}
	return OutcomeFromStatus(status), nil
}

// Reconciler decides the payment outcome of an order after the customer
// returns from the gateway and applies it idempotently.
type Reconciler struct {
	gateway   Gateway
	tokens    *TokenManager
	orderRepo repository.OrderRepository
	cache     repository.OrderCache
	publisher events.Publisher
	config    config.GatewayConfig
	metrics   *metrics.Metrics
	logger    *logging.LoggerV2
}

func NewReconciler(
	gateway Gateway,
	tokens *TokenManager,
	orderRepo repository.OrderRepository,
	cache repository.OrderCache,
	publisher events.Publisher,
	cfg config.GatewayConfig,
	m *metrics.Metrics,
) *Reconciler {
	return &Reconciler{
		gateway:   gateway,
		tokens:    tokens,
		orderRepo: orderRepo,
		cache:     cache,
		publisher: publisher,
		config:    cfg,
		metrics:   m,
		logger:    logging.NewLoggerV2("reconciler"),
	}
}

// Reconcile resolves the payment outcome of req.OrderID and returns the
// order state after applying it.
func (r *Reconciler) Reconcile(ctx context.Context, req *models.ReconcileRequest) (*models.ReconcileResult, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, errors.NewValidationError("orderId", "order ID is required")
	}

	order, err := r.loadOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	outcome, source := r.decide(ctx, req, order)
	r.metrics.Reconciled(source, string(outcome))

	result := &models.ReconcileResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Outcome:     outcome,
		Source:      source,
	}

	if outcome.Decided() {
		order, result.Applied, err = r.apply(ctx, order, models.PaymentStatus(outcome), source)
		if err != nil {
			return nil, err
		}
	}

	result.Status = order.Status
	result.PaymentStatus = order.PaymentStatus
	result.ClearCart = order.PaymentStatus == models.PaymentStatusPaid

	r.logger.Info("Payment reconciled", logging.Fields{
		"order_id":       order.ID,
		"outcome":        outcome,
		"source":         source,
		"applied":        result.Applied,
		"payment_status": order.PaymentStatus,
	})
	return result, nil
}

func (r *Reconciler) loadOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := r.orderRepo.GetByID(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return r.orderRepo.GetByNumber(ctx, id)
	}
	return order, err
}

// decide walks the sources in order: callback data, gateway order status,
// stored order, gateway transaction status.
func (r *Reconciler) decide(ctx context.Context, req *models.ReconcileRequest, order *models.Order) (models.PaymentOutcome, string) {
	best, bestSource := models.OutcomeUnknown, SourceNone
	seen := func(o models.PaymentOutcome, source string) {
		if o == models.OutcomePending && best == models.OutcomeUnknown {
			best, bestSource = o, source
		}
	}

	if req.Data != "" {
		outcome, err := DecodeCallback(req.Data)
		if err != nil {
			r.logger.Warn("Ignoring undecodable callback data", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		} else {
			if outcome.Decided() {
				return outcome, SourceCallback
			}
			seen(outcome, SourceCallback)
		}
	}

	if r.config.HasCredentials() {
		if st, err := r.queryGateway(ctx, func(token string) (*clients.StatusResult, error) {
			return r.gateway.OrderStatus(ctx, token, order.ID)
		}); err == nil {
			outcome := OutcomeFromStatus(st.Status)
			if outcome.Decided() {
				return outcome, SourceGateway
			}
			seen(outcome, SourceGateway)
		}
	}

	switch order.PaymentStatus {
	case models.PaymentStatusPaid:
		return models.OutcomePaid, SourceStored
	case models.PaymentStatusFailed:
		return models.OutcomeFailed, SourceStored
	}

	txID := req.TransactionID
	if txID == "" {
		txID = order.TransactionID
	}
	if txID != "" && r.config.HasCredentials() {
		if st, err := r.queryGateway(ctx, func(token string) (*clients.StatusResult, error) {
			return r.gateway.TransactionStatus(ctx, token, txID)
		}); err == nil {
			outcome := OutcomeFromStatus(st.Status)
			if outcome.Decided() {
				return outcome, SourceTransaction
			}
			seen(outcome, SourceTransaction)
		}
	}

	return best, bestSource
}

// queryGateway runs call with a valid token, re-authenticating once on a 401.
func (r *Reconciler) queryGateway(ctx context.Context, call func(token string) (*clients.StatusResult, error)) (*clients.StatusResult, error) {
	token, err := r.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	st, err := call(token)
	if clients.IsUnauthorized(err) {
		r.tokens.Invalidate(ctx)
		if token, err = r.tokens.GetValidToken(ctx); err != nil {
			return nil, err
		}
		st, err = call(token)
	}
	if err != nil {
		r.logger.Warn("Gateway status query failed", logging.Fields{"error": err.Error()})
		return nil, err
	}
	return st, nil
}

// apply moves the payment status to target when the transition table allows
// it and returns the authoritative order afterwards.
func (r *Reconciler) apply(ctx context.Context, order *models.Order, target models.PaymentStatus, source string) (*models.Order, bool, error) {
	previous := order.PaymentStatus
	if !CanTransitionPayment(previous, target) {
		return order, false, nil
	}

	applied, err := r.orderRepo.ApplyPaymentTransition(ctx, order.ID, target, paymentTransitions[target])
	if err != nil {
		return nil, false, err
	}

	if r.cache != nil {
		if err := r.cache.Delete(ctx, order.ID); err != nil {
			r.logger.Warn("Failed to invalidate cached order", logging.Fields{"order_id": order.ID})
		}
	}

	updated, err := r.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		r.logger.Warn("Failed to reload order after reconciliation", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		updated = order
		if applied {
			updated.PaymentStatus = target
			if target == models.PaymentStatusPaid && updated.Status == models.OrderStatusPending {
				updated.Status = models.OrderStatusConfirmed
			}
		}
	}

	if applied {
		if err := r.publisher.PublishPaymentUpdated(ctx, updated, previous, source); err != nil {
			r.logger.Error("Failed to publish payment update event", logging.Fields{
				"order_id": updated.ID,
				"error":    err.Error(),
			})
		}
	}
	return updated, applied, nil
}
