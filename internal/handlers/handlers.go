package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// GatewayAuthMessage is shown to shoppers when the gateway rejects our credentials.
const GatewayAuthMessage = "Ödəniş sistemi ilə autentifikasiya uğursuz oldu"

// PaymentSessions creates gateway checkout sessions.
type PaymentSessions interface {
	CreateSession(ctx context.Context, req *models.CreatePaymentRequest) (*models.PaymentSession, error)
}

// PaymentReconciler resolves payment outcomes after the gateway redirect.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, req *models.ReconcileRequest) (*models.ReconcileResult, error)
}

// Orders is the order surface used by the storefront and admin handlers.
type Orders interface {
	UpsertGuestOrder(ctx context.Context, req *models.GuestOrderRequest) (*models.Order, bool, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)
	UpdateOrderStatus(ctx context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error)
}

// Catalog serves products and categories.
type Catalog interface {
	ListProducts(ctx context.Context, filter *models.ProductFilter) (*models.ProductPage, error)
	GetProduct(ctx context.Context, slug string) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// AdminAuth issues admin tokens.
type AdminAuth interface {
	Login(ctx context.Context, email, password string) (string, time.Time, error)
}

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// Handlers holds all HTTP handlers for the checkout service.
type Handlers struct {
	payments   PaymentSessions
	reconciler PaymentReconciler
	orders     Orders
	catalog    Catalog
	auth       AdminAuth
	gatherer   prometheus.Gatherer
	checks     map[string]ReadinessCheck
	config     *config.Config
	logger     *logging.LoggerV2
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	payments PaymentSessions,
	reconciler PaymentReconciler,
	orders Orders,
	catalog Catalog,
	auth AdminAuth,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		payments:   payments,
		reconciler: reconciler,
		orders:     orders,
		catalog:    catalog,
		auth:       auth,
		checks:     make(map[string]ReadinessCheck),
		config:     cfg,
		logger:     logging.NewLoggerV2("handlers"),
	}
}

// WithGatherer sets the registry exposed on /metrics.
func (h *Handlers) WithGatherer(g prometheus.Gatherer) *Handlers {
	h.gatherer = g
	return h
}

// WithReadinessCheck registers a dependency checked by /ready.
func (h *Handlers) WithReadinessCheck(name string, check ReadinessCheck) *Handlers {
	h.checks[name] = check
	return h
}

// RenderErrors writes the JSON body for errors that middleware recorded with
// c.Error and aborted on without writing a response.
func RenderErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		handleError(c, c.Errors.Last().Err)
	}
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var validationErr *errors.ValidationError
	var upstreamErr *errors.UpstreamError

	switch {
	case errors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationErr.Message,
			"field":   validationErr.Field,
			"details": validationErr.Details,
		})
	case errors.Is(err, errors.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please try later."})
	case errors.Is(err, errors.ErrGatewayAuth):
		c.JSON(http.StatusInternalServerError, gin.H{"error": GatewayAuthMessage})
	case errors.Is(err, errors.ErrGatewayNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment gateway is not configured"})
	case errors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, errors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &upstreamErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway error", "details": upstreamErr.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
