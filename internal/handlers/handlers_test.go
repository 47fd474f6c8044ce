package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
	"github.com/hemidirasim/sahibparfum-sub001/internal/repository"
	"github.com/hemidirasim/sahibparfum-sub001/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubOrderRepo satisfies the repository interface; only the methods the
// payment path touches are implemented.
type stubOrderRepo struct {
	repository.OrderRepository
	transactions map[string]string
}

func (r *stubOrderRepo) SetTransactionID(_ context.Context, id, tx string) error {
	if r.transactions == nil {
		r.transactions = map[string]string{}
	}
	r.transactions[id] = tx
	return nil
}

type stubReconciler struct {
	got *models.ReconcileRequest
	err error
}

func (s *stubReconciler) Reconcile(_ context.Context, req *models.ReconcileRequest) (*models.ReconcileResult, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReconcileResult{
		OrderID:       req.OrderID,
		Outcome:       models.OutcomePaid,
		PaymentStatus: models.PaymentStatusPaid,
		ClearCart:     true,
	}, nil
}

type stubOrders struct {
	created bool
	err     error
	filter  *models.OrderListFilter
}

func (s *stubOrders) UpsertGuestOrder(_ context.Context, req *models.GuestOrderRequest) (*models.Order, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	return &models.Order{ID: "o1", GuestEmail: req.Email}, s.created, nil
}

func (s *stubOrders) GetOrder(_ context.Context, id string) (*models.Order, error) {
	if id != "o1" {
		return nil, errors.ErrNotFound
	}
	return &models.Order{ID: "o1"}, nil
}

func (s *stubOrders) ListOrders(_ context.Context, f *models.OrderListFilter) ([]*models.Order, int, error) {
	s.filter = f
	return []*models.Order{{ID: "o1"}}, 1, nil
}

func (s *stubOrders) UpdateOrderStatus(_ context.Context, id string, req *models.UpdateOrderStatusRequest) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: id, Status: req.Status}, nil
}

type stubAuth struct{}

func (stubAuth) Login(_ context.Context, email, password string) (string, time.Time, error) {
	if password != "right" {
		return "", time.Time{}, errors.ErrUnauthorized
	}
	return "jwt-token", time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), nil
}

// newGatewayServer fakes the payment gateway and counts every request.
func newGatewayServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"token": "tok", "expiresIn": 3600})
		case "/api/transactions/checkout", "/api/transactions/taksit":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]string{"redirectUrl": "https://pay.test/r/1", "transactionId": "tx-1"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPaymentHandlers(t *testing.T, gatewayURL string, withCredentials bool) *Handlers {
	t.Helper()
	cfg := config.GatewayConfig{
		Environment: config.EnvTest,
		TestURL:     gatewayURL,
		SuccessURL:  "https://shop.test/payment/success",
		Timeout:     5 * time.Second,
		TokenTTL:    time.Hour,
	}
	if withCredentials {
		cfg.Email, cfg.Password = "merchant@example.com", "secret"
	}

	gw := clients.NewGatewayClient(cfg, nil, logging.NewNopLogger())
	tokens := service.NewTokenManager(gw, repository.NewMemoryTokenStore(), nil)
	payments := service.NewPaymentService(gw, tokens, &stubOrderRepo{}, nil, cfg, nil)

	return NewHandlers(payments, &stubReconciler{}, &stubOrders{}, nil, stubAuth{}, &config.Config{Gateway: cfg})
}

func performJSON(handler gin.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "checkout-service", resp["service"])
}

func TestReady(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, nil, &config.Config{}).
		WithReadinessCheck("database", func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h.WithReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "not_ready", resp["status"])
	assert.Contains(t, resp["checks"], "redis")
}

func TestLive(t *testing.T) {
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.Live(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"not found", errors.ErrNotFound, http.StatusNotFound, "not found"},
		{"wrapped not found", fmt.Errorf("load order: %w", errors.ErrNotFound), http.StatusNotFound, "not found"},
		{"validation", errors.NewValidationError("installment", service.InstallmentMessage), http.StatusBadRequest, service.InstallmentMessage},
		{"rate limited", errors.ErrRateLimited, http.StatusTooManyRequests, "Too many requests, please try later."},
		{"gateway auth", errors.ErrGatewayAuth, http.StatusInternalServerError, GatewayAuthMessage},
		{"not configured", errors.ErrGatewayNotConfigured, http.StatusServiceUnavailable, "payment gateway is not configured"},
		{"unauthorized", errors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"conflict", errors.ErrInvalidTransition, http.StatusConflict, "invalid status transition"},
		{"upstream", &errors.UpstreamError{Endpoint: "checkout", StatusCode: 500, Message: "boom"}, http.StatusBadGateway, "payment gateway error"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			handleError(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
		})
	}
}

func TestCreatePayment_InvalidInstallment(t *testing.T) {
	var hits int32
	srv := newGatewayServer(t, &hits)
	h := newPaymentHandlers(t, srv.URL, true)

	body := `{"orderId":"o1","amount":100,"customerInfo":{"name":"Aysel","email":"a@example.com","phone":"+994"},"installment":4}`
	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid installment period.", decodeBody(t, w)["error"])
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestCreatePayment_Installment(t *testing.T) {
	var hits int32
	srv := newGatewayServer(t, &hits)
	h := newPaymentHandlers(t, srv.URL, true)

	body := `{"orderId":"o1","amount":"300.00","customerInfo":{"name":"Aysel"},"installment":6}`
	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", body)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "https://pay.test/r/1", resp["redirectUrl"])
	assert.Equal(t, "tx-1", resp["transactionId"])
	assert.Nil(t, resp["isMock"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestCreatePayment_MockWithoutCredentials(t *testing.T) {
	var hits int32
	srv := newGatewayServer(t, &hits)
	h := newPaymentHandlers(t, srv.URL, false)

	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", `{"orderId":"o1","amount":100}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, true, resp["isMock"])

	redirect, err := url.Parse(resp["redirectUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "shop.test", redirect.Host)
	assert.Equal(t, "o1", redirect.Query().Get("orderId"))
	assert.Equal(t, "true", redirect.Query().Get("mock"))
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

// newSeededPaymentHandlers stores a valid gateway token up front so session
// requests go straight to the checkout endpoint.
func newSeededPaymentHandlers(t *testing.T, gatewayURL string) *Handlers {
	t.Helper()
	cfg := config.GatewayConfig{
		Environment: config.EnvTest,
		TestURL:     gatewayURL,
		Email:       "merchant@example.com",
		Password:    "secret",
		Timeout:     2 * time.Second,
		TokenTTL:    time.Hour,
	}
	store := repository.NewMemoryTokenStore()
	require.NoError(t, store.Set(context.Background(), &models.AuthToken{
		Value:     "seeded",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	gw := clients.NewGatewayClient(cfg, nil, logging.NewNopLogger())
	tokens := service.NewTokenManager(gw, store, nil)
	payments := service.NewPaymentService(gw, tokens, &stubOrderRepo{}, nil, cfg, nil)
	return NewHandlers(payments, &stubReconciler{}, &stubOrders{}, nil, stubAuth{}, &config.Config{Gateway: cfg})
}

func TestCreatePayment_GatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	gatewayURL := srv.URL
	srv.Close()

	h := newSeededPaymentHandlers(t, gatewayURL)
	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", `{"orderId":"o1","amount":100}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "payment gateway error", decodeBody(t, w)["error"])
}

func TestCreatePayment_GatewayNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	t.Cleanup(srv.Close)

	h := newSeededPaymentHandlers(t, srv.URL)
	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", `{"orderId":"o1","amount":100}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "payment gateway error", resp["error"])
	assert.Equal(t, "invalid response body", resp["details"])
}

func TestCreatePayment_BadBody(t *testing.T) {
	h := newPaymentHandlers(t, "http://127.0.0.1:1", true)

	w := performJSON(h.CreatePayment, http.MethodPost, "/api/payment", `{"orderId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcilePayment_Form(t *testing.T) {
	rec := &stubReconciler{}
	h := NewHandlers(nil, rec, nil, nil, nil, &config.Config{})

	form := url.Values{"orderId": {"o1"}, "data": {"eyJzdGF0dXMiOiJBUFBST1ZFRCJ9"}}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/payment/status", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	h.ReconcilePayment(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o1", rec.got.OrderID)
	assert.Equal(t, "eyJzdGF0dXMiOiJBUFBST1ZFRCJ9", rec.got.Data)
	assert.Equal(t, true, decodeBody(t, w)["clearCart"])
}

func TestPaymentStatus_Query(t *testing.T) {
	rec := &stubReconciler{}
	h := NewHandlers(nil, rec, nil, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/payment/status/o1?transactionId=tx-9", nil)
	c.Params = gin.Params{{Key: "orderId", Value: "o1"}}

	h.PaymentStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o1", rec.got.OrderID)
	assert.Equal(t, "tx-9", rec.got.TransactionID)
}

func TestCreateGuestOrder(t *testing.T) {
	orders := &stubOrders{created: true}
	h := NewHandlers(nil, nil, orders, nil, nil, &config.Config{})

	w := performJSON(h.CreateGuestOrder, http.MethodPost, "/api/orders/guest", `{"email":"g@example.com"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	orders.created = false
	w = performJSON(h.CreateGuestOrder, http.MethodPost, "/api/orders/guest", `{"email":"g@example.com"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	orders.err = errors.NewValidationError("items", "at least one item is required")
	w = performJSON(h.CreateGuestOrder, http.MethodPost, "/api/orders/guest", `{"email":"g@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := NewHandlers(nil, nil, &stubOrders{}, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/orders/zzz", nil)
	c.Params = gin.Params{{Key: "id", Value: "zzz"}}
	h.GetOrder(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrders_ParsesQuery(t *testing.T) {
	orders := &stubOrders{}
	h := NewHandlers(nil, nil, orders, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/admin/orders?status=PENDING&paymentStatus=PAID&limit=5&offset=10", nil)
	h.ListOrders(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.OrderStatusPending, *orders.filter.Status)
	assert.Equal(t, models.PaymentStatusPaid, *orders.filter.PaymentStatus)
	assert.Equal(t, 5, orders.filter.Limit)
	assert.Equal(t, 10, orders.filter.Offset)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/admin/orders?limit=many", nil)
	h.ListOrders(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateOrderStatus_Conflict(t *testing.T) {
	h := NewHandlers(nil, nil, &stubOrders{err: errors.ErrInvalidTransition}, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/api/admin/orders/o1/status",
		bytes.NewBufferString(`{"status":"SHIPPED"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "o1"}}
	h.UpdateOrderStatus(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListProducts_InvalidFilter(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, nil, &config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/products?minPrice=abc", nil)
	h.ListProducts(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "minPrice", decodeBody(t, w)["field"])
}

func TestAdminLogin(t *testing.T) {
	h := NewHandlers(nil, nil, nil, nil, stubAuth{}, &config.Config{})

	w := performJSON(h.AdminLogin, http.MethodPost, "/api/admin/login", `{"email":"a@b.az","password":"right"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jwt-token", decodeBody(t, w)["token"])

	w = performJSON(h.AdminLogin, http.MethodPost, "/api/admin/login", `{"email":"a@b.az","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performJSON(h.AdminLogin, http.MethodPost, "/api/admin/login", `{"email":"a@b.az"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
