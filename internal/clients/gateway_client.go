package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/metrics"
	"github.com/hemidirasim/sahibparfum-sub001/internal/middleware"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// HeaderAuthToken carries the gateway bearer token.
const HeaderAuthToken = "x-auth-token"

// Gateway endpoint names used for logging and metrics.
const (
	EndpointLogin       = "login"
	EndpointRefresh     = "refresh"
	EndpointCheckout    = "checkout"
	EndpointInstallment = "taksit"
	EndpointOrderStatus = "order_status"
	EndpointTransaction = "transaction"
)

// SessionResult is the gateway answer to a checkout or installment request.
type SessionResult struct {
	RedirectURL   string
	TransactionID string
}

// StatusResult is a raw gateway payment status.
type StatusResult struct {
	Status        string
	TransactionID string
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type checkoutPayload struct {
	PartnerID   string          `json:"partnerId"`
	OrderID     string          `json:"orderId"`
	Amount      string          `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Language    string          `json:"language"`
	Customer    customerPayload `json:"customer"`
	SuccessURL  string          `json:"successUrl"`
	CancelURL   string          `json:"cancelUrl"`
	DeclineURL  string          `json:"declineUrl"`
	Installment int             `json:"installment,omitempty"`
}

type sessionFields struct {
	RedirectURL   string `json:"redirectUrl"`
	TransactionID string `json:"transactionId"`
}

// sessionResponse accepts the fields at the top level or under "data".
type sessionResponse struct {
	sessionFields
	Data *sessionFields `json:"data"`
}

type statusFields struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

type statusResponse struct {
	statusFields
	Data *statusFields `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// GatewayClient talks to the card and installment payment gateway.
type GatewayClient struct {
	cfg        config.GatewayConfig
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *logging.LoggerV2
	now        func() time.Time
}

// NewGatewayClient creates a gateway client bound to the configured environment.
func NewGatewayClient(cfg config.GatewayConfig, m *metrics.Metrics, logger *logging.LoggerV2) *GatewayClient {
	rps := cfg.RequestsPerS
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &GatewayClient{
		cfg:     cfg,
		baseURL: cfg.BaseURL(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Login obtains a fresh token with the configured credentials.
func (c *GatewayClient) Login(ctx context.Context) (*models.AuthToken, error) {
	if !c.cfg.HasCredentials() {
		return nil, errors.ErrGatewayNotConfigured
	}

	var resp authResponse
	req := authRequest{Email: c.cfg.Email, Password: c.cfg.Password}
	if err := c.do(ctx, EndpointLogin, http.MethodPost, "/api/auth/", "", req, &resp); err != nil {
		return nil, err
	}
	return c.toToken(resp)
}

// Refresh exchanges a refresh token for a new token.
func (c *GatewayClient) Refresh(ctx context.Context, refreshToken string) (*models.AuthToken, error) {
	var resp authResponse
	req := refreshRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, EndpointRefresh, http.MethodPost, "/api/auth/refresh", "", req, &resp); err != nil {
		return nil, err
	}
	return c.toToken(resp)
}

func (c *GatewayClient) toToken(resp authResponse) (*models.AuthToken, error) {
	if resp.Token == "" {
		return nil, fmt.Errorf("gateway returned an empty token")
	}

	ttl := c.cfg.TokenTTL
	if resp.ExpiresIn > 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second
	}
	return &models.AuthToken{
		Value:        resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    c.now().Add(ttl),
	}, nil
}

// CreateSession submits a checkout, or an installment checkout when
// InstallmentMonths is set, and returns the redirect target.
func (c *GatewayClient) CreateSession(ctx context.Context, token string, req *models.PaymentRequest) (*SessionResult, error) {
	payload := checkoutPayload{
		PartnerID:   c.cfg.PartnerID,
		OrderID:     req.OrderID,
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Description: req.Description,
		Language:    "AZ",
		Customer: customerPayload{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		SuccessURL:  withOrderID(c.cfg.SuccessURL, req.OrderID),
		CancelURL:   withOrderID(c.cfg.CancelURL, req.OrderID),
		DeclineURL:  withOrderID(c.cfg.DeclineURL, req.OrderID),
		Installment: req.InstallmentMonths,
	}

	endpoint, path := EndpointCheckout, "/api/transactions/checkout"
	if req.InstallmentMonths > 0 {
		endpoint, path = EndpointInstallment, "/api/transactions/taksit"
	}

	var resp sessionResponse
	if err := c.do(ctx, endpoint, http.MethodPost, path, token, payload, &resp); err != nil {
		return nil, err
	}

	fields := resp.sessionFields
	if fields.RedirectURL == "" && resp.Data != nil {
		fields = *resp.Data
	}
	if fields.RedirectURL == "" {
		return nil, &errors.UpstreamError{Endpoint: endpoint, StatusCode: http.StatusOK, Message: "missing redirect URL"}
	}

	c.logger.Info("Payment session created", logging.Fields{
		"order_id":       req.OrderID,
		"transaction_id": fields.TransactionID,
		"installment":    req.InstallmentMonths,
	})
	return &SessionResult{RedirectURL: fields.RedirectURL, TransactionID: fields.TransactionID}, nil
}

// OrderStatus asks the gateway for the payment status of an order.
func (c *GatewayClient) OrderStatus(ctx context.Context, token, orderID string) (*StatusResult, error) {
	var resp statusResponse
	body := map[string]string{"orderId": orderID}
	if err := c.do(ctx, EndpointOrderStatus, http.MethodPost, "/api/transactions/status", token, body, &resp); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// TransactionStatus asks the gateway for the status of a transaction.
func (c *GatewayClient) TransactionStatus(ctx context.Context, token, transactionID string) (*StatusResult, error) {
	var resp statusResponse
	path := "/api/transactions/" + url.PathEscape(transactionID)
	if err := c.do(ctx, EndpointTransaction, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

func (r *statusResponse) result() *StatusResult {
	fields := r.statusFields
	if fields.Status == "" && r.Data != nil {
		fields = *r.Data
	}
	return &StatusResult{Status: fields.Status, TransactionID: fields.TransactionID}
}

func (c *GatewayClient) do(ctx context.Context, endpoint, method, path, token string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	c.setHeaders(ctx, httpReq, token)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveGateway(endpoint, 0, started)
		c.logger.Error("Gateway request failed", logging.Fields{
			"endpoint": endpoint,
			"error":    err.Error(),
		})
		return &errors.UpstreamError{Endpoint: endpoint, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()
	c.metrics.ObserveGateway(endpoint, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		c.logger.Error("Gateway returned error", logging.Fields{
			"endpoint":    endpoint,
			"status_code": resp.StatusCode,
			"message":     msg,
		})
		return &errors.UpstreamError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Error("Gateway returned an unreadable body", logging.Fields{
			"endpoint":    endpoint,
			"status_code": resp.StatusCode,
			"error":       err.Error(),
		})
		return &errors.UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "invalid response body",
			Err:        err,
		}
	}
	return nil
}

func (c *GatewayClient) setHeaders(ctx context.Context, req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if token != "" {
		req.Header.Set(HeaderAuthToken, token)
	}

	if requestID := middleware.RequestIDFrom(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}
}

// IsUnauthorized reports whether err is a 401 from the gateway.
func IsUnauthorized(err error) bool {
	var up *errors.UpstreamError
	return errors.As(err, &up) && up.StatusCode == http.StatusUnauthorized
}

func withOrderID(base, orderID string) string {
	if base == "" {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}
