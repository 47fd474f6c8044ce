package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthToken is a bearer token issued by the payment gateway.
type AuthToken struct {
	Value        string    `json:"value"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}

// ValidAt reports whether the token can still be used at now.
func (t *AuthToken) ValidAt(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt)
}

// CustomerInfo holds the buyer contact details sent to the gateway.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CreatePaymentRequest is the inbound request for a new payment session.
type CreatePaymentRequest struct {
	OrderID      string          `json:"orderId"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description"`
	CustomerInfo CustomerInfo    `json:"customerInfo"`
	Retry        bool            `json:"retry"`
	Installment  int             `json:"installment,omitempty"`
}

// PaymentRequest is the resolved request submitted to the gateway.
type PaymentRequest struct {
	OrderID           string
	Amount            decimal.Decimal
	Currency          string
	Description       string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	InstallmentMonths int
}

// PaymentSession is the outcome of a payment session request.
type PaymentSession struct {
	Success       bool   `json:"success"`
	RedirectURL   string `json:"redirectUrl"`
	TransactionID string `json:"transactionId"`
	IsMock        bool   `json:"isMock,omitempty"`
}

// PaymentOutcome is the reconciled result of a payment attempt.
type PaymentOutcome string

const (
	OutcomePending PaymentOutcome = "PENDING"
	OutcomePaid    PaymentOutcome = "PAID"
	OutcomeFailed  PaymentOutcome = "FAILED"
	OutcomeUnknown PaymentOutcome = "UNKNOWN"
)

// Decided reports whether the outcome settles the payment.
func (o PaymentOutcome) Decided() bool {
	return o == OutcomePaid || o == OutcomeFailed
}

// ReconcileRequest carries whatever the customer brought back from the gateway.
type ReconcileRequest struct {
	OrderID       string `json:"orderId" form:"orderId"`
	Data          string `json:"data" form:"data"`
	TransactionID string `json:"transactionId" form:"transactionId"`
}

// ReconcileResult is the authoritative order state after reconciliation.
type ReconcileResult struct {
	OrderID       string         `json:"orderId"`
	OrderNumber   string         `json:"orderNumber"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"paymentStatus"`
	Outcome       PaymentOutcome `json:"outcome"`
	Source        string         `json:"source"`
	Applied       bool           `json:"applied"`
	ClearCart     bool           `json:"clearCart"`
}
