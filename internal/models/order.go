package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// Address is a shipping or billing address attached to an order.
type Address struct {
	ID          string `json:"id,omitempty"`
	FullName    string `json:"fullName"`
	Phone       string `json:"phone"`
	AddressLine string `json:"address"`
	City        string `json:"city"`
	District    string `json:"district,omitempty"`
	PostalCode  string `json:"postalCode,omitempty"`
	Country     string `json:"country"`
}

// OrderItem is a single line of an order.
type OrderItem struct {
	ID          string          `json:"id,omitempty"`
	OrderID     string          `json:"orderId,omitempty"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Volume      string          `json:"volume,omitempty"`
}

// LineTotal returns price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a customer order, either placed by a registered user or a guest.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId,omitempty"`
	GuestEmail      string          `json:"guestEmail,omitempty"`
	GuestName       string          `json:"guestName,omitempty"`
	GuestPhone      string          `json:"guestPhone,omitempty"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency"`
	TransactionID   string          `json:"transactionId,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	ShippingAddress Address         `json:"shippingAddress"`
	BillingAddress  Address         `json:"billingAddress"`
	Items           []OrderItem     `json:"orderItems"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// CustomerName returns the best known name for the buyer.
func (o *Order) CustomerName() string {
	if o.GuestName != "" {
		return o.GuestName
	}
	return o.ShippingAddress.FullName
}

// CustomerPhone returns the best known phone number for the buyer.
func (o *Order) CustomerPhone() string {
	if o.GuestPhone != "" {
		return o.GuestPhone
	}
	return o.ShippingAddress.Phone
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status        *OrderStatus
	PaymentStatus *PaymentStatus
	GuestEmail    string
	Limit         int
	Offset        int
}

// GuestOrderRequest is the checkout payload of an unauthenticated customer.
type GuestOrderRequest struct {
	Email           string      `json:"email"`
	Name            string      `json:"name"`
	Phone           string      `json:"phone"`
	ShippingAddress Address     `json:"shippingAddress"`
	BillingAddress  *Address    `json:"billingAddress,omitempty"`
	Items           []OrderItem `json:"items"`
	Currency        string      `json:"currency"`
	Notes           string      `json:"notes"`
}

// UpdateOrderStatusRequest is an admin status change.
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
	Notes  string      `json:"notes"`
}
