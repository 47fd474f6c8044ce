package service

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// InstallmentMessage is returned for an unsupported installment period.
const InstallmentMessage = "Invalid installment period."

var allowedInstallments = map[int]bool{2: true, 3: true, 6: true, 9: true, 12: true}

// ValidInstallment reports whether months is an offered installment period.
// Zero means a one-off payment.
func ValidInstallment(months int) bool {
	return months == 0 || allowedInstallments[months]
}

// ValidatePaymentRequest validates a payment session request.
func ValidatePaymentRequest(req *models.CreatePaymentRequest) error {
	if strings.TrimSpace(req.OrderID) == "" {
		return errors.NewValidationError("orderId", "order ID is required")
	}

	if !ValidInstallment(req.Installment) {
		return errors.NewValidationError("installment", InstallmentMessage)
	}

	if req.Retry {
		return nil
	}

	if !req.Amount.IsPositive() {
		return errors.NewValidationError("amount", "amount must be positive")
	}

	return nil
}

// NormalizeEmail extracts the bare mailbox from raw, which may carry a
// display name, and lowercases it.
func NormalizeEmail(raw string) (string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

// ValidateGuestOrderRequest validates a guest checkout.
func ValidateGuestOrderRequest(req *models.GuestOrderRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return errors.NewValidationError("email", "email is required")
	}
	if _, ok := NormalizeEmail(req.Email); !ok {
		return errors.NewValidationError("email", "email is invalid")
	}

	if len(req.Items) == 0 {
		return errors.NewValidationError("items", "at least one item is required")
	}

	for i := range req.Items {
		if err := validateOrderItem(&req.Items[i], i); err != nil {
			return err
		}
	}

	if err := validateAddress(&req.ShippingAddress, "shippingAddress"); err != nil {
		return err
	}

	if req.BillingAddress != nil {
		if err := validateAddress(req.BillingAddress, "billingAddress"); err != nil {
			return err
		}
	}

	return nil
}

func validateOrderItem(item *models.OrderItem, index int) error {
	field := fmt.Sprintf("items[%d]", index)

	if item.ProductID == "" {
		return errors.NewValidationError(field, "product ID is required for item")
	}

	if item.Quantity <= 0 {
		return errors.NewValidationError(field, "quantity must be positive")
	}

	if item.Price.IsNegative() {
		return errors.NewValidationError(field, "price cannot be negative")
	}

	return nil
}

func validateAddress(addr *models.Address, field string) error {
	if strings.TrimSpace(addr.FullName) == "" {
		return errors.NewValidationError(field, "full name is required")
	}

	if strings.TrimSpace(addr.AddressLine) == "" {
		return errors.NewValidationError(field, "address is required")
	}

	if strings.TrimSpace(addr.City) == "" {
		return errors.NewValidationError(field, "city is required")
	}

	return nil
}

// ValidateUpdateOrderStatusRequest validates a status update request.
func ValidateUpdateOrderStatusRequest(req *models.UpdateOrderStatusRequest) error {
	if req.Status == "" {
		return errors.NewValidationError("status", "status is required")
	}

	if !req.Status.Valid() {
		return errors.NewValidationError("status", "invalid order status")
	}

	return nil
}

// ValidateOrderListFilter validates a list filter.
func ValidateOrderListFilter(filter *models.OrderListFilter) error {
	if filter.Limit < 0 {
		return errors.NewValidationError("limit", "limit cannot be negative")
	}

	if filter.Offset < 0 {
		return errors.NewValidationError("offset", "offset cannot be negative")
	}

	if filter.Status != nil && !filter.Status.Valid() {
		return errors.NewValidationError("status", "invalid order status")
	}

	if filter.PaymentStatus != nil && !filter.PaymentStatus.Valid() {
		return errors.NewValidationError("paymentStatus", "invalid payment status")
	}

	if filter.Limit == 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	return nil
}

// SanitizeOrderNotes escapes markup and caps the length of customer notes.
func SanitizeOrderNotes(notes string) string {
	notes = strings.ReplaceAll(notes, "<", "&lt;")
	notes = strings.ReplaceAll(notes, ">", "&gt;")
	notes = strings.ReplaceAll(notes, "\"", "&quot;")
	notes = strings.TrimSpace(notes)

	if r := []rune(notes); len(r) > 1000 {
		notes = string(r[:1000])
	}

	return notes
}
