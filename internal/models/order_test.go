package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrder_CustomerFallsBackToShippingAddress(t *testing.T) {
	order := &Order{
		ShippingAddress: Address{FullName: "Leyla Mammadova", Phone: "+994501112233"},
	}
	assert.Equal(t, "Leyla Mammadova", order.CustomerName())
	assert.Equal(t, "+994501112233", order.CustomerPhone())

	order.GuestName = "Leyla M."
	assert.Equal(t, "Leyla M.", order.CustomerName())
}

func TestAuthToken_ValidAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := &AuthToken{Value: "abc", ExpiresAt: now.Add(time.Minute)}

	assert.True(t, token.ValidAt(now))
	assert.False(t, token.ValidAt(now.Add(time.Minute)), "expiry instant is already invalid")
	assert.False(t, (*AuthToken)(nil).ValidAt(now))
	assert.False(t, (&AuthToken{ExpiresAt: now.Add(time.Hour)}).ValidAt(now))
}

func TestProduct_EffectivePrice(t *testing.T) {
	sale := decimal.RequireFromString("59.99")
	p := Product{Price: decimal.RequireFromString("79.99")}
	assert.True(t, p.EffectivePrice().Equal(p.Price))

	p.SalePrice = &sale
	assert.True(t, p.EffectivePrice().Equal(sale))
}
