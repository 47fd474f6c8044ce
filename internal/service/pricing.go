package service

import (
	"github.com/shopspring/decimal"

	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// DefaultCurrency is used when a request names none.
const DefaultCurrency = "AZN"

// RoundMoney rounds to minor units.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CalculateOrderTotal is the sum of price times quantity over all items.
func CalculateOrderTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return RoundMoney(total)
}
