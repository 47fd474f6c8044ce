package service

import (
	"context"

	"github.com/hemidirasim/sahibparfum-sub001/internal/clients"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// TokenSource issues gateway tokens.
type TokenSource interface {
	Login(ctx context.Context) (*models.AuthToken, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthToken, error)
}

// Gateway is the payment gateway surface used by the services.
type Gateway interface {
	TokenSource
	CreateSession(ctx context.Context, token string, req *models.PaymentRequest) (*clients.SessionResult, error)
	OrderStatus(ctx context.Context, token, orderID string) (*clients.StatusResult, error)
	TransactionStatus(ctx context.Context, token, transactionID string) (*clients.StatusResult, error)
}

// Mailer sends customer emails.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

var (
	_ Gateway = (*clients.GatewayClient)(nil)
	_ Mailer  = (*clients.SMTPMailer)(nil)
)
