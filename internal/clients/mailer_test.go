package clients

import (
	"context"
	"net"
	"net/smtp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

func TestSMTPMailer_SendOrderConfirmation(t *testing.T) {
	cfg := config.SMTPConfig{Host: "smtp.example", Port: 587, User: "u", Password: "p", FromAddr: "shop@example.com", FromName: "Shop"}
	mailer := NewSMTPMailer(cfg, "https://shop.example/", logging.NewNopLogger())

	var gotAddr string
	var gotTo []string
	var gotMsg string
	mailer.send = func(_ context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	order := &models.Order{
		ID:          "o1",
		OrderNumber: "ORD-20260101-ABCDEF",
		GuestEmail:  "guest@example.com",
		GuestName:   "Aysel",
		Currency:    "AZN",
		TotalAmount: decimal.RequireFromString("179.80"),
		Items: []models.OrderItem{
			{ProductID: "p1", ProductName: "Rose Noir", Quantity: 2, Price: decimal.RequireFromString("89.90")},
		},
	}

	require.NoError(t, mailer.SendOrderConfirmation(context.Background(), order))
	assert.Equal(t, "smtp.example:587", gotAddr)
	assert.Equal(t, []string{"guest@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "ORD-20260101-ABCDEF")
	assert.Contains(t, gotMsg, "Rose Noir x2: 179.80 AZN")
	assert.Contains(t, gotMsg, "https://shop.example/orders/o1")
}

func TestSMTPMailer_NotConfigured(t *testing.T) {
	mailer := NewSMTPMailer(config.SMTPConfig{}, "", logging.NewNopLogger())
	err := mailer.SendOrderConfirmation(context.Background(), &models.Order{GuestEmail: "g@example.com"})
	assert.Error(t, err)
}

func TestSendMail_HonoursContextDeadline(t *testing.T) {
	// The listener accepts but never sends the SMTP greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepted := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- conn
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	err = sendMail(ctx, ln.Addr().String(), nil, "shop@example.com", []string{"guest@example.com"}, []byte("hi"))

	assert.Error(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)
}
