package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

// defaultSMTPTimeout bounds a send when the context carries no deadline.
const defaultSMTPTimeout = 30 * time.Second

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends order emails through an SMTP relay.
type SMTPMailer struct {
	cfg      config.SMTPConfig
	storeURL string
	send     sendFunc
	logger   *logging.LoggerV2
}

// NewSMTPMailer creates a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig, storeURL string, logger *logging.LoggerV2) *SMTPMailer {
	return &SMTPMailer{
		cfg:      cfg,
		storeURL: strings.TrimRight(storeURL, "/"),
		send:     sendMail,
		logger:   logger,
	}
}

// SendOrderConfirmation emails the order summary to the guest.
func (m *SMTPMailer) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if !m.cfg.Enabled() {
		return errors.New("smtp is not configured")
	}
	if order.GuestEmail == "" {
		return errors.NewValidationError("email", "order has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Sifarişiniz qəbul edildi: %s", order.OrderNumber)
	msg := m.compose(order.GuestEmail, subject, confirmationBody(order, m.storeURL))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	addr := m.cfg.Host + ":" + strconv.Itoa(m.cfg.Port)
	if err := m.send(ctx, addr, auth, m.cfg.FromAddr, []string{order.GuestEmail}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Order confirmation sent", logging.Fields{
		"order_id": order.ID,
		"to":       order.GuestEmail,
	})
	return nil
}

// sendMail is smtp.SendMail with the whole exchange bounded by ctx.
func sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMTPTimeout)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (m *SMTPMailer) compose(to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n"+
		"%s",
		m.cfg.FromName, m.cfg.FromAddr, to, subject, body))
}

func confirmationBody(order *models.Order, storeURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hörmətli %s,\n\n", order.CustomerName())
	fmt.Fprintf(&b, "Sifarişiniz qəbul edildi. Sifariş nömrəsi: %s\n\n", order.OrderNumber)
	for _, it := range order.Items {
		name := it.ProductName
		if name == "" {
			name = it.ProductID
		}
		fmt.Fprintf(&b, "- %s x%d: %s %s\n", name, it.Quantity, it.LineTotal().StringFixed(2), order.Currency)
	}
	fmt.Fprintf(&b, "\nCəmi: %s %s\n", order.TotalAmount.StringFixed(2), order.Currency)
	a := order.ShippingAddress
	fmt.Fprintf(&b, "Çatdırılma ünvanı: %s, %s\n", a.AddressLine, a.City)
	if storeURL != "" {
		fmt.Fprintf(&b, "\nSifarişinizi izləyin: %s/orders/%s\n", storeURL, order.ID)
	}
	return b.String()
}
