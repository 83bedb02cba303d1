package email

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Sender delivers billing notifications. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendReceipt(ctx context.Context, patientName, amount, description string) error
}

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	ReceiptTo string
}

// SMTPSender emails payment receipts to the configured billing address.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	to     string
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		to:     cfg.ReceiptTo,
	}
}

func (s *SMTPSender) SendReceipt(ctx context.Context, patientName, amount, description string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", fmt.Sprintf("Payment received: %s", patientName))
	m.SetBody("text/plain", fmt.Sprintf(
		"Payment of $%s was verified for %s.\n\n%s\n", amount, patientName, description))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	return nil
}
