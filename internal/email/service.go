package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Sender delivers transactional mail
type Sender interface {
	SendPaymentConfirmation(ctx context.Context, to string, receipt Receipt) error
}

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	merchant string
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(host, port, from, merchant string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		merchant: merchant,
		sendMail: smtp.SendMail,
	}
}

// SendPaymentConfirmation tells the buyer their payment was verified
func (s *Service) SendPaymentConfirmation(ctx context.Context, to string, receipt Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if receipt.Merchant == "" {
		receipt.Merchant = s.merchant
	}
	subject := fmt.Sprintf("%s: payment received for order %s", receipt.Merchant, shortRef(receipt.OrderID))
	body, err := BuildPaymentConfirmationBody(receipt)
	if err != nil {
		return err
	}
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return s.sendMail(addr, nil, s.from, []string{to}, []byte(msg))
}

func shortRef(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
