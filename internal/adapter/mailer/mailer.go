// Package mailer implements receipt delivery for completed donations.
package mailer

import (
	"context"
	"fmt"

	"ngoportal/internal/domain"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGrid sends donation receipts through the SendGrid API.
type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGrid creates a SendGrid mailer with the given API key and
// sender address.
func NewSendGrid(apiKey, fromName, fromAddr string) *SendGrid {
	return &SendGrid{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromAddr),
	}
}

// SendReceipt sends the donation receipt email.
func (m *SendGrid) SendReceipt(ctx context.Context, d *domain.Donation) error {
	to := mail.NewEmail(d.DonorName, d.DonorEmail)
	subject := "Thank you for your donation"
	body := fmt.Sprintf(
		"Dear %s,\n\nWe received your donation of INR %.2f towards %s.\nTransaction reference: %s\n\nThank you for your support.",
		d.DonorName, float64(d.AmountPaise)/100, d.Cause, d.TransactionID,
	)
	msg := mail.NewSingleEmail(m.from, subject, to, body, "")

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}
	return nil
}

// Log is a mailer that only logs, for development and tests.
type Log struct {
	log *logrus.Logger
}

// NewLog creates a log-only mailer.
func NewLog(log *logrus.Logger) *Log {
	return &Log{log: log}
}

// SendReceipt logs the receipt instead of sending it.
func (m *Log) SendReceipt(ctx context.Context, d *domain.Donation) error {
	m.log.WithFields(logrus.Fields{
		"donor_email": d.DonorEmail,
		"txn_id":      d.TransactionID,
		"amount":      d.AmountPaise,
	}).Info("receipt (log mailer)")
	return nil
}
