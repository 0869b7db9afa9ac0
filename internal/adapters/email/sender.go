package email

import (
	"context"
	"time"
)

// SendRequest contains the data needed to send an email via an external provider.
type SendRequest struct {
	To      []string
	From    string // defaults to the sender's configured address
	Subject string
	HTML    string
	Text    string
	ReplyTo string
	Tags    map[string]string // provider-side labels, e.g. category=donation_receipt
}

// SendResult contains the response from the email provider.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}
