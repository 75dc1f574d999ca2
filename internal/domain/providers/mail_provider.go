package providers

import "context"

// MailMessage is one outbound email
type MailMessage struct {
	To      string
	Subject string
	HTML    string
}

// MailReceipt is the provider's acknowledgement of an accepted message
type MailReceipt struct {
	MessageID string
}

// MailProvider defines the interface for sending transactional email
type MailProvider interface {
	// Send delivers a single message and returns the provider receipt
	Send(ctx context.Context, msg MailMessage) (*MailReceipt, error)
}
