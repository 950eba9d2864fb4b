// Package mailer sends reminder emails.
package mailer

import "context"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message and reports per-message
// success/failure. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
