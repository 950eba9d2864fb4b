package mailer

import (
	"context"
	"sync"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

const sendTimeout = 10 * time.Second

// Mailgun sends messages through the Mailgun API. The sending domain
// may be swapped at runtime via Apply; the API key comes from the
// environment and lives for the whole process.
type Mailgun struct {
	mu      sync.Mutex
	domain  string
	apiKey  string
	apiBase string // overridden in tests
}

func NewMailgun(domain, apiKey string) *Mailgun {
	return &Mailgun{domain: domain, apiKey: apiKey}
}

// Apply swaps the sending domain for subsequent sends.
func (m *Mailgun) Apply(domain string) {
	m.mu.Lock()
	m.domain = domain
	m.mu.Unlock()
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	domain, key, base := m.domain, m.apiKey, m.apiBase
	m.mu.Unlock()

	client := mg.NewMailgun(domain, key)
	if base != "" {
		client.SetAPIBase(base)
	}
	mm := client.NewMessage(msg.From, msg.Subject, msg.Body, msg.To)
	c, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	_, _, err := client.Send(c, mm)
	return err
}
