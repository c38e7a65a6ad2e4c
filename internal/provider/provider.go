// Package provider defines the interface for the backends that deliver
// locally composed mail, such as RSVP replies to an event organizer.
package provider

import (
	"context"

	"github.com/shineum/sealpost/internal/email"
)

// Provider delivers a fully composed message in a single call.
type Provider interface {
	// Send delivers msg. A returned error means the message was not sent.
	Send(ctx context.Context, msg *email.Email) error

	// Name returns the human-readable name of this provider.
	Name() string
}
