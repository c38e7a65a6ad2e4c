package invite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/sealpost/internal/api"
	"github.com/shineum/sealpost/internal/email"
	"github.com/shineum/sealpost/internal/provider"
)

// Invitation is a reply ready to be mailed.
type Invitation struct {
	From    string
	To      string
	Subject string
	Body    string
	ICS     string
}

// EmailSender mails invitation replies through a provider.
type EmailSender struct {
	provider provider.Provider
	domain   string
}

// NewEmailSender returns a sender whose Message-IDs use domain.
func NewEmailSender(p provider.Provider, domain string) *EmailSender {
	return &EmailSender{provider: p, domain: domain}
}

// Send composes the whole message in memory and hands it to the provider
// in a single call. A provider failure is returned as *api.RequestError.
func (s *EmailSender) Send(ctx context.Context, inv Invitation) error {
	msg := s.compose(inv)

	if err := s.provider.Send(ctx, msg); err != nil {
		return &api.RequestError{Op: "send reply via " + s.provider.Name(), Err: err}
	}

	slog.Info("sent invitation reply", "provider", s.provider.Name(), "message_id", msg.MessageID)

	return nil
}

func (s *EmailSender) compose(inv Invitation) *email.Email {
	return &email.Email{
		From:      inv.From,
		To:        []string{inv.To},
		Subject:   inv.Subject,
		TextBody:  inv.Body,
		MessageID: fmt.Sprintf("<%s@%s>", uuid.NewString(), s.domain),
		Attachments: []email.Attachment{{
			Filename:          "invite.ics",
			ContentType:       "text/calendar",
			ContentTypeParams: map[string]string{"method": "REPLY", "charset": "utf-8"},
			Disposition:       email.DispositionAttachment,
			Content:           []byte(inv.ICS),
		}},
	}
}
