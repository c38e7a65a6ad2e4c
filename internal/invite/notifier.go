package invite

import (
	"context"
	"fmt"

	"github.com/emersion/go-message/mail"

	"github.com/shineum/sealpost/internal/rsvp"
)

// OrganizerNotifier tells the organizer of an event how the current user
// answered.
type OrganizerNotifier struct {
	ics    *ICSBuilder
	sender *EmailSender
}

// NewOrganizerNotifier returns a notifier rendering replies with ics and mailing them with sender.
func NewOrganizerNotifier(ics *ICSBuilder, sender *EmailSender) *OrganizerNotifier {
	return &OrganizerNotifier{ics: ics, sender: sender}
}

// Notify builds the REPLY, resolves the organizer's address and sends the
// email. The first failing stage aborts the rest, so nothing is sent
// unless the whole message could be composed.
func (n *OrganizerNotifier) Notify(ctx context.Context, validated rsvp.ValidatedContext, event rsvp.Event, answer rsvp.Answer) error {
	participant := validated.InvitedParticipant()
	organizer := validated.Organizer()

	ics, err := n.ics.BuildReply(ReplyParams{
		Event:     event,
		Organizer: organizer,
		Attendee:  participant.Attendee,
		Answer:    answer,
	})
	if err != nil {
		return fmt.Errorf("failed to build reply: %w", err)
	}

	to, err := resolveRecipient(organizer)
	if err != nil {
		return err
	}

	return n.sender.Send(ctx, Invitation{
		From:    participant.Address.Email,
		To:      to,
		Subject: replySubject(answer, event.Summary),
		Body:    replyBody(participant.Address.Email, answer, event.Summary),
		ICS:     ics,
	})
}

func resolveRecipient(organizer rsvp.Organizer) (string, error) {
	addr, err := mail.ParseAddress(organizer.Email)
	if err != nil {
		return "", fmt.Errorf("%w: invalid address %q: %v", ErrMissingOrganizer, organizer.Email, err)
	}

	return addr.Address, nil
}

func replySubject(answer rsvp.Answer, summary string) string {
	if summary == "" {
		summary = "(no title)"
	}

	switch answer {
	case rsvp.Yes:
		return "Accepted: " + summary
	case rsvp.No:
		return "Declined: " + summary
	case rsvp.Maybe:
		return "Tentatively accepted: " + summary
	default:
		return "Invitation: " + summary
	}
}

func replyBody(from string, answer rsvp.Answer, summary string) string {
	if summary == "" {
		summary = "(no title)"
	}

	switch answer {
	case rsvp.Yes:
		return fmt.Sprintf("%s has accepted your invitation to %s", from, summary)
	case rsvp.No:
		return fmt.Sprintf("%s has declined your invitation to %s", from, summary)
	case rsvp.Maybe:
		return fmt.Sprintf("%s has tentatively accepted your invitation to %s", from, summary)
	default:
		return fmt.Sprintf("%s has not answered your invitation to %s", from, summary)
	}
}
