package rsvp

import (
	"log/slog"

	"github.com/bradenaw/juniper/xslices"
)

// PermissionValidator checks whether the current user may answer an event.
type PermissionValidator struct {
	addresses []Address
}

// NewPermissionValidator returns a validator for a user owning addresses.
func NewPermissionValidator(addresses []Address) *PermissionValidator {
	return &PermissionValidator{addresses: addresses}
}

// CanAnswer returns the answering context when every precondition holds:
//   - the calendar is personal and writable and its address is enabled
//   - the event is not cancelled
//   - the event has an organizer who is not the current user
//   - exactly one active attendee uses one of the current user's addresses
//
// A false result is final; no reason is given.
func (v *PermissionValidator) CanAnswer(event Event, info CalendarInfo) (ValidatedContext, bool) {
	if info.AddressDisabled || info.Type != CalendarPersonal || !info.Writable {
		return ValidatedContext{}, false
	}

	if event.Status == StatusCancelled {
		return ValidatedContext{}, false
	}

	if event.Organizer == nil || v.ownsAddress(event.Organizer.Email) {
		return ValidatedContext{}, false
	}

	participants := v.invitedParticipants(event)
	if len(participants) != 1 {
		slog.Debug("event not answerable", "uid", event.UID, "participants", len(participants))
		return ValidatedContext{}, false
	}

	return ValidatedContext{organizer: *event.Organizer, participant: participants[0]}, true
}

// CurrentAnswer returns the current user's answer to the event. It is
// Unanswered when the user is not an active attendee.
func (v *PermissionValidator) CurrentAnswer(event Event) Answer {
	participants := v.invitedParticipants(event)
	if len(participants) == 0 {
		return Unanswered
	}

	return participants[0].Attendee.Answer
}

func (v *PermissionValidator) invitedParticipants(event Event) []Participant {
	var participants []Participant

	for _, attendee := range event.Attendees {
		if attendee.Removed {
			continue
		}

		idx := xslices.IndexFunc(v.addresses, func(addr Address) bool { return sameAddress(addr.Email, attendee.Email) })
		if idx < 0 {
			continue
		}

		participants = append(participants, Participant{Address: v.addresses[idx], Attendee: attendee})
	}

	return participants
}

func (v *PermissionValidator) ownsAddress(email string) bool {
	return xslices.Any(v.addresses, func(addr Address) bool { return sameAddress(addr.Email, email) })
}
