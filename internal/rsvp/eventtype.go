package rsvp

import (
	"fmt"

	"github.com/bradenaw/juniper/xslices"
)

// EventKind classifies a calendar event.
type EventKind int

const (
	KindNonRecurring EventKind = iota
	KindRecurring
	KindSingleEdit
	KindOrphanSingleEdit
	KindEncrypted
)

// EventKinds lists every event kind.
var EventKinds = []EventKind{KindNonRecurring, KindRecurring, KindSingleEdit, KindOrphanSingleEdit, KindEncrypted}

func (k EventKind) String() string {
	switch k {
	case KindNonRecurring:
		return "non_recurring"
	case KindRecurring:
		return "recurring"
	case KindSingleEdit:
		return "single_edit"
	case KindOrphanSingleEdit:
		return "orphan_single_edit"
	case KindEncrypted:
		return "encrypted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// CalendarEvent is an event together with its place in a series.
type CalendarEvent struct {
	Kind  EventKind
	Event Event

	// SingleEdits holds the edited occurrences of a recurring series.
	SingleEdits []Event
}

// ClassifyEvent places target among the events the server returned for its
// UID. A single edit is an orphan when the series itself is missing.
func ClassifyEvent(target Event, events []Event) CalendarEvent {
	switch {
	case target.Encrypted:
		return CalendarEvent{Kind: KindEncrypted, Event: target}

	case target.IsSingleEdit():
		if xslices.Any(events, func(e Event) bool { return !e.IsSingleEdit() }) {
			return CalendarEvent{Kind: KindSingleEdit, Event: target}
		}

		return CalendarEvent{Kind: KindOrphanSingleEdit, Event: target}

	case target.Recurring():
		return CalendarEvent{
			Kind:        KindRecurring,
			Event:       target,
			SingleEdits: xslices.Filter(events, func(e Event) bool { return e.IsSingleEdit() }),
		}

	default:
		return CalendarEvent{Kind: KindNonRecurring, Event: target}
	}
}

// InvitationKind is the shape of an answer.
type InvitationKind int

const (
	InvitationNonRecurring InvitationKind = iota
	InvitationRecurring
	InvitationSingleEdit
	InvitationOrphanSingleEdit
)

func (k InvitationKind) String() string {
	switch k {
	case InvitationNonRecurring:
		return "non_recurring"
	case InvitationRecurring:
		return "recurring"
	case InvitationSingleEdit:
		return "single_edit"
	case InvitationOrphanSingleEdit:
		return "orphan_single_edit"
	default:
		return fmt.Sprintf("InvitationKind(%d)", int(k))
	}
}

// InvitationEventType is the result of EventTypeCalculator.EventType.
// SingleEdits is only set for InvitationRecurring.
type InvitationEventType struct {
	Kind        InvitationKind
	SingleEdits SingleEditsState
}

// EventTypeCalculator classifies an answer and computes the single edits
// it invalidates.
type EventTypeCalculator struct {
	resets *ResetRepository
}

// NewEventTypeCalculator returns a calculator resetting single edits through resets.
func NewEventTypeCalculator(resets *ResetRepository) *EventTypeCalculator {
	return &EventTypeCalculator{resets: resets}
}

// EventType returns false for events that could not be decrypted; the
// caller must not answer them.
func (c *EventTypeCalculator) EventType(event CalendarEvent, answer Answer, info CalendarInfo) (InvitationEventType, bool) {
	switch event.Kind {
	case KindNonRecurring:
		return InvitationEventType{Kind: InvitationNonRecurring}, true

	case KindSingleEdit:
		return InvitationEventType{Kind: InvitationSingleEdit}, true

	case KindOrphanSingleEdit:
		return InvitationEventType{Kind: InvitationOrphanSingleEdit}, true

	case KindRecurring:
		return InvitationEventType{
			Kind:        InvitationRecurring,
			SingleEdits: SingleEditsState{ToReset: c.resets.EventsToReset(event.SingleEdits, answer, info)},
		}, true

	case KindEncrypted:
		return InvitationEventType{}, false

	default:
		panic(fmt.Sprintf("unhandled event kind %v", event.Kind))
	}
}

// ResetRepository finds the single edits whose answer goes stale.
type ResetRepository struct {
	validator *PermissionValidator
}

// NewResetRepository returns a repository checking permissions with validator.
func NewResetRepository(validator *PermissionValidator) *ResetRepository {
	return &ResetRepository{validator: validator}
}

// EventsToReset keeps the single edits the current user already answered
// with something other than answer, and that the user may still answer.
func (r *ResetRepository) EventsToReset(singleEdits []Event, answer Answer, info CalendarInfo) []EventToAnswer {
	answered := xslices.Filter(singleEdits, func(e Event) bool {
		return r.validator.CurrentAnswer(e) != Unanswered
	})

	stale := xslices.Filter(answered, func(e Event) bool {
		return r.validator.CurrentAnswer(e) != answer
	})

	var out []EventToAnswer

	for _, event := range stale {
		validated, ok := r.validator.CanAnswer(event, info)
		if !ok {
			continue
		}

		out = append(out, EventToAnswer{Event: event, Validated: validated})
	}

	return out
}
