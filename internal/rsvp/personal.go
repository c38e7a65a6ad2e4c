package rsvp

import "fmt"

// NotificationsState describes the reminders stored in the current user's
// personal part of an event.
type NotificationsState int

const (
	// NotificationsNull means the event uses the calendar defaults.
	NotificationsNull NotificationsState = iota
	NotificationsEmpty
	NotificationsNonEmpty
)

// NotificationsStates lists every notifications state.
var NotificationsStates = []NotificationsState{NotificationsNull, NotificationsEmpty, NotificationsNonEmpty}

func (s NotificationsState) String() string {
	switch s {
	case NotificationsNull:
		return "null"
	case NotificationsEmpty:
		return "empty"
	case NotificationsNonEmpty:
		return "non_empty"
	default:
		return fmt.Sprintf("NotificationsState(%d)", int(s))
	}
}

// NotificationsStateOf derives the state from the stored reminders; nil
// means none were ever stored.
func NotificationsStateOf(notifications []string) NotificationsState {
	switch {
	case notifications == nil:
		return NotificationsNull
	case len(notifications) == 0:
		return NotificationsEmpty
	default:
		return NotificationsNonEmpty
	}
}

// PersonalPartAction is the change to apply to the personal part after an
// answer.
type PersonalPartAction int

const (
	NoUpdate PersonalPartAction = iota
	UpdateWithDefaultNotifications
	UpdateWithEmptyNotifications
)

func (a PersonalPartAction) String() string {
	switch a {
	case NoUpdate:
		return "no_update"
	case UpdateWithDefaultNotifications:
		return "update_with_default_notifications"
	case UpdateWithEmptyNotifications:
		return "update_with_empty_notifications"
	default:
		return fmt.Sprintf("PersonalPartAction(%d)", int(a))
	}
}

// PersonalPartActionFor decides how reminders change when the answer moves
// from one value to another. Declining strips reminders; accepting after
// declining or not answering restores the defaults unless reminders are
// already set.
func PersonalPartActionFor(state NotificationsState, from, to Answer) PersonalPartAction {
	if to == Unanswered || from == to {
		return NoUpdate
	}

	switch to {
	case No:
		switch state {
		case NotificationsNull, NotificationsNonEmpty:
			return UpdateWithEmptyNotifications
		case NotificationsEmpty:
			return NoUpdate
		}

	case Yes, Maybe:
		switch from {
		case Unanswered, No:
			switch state {
			case NotificationsNull, NotificationsEmpty:
				return UpdateWithDefaultNotifications
			case NotificationsNonEmpty:
				return NoUpdate
			}

		case Yes, Maybe:
			return NoUpdate
		}
	}

	panic(fmt.Sprintf("unhandled personal part transition %v: %v -> %v", state, from, to))
}
