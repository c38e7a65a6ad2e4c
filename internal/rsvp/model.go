// Package rsvp decides whether and how the current user may answer a
// calendar invitation: answer permission, event classification, stale
// single edit answers and the personal part update that follows an answer.
package rsvp

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Answer is an attendee's reply to an invitation.
type Answer int

const (
	Unanswered Answer = iota
	Yes
	No
	Maybe
)

// Answers lists every answer.
var Answers = []Answer{Unanswered, Yes, No, Maybe}

func (a Answer) String() string {
	switch a {
	case Unanswered:
		return "unanswered"
	case Yes:
		return "yes"
	case No:
		return "no"
	case Maybe:
		return "maybe"
	default:
		return fmt.Sprintf("Answer(%d)", int(a))
	}
}

// ParseAnswer is the inverse of Answer.String.
func ParseAnswer(s string) (Answer, error) {
	for _, a := range Answers {
		if strings.EqualFold(a.String(), s) {
			return a, nil
		}
	}

	return 0, fmt.Errorf("unknown answer %q", s)
}

// PartStat returns the iCalendar PARTSTAT value of the answer.
func (a Answer) PartStat() string {
	switch a {
	case Yes:
		return "ACCEPTED"
	case No:
		return "DECLINED"
	case Maybe:
		return "TENTATIVE"
	default:
		return "NEEDS-ACTION"
	}
}

// ParsePartStat maps a PARTSTAT value onto an Answer. Values that are not a
// reply, such as DELEGATED, count as unanswered.
func ParsePartStat(s string) Answer {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACCEPTED":
		return Yes
	case "DECLINED":
		return No
	case "TENTATIVE":
		return Maybe
	default:
		return Unanswered
	}
}

// Attendee is an invited participant of an event.
type Attendee struct {
	Email  string
	Name   string
	Role   string
	Answer Answer

	// Token identifies the attendee on the server.
	Token string

	// Removed is set when the organizer removed the attendee.
	Removed bool
}

// Organizer is the owner of an event.
type Organizer struct {
	Email string
	Name  string
}

// Address is one of the current user's email addresses.
type Address struct {
	ID    string
	Email string
	Order int
	Send  bool
}

// Status is the iCalendar STATUS of an event.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCancelled Status = "CANCELLED"
)

// Event is a decrypted calendar event. Events are values: use the With
// methods to derive a modified copy.
type Event struct {
	UID        string
	APIEventID string
	CalendarID string

	Summary     string
	Description string
	Location    string

	Start    time.Time
	End      time.Time
	TimeZone string
	AllDay   bool

	// RecurrenceID is set on single edits of a recurring series.
	RecurrenceID *time.Time
	RRule        string
	Sequence     int
	Status       Status

	Organizer *Organizer
	Attendees []Attendee

	AddressKeyPacket string
	SharedKeyPacket  string

	// Encrypted is set when the event payload could not be decrypted.
	Encrypted bool
}

// WithAttendees returns a copy of the event with the given attendees.
func (e Event) WithAttendees(attendees []Attendee) Event {
	e.Attendees = slices.Clone(attendees)
	return e
}

// WithAnswer returns a copy of the event where every active attendee using
// address has the given answer.
func (e Event) WithAnswer(address string, answer Answer) Event {
	attendees := slices.Clone(e.Attendees)

	for i := range attendees {
		if !attendees[i].Removed && sameAddress(attendees[i].Email, address) {
			attendees[i].Answer = answer
		}
	}

	e.Attendees = attendees

	return e
}

// IsSingleEdit reports whether the event overrides one occurrence of a
// recurring series.
func (e Event) IsSingleEdit() bool {
	return e.RecurrenceID != nil
}

// Recurring reports whether the event repeats.
func (e Event) Recurring() bool {
	return e.RRule != ""
}

// CalendarType is the kind of calendar an event lives in.
type CalendarType int

const (
	CalendarPersonal CalendarType = iota
	CalendarShared
	CalendarSubscribed
	CalendarHolidays
)

// CalendarInfo describes the calendar membership of the current user.
type CalendarInfo struct {
	ID       string
	MemberID string
	Type     CalendarType
	Writable bool

	// AddressDisabled is set when the member's address is disabled.
	AddressDisabled bool
}

// Participant is the current user's address paired with its attendee
// record.
type Participant struct {
	Address  Address
	Attendee Attendee
}

// ValidatedContext proves that the current user may answer an event. It is
// only produced by PermissionValidator.CanAnswer.
type ValidatedContext struct {
	organizer   Organizer
	participant Participant
}

// Organizer returns the organizer of the validated event.
func (c ValidatedContext) Organizer() Organizer {
	return c.organizer
}

// InvitedParticipant returns the current user's participant record.
func (c ValidatedContext) InvitedParticipant() Participant {
	return c.participant
}

// EventToAnswer pairs a single edit with its own answering context.
type EventToAnswer struct {
	Event     Event
	Validated ValidatedContext
}

// SingleEditsState lists the single edits whose answers go stale when the
// series is answered.
type SingleEditsState struct {
	ToReset []EventToAnswer
}

// NoSingleEditsToReset reports whether nothing needs resetting.
func (s SingleEditsState) NoSingleEditsToReset() bool {
	return len(s.ToReset) == 0
}

func canonicalAddress(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sameAddress(a, b string) bool {
	return canonicalAddress(a) == canonicalAddress(b)
}
