package rsvp

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userAddresses = []Address{
	{ID: "addr-1", Email: "me@pm.me", Order: 1, Send: true},
	{ID: "addr-2", Email: "alias@pm.me", Order: 2, Send: true},
}

var personalCalendar = CalendarInfo{ID: "cal-1", MemberID: "member-1", Type: CalendarPersonal, Writable: true}

func newEvent(answer Answer) Event {
	return Event{
		UID:       "uid-1@example.com",
		Summary:   "Planning",
		Start:     time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
		Status:    StatusConfirmed,
		Organizer: &Organizer{Email: "boss@example.com", Name: "Boss"},
		Attendees: []Attendee{
			{Email: "someone@example.com", Answer: Yes},
			{Email: "Me@PM.me", Answer: answer, Token: "tok-1"},
		},
	}
}

func newSingleEdit(answer Answer, day int) Event {
	recurrenceID := time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC)

	event := newEvent(answer)
	event.RecurrenceID = &recurrenceID

	return event
}

func TestCanAnswer(t *testing.T) {
	validator := NewPermissionValidator(userAddresses)

	validated, ok := validator.CanAnswer(newEvent(Unanswered), personalCalendar)
	require.True(t, ok)
	assert.Equal(t, "boss@example.com", validated.Organizer().Email)
	assert.Equal(t, "addr-1", validated.InvitedParticipant().Address.ID)
	assert.Equal(t, "tok-1", validated.InvitedParticipant().Attendee.Token)
}

func TestCanAnswer_Denied(t *testing.T) {
	validator := NewPermissionValidator(userAddresses)

	tests := []struct {
		name  string
		event func(Event) Event
		info  func(CalendarInfo) CalendarInfo
	}{
		{
			name: "organizer is current user",
			event: func(e Event) Event {
				e.Organizer = &Organizer{Email: "ALIAS@pm.me"}
				return e
			},
		},
		{
			name: "cancelled",
			event: func(e Event) Event {
				e.Status = StatusCancelled
				return e
			},
		},
		{
			name: "no organizer",
			event: func(e Event) Event {
				e.Organizer = nil
				return e
			},
		},
		{
			name: "not invited",
			event: func(e Event) Event {
				return e.WithAttendees([]Attendee{{Email: "someone@example.com"}})
			},
		},
		{
			name: "removed attendee",
			event: func(e Event) Event {
				return e.WithAttendees([]Attendee{{Email: "me@pm.me", Removed: true}})
			},
		},
		{
			name: "invited twice",
			event: func(e Event) Event {
				return e.WithAttendees([]Attendee{{Email: "me@pm.me"}, {Email: "alias@pm.me"}})
			},
		},
		{
			name: "shared calendar",
			info: func(c CalendarInfo) CalendarInfo {
				c.Type = CalendarShared
				return c
			},
		},
		{
			name: "subscribed calendar",
			info: func(c CalendarInfo) CalendarInfo {
				c.Type = CalendarSubscribed
				return c
			},
		},
		{
			name: "read only",
			info: func(c CalendarInfo) CalendarInfo {
				c.Writable = false
				return c
			},
		},
		{
			name: "address disabled",
			info: func(c CalendarInfo) CalendarInfo {
				c.AddressDisabled = true
				return c
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, info := newEvent(Yes), personalCalendar

			if tt.event != nil {
				event = tt.event(event)
			}

			if tt.info != nil {
				info = tt.info(info)
			}

			_, ok := validator.CanAnswer(event, info)
			assert.False(t, ok)
		})
	}
}

func TestCanAnswer_OrganizerNeverAnswers(t *testing.T) {
	validator := NewPermissionValidator(userAddresses)

	for _, answer := range Answers {
		event := newEvent(answer)
		event.Organizer = &Organizer{Email: "me@pm.me"}

		_, ok := validator.CanAnswer(event, personalCalendar)
		assert.False(t, ok, answer.String())
	}
}

func TestClassifyEvent(t *testing.T) {
	master := newEvent(Unanswered)
	master.RRule = "FREQ=WEEKLY"

	edit := newSingleEdit(Yes, 11)

	encrypted := newEvent(Unanswered)
	encrypted.Encrypted = true

	tests := []struct {
		name   string
		target Event
		events []Event
		want   EventKind
		edits  int
	}{
		{name: "non recurring", target: newEvent(Unanswered), events: []Event{newEvent(Unanswered)}, want: KindNonRecurring},
		{name: "recurring", target: master, events: []Event{master, edit, newSingleEdit(No, 18)}, want: KindRecurring, edits: 2},
		{name: "single edit", target: edit, events: []Event{master, edit}, want: KindSingleEdit},
		{name: "orphan single edit", target: edit, events: []Event{edit}, want: KindOrphanSingleEdit},
		{name: "encrypted", target: encrypted, events: []Event{encrypted}, want: KindEncrypted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyEvent(tt.target, tt.events)
			assert.Equal(t, tt.want, got.Kind)
			assert.Len(t, got.SingleEdits, tt.edits)
		})
	}
}

func TestEventType_AllKinds(t *testing.T) {
	validator := NewPermissionValidator(userAddresses)
	calculator := NewEventTypeCalculator(NewResetRepository(validator))

	want := map[EventKind]struct {
		kind InvitationKind
		ok   bool
	}{
		KindNonRecurring:     {InvitationNonRecurring, true},
		KindRecurring:        {InvitationRecurring, true},
		KindSingleEdit:       {InvitationSingleEdit, true},
		KindOrphanSingleEdit: {InvitationOrphanSingleEdit, true},
		KindEncrypted:        {0, false},
	}

	require.Len(t, want, len(EventKinds))

	for _, kind := range EventKinds {
		t.Run(kind.String(), func(t *testing.T) {
			got, ok := calculator.EventType(CalendarEvent{Kind: kind, Event: newEvent(Unanswered)}, Yes, personalCalendar)
			assert.Equal(t, want[kind].ok, ok)

			if ok {
				assert.Equal(t, want[kind].kind, got.Kind)
				assert.True(t, got.SingleEdits.NoSingleEditsToReset())
			}
		})
	}
}

func TestEventType_RecurringResets(t *testing.T) {
	validator := NewPermissionValidator(userAddresses)
	calculator := NewEventTypeCalculator(NewResetRepository(validator))

	yes, no, unanswered := newSingleEdit(Yes, 11), newSingleEdit(No, 18), newSingleEdit(Unanswered, 25)

	master := newEvent(Unanswered)
	master.RRule = "FREQ=WEEKLY"

	event := ClassifyEvent(master, []Event{master, yes, no, unanswered})

	got, ok := calculator.EventType(event, Maybe, personalCalendar)
	require.True(t, ok)
	require.Equal(t, InvitationRecurring, got.Kind)
	require.Len(t, got.SingleEdits.ToReset, 2)

	assert.Equal(t, yes.RecurrenceID, got.SingleEdits.ToReset[0].Event.RecurrenceID)
	assert.Equal(t, no.RecurrenceID, got.SingleEdits.ToReset[1].Event.RecurrenceID)
	assert.Equal(t, "addr-1", got.SingleEdits.ToReset[0].Validated.InvitedParticipant().Address.ID)
}

func TestEventsToReset(t *testing.T) {
	repo := NewResetRepository(NewPermissionValidator(userAddresses))

	cancelled := newSingleEdit(No, 25)
	cancelled.Status = StatusCancelled

	tests := []struct {
		name   string
		edits  []Event
		answer Answer
		want   int
	}{
		{name: "none", edits: nil, answer: Yes, want: 0},
		{name: "same answer", edits: []Event{newSingleEdit(Yes, 11)}, answer: Yes, want: 0},
		{name: "unanswered ignored", edits: []Event{newSingleEdit(Unanswered, 11)}, answer: No, want: 0},
		{name: "different answers", edits: []Event{newSingleEdit(Yes, 11), newSingleEdit(No, 18)}, answer: Maybe, want: 2},
		{name: "not answerable", edits: []Event{newSingleEdit(Yes, 11), cancelled}, answer: Maybe, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, repo.EventsToReset(tt.edits, tt.answer, personalCalendar), tt.want)
		})
	}
}

func TestPersonalPartActionFor(t *testing.T) {
	const (
		none  = NoUpdate
		def   = UpdateWithDefaultNotifications
		empty = UpdateWithEmptyNotifications
	)

	// want[state][from][to], answers ordered Unanswered, Yes, No, Maybe.
	want := map[NotificationsState][4][4]PersonalPartAction{
		NotificationsNull: {
			{none, def, empty, def},
			{none, none, empty, none},
			{none, def, none, def},
			{none, none, empty, none},
		},
		NotificationsEmpty: {
			{none, def, none, def},
			{none, none, none, none},
			{none, def, none, def},
			{none, none, none, none},
		},
		NotificationsNonEmpty: {
			{none, none, empty, none},
			{none, none, empty, none},
			{none, none, none, none},
			{none, none, empty, none},
		},
	}

	require.Len(t, want, len(NotificationsStates))

	for _, state := range NotificationsStates {
		for _, from := range Answers {
			for _, to := range Answers {
				name := fmt.Sprintf("%v/%v/%v", state, from, to)
				assert.Equal(t, want[state][from][to], PersonalPartActionFor(state, from, to), name)
			}
		}
	}
}

func TestNotificationsStateOf(t *testing.T) {
	assert.Equal(t, NotificationsNull, NotificationsStateOf(nil))
	assert.Equal(t, NotificationsEmpty, NotificationsStateOf([]string{}))
	assert.Equal(t, NotificationsNonEmpty, NotificationsStateOf([]string{"-PT15M"}))
}

func TestPartStat(t *testing.T) {
	for _, answer := range Answers {
		assert.Equal(t, answer, ParsePartStat(answer.PartStat()))
	}

	assert.Equal(t, Yes, ParsePartStat(" accepted "))
	assert.Equal(t, Unanswered, ParsePartStat("DELEGATED"))
}

func TestParseAnswer(t *testing.T) {
	got, err := ParseAnswer("Maybe")
	require.NoError(t, err)
	assert.Equal(t, Maybe, got)

	_, err = ParseAnswer("perhaps")
	require.Error(t, err)
}

func TestEvent_CopiesDoNotShareAttendees(t *testing.T) {
	original := newEvent(Unanswered)

	answered := original.WithAnswer("ME@pm.me", Yes)
	assert.Equal(t, Unanswered, original.Attendees[1].Answer)
	assert.Equal(t, Yes, answered.Attendees[1].Answer)
	assert.Equal(t, Yes, answered.Attendees[0].Answer)

	replaced := original.WithAttendees(original.Attendees)
	replaced.Attendees[0].Name = "changed"
	assert.Empty(t, original.Attendees[0].Name)
}

func TestEvent_KeyPacket(t *testing.T) {
	event := Event{AddressKeyPacket: "addr"}

	packet, source := event.KeyPacket()
	assert.Equal(t, "addr", packet)
	assert.Equal(t, KeySourceAddress, source)

	event.SharedKeyPacket = "shared"

	packet, source = event.KeyPacket()
	assert.Equal(t, "shared", packet)
	assert.Equal(t, KeySourceCalendar, source)

	_, source = Event{}.KeyPacket()
	assert.Equal(t, KeySourceNone, source)
}
