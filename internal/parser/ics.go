package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-ical"

	"github.com/shineum/sealpost/internal/rsvp"
)

var (
	ErrNoCalendar   = errors.New("message has no calendar part")
	ErrMalformedICS = errors.New("malformed calendar")
)

// Calendar is a parsed VCALENDAR object.
type Calendar struct {
	Method string
	Events []rsvp.Event
}

// Invitation is a calendar invitation email.
type Invitation struct {
	From     string
	Subject  string
	Calendar Calendar
}

// ParseInvitation parses an invitation email and the first calendar part
// it carries.
func ParseInvitation(raw []byte) (*Invitation, error) {
	msg, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if !strings.EqualFold(att.ContentType, "text/calendar") && !strings.HasSuffix(strings.ToLower(att.Filename), ".ics") {
			continue
		}

		cal, err := ParseICS(att.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", att.Filename, err)
		}

		if cal.Method == "" {
			cal.Method = strings.ToUpper(att.ContentTypeParams["method"])
		}

		return &Invitation{From: msg.From, Subject: msg.Subject, Calendar: *cal}, nil
	}

	return nil, ErrNoCalendar
}

// ParseICS reads the VEVENTs of an iCalendar document. Nested components
// such as VALARM are skipped; VTIMEZONE definitions only serve to resolve
// zone names the time zone database does not know.
func ParseICS(data []byte) (cal *Calendar, err error) {
	// The decoder panics on some malformed parameter lists.
	defer func() {
		if r := recover(); r != nil {
			cal, err = nil, fmt.Errorf("%w: %v", ErrMalformedICS, r)
		}
	}()

	doc, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedICS, err)
	}

	cal = &Calendar{}

	if method := doc.Props.Get(ical.PropMethod); method != nil {
		cal.Method = strings.ToUpper(method.Value)
	}

	zones := newZoneResolver(doc)

	for _, ev := range doc.Events() {
		event, err := readEvent(ev, zones)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedICS, err)
		}

		cal.Events = append(cal.Events, event)
	}

	return cal, nil
}

func readEvent(ev ical.Event, zones zoneResolver) (rsvp.Event, error) {
	event := rsvp.Event{
		UID:         text(ev.Props.Get(ical.PropUID)),
		Summary:     text(ev.Props.Get(ical.PropSummary)),
		Description: text(ev.Props.Get(ical.PropDescription)),
		Location:    text(ev.Props.Get(ical.PropLocation)),
		Status:      rsvp.StatusConfirmed,
	}

	if event.UID == "" {
		return rsvp.Event{}, errors.New("event without UID")
	}

	if prop := ev.Props.Get(ical.PropDateTimeStart); prop != nil {
		t, err := zones.dateTime(prop)
		if err != nil {
			return rsvp.Event{}, fmt.Errorf("%s: %w", prop.Name, err)
		}
		event.Start, event.AllDay, event.TimeZone = t, isDate(prop), zones.name(prop)
	}

	if prop := ev.Props.Get(ical.PropDateTimeEnd); prop != nil {
		t, err := zones.dateTime(prop)
		if err != nil {
			return rsvp.Event{}, fmt.Errorf("%s: %w", prop.Name, err)
		}
		event.End = t
	}

	if prop := ev.Props.Get(ical.PropRecurrenceID); prop != nil {
		t, err := zones.dateTime(prop)
		if err != nil {
			return rsvp.Event{}, fmt.Errorf("%s: %w", prop.Name, err)
		}
		event.RecurrenceID = &t
	}

	if prop := ev.Props.Get(ical.PropRecurrenceRule); prop != nil {
		event.RRule = prop.Value
	}

	if prop := ev.Props.Get(ical.PropSequence); prop != nil {
		seq, err := prop.Int()
		if err != nil {
			return rsvp.Event{}, fmt.Errorf("%s: %w", prop.Name, err)
		}
		event.Sequence = seq
	}

	if prop := ev.Props.Get(ical.PropStatus); prop != nil {
		event.Status = rsvp.Status(strings.ToUpper(prop.Value))
	}

	if prop := ev.Props.Get(ical.PropOrganizer); prop != nil {
		event.Organizer = &rsvp.Organizer{
			Email: mailto(prop.Value),
			Name:  prop.Params.Get(ical.ParamCommonName),
		}
	}

	for _, prop := range ev.Props.Values(ical.PropAttendee) {
		event.Attendees = append(event.Attendees, rsvp.Attendee{
			Email:  mailto(prop.Value),
			Name:   prop.Params.Get(ical.ParamCommonName),
			Role:   prop.Params.Get(ical.ParamRole),
			Answer: rsvp.ParsePartStat(prop.Params.Get(ical.ParamParticipationStatus)),
			Token:  prop.Params.Get("X-PM-TOKEN"),
		})
	}

	return event, nil
}

// text reads a TEXT value. Unescaped commas are kept and a value with an
// invalid escape sequence is returned as is.
func text(prop *ical.Prop) string {
	if prop == nil {
		return ""
	}

	values, err := prop.TextList()
	if err != nil {
		return prop.Value
	}

	return strings.Join(values, ",")
}

func isDate(prop *ical.Prop) bool {
	return prop.ValueType() == ical.ValueDate || len(prop.Value) == len("20060102")
}

func mailto(v string) string {
	if len(v) >= len("mailto:") && strings.EqualFold(v[:len("mailto:")], "mailto:") {
		return v[len("mailto:"):]
	}
	return v
}
