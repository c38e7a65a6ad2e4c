// Package invite answers calendar invitations: it renders the iCalendar
// REPLY for the current user's answer and mails it to the organizer.
package invite

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/shineum/sealpost/internal/rsvp"
)

const (
	ProdID        = "-//sealpost//RSVP//EN"
	icalVersion   = "2.0"
	icalScale     = "GREGORIAN"
	maxLineLength = 75

	localLayout = "20060102T150405"
)

var (
	ErrMissingUID       = errors.New("event has no UID")
	ErrMissingOrganizer = errors.New("event has no organizer")
	ErrUnansweredReply  = errors.New("cannot reply without an answer")
)

// ReplyParams holds what a REPLY carries: the event being answered, its
// organizer and the answering attendee.
type ReplyParams struct {
	Event     rsvp.Event
	Organizer rsvp.Organizer
	Attendee  rsvp.Attendee
	Answer    rsvp.Answer
}

// ICSBuilder renders iCalendar documents.
type ICSBuilder struct {
	now func() time.Time
}

// NewICSBuilder returns a builder stamping documents with the current time.
func NewICSBuilder() *ICSBuilder {
	return &ICSBuilder{now: time.Now}
}

// BuildReply renders a METHOD:REPLY calendar holding a single VEVENT with
// only the answering attendee. Single edits carry their RECURRENCE-ID so
// the organizer applies the answer to one occurrence.
func (b *ICSBuilder) BuildReply(p ReplyParams) (string, error) {
	if p.Event.UID == "" {
		return "", ErrMissingUID
	}

	if p.Organizer.Email == "" {
		return "", ErrMissingOrganizer
	}

	if p.Answer == rsvp.Unanswered {
		return "", ErrUnansweredReply
	}

	tz, err := newTimeFormatter(p.Event)
	if err != nil {
		return "", err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, icalVersion)
	cal.Props.SetText(ical.PropProductID, ProdID)
	cal.Props.SetText(ical.PropCalendarScale, icalScale)
	cal.Props.SetText(ical.PropMethod, "REPLY")

	if tz.loc != nil {
		from, to := eventSpan(p.Event)
		cal.Children = append(cal.Children, timezoneComponent(tz.tzid, tz.loc, from, to))
	}

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, p.Event.UID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, b.now().UTC())
	event.Props.Set(tz.prop(ical.PropDateTimeStart, p.Event.Start))

	if !p.Event.End.IsZero() {
		event.Props.Set(tz.prop(ical.PropDateTimeEnd, p.Event.End))
	}

	if p.Event.RecurrenceID != nil {
		event.Props.Set(tz.prop(ical.PropRecurrenceID, *p.Event.RecurrenceID))
	}

	if p.Event.Sequence > 0 {
		seq := ical.NewProp(ical.PropSequence)
		seq.Value = strconv.Itoa(p.Event.Sequence)
		event.Props.Set(seq)
	}

	if p.Event.Summary != "" {
		event.Props.SetText(ical.PropSummary, p.Event.Summary)
	}

	organizer := ical.NewProp(ical.PropOrganizer)
	setParam(organizer, ical.ParamCommonName, p.Organizer.Name)
	organizer.Value = "mailto:" + p.Organizer.Email
	event.Props.Set(organizer)

	attendee := ical.NewProp(ical.PropAttendee)
	setParam(attendee, ical.ParamCommonName, p.Attendee.Name)
	setParam(attendee, ical.ParamRole, p.Attendee.Role)
	setParam(attendee, ical.ParamParticipationStatus, p.Answer.PartStat())
	setParam(attendee, "X-PM-TOKEN", p.Attendee.Token)
	attendee.Value = "mailto:" + p.Attendee.Email
	event.Props.Set(attendee)

	cal.Children = append(cal.Children, event.Component)

	var out strings.Builder

	if err := ical.NewEncoder(lineFolder{w: &out}).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode reply: %w", err)
	}

	return out.String(), nil
}

// timeFormatter writes date-time properties in the event's zone.
type timeFormatter struct {
	tzid   string
	loc    *time.Location
	allDay bool
}

func newTimeFormatter(event rsvp.Event) (timeFormatter, error) {
	if event.AllDay {
		return timeFormatter{allDay: true}, nil
	}

	if event.TimeZone == "" || event.TimeZone == "UTC" {
		return timeFormatter{}, nil
	}

	loc, err := time.LoadLocation(event.TimeZone)
	if err != nil {
		return timeFormatter{}, fmt.Errorf("invalid timezone %q: %w", event.TimeZone, err)
	}

	return timeFormatter{tzid: event.TimeZone, loc: loc}, nil
}

func (f timeFormatter) prop(name string, t time.Time) *ical.Prop {
	prop := ical.NewProp(name)

	switch {
	case f.allDay:
		prop.SetDate(t.UTC())
	case f.loc != nil:
		prop.SetDateTime(t.In(f.loc))
	default:
		prop.SetDateTime(t.UTC())
	}

	return prop
}

// eventSpan returns the earliest and latest instants the reply writes.
func eventSpan(event rsvp.Event) (from, to time.Time) {
	from, to = event.Start, event.Start

	for _, t := range []time.Time{event.End, derefTime(event.RecurrenceID)} {
		if t.IsZero() {
			continue
		}
		if t.Before(from) {
			from = t
		}
		if t.After(to) {
			to = t
		}
	}

	return from, to
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// timezoneComponent describes loc over the calendar years holding from
// and to: one observance for the rule in effect on January 1st, then one
// per offset change until the end of the last year.
func timezoneComponent(tzid string, loc *time.Location, from, to time.Time) *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	tz.Props.SetText(ical.PropTimezoneID, tzid)

	at := time.Date(from.In(loc).Year(), time.January, 1, 0, 0, 0, 0, loc)
	until := time.Date(to.In(loc).Year()+1, time.January, 1, 0, 0, 0, 0, loc)

	onset, next := at.ZoneBounds()
	tz.Children = append(tz.Children, observance(loc, onset, at))

	for !next.IsZero() && next.Before(until) {
		tz.Children = append(tz.Children, observance(loc, next, next))
		_, next = next.ZoneBounds()
	}

	return tz
}

// observance renders the STANDARD or DAYLIGHT rule in effect at at, which
// started at onset. A zero onset means the rule has always applied.
func observance(loc *time.Location, onset, at time.Time) *ical.Component {
	local := at.In(loc)
	name, offset := local.Zone()

	from := offset
	dtstart := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

	if !onset.IsZero() {
		_, from = onset.Add(-time.Second).In(loc).Zone()
		dtstart = onset.UTC().Add(time.Duration(from) * time.Second)
	}

	kind := ical.CompTimezoneStandard
	if local.IsDST() {
		kind = ical.CompTimezoneDaylight
	}

	comp := ical.NewComponent(kind)

	start := ical.NewProp(ical.PropDateTimeStart)
	start.Value = dtstart.Format(localLayout)
	comp.Props.Set(start)

	comp.Props.Set(offsetProp(ical.PropTimezoneOffsetFrom, from))
	comp.Props.Set(offsetProp(ical.PropTimezoneOffsetTo, offset))

	if name != "" {
		comp.Props.SetText(ical.PropTimezoneName, name)
	}

	return comp
}

// offsetProp renders a UTC-OFFSET value, seconds only when non-zero.
func offsetProp(name string, seconds int) *ical.Prop {
	sign := '+'
	if seconds < 0 {
		sign, seconds = '-', -seconds
	}

	value := fmt.Sprintf("%c%02d%02d", sign, seconds/3600, seconds/60%60)
	if s := seconds % 60; s != 0 {
		value += fmt.Sprintf("%02d", s)
	}

	prop := ical.NewProp(name)
	prop.Value = value

	return prop
}

// setParam sets a parameter when value is not empty. DQUOTE cannot appear
// inside a parameter value at all.
func setParam(prop *ical.Prop, name, value string) {
	if value = strings.ReplaceAll(value, `"`, ""); value != "" {
		prop.Params.Set(name, value)
	}
}

// lineFolder folds the content lines written through it. The encoder
// writes one CRLF-terminated line per call.
type lineFolder struct {
	w io.Writer
}

func (f lineFolder) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\r\n")

	if _, err := io.WriteString(f.w, foldLine(line, maxLineLength)+"\r\n"); err != nil {
		return 0, err
	}

	return len(p), nil
}

// foldLine splits a content line into chunks of at most maxLength octets,
// continuation lines starting with a single space. A multi-byte character
// is never split.
func foldLine(line string, maxLength int) string {
	if len(line) <= maxLength {
		return line
	}

	var folded strings.Builder

	remaining := line
	limit := maxLength

	for len(remaining) > limit {
		cut := limit
		for cut > 0 && remaining[cut]&0xC0 == 0x80 {
			cut--
		}

		folded.WriteString(remaining[:cut])
		folded.WriteString("\r\n ")

		remaining = remaining[cut:]
		limit = maxLength - 1
	}

	folded.WriteString(remaining)

	return folded.String()
}
