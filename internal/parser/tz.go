package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// zoneResolver turns TZID-qualified local times into instants. Names the
// time zone database knows are loaded from it; others, such as the Windows
// zone names Outlook writes, are resolved from the VTIMEZONE components of
// the document.
type zoneResolver map[string]*ical.Component

func newZoneResolver(doc *ical.Calendar) zoneResolver {
	zones := make(zoneResolver)

	for _, child := range doc.Children {
		if child.Name != ical.CompTimezone {
			continue
		}

		if tzid := child.Props.Get(ical.PropTimezoneID); tzid != nil {
			zones[tzid.Value] = child
		}
	}

	return zones
}

// dateTime reads a DATE or DATE-TIME property.
func (z zoneResolver) dateTime(prop *ical.Prop) (time.Time, error) {
	tzid := prop.Params.Get(ical.ParamTimezoneID)

	if tzid == "" || isDate(prop) || strings.HasSuffix(prop.Value, "Z") {
		return prop.DateTime(time.UTC)
	}

	if _, err := time.LoadLocation(tzid); err == nil {
		return prop.DateTime(time.UTC)
	}

	tz, ok := z[tzid]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown timezone %q", tzid)
	}

	floating := ical.Prop{Name: prop.Name, Params: make(ical.Params), Value: prop.Value}

	local, err := floating.DateTime(time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	offset, err := offsetAt(tz, local)
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone %q: %w", tzid, err)
	}

	return local.Add(-offset), nil
}

// name returns the zone of a property when the time zone database knows
// it, so that replies can be written in the same zone.
func (z zoneResolver) name(prop *ical.Prop) string {
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return ""
	}

	if _, err := time.LoadLocation(tzid); err != nil {
		return ""
	}

	return tzid
}

// offsetAt returns the UTC offset a VTIMEZONE applies at a local time: the
// TZOFFSETTO of the observance with the latest onset not after it. Local
// times are compared as floating times in UTC.
func offsetAt(tz *ical.Component, local time.Time) (time.Duration, error) {
	var (
		latest time.Time
		offset time.Duration
	)

	for _, obs := range tz.Children {
		if obs.Name != ical.CompTimezoneStandard && obs.Name != ical.CompTimezoneDaylight {
			continue
		}

		onset, err := lastOnset(obs, local)
		if err != nil {
			return 0, err
		}

		if onset.IsZero() || !onset.After(latest) {
			continue
		}

		to, err := utcOffset(obs.Props.Get(ical.PropTimezoneOffsetTo))
		if err != nil {
			return 0, err
		}

		latest, offset = onset, to
	}

	if latest.IsZero() {
		return 0, errors.New("no observance applies")
	}

	return offset, nil
}

// lastOnset returns the last time an observance started at or before
// local, expanding its RRULE. The zero time means it never did.
func lastOnset(obs *ical.Component, local time.Time) (time.Time, error) {
	start, err := obs.Props.DateTime(ical.PropDateTimeStart, time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	if start.IsZero() || start.After(local) {
		return time.Time{}, nil
	}

	set, err := obs.RecurrenceSet(time.UTC)
	if err != nil {
		return time.Time{}, err
	}

	if set == nil {
		return start, nil
	}

	return set.Before(local, true), nil
}

// utcOffset reads a UTC-OFFSET value such as "+0100" or "-053000".
func utcOffset(prop *ical.Prop) (time.Duration, error) {
	if prop == nil {
		return 0, errors.New("observance without TZOFFSETTO")
	}

	layout := "-0700"
	if len(prop.Value) == len("+000000") {
		layout = "-070000"
	}

	t, err := time.Parse(layout, prop.Value)
	if err != nil {
		return 0, fmt.Errorf("invalid UTC offset %q", prop.Value)
	}

	_, seconds := t.Zone()

	return time.Duration(seconds) * time.Second, nil
}
