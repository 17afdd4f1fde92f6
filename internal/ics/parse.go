package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/schedule"
	"calplan/internal/timeofday"
)

const lastMinuteOfDay = timeofday.MinutesPerDay - 1

// Parse converts the VEVENTs of an ICS payload into base events, reading
// floating times in the local zone.
func Parse(body []byte) ([]model.Event, error) {
	return ParseIn(body, time.Local)
}

// ParseIn is Parse with an explicit zone for floating times. UTC and TZID
// times are converted into loc.
//
// Each VEVENT becomes one base event; an RRULE is mapped onto the recurrence
// kinds the scheduler understands and is expanded later by Book.Create. IDs
// are left empty so imports never collide with stored events. Events that
// cannot be read are logged and skipped.
func ParseIn(body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, fmt.Errorf("parse ics: %w", err)
	}

	events := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	var out model.Event

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	uid := uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	out.Color = parseColor(ve)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, fmt.Errorf("event %s: missing DTSTART", uid)
	}
	start, allDay, err := propertyTime(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", uid, err)
	}
	out.Date = schedule.FormatDate(start)

	if !allDay {
		startMin := start.Hour()*60 + start.Minute()
		out.StartTime = timeofday.Format(startMin)
		out.EndTime = endTime(ve, start, startMin, loc)
	}

	if rr := ve.GetProperty(ical.ComponentPropertyRrule); rr != nil && rr.Value != "" {
		if err := applyRRule(&out, rr.Value, start, loc); err != nil {
			appLog.Warn("ics rrule not supported, importing single event", "uid", uid, "rrule", rr.Value, "err", err)
			out.Recurrence = model.RecurrenceNone
			out.RecurrenceDetail = nil
		}
	}
	if len(ve.GetProperties(ical.ComponentPropertyExdate)) > 0 {
		appLog.Debug("ics exdate ignored", "uid", uid)
	}

	return out, nil
}

// endTime reads DTEND on the start's day. A missing DTEND yields a one hour
// event; an end on a later day is clamped to the last minute of the day.
func endTime(ve *ical.VEvent, start time.Time, startMin int, loc *time.Location) string {
	endMin := startMin + 60
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil && p.Value != "" {
		if end, _, err := propertyTime(p, loc); err == nil {
			switch {
			case schedule.FormatDate(end) != schedule.FormatDate(start):
				endMin = lastMinuteOfDay
			default:
				endMin = end.Hour()*60 + end.Minute()
			}
		}
	}
	if endMin > lastMinuteOfDay {
		endMin = lastMinuteOfDay
	}
	if endMin <= startMin {
		return ""
	}
	return timeofday.Format(endMin)
}

// applyRRule maps an RRULE onto the event's recurrence fields.
//
//	DAILY               -> daily
//	WEEKLY              -> weekly (BYDAY kept)
//	WEEKLY;INTERVAL=n>1 -> custom every n weeks
//	MONTHLY             -> monthly
//
// UNTIL becomes the end date. A COUNT without UNTIL is resolved to the date
// of the last occurrence. Anything else is reported as unsupported.
func applyRRule(ev *model.Event, value string, start time.Time, loc *time.Location) error {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return err
	}
	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}

	detail := &model.RecurrenceDetail{}
	switch opt.Freq {
	case rrule.DAILY:
		if interval != 1 {
			return fmt.Errorf("daily interval %d", interval)
		}
		ev.Recurrence = model.RecurrenceDaily
	case rrule.WEEKLY:
		if interval == 1 {
			ev.Recurrence = model.RecurrenceWeekly
			for _, wd := range opt.Byweekday {
				detail.WeeklyDays = append(detail.WeeklyDays, (wd.Day()+1)%7)
			}
		} else {
			ev.Recurrence = model.RecurrenceCustom
			detail.CustomIntervalWeeks = interval
		}
	case rrule.MONTHLY:
		if interval != 1 {
			return fmt.Errorf("monthly interval %d", interval)
		}
		ev.Recurrence = model.RecurrenceMonthly
	default:
		return fmt.Errorf("frequency %v", opt.Freq)
	}

	switch {
	case !opt.Until.IsZero():
		detail.EndDate = schedule.FormatDate(opt.Until.In(loc))
	case opt.Count > 0:
		opt.Dtstart = start
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return err
		}
		if all := r.All(); len(all) > 0 {
			detail.EndDate = schedule.FormatDate(all[len(all)-1].In(loc))
		}
	}

	ev.RecurrenceDetail = detail
	return nil
}

// parseColor prefers COLOR and falls back to the first CATEGORIES entry that
// names a palette color.
func parseColor(ve *ical.VEvent) model.Color {
	if p := ve.GetProperty(ical.ComponentProperty(propertyColor)); p != nil {
		if c := model.Color(strings.ToLower(strings.TrimSpace(p.Value))); c.Valid() {
			return c
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		for _, part := range strings.Split(p.Value, ",") {
			if c := model.Color(strings.ToLower(strings.TrimSpace(part))); c != "" && c.Valid() {
				return c
			}
		}
	}
	return ""
}

// propertyTime reads a DTSTART/DTEND style property. The second result
// reports a date-only value.
func propertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	val := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(val, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	zone := loc
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			zone = l
		} else {
			appLog.Debug("unknown TZID, using local zone", "tzid", tzs[0])
		}
	}

	t, err := parseICSTime(val, zone)
	if err != nil {
		return time.Time{}, false, err
	}
	if allDay {
		return t, true, nil
	}
	return t.In(loc), false, nil
}

// parseICSTime parses the basic ICS DATE and DATE-TIME forms. Floating and
// date-only values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse(icsUTCLayout, v)
	}
	// 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation(icsLocalLayout, v, loc)
	}
	// 20250101
	return time.ParseInLocation(icsDateLayout, v, loc)
}
