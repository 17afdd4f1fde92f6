// Package ics converts between the event list and iCalendar files.
package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"calplan/internal/model"
	"calplan/internal/schedule"
	"calplan/internal/timeofday"
)

const (
	icsUTCLayout   = "20060102T150405Z"
	icsLocalLayout = "20060102T150405"
	icsDateLayout  = "20060102"

	// RFC 7986 COLOR; not every library version has a constant for it.
	propertyColor = "COLOR"

	DefaultProdID = "-//calplan//calendar export//EN"
)

// Export renders every stored occurrence as its own VEVENT with floating
// local times. Occurrences are independent records, so no RRULE is written.
// Events without a parseable date are skipped.
func Export(events []model.Event, prodID string) (string, error) {
	return export(events, prodID, time.Now().UTC())
}

func export(events []model.Event, prodID string, stamp time.Time) (string, error) {
	if prodID == "" {
		prodID = DefaultProdID
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, ev := range events {
		date, err := schedule.ParseDate(ev.Date)
		if err != nil {
			return "", fmt.Errorf("export %q: bad date %q", ev.Title, ev.Date)
		}

		vev := cal.AddEvent(ev.Key())
		vev.SetDtStampTime(stamp)
		vev.SetSummary(ev.Title)
		if ev.Description != "" {
			vev.SetDescription(ev.Description)
		}
		if c := ev.Color.Normalized(); c != model.ColorDefault {
			vev.SetProperty(ical.ComponentProperty(propertyColor), string(c))
			vev.SetProperty(ical.ComponentPropertyCategories, string(c))
		}

		if !ev.HasWindow() {
			vev.SetAllDayStartAt(date)
			vev.SetAllDayEndAt(date.AddDate(0, 0, 1))
			continue
		}

		start, err := floating(date, ev.StartTime)
		if err != nil {
			return "", fmt.Errorf("export %q: %w", ev.Title, err)
		}
		end, err := floating(date, ev.EndTime)
		if err != nil {
			return "", fmt.Errorf("export %q: %w", ev.Title, err)
		}
		vev.SetProperty(ical.ComponentPropertyDtStart, start)
		vev.SetProperty(ical.ComponentPropertyDtEnd, end)
	}

	return cal.Serialize(), nil
}

// floating renders date plus a 12-hour clock time as a DATE-TIME without zone.
func floating(date time.Time, clock string) (string, error) {
	m, err := timeofday.Parse(clock)
	if err != nil {
		return "", err
	}
	return date.Add(time.Duration(m) * time.Minute).Format(icsLocalLayout), nil
}
