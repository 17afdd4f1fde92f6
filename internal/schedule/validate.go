package schedule

import (
	"strings"

	"calplan/internal/model"
	"calplan/internal/timeofday"
)

// Validate checks a candidate event the way the creation form does before
// the engine is invoked. It returns a *ValidationError naming the first
// offending field.
func Validate(ev model.Event) error {
	if strings.TrimSpace(ev.Title) == "" {
		return invalid("title", "is required")
	}
	if ev.Date == "" {
		return invalid("date", "is required")
	}
	if _, err := ParseDate(ev.Date); err != nil {
		return invalid("date", "must be yyyy-MM-dd")
	}
	if ev.StartTime == "" {
		return invalid("startTime", "is required")
	}
	if ev.EndTime == "" {
		return invalid("endTime", "is required")
	}
	start, err := timeofday.Parse(ev.StartTime)
	if err != nil {
		return invalid("startTime", err.Error())
	}
	end, err := timeofday.Parse(ev.EndTime)
	if err != nil {
		return invalid("endTime", err.Error())
	}
	if end <= start {
		return invalid("endTime", "must be after start time")
	}
	if !ev.Color.Valid() {
		return invalid("color", "unknown color "+string(ev.Color))
	}
	if !ev.Recurrence.Valid() {
		return invalid("recurrence", "unknown recurrence "+string(ev.Recurrence))
	}
	if ev.IsRecurring() {
		return validateDetail(ev)
	}
	return nil
}

func validateDetail(ev model.Event) error {
	d := ev.RecurrenceDetail
	if d == nil || d.EndDate == "" {
		return invalid("endDate", "is required for recurring events")
	}
	if _, err := ParseDate(d.EndDate); err != nil {
		return invalid("endDate", "must be yyyy-MM-dd")
	}
	switch ev.Recurrence {
	case model.RecurrenceWeekly:
		for _, wd := range d.WeeklyDays {
			if wd < 0 || wd > 6 {
				return invalid("weeklyDays", "weekday must be 0-6")
			}
		}
	case model.RecurrenceCustom:
		if d.CustomIntervalWeeks <= 0 {
			return invalid("customIntervalWeeks", "must be a positive number of weeks")
		}
	}
	return nil
}
