package schedule

import (
	"calplan/internal/model"
)

// EndDatePolicy is the form-side default horizon, in months, applied to a
// recurring event submitted without an end date. The expander never applies
// it on its own.
type EndDatePolicy struct {
	DailyMonths   int `yaml:"daily_months" json:"daily_months"`
	WeeklyMonths  int `yaml:"weekly_months" json:"weekly_months"`
	MonthlyMonths int `yaml:"monthly_months" json:"monthly_months"`
	CustomMonths  int `yaml:"custom_months" json:"custom_months"`
}

// DefaultEndDatePolicy returns 3 months for daily, 6 for weekly and custom,
// and 12 for monthly rules.
func DefaultEndDatePolicy() EndDatePolicy {
	return EndDatePolicy{
		DailyMonths:   3,
		WeeklyMonths:  6,
		MonthlyMonths: 12,
		CustomMonths:  6,
	}
}

// Months returns the horizon for r, falling back to the built-in default for
// unset entries.
func (p EndDatePolicy) Months(r model.Recurrence) int {
	def := DefaultEndDatePolicy()
	pick := func(v, fallback int) int {
		if v > 0 {
			return v
		}
		return fallback
	}
	switch r {
	case model.RecurrenceDaily:
		return pick(p.DailyMonths, def.DailyMonths)
	case model.RecurrenceMonthly:
		return pick(p.MonthlyMonths, def.MonthlyMonths)
	case model.RecurrenceCustom:
		return pick(p.CustomMonths, def.CustomMonths)
	default:
		return pick(p.WeeklyMonths, def.WeeklyMonths)
	}
}

// DefaultEndDate computes the default end date for a rule starting on date.
func (p EndDatePolicy) DefaultEndDate(date string, r model.Recurrence) (string, error) {
	start, err := ParseDate(date)
	if err != nil {
		return "", invalid("date", "must be yyyy-MM-dd")
	}
	return FormatDate(AddMonthsClamped(start, p.Months(r))), nil
}

// ApplyDefaultEndDate returns a copy of ev whose recurrence detail carries an
// end date. Non-recurring events and events that already have one are
// returned unchanged.
func (p EndDatePolicy) ApplyDefaultEndDate(ev model.Event) (model.Event, error) {
	out := ev.Clone()
	if !out.IsRecurring() {
		return out, nil
	}
	if out.RecurrenceDetail != nil && out.RecurrenceDetail.EndDate != "" {
		return out, nil
	}
	end, err := p.DefaultEndDate(out.Date, out.Recurrence)
	if err != nil {
		return model.Event{}, err
	}
	if out.RecurrenceDetail == nil {
		out.RecurrenceDetail = &model.RecurrenceDetail{}
	}
	out.RecurrenceDetail.EndDate = end
	return out, nil
}
