package schedule

import (
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calplan/internal/log"
	"calplan/internal/model"
)

// Safety caps on the number of occurrences (base included) per rule.
const (
	maxDailyOccurrences   = 365
	maxMonthlyOccurrences = 24
	maxCustomOccurrences  = 100

	// weeklyHorizonWeeks bounds weekly rules to week offsets 0..51 of the
	// Sunday-started week containing the base date.
	weeklyHorizonWeeks = 52
)

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Expand turns a base event into its concrete occurrences, ordered by date.
//
// The first occurrence is the base event itself and keeps its ID (a fresh
// one is minted if the base has none). Every later occurrence is a copy
// with its own date and a freshly generated ID. Recurring events must carry
// an end date; the expander never invents one.
func (s *Scheduler) Expand(base model.Event) ([]model.Event, error) {
	start, err := ParseDate(base.Date)
	if err != nil {
		return nil, invalid("date", "must be yyyy-MM-dd")
	}
	if !base.Recurrence.Valid() {
		return nil, invalid("recurrence", "unknown recurrence "+string(base.Recurrence))
	}

	first := base.Clone()
	if first.ID == "" {
		first.ID = s.newID()
	}
	if !base.IsRecurring() {
		return []model.Event{first}, nil
	}
	if err := validateDetail(base); err != nil {
		return nil, err
	}
	until, _ := ParseDate(base.RecurrenceDetail.EndDate)

	dates, err := occurrenceDates(start, until, base)
	if err != nil {
		return nil, err
	}

	out := make([]model.Event, 0, len(dates)+1)
	out = append(out, first)
	for _, d := range dates {
		occ := base.Clone()
		occ.ID = s.newID()
		occ.Date = FormatDate(d)
		out = append(out, occ)
	}

	appLog.Debug("expanded recurring event",
		"title", base.Title,
		"recurrence", base.Recurrence,
		"date", base.Date,
		"end_date", base.RecurrenceDetail.EndDate,
		"occurrences", len(out),
	)
	return out, nil
}

// occurrenceDates returns the dates strictly after start and on or before
// until that the rule produces, already capped.
func occurrenceDates(start, until time.Time, ev model.Event) ([]time.Time, error) {
	opt, limit := ruleOption(start, until, ev)
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, invalid("recurrence", err.Error())
	}

	out := make([]time.Time, 0)
	for _, d := range r.All() {
		d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		if !d.After(start) || d.After(until) {
			continue
		}
		if limit > 0 && len(out)+1 >= limit {
			break
		}
		out = append(out, d)
	}
	return out, nil
}

// ruleOption maps an event's recurrence onto an RRULE. The returned limit is
// the occurrence cap including the base date, or 0 when the rule is bounded
// by its horizon alone.
func ruleOption(start, until time.Time, ev model.Event) (rrule.ROption, int) {
	detail := ev.RecurrenceDetail

	switch ev.Recurrence {
	case model.RecurrenceDaily:
		return rrule.ROption{
			Freq:    rrule.DAILY,
			Dtstart: start,
			Count:   maxDailyOccurrences,
		}, maxDailyOccurrences

	case model.RecurrenceMonthly:
		opt := rrule.ROption{
			Freq:    rrule.MONTHLY,
			Dtstart: start,
			Count:   maxMonthlyOccurrences,
		}
		// Days past the 28th clamp to the end of shorter months: pick the
		// last existing day among 28..d.
		if day := start.Day(); day > 28 {
			for md := 28; md <= day; md++ {
				opt.Bymonthday = append(opt.Bymonthday, md)
			}
			opt.Bysetpos = []int{-1}
		}
		return opt, maxMonthlyOccurrences

	case model.RecurrenceCustom:
		return rrule.ROption{
			Freq:     rrule.WEEKLY,
			Interval: detail.CustomIntervalWeeks,
			Dtstart:  start,
			Count:    maxCustomOccurrences,
		}, maxCustomOccurrences

	default: // weekly
		weekStart := start.AddDate(0, 0, -int(start.Weekday()))
		horizon := weekStart.AddDate(0, 0, weeklyHorizonWeeks*7-1)
		if until.Before(horizon) {
			horizon = until
		}
		return rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   start,
			Until:     horizon,
			Wkst:      rrule.SU,
			Byweekday: weeklyDays(start, detail.WeeklyDays),
		}, 0
	}
}

// weeklyDays returns the distinct rule weekdays in Sunday-first order,
// defaulting to the base date's own weekday.
func weeklyDays(start time.Time, days []int) []rrule.Weekday {
	idx := slices.Clone(days)
	if len(idx) == 0 {
		idx = []int{int(start.Weekday())}
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	out := make([]rrule.Weekday, 0, len(idx))
	for _, d := range idx {
		out = append(out, rruleWeekdays[d])
	}
	return out
}
