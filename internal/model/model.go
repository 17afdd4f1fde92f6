package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Recurrence selects how a base event is expanded into occurrences.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceCustom  Recurrence = "custom"
)

// Recurrences lists every supported recurrence in display order.
var Recurrences = []Recurrence{
	RecurrenceNone,
	RecurrenceDaily,
	RecurrenceWeekly,
	RecurrenceMonthly,
	RecurrenceCustom,
}

// Valid reports whether r is a known recurrence. The empty value counts as
// none so that records written before the field existed still load.
func (r Recurrence) Valid() bool {
	return r == "" || slices.Contains(Recurrences, r)
}

// Color is a palette tag used for grouping and filtering only.
type Color string

const (
	ColorDefault Color = "default"
	ColorBlue    Color = "blue"
	ColorGreen   Color = "green"
	ColorRed     Color = "red"
	ColorYellow  Color = "yellow"
)

// Palette is the fixed set of colors an event may carry.
var Palette = []Color{ColorDefault, ColorBlue, ColorGreen, ColorRed, ColorYellow}

// Valid reports whether c is in the palette. Empty counts as default.
func (c Color) Valid() bool {
	return c == "" || slices.Contains(Palette, c)
}

// Normalized maps the empty color to ColorDefault.
func (c Color) Normalized() Color {
	if c == "" {
		return ColorDefault
	}
	return c
}

// RecurrenceDetail carries the parameters of a recurrence rule. It is only
// meaningful when the owning event's Recurrence is not none.
type RecurrenceDetail struct {
	// EndDate is the last date (yyyy-MM-dd, inclusive) on which occurrences
	// may be generated.
	EndDate string `json:"endDate,omitempty" yaml:"end_date,omitempty"`

	// WeeklyDays holds weekday indices (0=Sunday .. 6=Saturday) for weekly
	// rules. Empty means the base event's own weekday.
	WeeklyDays Weekdays `json:"weeklyDays,omitempty" yaml:"weekly_days,omitempty"`

	// CustomIntervalWeeks is the step, in weeks, of a custom rule.
	CustomIntervalWeeks int `json:"customIntervalWeeks,omitempty" yaml:"custom_interval_weeks,omitempty"`
}

// Weekdays is a list of weekday indices, 0=Sunday .. 6=Saturday. It always
// encodes as JSON numbers but also decodes the numeric strings ("1") that
// browser forms store.
type Weekdays []int

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*w = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("weeklyDays: %w", err)
	}
	out := make(Weekdays, 0, len(raw))
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("weeklyDays: %s is neither a number nor a string", item)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("weeklyDays: %q is not a weekday index", s)
		}
		out = append(out, n)
	}
	*w = out
	return nil
}

// Event is a single calendar occurrence. Occurrences produced by recurrence
// expansion are independent records; nothing links them back to a series.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Date is the calendar day in yyyy-MM-dd form.
	Date string `json:"date"`

	// StartTime / EndTime are 12-hour wall clock strings ("9:30 AM").
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`

	Description string `json:"description,omitempty"`
	Color       Color  `json:"color,omitempty"`

	Recurrence       Recurrence        `json:"recurrence,omitempty"`
	RecurrenceDetail *RecurrenceDetail `json:"recurrenceDetail,omitempty"`
}

// IsRecurring reports whether the event was created under a recurrence rule.
func (e Event) IsRecurring() bool {
	return e.Recurrence != "" && e.Recurrence != RecurrenceNone
}

// HasWindow reports whether both start and end times are set.
func (e Event) HasWindow() bool {
	return e.StartTime != "" && e.EndTime != ""
}

// Key returns the identity used to match an event across snapshots.
//
// Records without an ID fall back to a title-date-start composite. The
// fallback only exists for legacy data and should not be relied on for new
// events.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return LegacyKey(e.Title, e.Date, e.StartTime)
}

// LegacyKey builds the composite identity used for records lacking an ID.
func LegacyKey(title, date, startTime string) string {
	return title + "-" + date + "-" + startTime
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.RecurrenceDetail != nil {
		d := *e.RecurrenceDetail
		d.WeeklyDays = slices.Clone(e.RecurrenceDetail.WeeklyDays)
		out.RecurrenceDetail = &d
	}
	return out
}

// CloneEvents deep-copies a snapshot.
func CloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	for i, ev := range events {
		out[i] = ev.Clone()
	}
	return out
}
