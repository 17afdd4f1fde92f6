// Package timeofday converts between 12-hour wall clock strings such as
// "9:30 AM" and minutes since midnight.
package timeofday

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of a calendar day in minutes.
const MinutesPerDay = 24 * 60

// FormatError reports a malformed time string.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("timeofday: invalid time %q: %s", e.Input, e.Reason)
}

// Parse converts "H:MM AM|PM" into minutes since midnight.
//
// 12:MM AM maps to 0..59 and 12:MM PM to 720..779. The marker is matched
// case-insensitively and surrounding whitespace is ignored.
func Parse(s string) (int, error) {
	clock, marker, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, &FormatError{Input: s, Reason: "missing AM/PM marker"}
	}
	marker = strings.ToUpper(strings.TrimSpace(marker))
	if marker != "AM" && marker != "PM" {
		return 0, &FormatError{Input: s, Reason: "marker must be AM or PM"}
	}

	hh, mm, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, &FormatError{Input: s, Reason: "missing ':' separator"}
	}
	if len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return 0, &FormatError{Input: s, Reason: "expected H:MM"}
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 1 || hour > 12 || !isDigits(hh) {
		return 0, &FormatError{Input: s, Reason: "hour must be 1-12"}
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || !isDigits(mm) {
		return 0, &FormatError{Input: s, Reason: "minute must be 00-59"}
	}

	hour %= 12
	if marker == "PM" {
		hour += 12
	}
	return hour*60 + minute, nil
}

// Format renders minutes since midnight in canonical "H:MM AM|PM" form.
// Values outside [0, 1440) wrap around the day.
func Format(minutes int) string {
	m := ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	hour, minute := m/60, m%60

	marker := "AM"
	if hour >= 12 {
		marker = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d %s", display, minute, marker)
}

// AddMinutes shifts a time string by delta minutes, wrapping at midnight.
func AddMinutes(t string, delta int) (string, error) {
	m, err := Parse(t)
	if err != nil {
		return "", err
	}
	return Format(m + delta), nil
}

// Duration returns end minus start in minutes.
func Duration(start, end string) (int, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, err
	}
	return e - s, nil
}

// Canonical re-renders a valid time string in canonical form, so that
// "09:05 am" and "9:05 AM" compare equal.
func Canonical(t string) (string, error) {
	m, err := Parse(t)
	if err != nil {
		return "", err
	}
	return Format(m), nil
}

// Slots lists every time of day at the given step, starting at midnight.
// A non-positive step defaults to 30 minutes.
func Slots(step int) []string {
	if step <= 0 {
		step = 30
	}
	out := make([]string, 0, MinutesPerDay/step+1)
	for m := 0; m < MinutesPerDay; m += step {
		out = append(out, Format(m))
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
