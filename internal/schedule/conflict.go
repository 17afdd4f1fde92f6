package schedule

import (
	"calplan/internal/model"
	"calplan/internal/timeofday"
)

// FindConflicts returns every event in events that overlaps the candidate
// window [start, end) on date. excludeKey, when non-empty, skips the event
// whose Key matches it (the event being edited or moved).
//
// A candidate without a start or end time has no window and never conflicts.
// Existing events without a full window are ignored. Intervals are half-open,
// so an event ending at 5:00 PM does not conflict with one starting at 5:00 PM.
func FindConflicts(date, start, end string, events []model.Event, excludeKey string) ([]model.Event, error) {
	if start == "" || end == "" {
		return nil, nil
	}
	cs, err := timeofday.Parse(start)
	if err != nil {
		return nil, err
	}
	ce, err := timeofday.Parse(end)
	if err != nil {
		return nil, err
	}

	var out []model.Event
	for _, ev := range events {
		if ev.Date != date || !ev.HasWindow() {
			continue
		}
		if excludeKey != "" && ev.Key() == excludeKey {
			continue
		}
		es, err := timeofday.Parse(ev.StartTime)
		if err != nil {
			return nil, err
		}
		ee, err := timeofday.Parse(ev.EndTime)
		if err != nil {
			return nil, err
		}
		if overlaps(cs, ce, es, ee) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// CheckOccurrences runs FindConflicts for every candidate occurrence against
// existing and returns a *ConflictError for the first occurrence that hits.
func CheckOccurrences(candidates, existing []model.Event, excludeKey string) error {
	for _, occ := range candidates {
		conflicts, err := FindConflicts(occ.Date, occ.StartTime, occ.EndTime, existing, excludeKey)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return &ConflictError{Occurrence: occ, Conflicts: conflicts}
		}
	}
	return nil
}

// overlaps reports whether [s1, e1) and [s2, e2) intersect.
func overlaps(s1, e1, s2, e2 int) bool {
	return s1 < e2 && e1 > s2
}
