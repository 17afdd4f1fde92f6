package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"calplan/internal/model"
)

// eventFlags are the form fields shared by add and edit.
type eventFlags struct {
	title       string
	date        string
	start       string
	end         string
	description string
	color       string
	repeat      string
	days        []int
	until       string
	every       int
}

func (f *eventFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.title, "title", "", "Event title")
	fs.StringVar(&f.date, "date", "", "Date (yyyy-MM-dd)")
	fs.StringVar(&f.start, "start", "", `Start time, e.g. "9:00 AM"`)
	fs.StringVar(&f.end, "end", "", `End time, e.g. "10:30 AM"`)
	fs.StringVar(&f.description, "description", "", "Free-form description")
	fs.StringVar(&f.color, "color", "", "Color: default, blue, green, red, yellow")
	fs.StringVar(&f.repeat, "repeat", "", "Recurrence: none, daily, weekly, monthly, custom")
	fs.IntSliceVar(&f.days, "days", nil, "Weekdays for weekly events (0=Sun..6=Sat), e.g. 1,3")
	fs.StringVar(&f.until, "until", "", "Last date of a recurring event (yyyy-MM-dd); defaults per recurrence")
	fs.IntVar(&f.every, "every", 0, "Interval in weeks for custom recurrence")
}

// apply copies the flags the user actually set onto ev.
func (f *eventFlags) apply(cmd *cobra.Command, ev model.Event) model.Event {
	changed := cmd.Flags().Changed
	if changed("title") {
		ev.Title = f.title
	}
	if changed("date") {
		ev.Date = f.date
	}
	if changed("start") {
		ev.StartTime = f.start
	}
	if changed("end") {
		ev.EndTime = f.end
	}
	if changed("description") {
		ev.Description = f.description
	}
	if changed("color") {
		ev.Color = model.Color(f.color)
	}
	if changed("repeat") {
		ev.Recurrence = model.Recurrence(f.repeat)
	}

	if !ev.IsRecurring() {
		ev.RecurrenceDetail = nil
		return ev
	}
	detail := model.RecurrenceDetail{}
	if ev.RecurrenceDetail != nil {
		detail = *ev.RecurrenceDetail
	}
	if changed("days") {
		detail.WeeklyDays = f.days
	}
	if changed("until") {
		detail.EndDate = f.until
	}
	if changed("every") {
		detail.CustomIntervalWeeks = f.every
	}
	ev.RecurrenceDetail = &detail
	return ev
}

func newAddCmd(a *app) *cobra.Command {
	var f eventFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event, expanding it under its recurrence rule",
		Example: `  calplan add --title Standup --date 2025-06-02 --start "9:00 AM" --end "9:15 AM" \
    --repeat weekly --days 1,3 --until 2025-06-30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := a.cfg.RecurrenceDefaults.ApplyDefaultEndDate(f.apply(cmd, model.Event{}))
			if err != nil {
				return err
			}

			created, err := a.book.Create(cmd.Context(), ev)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d event(s)\n", len(created))
			printEvents(out, created)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
