package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	appLog "calplan/internal/log"
	"calplan/internal/schedule"
)

// promptDetach asks on the terminal whether a recurring occurrence may leave
// its series. Tests replace it.
var promptDetach = func(title string) bool {
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("%q is part of a recurring series.", title)).
		Description("Move only this occurrence? It will become a separate event.").
		Affirmative("Move it").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		appLog.Warn("detach prompt aborted", "err", err)
		return false
	}
	return ok
}

func newMoveCmd(a *app) *cobra.Command {
	var yes, no bool

	cmd := &cobra.Command{
		Use:   "move <id> <date> [start]",
		Short: "Reschedule one occurrence, keeping its duration",
		Long: `Move one occurrence to another date and optionally another start time.
Without a start time the event keeps its current time.
Moving an occurrence of a recurring series detaches it into a standalone
event; you are asked first unless --yes or --no is given.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			start := ""
			if len(args) == 3 {
				start = args[2]
			}

			confirm := func(title string) bool {
				switch {
				case yes:
					return true
				case no:
					return false
				}
				return promptDetach(title)
			}

			plan, err := a.book.Move(cmd.Context(), schedule.MoveOf(ev, args[1], start), confirm)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch plan.State {
			case schedule.StateRejectedNoop:
				fmt.Fprintf(out, "%q is already there, nothing to do\n", ev.Title)
			case schedule.StateRejectedConflict:
				c := plan.Conflicts[0]
				return fmt.Errorf("cannot move %q: conflicts with %q (%s - %s)", ev.Title, c.Title, c.StartTime, c.EndTime)
			case schedule.StateAborted:
				fmt.Fprintln(out, "move cancelled")
			case schedule.StateDetached:
				fmt.Fprintf(out, "detached %q from its series and moved it to %s %s (new id %s)\n",
					ev.Title, plan.Created.Date, plan.Created.StartTime, plan.Created.ID)
			case schedule.StateAppliedInPlace:
				fmt.Fprintf(out, "moved %q to %s %s\n", ev.Title, plan.Updated.Date, plan.Updated.StartTime)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Detach recurring occurrences without asking")
	cmd.Flags().BoolVar(&no, "no", false, "Never detach recurring occurrences")
	cmd.MarkFlagsMutuallyExclusive("yes", "no")
	return cmd
}
