package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"calplan/internal/ics"
	"calplan/internal/model"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Import events from an iCalendar file or http(s) feed",
		Long: `Import every VEVENT as a new event. Recurring events are expanded and
conflict-checked exactly like events added by hand; events that fail
validation or conflict are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]

			var body []byte
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				res, err := ics.NewFetcher(a.cfg.ImportCacheDir, nil).Fetch(cmd.Context(), src)
				if err != nil {
					return err
				}
				body = res.Body
			} else {
				data, err := os.ReadFile(src)
				if err != nil {
					return fmt.Errorf("read %s: %w", src, err)
				}
				body = data
			}

			parsed, err := ics.Parse(body)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			imported, skipped := 0, 0 // base events, not occurrences
			for _, ev := range parsed {
				if err := a.importOne(cmd, ev); err != nil {
					skipped++
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped %q on %s: %v\n", ev.Title, ev.Date, err)
					continue
				}
				imported++
			}

			fmt.Fprintf(out, "imported %d event(s), skipped %d\n", imported, skipped)
			return nil
		},
	}
}

// importOne fills in the default end date and creates ev through the book,
// so expansion and conflict checks apply.
func (a *app) importOne(cmd *cobra.Command, ev model.Event) error {
	ev, err := a.cfg.RecurrenceDefaults.ApplyDefaultEndDate(ev)
	if err != nil {
		return err
	}
	_, err = a.book.Create(cmd.Context(), ev)
	return err
}
