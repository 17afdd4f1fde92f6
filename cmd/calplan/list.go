package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"calplan/internal/calendar"
	"calplan/internal/model"
)

func newListCmd(a *app) *cobra.Command {
	var (
		date   string
		query  string
		colors []string
		fuzzy  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events, optionally filtered by date, text and color",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := calendar.Filter{Query: query, Date: date, Fuzzy: a.cfg.FuzzySearch}
			if cmd.Flags().Changed("fuzzy") {
				filter.Fuzzy = fuzzy
			}
			for _, c := range colors {
				col := model.Color(c)
				if !col.Valid() {
					return fmt.Errorf("unknown color %q", c)
				}
				filter.Colors = append(filter.Colors, col)
			}

			var events []model.Event
			if date != "" && query == "" && len(filter.Colors) == 0 {
				events = a.book.OnDate(date)
			} else {
				events = a.book.Search(filter)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if events == nil {
					events = []model.Event{}
				}
				return enc.Encode(events)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no events")
				return nil
			}
			printEvents(out, events)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&date, "date", "", "Only events on this date (yyyy-MM-dd)")
	fs.StringVarP(&query, "query", "q", "", "Match title or description")
	fs.StringSliceVar(&colors, "color", nil, "Only these colors (repeatable or comma separated)")
	fs.BoolVar(&fuzzy, "fuzzy", false, "Also match titles with typos (defaults to config fuzzy_search)")
	fs.BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
