package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"calplan/internal/model"
)

func newEditCmd(a *app) *cobra.Command {
	var f eventFlags

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit one stored event; other occurrences of its series are left alone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := a.lookup(args[0])
			if err != nil {
				return err
			}

			updated, err := a.book.Update(cmd.Context(), args[0], f.apply(cmd, ev))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "updated")
			printEvents(cmd.OutOrStdout(), []model.Event{updated})
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
