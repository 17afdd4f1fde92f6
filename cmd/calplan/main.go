package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"calplan/internal/calendar"
	"calplan/internal/config"
	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand, opened before the command
// runs and closed after it.
type app struct {
	configPath string
	envFiles   []string

	cfg   *config.Config
	store store.Store
	book  *calendar.Book
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "calplan",
		Short: "calplan - a personal calendar with recurring events and drag-to-reschedule",
		Long: `calplan keeps a personal calendar: it expands recurring events into
independent occurrences, blocks overlapping events, and reschedules single
occurrences, detaching them from their series when asked.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "Path to config file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading config")

	root.AddCommand(
		newServeCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newMoveCmd(a),
		newEditCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "calplan.yaml"
	}
	return filepath.Join(dir, "calplan", "config.yaml")
}

func (a *app) open(ctx context.Context) error {
	if len(a.envFiles) > 0 {
		if err := config.LoadEnvFiles(a.envFiles...); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", a.configPath)
		return err
	}
	a.cfg = cfg
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	appLog.Debug("effective config",
		"config_path", a.configPath,
		"listen", cfg.Listen,
		"store_driver", cfg.Store.Driver,
		"store_path", cfg.Store.Path,
		"export_cron", cfg.Export.Cron,
		"fuzzy_search", cfg.FuzzySearch,
	)

	st, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return err
	}
	a.store = st
	a.book = calendar.New(st, calendar.WithFuzzyThreshold(cfg.FuzzyThreshold))
	return a.book.Load(ctx)
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := store.Close(a.store)
	a.store = nil
	return err
}

// lookup finds an event by ID (or legacy key) for the commands that take one.
func (a *app) lookup(key string) (model.Event, error) {
	ev, ok := a.book.Get(key)
	if !ok {
		return model.Event{}, fmt.Errorf("no event with id %q", key)
	}
	return ev, nil
}

func printEvents(w io.Writer, events []model.Event) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ev.Date, window(ev), ev.Title, describeTags(ev), ev.Key())
	}
	_ = tw.Flush()
}

func window(ev model.Event) string {
	switch {
	case ev.HasWindow():
		return ev.StartTime + " - " + ev.EndTime
	case ev.StartTime != "":
		return ev.StartTime
	default:
		return "all day"
	}
}

func describeTags(ev model.Event) string {
	tags := []string{string(ev.Color.Normalized())}
	if ev.IsRecurring() {
		tags = append(tags, string(ev.Recurrence))
	}
	return "[" + strings.Join(tags, ",") + "]"
}
