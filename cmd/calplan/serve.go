package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	appLog "calplan/internal/log"
	"calplan/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the scheduled ICS export, if configured)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			appLog.Info("calplan starting",
				"listen", a.cfg.Listen,
				"store_driver", a.cfg.Store.Driver,
				"events", len(a.book.Events()),
				"export_cron", a.cfg.Export.Cron,
			)

			g, gctx := errgroup.WithContext(ctx)
			srv := web.NewServer(a.cfg, a.book)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			if a.cfg.Export.Cron != "" {
				g.Go(func() error {
					return a.runExportSchedule(gctx)
				})
			}

			err := g.Wait()
			appLog.Info("calplan exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

// runExportSchedule writes the ICS export on the configured cron schedule
// until ctx is cancelled.
func (a *app) runExportSchedule(ctx context.Context) error {
	spec, path := a.cfg.Export.Cron, a.cfg.Export.Path

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { a.exportOnce(path) }); err != nil {
		return fmt.Errorf("invalid export cron %q: %w", spec, err)
	}

	appLog.Info("ics export scheduled", "cron", spec, "path", path)
	a.exportOnce(path)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (a *app) exportOnce(path string) {
	n, err := writeICS(a.book, a.cfg.Export.ProdID, path)
	if err != nil {
		appLog.Error("scheduled ics export failed", err, "path", path)
		return
	}
	appLog.Info("scheduled ics export written", "path", path, "events", n)
}
