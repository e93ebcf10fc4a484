package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var syncCommand = &cli.Command{
	Name:   "sync",
	Usage:  "Run one sync cycle and exit",
	Action: cmdSync,
}

func cmdSync(ctx *cli.Context) error {
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.sync.SyncNow(ctx.Context)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	_, _ = fmt.Fprintf(ctx.App.Writer, "Listed %d, fetched %d, inserted %d, %d conversations changed\n",
		res.Listed, res.Fetched, res.Reconciled.Inserted, len(res.ChangedKeys()))
	if res.FetchFailures+res.DecodeFailures > 0 {
		_, _ = fmt.Fprintf(ctx.App.Writer, "Skipped %d messages that failed to fetch and %d that failed to decode\n",
			res.FetchFailures, res.DecodeFailures)
	}
	return nil
}
