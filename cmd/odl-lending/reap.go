package main

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/cimillas/odl-lending/internal/analytics"
	"github.com/cimillas/odl-lending/internal/app"
	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/storage/postgres"
)

func reapCommand() *cli.Command {
	return &cli.Command{
		Name:  "reap",
		Usage: "Expire lapsed reservations once and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "recalculate", Usage: "Also recompute every pool's hold queue"},
		},
		Action: func(c *cli.Context) error {
			rt, err := load(c)
			if err != nil {
				return err
			}
			pool, err := rt.openPool(c.Context)
			if err != nil {
				return err
			}
			defer pool.Close()

			reaper := app.NewHoldReaper(
				postgres.NewRepository(pool),
				clock.NewSystem(),
				analytics.NewLogSink(rt.log),
				rt.log,
				app.WithReaperPeriods(rt.cfg.Circulation.Periods()),
				app.WithPendingLoanTTL(rt.cfg.Circulation.PendingLoanTTL),
			)

			res, reapErr := reaper.RunOnce(c.Context)
			rt.log.Info().
				Int("expired_holds", res.ExpiredHolds).
				Int("released_loans", res.ReleasedLoans).
				Msg("reap finished")

			var recalcErr error
			if c.Bool("recalculate") {
				var n int
				n, recalcErr = reaper.RecalculateAll(c.Context)
				rt.log.Info().Int("pools", n).Msg("hold queues recalculated")
			}
			return errors.Join(reapErr, recalcErr)
		},
	}
}
