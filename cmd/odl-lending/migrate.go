package main

import (
	"github.com/urfave/cli/v2"

	"github.com/cimillas/odl-lending/migrations"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "List pending migrations without applying them"},
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

			if c.Bool("dry-run") {
				pending, err := migrations.Pending(c.Context, pool)
				if err != nil {
					return err
				}
				rt.log.Info().Strs("pending", pending).Msg("migrations not yet applied")
				return nil
			}

			applied, err := migrations.Apply(c.Context, pool)
			if err != nil {
				return err
			}
			rt.log.Info().Strs("applied", applied).Msg("migrations applied")
			return nil
		},
	}
}
