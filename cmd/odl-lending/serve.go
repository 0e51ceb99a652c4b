package main

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cimillas/odl-lending/internal/analytics"
	"github.com/cimillas/odl-lending/internal/app"
	"github.com/cimillas/odl-lending/internal/clock"
	"github.com/cimillas/odl-lending/internal/jobs"
	"github.com/cimillas/odl-lending/internal/lsd"
	"github.com/cimillas/odl-lending/internal/storage/postgres"
	transporthttp "github.com/cimillas/odl-lending/internal/transport/http"
	"github.com/cimillas/odl-lending/migrations"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve distributor notifications and run the hold queue jobs",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Usage: "Apply migrations before starting", Value: true},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	rt, err := load(c)
	if err != nil {
		return err
	}
	log := rt.log

	pool, err := rt.openPool(c.Context)
	if err != nil {
		return err
	}
	defer pool.Close()

	if c.Bool("migrate") {
		if _, err := migrations.Apply(c.Context, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	clk := clock.NewSystem()
	repo := postgres.NewRepository(pool)
	sink := analytics.NewLogSink(log)
	periods := rt.cfg.Circulation.Periods()

	dist := rt.cfg.Distributor
	client := lsd.NewClient(lsd.Config{
		Username:                dist.Username,
		Password:                dist.Password,
		NotificationURLTemplate: dist.NotificationURLTemplate,
		PassphraseHint:          dist.PassphraseHint,
		PassphraseHintURL:       dist.PassphraseHintURL,
		DeviceName:              dist.DeviceName,
		LoanPeriod:              periods.Loan,
		Timeout:                 dist.RequestTimeout,
		RequestsPerSecond:       dist.RequestsPerSecond,
		Burst:                   dist.Burst,
	}, log, lsd.WithClock(clk))

	circOpts := []app.CirculationOption{
		app.WithLoanPeriod(periods.Loan),
		app.WithReservationPeriod(periods.Reservation),
		app.WithLoanLimit(rt.cfg.Circulation.LoanLimit),
	}
	if limit := rt.cfg.Circulation.HoldLimit; limit != nil {
		circOpts = append(circOpts, app.WithHoldLimit(*limit))
	}
	circulation := app.NewCirculationService(repo, client, clk, sink, log, circOpts...)
	reaper := app.NewHoldReaper(repo, clk, sink, log,
		app.WithReaperPeriods(periods),
		app.WithPendingLoanTTL(rt.cfg.Circulation.PendingLoanTTL),
	)

	queue, err := jobs.NewQueue(pool, reaper, rt.cfg.Reaper, log)
	if err != nil {
		return err
	}

	stopCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := queue.Start(stopCtx); err != nil {
		return err
	}

	e := transporthttp.NewServer(circulation, pool, log)
	addr := fmt.Sprintf(":%d", rt.cfg.Server.Port)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- e.Start(addr)
	}()
	log.Info().Str("addr", addr).Msg("listening")

	var runErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			runErr = fmt.Errorf("server: %w", err)
		}
	case <-stopCtx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), rt.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("job queue shutdown")
	}
	log.Info().Msg("stopped")
	return runErr
}
