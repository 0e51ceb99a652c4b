package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cimillas/odl-lending/internal/config"
	"github.com/cimillas/odl-lending/internal/logging"
)

const startupTimeout = 5 * time.Second

type process struct {
	cfg config.Config
	log zerolog.Logger
}

func load(c *cli.Context) (process, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return process{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return process{}, fmt.Errorf("invalid config: %w", err)
	}
	return process{cfg: cfg, log: logging.New(cfg.Log, os.Stderr)}, nil
}

func (rt process) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	pgCfg, err := pgxpool.ParseConfig(rt.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if rt.cfg.Database.MaxConns > 0 {
		pgCfg.MaxConns = rt.cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return pool, nil
}
