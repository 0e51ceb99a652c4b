package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/odl-lending/internal/ledger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Circulation.PendingLoanTTL)
	assert.Equal(t, 30*time.Second, cfg.Distributor.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.Reaper.Interval)
	assert.Equal(t, ledger.DefaultPeriods(), cfg.Circulation.Periods())
	assert.Equal(t, "ODL Lending", cfg.Distributor.DeviceName)
	assert.Zero(t, cfg.Circulation.LoanLimit)
	assert.Nil(t, cfg.Circulation.HoldLimit)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odl.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[circulation]
loan_period_days = 14
pending_loan_ttl = "5m"
loan_limit = 3
hold_limit = 0

[distributor]
username = "library"
notification_url_template = "https://cm.example.org/odl/notify/{loan_id}"
`), 0o600))

	t.Setenv("ODL_DISTRIBUTOR__USERNAME", "override")
	t.Setenv("ODL_DATABASE__URL", "postgres://elsewhere/odl")
	t.Setenv("ODL_LOG__LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 14*24*time.Hour, cfg.Circulation.Periods().Loan)
	assert.Equal(t, 3*24*time.Hour, cfg.Circulation.Periods().Reservation)
	assert.Equal(t, 5*time.Minute, cfg.Circulation.PendingLoanTTL)
	assert.Equal(t, 3, cfg.Circulation.LoanLimit)
	require.NotNil(t, cfg.Circulation.HoldLimit)
	assert.Equal(t, 0, *cfg.Circulation.HoldLimit)
	assert.Equal(t, "override", cfg.Distributor.Username)
	assert.Equal(t, "https://cm.example.org/odl/notify/{loan_id}", cfg.Distributor.NotificationURLTemplate)
	assert.Equal(t, "postgres://elsewhere/odl", cfg.Database.URL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty database url", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"zero loan period", func(c *Config) { c.Circulation.LoanPeriodDays = 0 }, "loan_period_days"},
		{"negative reservation period", func(c *Config) { c.Circulation.ReservationPeriodDays = -1 }, "reservation_period_days"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"no workers", func(c *Config) { c.Reaper.MaxWorkers = 0 }, "max_workers"},
		{"negative loan limit", func(c *Config) { c.Circulation.LoanLimit = -1 }, "loan_limit"},
		{"negative hold limit", func(c *Config) { n := -2; c.Circulation.HoldLimit = &n }, "hold_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
