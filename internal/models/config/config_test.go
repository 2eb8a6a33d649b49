package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_USER", "spectrum-dev")
	t.Setenv("CLUB_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 56, cfg.RebuildHorizonDays)
	assert.Equal(t, "payment.exchange", cfg.Rabbit.Exchange)
	assert.Equal(t, "UTC", cfg.Location().String())
	assert.Contains(t, cfg.Database.DSN(), "user=spectrum-dev")
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")
	t.Setenv("CLUB_TIMEZONE", "Not/AZone")

	_, err := Load()
	require.Error(t, err)

	errs := multierr.Errors(errorsUnwrap(err))
	assert.Len(t, errs, 3)
	assert.Contains(t, err.Error(), "DB_USER is required")
	assert.Contains(t, err.Error(), "DB_PASSWORD is required in production")
	assert.Contains(t, err.Error(), "CLUB_TIMEZONE")
}

func TestProductionSSLDefaultsToRequire(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_USER", "club")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("CLUB_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.True(t, cfg.IsProduction())
}

func errorsUnwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return err
}
