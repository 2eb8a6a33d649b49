package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// DatabaseConfig конфигурация БД. Поля без тегов: envconfig иначе
// подставляет голые USER/NAME из окружения.
type DatabaseConfig struct {
	Host     string `default:"localhost"`
	Port     int    `default:"5432"`
	User     string
	Password string
	Name     string `default:"spectrum-db"`
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Load загружает конфигурацию из окружения
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = getSSLMode(cfg.Environment)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate проверяет обязательные параметры
func (c *Config) validate() error {
	var err error

	if c.Database.User == "" {
		err = multierr.Append(err, errors.New("DB_USER is required"))
	}
	if c.Database.Password == "" && c.IsProduction() {
		err = multierr.Append(err, errors.New("DB_PASSWORD is required in production"))
	}
	if c.IsProduction() && c.Database.SSLMode == "disable" {
		err = multierr.Append(err, errors.New("DB_SSLMODE=disable is not allowed in production"))
	}
	if c.RebuildHorizonDays < 1 || c.RebuildHorizonDays > 366 {
		err = multierr.Append(err, fmt.Errorf("REBUILD_HORIZON_DAYS must be within 1..366, got %d", c.RebuildHorizonDays))
	}

	loc, locErr := time.LoadLocation(c.TimeZone)
	if locErr != nil {
		err = multierr.Append(err, fmt.Errorf("CLUB_TIMEZONE: %w", locErr))
	} else {
		c.location = loc
	}

	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// getSSLMode возвращает режим SSL в зависимости от окружения
func getSSLMode(env string) string {
	if env == "production" {
		return "require" // В продакшене всегда SSL
	}
	return "disable"
}
