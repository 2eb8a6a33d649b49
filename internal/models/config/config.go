package config

import "time"

// Config основной конфиг
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	// Зона, в которой время шаблонов превращается в абсолютные моменты занятий
	TimeZone string `envconfig:"CLUB_TIMEZONE" default:"Europe/Moscow"`
	// На сколько дней вперед перестраивать расписание после правки шаблона
	RebuildHorizonDays int `envconfig:"REBUILD_HORIZON_DAYS" default:"56"`
	// HTTP API администратора, /metrics и /healthz
	HTTPAddr     string `envconfig:"HTTP_ADDR" default:":8080"`
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Database DatabaseConfig `envconfig:"DB"`
	Rabbit   RabbitConfig   `envconfig:"RABBIT"`
	Bot      BotConfig      `envconfig:"BOT"`

	location *time.Location
}

type RabbitConfig struct {
	URL                string
	Exchange           string `default:"payment.exchange"`
	Queue              string `default:"club.provisioning.q"`
	Prefetch           int    `default:"8"`
	DeadLetterExchange string `default:"payment.dlx" split_words:"true"`
}

// BotConfig - Telegram бот для уведомлений об исчерпанных абонементах
type BotConfig struct {
	Token string
	Debug bool
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location возвращает зону клуба. Валидна после Load.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
