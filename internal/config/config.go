// Package config содержит логику чтения конфигурации кассы.
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultCardFeePercent = 3.0
	defaultSessionTTL     = 12 * time.Hour
)

// Config содержит параметры конфигурации кассы.
type Config struct {
	RunAddress     string        `env:"RUN_ADDRESS"`
	DatabaseURI    string        `env:"DATABASE_URI"`
	RedisAddress   string        `env:"REDIS_ADDRESS"`
	SessionSecret  string        `env:"SESSION_SECRET"`
	CardFeePercent float64       `env:"CARD_FEE_PERCENT"`
	DemoMode       bool          `env:"DEMO_MODE"`
	SessionTTL     time.Duration `env:"SESSION_TTL"`
	CORSOrigins    string        `env:"CORS_ORIGINS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for cart sessions; in-memory sessions when empty")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret for signing session cookies")
	flag.Float64Var(&cfg.CardFeePercent, "f", defaultCardFeePercent, "card payment surcharge, percent")
	flag.BoolVar(&cfg.DemoMode, "demo", false, "do not persist sales or decrement stock")
	flag.DurationVar(&cfg.SessionTTL, "ttl", defaultSessionTTL, "idle lifetime of a cart session")
	flag.StringVar(&cfg.CORSOrigins, "cors", "", "comma-separated origins allowed to call the API from a browser")

	flag.Parse()

	// env.Parse трогает только заданные переменные, поэтому значения флагов сохраняются.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if math.IsNaN(cfg.CardFeePercent) || math.IsInf(cfg.CardFeePercent, 0) {
		return nil, errors.New("card fee percent must be a finite number")
	}
	if cfg.CardFeePercent < 0 {
		return nil, errors.New("card fee percent must not be negative")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return cfg, nil
}

// CardFeeRate возвращает надбавку за оплату картой в виде доли (3 -> 0.03).
func (c *Config) CardFeeRate() decimal.Decimal {
	return decimal.NewFromFloat(c.CardFeePercent).Div(decimal.NewFromInt(100))
}

// AllowedOrigins возвращает список origin из CORS_ORIGINS без пустых элементов.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
