package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config собирает все переменные окружения один раз при старте процесса.
// Компоненты получают его через конструкторы, а не читают окружение сами.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppURL string `env:"APP_URL" envDefault:"http://localhost:3000"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"social_poster"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	JWTSecret     string `env:"JWT_SECRET,required"`
	SessionSecret string `env:"SESSION_SECRET,required"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`

	InstagramClientID     string `env:"INSTAGRAM_CLIENT_ID,required"`
	InstagramClientSecret string `env:"INSTAGRAM_CLIENT_SECRET,required"`
	InstagramRedirectURI  string `env:"INSTAGRAM_REDIRECT_URI,required"`

	WebhookVerifyToken string `env:"WEBHOOK_VERIFY_TOKEN,required"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
