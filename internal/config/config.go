package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	ClassifierBaseURL string        `env:"CLASSIFIER_BASE_URL" envDefault:"http://127.0.0.1:5000"`
	ClassifierTimeout time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`

	FaceInterval  time.Duration `env:"FACE_INTERVAL" envDefault:"3s"`
	VoiceInterval time.Duration `env:"VOICE_INTERVAL" envDefault:"3s"`

	DashboardWindow int           `env:"DASHBOARD_WINDOW" envDefault:"50"`
	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`

	RecommendationsFile string `env:"RECOMMENDATIONS_FILE"`

	JWTSecret string `env:"JWT_SECRET"`

	ChatRateLimit  int           `env:"CHAT_RATE_LIMIT" envDefault:"30"`
	ChatRateWindow time.Duration `env:"CHAT_RATE_WINDOW" envDefault:"1m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannel  string `env:"REDIS_CHANNEL" envDefault:"sentio:events"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
