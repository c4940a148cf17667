package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sentio/internal/config"
)

// NewPool construye y devuelve un pool de conexiones configurado.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url not configured")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// Configuración razonable para ambientes iniciales.
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// Ping verifica conectividad con la base de datos.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS emotion_events (
	id             UUID PRIMARY KEY,
	user_id        TEXT NOT NULL,
	analysis_type  TEXT NOT NULL,
	dominant_label TEXT NOT NULL DEFAULT '',
	emotion        TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	scores         JSONB NOT NULL DEFAULT '[]'::jsonb,
	interpretation JSONB NOT NULL DEFAULT '{}'::jsonb,
	chat_message   TEXT NOT NULL DEFAULT '',
	bot_response   TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS emotion_events_created_at_idx ON emotion_events (created_at DESC);
CREATE INDEX IF NOT EXISTS emotion_events_user_type_idx ON emotion_events (user_id, analysis_type, created_at DESC);
`

// EnsureSchema crea la tabla del log de eventos si no existe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
