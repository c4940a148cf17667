package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sentio/internal/domain"
)

// EventRepository define el log append-only de eventos emocionales.
// No existen operaciones de update ni delete.
type EventRepository interface {
	Append(ctx context.Context, event domain.EmotionEvent) error
	// ListRecent devuelve los ultimos eventos de todos los usuarios, del mas nuevo al mas viejo.
	ListRecent(ctx context.Context, limit int) ([]domain.EmotionEvent, error)
	ListByUser(ctx context.Context, userID string, modality domain.Modality, limit int) ([]domain.EmotionEvent, error)
}

// PgEventRepository guarda cada evento como documento JSONB en Postgres.
type PgEventRepository struct {
	pool *pgxpool.Pool
}

func NewPgEventRepository(pool *pgxpool.Pool) *PgEventRepository {
	return &PgEventRepository{pool: pool}
}

func (r *PgEventRepository) Append(ctx context.Context, event domain.EmotionEvent) error {
	const query = `
		INSERT INTO emotion_events (
			id, user_id, analysis_type, dominant_label, emotion, confidence, scores, interpretation, chat_message, bot_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	scores, err := json.Marshal(event.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	interpretation, err := json.Marshal(event.Interpretation)
	if err != nil {
		return fmt.Errorf("marshal interpretation: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		event.ID,
		event.UserID,
		string(event.Modality),
		event.DominantLabel,
		event.Emotion,
		event.Confidence,
		scores,
		interpretation,
		event.ChatMessage,
		event.BotResponse,
		event.CreatedAt,
	)
	return err
}

func (r *PgEventRepository) ListRecent(ctx context.Context, limit int) ([]domain.EmotionEvent, error) {
	const query = `
		SELECT id, user_id, analysis_type, dominant_label, emotion, confidence, scores, interpretation, chat_message, bot_response, created_at
		FROM emotion_events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (r *PgEventRepository) ListByUser(ctx context.Context, userID string, modality domain.Modality, limit int) ([]domain.EmotionEvent, error) {
	const query = `
		SELECT id, user_id, analysis_type, dominant_label, emotion, confidence, scores, interpretation, chat_message, bot_response, created_at
		FROM emotion_events
		WHERE user_id = $1 AND ($2 = '' OR analysis_type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, userID, string(modality), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.EmotionEvent, error) {
	defer rows.Close()

	var events []domain.EmotionEvent
	for rows.Next() {
		var (
			ev             domain.EmotionEvent
			modality       string
			scores         []byte
			interpretation []byte
		)
		err := rows.Scan(
			&ev.ID,
			&ev.UserID,
			&modality,
			&ev.DominantLabel,
			&ev.Emotion,
			&ev.Confidence,
			&scores,
			&interpretation,
			&ev.ChatMessage,
			&ev.BotResponse,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		ev.Modality = domain.Modality(modality)
		if len(scores) > 0 {
			if err := json.Unmarshal(scores, &ev.Scores); err != nil {
				return nil, fmt.Errorf("unmarshal scores: %w", err)
			}
		}
		if len(interpretation) > 0 {
			if err := json.Unmarshal(interpretation, &ev.Interpretation); err != nil {
				return nil, fmt.Errorf("unmarshal interpretation: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// MemoryEventRepository mantiene el log en memoria; util para la CLI y tests.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events []domain.EmotionEvent
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{}
}

func (r *MemoryEventRepository) Append(_ context.Context, event domain.EmotionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *MemoryEventRepository) ListRecent(_ context.Context, limit int) ([]domain.EmotionEvent, error) {
	return r.filter(func(domain.EmotionEvent) bool { return true }, limit), nil
}

func (r *MemoryEventRepository) ListByUser(_ context.Context, userID string, modality domain.Modality, limit int) ([]domain.EmotionEvent, error) {
	return r.filter(func(ev domain.EmotionEvent) bool {
		return ev.UserID == userID && (modality == "" || ev.Modality == modality)
	}, limit), nil
}

func (r *MemoryEventRepository) filter(keep func(domain.EmotionEvent) bool, limit int) []domain.EmotionEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.EmotionEvent, 0, len(r.events))
	for _, ev := range r.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	// Orden estable por fecha descendente; a igual fecha, el ultimo agregado primero.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit = normalizeLimit(limit)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
