package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentio/internal/domain"
	"sentio/internal/feed"
	"sentio/internal/metrics"
	"sentio/internal/repository"
)

// StateSink recibe el resultado para el estado visible (UI) de forma sincronica.
// Devuelve false si el resultado ya no corresponde (sesion detenida).
type StateSink interface {
	Apply(event domain.EmotionEvent) bool
}

// Observer es un consumidor dependiente (tono del chat, recomendador).
type Observer interface {
	OnEmotion(event domain.EmotionEvent)
}

// ObserverFunc adapta una funcion a Observer.
type ObserverFunc func(event domain.EmotionEvent)

func (f ObserverFunc) OnEmotion(event domain.EmotionEvent) { f(event) }

// Publisher reparte cada resultado a UI, log persistido y observadores.
type Publisher struct {
	events         repository.EventRepository
	feed           feed.Feed
	logger         *zap.Logger
	persistTimeout time.Duration

	mu        sync.RWMutex
	observers []Observer

	inflight sync.WaitGroup
}

func NewPublisher(
	events repository.EventRepository,
	liveFeed feed.Feed,
	logger *zap.Logger,
	persistTimeout time.Duration,
	observers ...Observer,
) *Publisher {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &Publisher{
		events:         events,
		feed:           liveFeed,
		logger:         logger,
		persistTimeout: persistTimeout,
		observers:      observers,
	}
}

// Subscribe registra un observador adicional.
func (p *Publisher) Subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// Publish actualiza la UI, lanza la persistencia sin esperarla y notifica observadores.
// Un error al persistir se loguea y se descarta: nunca revierte ni bloquea la UI.
// Si la UI rechaza el resultado no se persiste ni se notifica.
func (p *Publisher) Publish(ctx context.Context, event domain.EmotionEvent, ui StateSink) {
	if ui != nil && !ui.Apply(event) {
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.persist(context.WithoutCancel(ctx), event)
	}()

	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		o.OnEmotion(event)
	}
}

// Wait bloquea hasta que terminan las escrituras pendientes.
func (p *Publisher) Wait() {
	p.inflight.Wait()
}

func (p *Publisher) persist(ctx context.Context, event domain.EmotionEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PersistFailures.Inc()
			p.logger.Error("event persist panic", zap.Any("panic", r), zap.String("event_id", event.ID))
		}
	}()
	if p.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.persistTimeout)
	defer cancel()

	if err := p.events.Append(ctx, event); err != nil {
		metrics.PersistFailures.Inc()
		p.logger.Warn("event persist failed",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("user_id", event.UserID),
			zap.String("modality", string(event.Modality)),
		)
		return
	}

	if p.feed == nil {
		return
	}
	if err := p.feed.Publish(ctx, event); err != nil {
		p.logger.Warn("feed publish failed", zap.Error(err), zap.String("event_id", event.ID))
	}
}

// NewEmotionEvent arma el evento inmutable a partir de una reduccion.
func NewEmotionEvent(userID string, modality domain.Modality, scores []domain.EmotionScore, r Reduction, now time.Time) domain.EmotionEvent {
	return domain.EmotionEvent{
		ID:             uuid.NewString(),
		UserID:         userID,
		Modality:       modality,
		DominantLabel:  r.DominantLabel,
		Emotion:        r.Emotion,
		Confidence:     r.Confidence,
		Scores:         append([]domain.EmotionScore(nil), scores...),
		Interpretation: r.Interpretation,
		CreatedAt:      now.UTC(),
	}
}

// FormatConfidence muestra la confianza como porcentaje con un decimal.
func FormatConfidence(confidence float64) string {
	return fmt.Sprintf("%.1f%%", clamp01(confidence)*100)
}
