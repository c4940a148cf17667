package service

import (
	"context"
	"time"

	"sentio/internal/domain"
	"sentio/internal/repository"
)

const DefaultDashboardWindow = 50

// DashboardPoint es un punto de la linea de tiempo del dashboard.
type DashboardPoint struct {
	Name      string          `json:"name"`
	Emotion   string          `json:"emotion"`
	Score     float64         `json:"score"`
	Modality  domain.Modality `json:"modality"`
	CreatedAt time.Time       `json:"created_at"`
}

// DashboardSnapshot es la vista compartida de los ultimos N eventos.
type DashboardSnapshot struct {
	Points       []DashboardPoint    `json:"points"`
	Distribution map[string]int      `json:"distribution"`
	DominantMood domain.DominantMood `json:"dominant_mood"`
	Total        int                 `json:"total"`
}

// DashboardService recalcula la vista desde la ventana visible; no guarda estado entre llamadas.
type DashboardService struct {
	events repository.EventRepository
	window int
}

func NewDashboardService(events repository.EventRepository, window int) *DashboardService {
	if window <= 0 {
		window = DefaultDashboardWindow
	}
	return &DashboardService{events: events, window: window}
}

func (s *DashboardService) Snapshot(ctx context.Context) (DashboardSnapshot, error) {
	events, err := s.events.ListRecent(ctx, s.window)
	if err != nil {
		return DashboardSnapshot{}, err
	}
	return BuildSnapshot(events), nil
}

// BuildSnapshot recibe eventos del mas nuevo al mas viejo y devuelve puntos en orden cronologico.
func BuildSnapshot(events []domain.EmotionEvent) DashboardSnapshot {
	snap := DashboardSnapshot{
		Points:       make([]DashboardPoint, 0, len(events)),
		Distribution: make(map[string]int),
		DominantMood: DominantMoodOf(events),
		Total:        len(events),
	}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		emotion := eventEmotion(ev)
		snap.Points = append(snap.Points, DashboardPoint{
			Name:      ev.CreatedAt.UTC().Format("15:04:05"),
			Emotion:   emotion,
			Score:     eventScore(ev),
			Modality:  ev.Modality,
			CreatedAt: ev.CreatedAt,
		})
		snap.Distribution[emotion]++
	}
	return snap
}

var moodEmojis = map[string]string{
	domain.EmotionHappy:    "😊",
	domain.EmotionSad:      "😟",
	domain.EmotionAnger:    "😡",
	domain.EmotionFear:     "😨",
	domain.EmotionSurprise: "😲",
	domain.EmotionDisgust:  "🤢",
	domain.EmotionNeutral:  "😐",
}

// DominantMoodOf devuelve la emocion mas frecuente de la ventana (eventos del mas nuevo al mas viejo).
// En empate gana la emocion que aparece primero, es decir la mas reciente.
func DominantMoodOf(events []domain.EmotionEvent) domain.DominantMood {
	if len(events) == 0 {
		return domain.DominantMood{Mood: "N/A", Emoji: "📊"}
	}

	counts := make(map[string]int)
	var order []string
	for _, ev := range events {
		emotion := eventEmotion(ev)
		if _, seen := counts[emotion]; !seen {
			order = append(order, emotion)
		}
		counts[emotion]++
	}

	best := order[0]
	for _, emotion := range order[1:] {
		if counts[emotion] > counts[best] {
			best = emotion
		}
	}

	emoji, ok := moodEmojis[best]
	if !ok {
		emoji = "📊"
	}
	return domain.DominantMood{Mood: best, Emoji: emoji, Count: counts[best]}
}

func eventEmotion(ev domain.EmotionEvent) string {
	if ev.Emotion != "" {
		return ev.Emotion
	}
	return domain.CanonicalEmotion(ev.DominantLabel)
}

func eventScore(ev domain.EmotionEvent) float64 {
	if ev.Modality == domain.ModalityChat {
		return 1.0
	}
	if ev.Confidence > 0 {
		return ev.Confidence
	}
	best := 0.0
	for _, s := range ev.Scores {
		if s.Score > best {
			best = s.Score
		}
	}
	if best == 0 {
		return 0.5
	}
	return best
}
