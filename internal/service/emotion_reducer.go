package service

import (
	"errors"
	"fmt"
	"math"

	"sentio/internal/domain"
)

var ErrNoScores = errors.New("no emotion scores")

// Umbrales de confianza de la tabla de interpretacion.
const (
	highConfidence   = 0.60
	mediumConfidence = 0.30
)

// EmotionReducer elige la etiqueta dominante y deriva su interpretacion.
// Es puro: no hace I/O ni guarda estado.
type EmotionReducer struct{}

// DefaultEmotionReducer permite uso directo sin instanciar.
var DefaultEmotionReducer = EmotionReducer{}

// Reduction es el resultado de reducir un conjunto de puntajes.
type Reduction struct {
	DominantLabel  string
	Emotion        string
	Confidence     float64
	Interpretation domain.Interpretation
}

// Reduce toma el arg-max por confianza. En empate gana la primera etiqueta del input.
func (r EmotionReducer) Reduce(scores []domain.EmotionScore) (Reduction, error) {
	best := -1
	for i, s := range scores {
		if math.IsNaN(s.Score) {
			continue
		}
		if best < 0 || s.Score > scores[best].Score {
			best = i
		}
	}
	if best < 0 {
		return Reduction{}, ErrNoScores
	}

	top := scores[best]
	confidence := clamp01(top.Score)
	return Reduction{
		DominantLabel:  top.Label,
		Emotion:        domain.CanonicalEmotion(top.Label),
		Confidence:     confidence,
		Interpretation: r.Interpret(top.Label, confidence),
	}, nil
}

type confidenceBucket int

const (
	bucketLow confidenceBucket = iota
	bucketMedium
	bucketHigh
)

func bucketFor(confidence float64) confidenceBucket {
	switch {
	case confidence > highConfidence:
		return bucketHigh
	case confidence > mediumConfidence:
		return bucketMedium
	default:
		return bucketLow
	}
}

var stressEmotions = map[string]struct{}{
	domain.EmotionAnger:   {},
	domain.EmotionFear:    {},
	domain.EmotionSad:     {},
	domain.EmotionDisgust: {},
}

var calmTemplates = map[string]string{
	domain.EmotionHappy:    "You seem happy and relaxed (%.1f%% happy). Keep enjoying the moment!",
	domain.EmotionNeutral:  "You seem calm and steady (%.1f%% neutral).",
	domain.EmotionSurprise: "You seem alert and engaged (%.1f%% surprise).",
}

const balancedMessage = "Your emotional state looks balanced. Keep checking in with yourself."

// Interpret aplica la tabla (etiqueta canonica, bucket de confianza) -> mensaje y nivel.
func (EmotionReducer) Interpret(label string, confidence float64) domain.Interpretation {
	emotion := domain.CanonicalEmotion(label)
	confidence = clamp01(confidence)
	pct := confidence * 100

	out := domain.Interpretation{
		Level:       domain.StressBalanced,
		Message:     balancedMessage,
		Emoji:       EmotionEmoji(emotion),
		BotTone:     BotTone(emotion),
		PlaylistKey: PlaylistKey(emotion),
	}

	bucket := bucketFor(confidence)
	if bucket == bucketLow {
		return out
	}

	if _, stressed := stressEmotions[emotion]; stressed {
		if bucket == bucketHigh {
			out.Level = domain.StressHigh
			out.Message = fmt.Sprintf("High stress detected: %s at %.1f%%. Consider a short break or a breathing exercise.", emotion, pct)
		} else {
			out.Level = domain.StressMedium
			out.Message = fmt.Sprintf("Moderate stress signals: %s at %.1f%%. Stay mindful of how you feel.", emotion, pct)
		}
		return out
	}

	out.Level = domain.StressLow
	out.Message = fmt.Sprintf(calmTemplates[emotion], pct)
	return out
}

var emotionEmojis = map[string]string{
	domain.EmotionAnger:    "😠",
	domain.EmotionDisgust:  "🤢",
	domain.EmotionFear:     "😨",
	domain.EmotionHappy:    "😊",
	domain.EmotionSad:      "😢",
	domain.EmotionSurprise: "😲",
	domain.EmotionNeutral:  "😐",
}

// EmotionEmoji devuelve el emoji de una emocion canonica.
func EmotionEmoji(emotion string) string {
	if e, ok := emotionEmojis[emotion]; ok {
		return e
	}
	return "🤖"
}

var botTones = map[string]string{
	domain.EmotionHappy:    "cheerful and uplifting",
	domain.EmotionSad:      "empathetic and comforting",
	domain.EmotionAnger:    "calm and reassuring",
	domain.EmotionFear:     "soothing and supportive",
	domain.EmotionDisgust:  "patient and understanding",
	domain.EmotionSurprise: "curious and engaging",
}

// BotTone devuelve el tono que deberia usar el chatbot.
func BotTone(emotion string) string {
	if tone, ok := botTones[emotion]; ok {
		return tone
	}
	return "neutral"
}

var playlistKeys = map[string]string{
	domain.EmotionHappy:    "happy",
	domain.EmotionSad:      "sad",
	domain.EmotionAnger:    "chill",
	domain.EmotionDisgust:  "chill",
	domain.EmotionFear:     "calm",
	domain.EmotionSurprise: "empowering",
}

// PlaylistKey elige la entrada del catalogo de recomendaciones.
func PlaylistKey(emotion string) string {
	if key, ok := playlistKeys[emotion]; ok {
		return key
	}
	return "pop"
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
