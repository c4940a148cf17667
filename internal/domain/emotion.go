package domain

import (
	"strings"
	"time"
)

// Modality indica el tipo de medio analizado.
type Modality string

const (
	ModalityVoice Modality = "voice"
	ModalityFace  Modality = "face"
	ModalityChat  Modality = "chat"
)

// ParseCaptureModality acepta solo las modalidades que tienen dispositivo de captura.
func ParseCaptureModality(raw string) (Modality, bool) {
	switch Modality(strings.ToLower(strings.TrimSpace(raw))) {
	case ModalityVoice:
		return ModalityVoice, true
	case ModalityFace:
		return ModalityFace, true
	default:
		return "", false
	}
}

// Vocabulario canonico de emociones (7 clases).
const (
	EmotionAnger    = "anger"
	EmotionDisgust  = "disgust"
	EmotionFear     = "fear"
	EmotionHappy    = "happy"
	EmotionSad      = "sad"
	EmotionSurprise = "surprise"
	EmotionNeutral  = "neutral"
)

// labelAliases traduce las etiquetas de cada modelo al vocabulario canonico.
var labelAliases = map[string]string{
	// voz (wav2vec2 superb-er)
	"ang": EmotionAnger,
	"hap": EmotionHappy,
	"neu": EmotionNeutral,
	"sad": EmotionSad,
	// rostro (DeepFace)
	"angry":    EmotionAnger,
	"disgust":  EmotionDisgust,
	"fear":     EmotionFear,
	"happy":    EmotionHappy,
	"surprise": EmotionSurprise,
	"neutral":  EmotionNeutral,
	// texto
	"anger":    EmotionAnger,
	"joy":      EmotionHappy,
	"sadness":  EmotionSad,
	"optimism": EmotionHappy,
	"love":     EmotionHappy,
}

// CanonicalEmotion normaliza una etiqueta cruda. Desconocidas caen en neutral.
func CanonicalEmotion(label string) string {
	if canonical, ok := labelAliases[strings.ToLower(strings.TrimSpace(label))]; ok {
		return canonical
	}
	return EmotionNeutral
}

// Sample es una muestra binaria puntual: un frame de imagen o un clip de audio.
// Se consume una sola vez y no se conserva.
type Sample struct {
	ID          string
	Modality    Modality
	Payload     []byte
	ContentType string
	CapturedAt  time.Time
	// NoSubject marca un tick sin sujeto detectable (sin rostro, sin audio).
	NoSubject bool
}

type EmotionScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// StressLevel es el nivel derivado de la tabla de interpretacion.
type StressLevel string

const (
	StressHigh     StressLevel = "high"
	StressMedium   StressLevel = "medium"
	StressLow      StressLevel = "low"
	StressBalanced StressLevel = "balanced"
)

// Interpretation es la lectura humana derivada de la etiqueta dominante.
type Interpretation struct {
	Level       StressLevel `json:"level"`
	Message     string      `json:"message"`
	Emoji       string      `json:"emoji"`
	BotTone     string      `json:"bot_tone"`
	PlaylistKey string      `json:"playlist_key"`
}

// EmotionEvent es inmutable; solo se agrega al log persistido.
type EmotionEvent struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Modality       Modality       `json:"modality"`
	DominantLabel  string         `json:"dominant_label"`
	Emotion        string         `json:"emotion"`
	Confidence     float64        `json:"confidence"`
	Scores         []EmotionScore `json:"scores,omitempty"`
	Interpretation Interpretation `json:"interpretation"`
	ChatMessage    string         `json:"chat_message,omitempty"`
	BotResponse    string         `json:"bot_response,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DominantMood resume la emocion mas frecuente de una ventana de eventos.
type DominantMood struct {
	Mood  string `json:"mood"`
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}
