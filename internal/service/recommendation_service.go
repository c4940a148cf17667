package service

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sentio/internal/domain"
)

//go:embed recommendations.yaml
var defaultCatalogYAML []byte

const fallbackPlaylistKey = "pop"

type catalogEntry struct {
	Music domain.MusicSuggestion `yaml:"music"`
	Video domain.VideoSuggestion `yaml:"video"`
	Quote domain.QuoteSuggestion `yaml:"quote"`
}

// RecommendationCatalog resuelve contenido estatico por clave de playlist.
type RecommendationCatalog struct {
	entries map[string]catalogEntry
}

// LoadRecommendationCatalog lee el catalogo desde path, o usa el embebido si path esta vacio.
func LoadRecommendationCatalog(path string) (*RecommendationCatalog, error) {
	data := defaultCatalogYAML
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		data = raw
	}
	return ParseRecommendationCatalog(data)
}

func ParseRecommendationCatalog(data []byte) (*RecommendationCatalog, error) {
	entries := make(map[string]catalogEntry)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if _, ok := entries[fallbackPlaylistKey]; !ok {
		return nil, fmt.Errorf("catalog must define %q entry", fallbackPlaylistKey)
	}
	return &RecommendationCatalog{entries: entries}, nil
}

// rawPlaylistKeys resuelve etiquetas de texto que el vocabulario canonico funde
// con otra emocion pero tienen contenido propio.
var rawPlaylistKeys = map[string]string{
	"optimism": "empowering",
}

// ForMood acepta etiquetas de cualquier modelo (joy, hap, angry...) y devuelve la recomendacion.
func (c *RecommendationCatalog) ForMood(mood string) domain.Recommendation {
	emotion := domain.CanonicalEmotion(mood)
	key, raw := rawPlaylistKeys[strings.ToLower(strings.TrimSpace(mood))]
	if !raw {
		key = PlaylistKey(emotion)
	}
	entry, ok := c.entries[key]
	if !ok {
		entry = c.entries[fallbackPlaylistKey]
	}
	return domain.Recommendation{
		Mood:  emotion,
		Music: entry.Music,
		Video: entry.Video,
		Quote: entry.Quote,
	}
}

// RecommendationTracker guarda la ultima recomendacion por usuario.
type RecommendationTracker struct {
	catalog *RecommendationCatalog

	mu     sync.RWMutex
	latest map[string]domain.Recommendation
}

func NewRecommendationTracker(catalog *RecommendationCatalog) *RecommendationTracker {
	return &RecommendationTracker{
		catalog: catalog,
		latest:  make(map[string]domain.Recommendation),
	}
}

func (t *RecommendationTracker) OnEmotion(event domain.EmotionEvent) {
	mood := event.Emotion
	if _, ok := rawPlaylistKeys[strings.ToLower(event.DominantLabel)]; ok {
		mood = event.DominantLabel
	}
	rec := t.catalog.ForMood(mood)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[event.UserID] = rec
}

func (t *RecommendationTracker) Current(userID string) (domain.Recommendation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.latest[userID]
	return rec, ok
}

// ToneTracker recuerda la ultima emocion de voz o rostro por usuario para el tono del chat.
type ToneTracker struct {
	mu     sync.RWMutex
	latest map[string]string
}

func NewToneTracker() *ToneTracker {
	return &ToneTracker{latest: make(map[string]string)}
}

func (t *ToneTracker) OnEmotion(event domain.EmotionEvent) {
	if event.Modality != domain.ModalityFace && event.Modality != domain.ModalityVoice {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[event.UserID] = event.Emotion
}

// Emotion devuelve "" cuando no hay lectura previa.
func (t *ToneTracker) Emotion(userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest[userID]
}
