package service

import (
	"os"
	"path/filepath"
	"testing"

	"sentio/internal/domain"
)

func TestEmbeddedCatalogCoversEveryEmotion(t *testing.T) {
	catalog, err := LoadRecommendationCatalog("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, emotion := range []string{
		domain.EmotionAnger, domain.EmotionDisgust, domain.EmotionFear, domain.EmotionHappy,
		domain.EmotionSad, domain.EmotionSurprise, domain.EmotionNeutral,
	} {
		rec := catalog.ForMood(emotion)
		if rec.Music.Title == "" || rec.Quote.Text == "" {
			t.Fatalf("empty recommendation for %s: %+v", emotion, rec)
		}
	}
}

func TestCatalogForMoodAcceptsRawLabels(t *testing.T) {
	catalog, err := ParseRecommendationCatalog([]byte(`
happy:
  music: {title: Sunny, artist: A, link: "https://x/1"}
  quote: {text: smile, author: B}
pop:
  music: {title: Default, artist: C, link: "https://x/2"}
  quote: {text: hello, author: D}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec := catalog.ForMood("joy"); rec.Mood != domain.EmotionHappy || rec.Music.Title != "Sunny" {
		t.Fatalf("unexpected joy recommendation %+v", rec)
	}
	if rec := catalog.ForMood("angry"); rec.Music.Title != "Default" {
		t.Fatalf("missing key must fall back to pop, got %+v", rec)
	}
}

func TestCatalogRequiresFallback(t *testing.T) {
	if _, err := ParseRecommendationCatalog([]byte("happy: {}\n")); err == nil {
		t.Fatalf("expected error without pop entry")
	}
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("pop: {quote: {text: hi}}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRecommendationCatalog(path); err != nil {
		t.Fatalf("load from file: %v", err)
	}
}

func TestTrackersFollowEvents(t *testing.T) {
	catalog, _ := LoadRecommendationCatalog("")
	recs := NewRecommendationTracker(catalog)
	tones := NewToneTracker()

	if _, ok := recs.Current("u1"); ok {
		t.Fatalf("no recommendation expected before any event")
	}

	face := domain.EmotionEvent{UserID: "u1", Modality: domain.ModalityFace, Emotion: domain.EmotionSad}
	chat := domain.EmotionEvent{UserID: "u1", Modality: domain.ModalityChat, Emotion: domain.EmotionHappy}
	for _, ev := range []domain.EmotionEvent{face, chat} {
		recs.OnEmotion(ev)
		tones.OnEmotion(ev)
	}

	if rec, ok := recs.Current("u1"); !ok || rec.Mood != domain.EmotionHappy {
		t.Fatalf("expected latest recommendation for happy, got %+v", rec)
	}
	if got := tones.Emotion("u1"); got != domain.EmotionSad {
		t.Fatalf("chat events must not change the tone, got %q", got)
	}
}

func TestOptimismUsesEmpoweringContent(t *testing.T) {
	catalog, err := LoadRecommendationCatalog("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec := catalog.ForMood("optimism")
	if rec.Video.Title != "Motivational videos" {
		t.Fatalf("expected empowering entry for optimism, got %+v", rec)
	}
	if rec.Mood != domain.EmotionHappy {
		t.Fatalf("mood stays canonical, got %q", rec.Mood)
	}
	if joy := catalog.ForMood("joy"); joy.Video.Title == rec.Video.Title {
		t.Fatalf("joy must keep the happy entry")
	}

	recs := NewRecommendationTracker(catalog)
	recs.OnEmotion(domain.EmotionEvent{UserID: "u1", Modality: domain.ModalityChat, DominantLabel: "optimism", Emotion: domain.EmotionHappy})
	if cur, _ := recs.Current("u1"); cur.Video.Title != "Motivational videos" {
		t.Fatalf("tracker must keep the raw optimism label, got %+v", cur)
	}
}
