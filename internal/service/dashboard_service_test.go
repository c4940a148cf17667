package service

import (
	"context"
	"testing"
	"time"

	"sentio/internal/domain"
	"sentio/internal/repository"
)

func eventAt(emotion string, modality domain.Modality, confidence float64, at time.Time) domain.EmotionEvent {
	return domain.EmotionEvent{
		ID:         emotion + at.Format(time.RFC3339Nano),
		UserID:     "u1",
		Modality:   modality,
		Emotion:    emotion,
		Confidence: confidence,
		CreatedAt:  at,
	}
}

func TestDominantMoodEmptyWindow(t *testing.T) {
	got := DominantMoodOf(nil)
	if got.Mood != "N/A" || got.Emoji != "📊" {
		t.Fatalf("unexpected empty mood %+v", got)
	}
}

func TestDominantMoodMostFrequentThenMostRecent(t *testing.T) {
	now := time.Now()
	// del mas nuevo al mas viejo
	events := []domain.EmotionEvent{
		eventAt(domain.EmotionSad, domain.ModalityFace, 0.5, now),
		eventAt(domain.EmotionHappy, domain.ModalityFace, 0.5, now.Add(-time.Second)),
		eventAt(domain.EmotionHappy, domain.ModalityFace, 0.5, now.Add(-2*time.Second)),
		eventAt(domain.EmotionSad, domain.ModalityFace, 0.5, now.Add(-3*time.Second)),
	}
	got := DominantMoodOf(events)
	if got.Mood != domain.EmotionSad || got.Count != 2 {
		t.Fatalf("tie must go to the most recent emotion, got %+v", got)
	}

	events = append(events, eventAt(domain.EmotionAnger, domain.ModalityVoice, 0.5, now.Add(-4*time.Second)),
		eventAt(domain.EmotionAnger, domain.ModalityVoice, 0.5, now.Add(-5*time.Second)),
		eventAt(domain.EmotionAnger, domain.ModalityVoice, 0.5, now.Add(-6*time.Second)))
	got = DominantMoodOf(events)
	if got.Mood != domain.EmotionAnger || got.Emoji != "😡" {
		t.Fatalf("expected anger, got %+v", got)
	}
}

func TestBuildSnapshotChronologicalPoints(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	events := []domain.EmotionEvent{
		eventAt(domain.EmotionHappy, domain.ModalityChat, 0.2, base.Add(2*time.Second)),
		eventAt(domain.EmotionFear, domain.ModalityVoice, 0, base.Add(time.Second)),
		eventAt(domain.EmotionSad, domain.ModalityFace, 0.7, base),
	}
	snap := BuildSnapshot(events)
	if snap.Total != 3 || len(snap.Points) != 3 {
		t.Fatalf("unexpected snapshot size %+v", snap)
	}
	if snap.Points[0].Name != "10:00:00" || snap.Points[2].Name != "10:00:02" {
		t.Fatalf("points must be oldest first: %+v", snap.Points)
	}
	if snap.Points[0].Score != 0.7 {
		t.Fatalf("face score must use confidence, got %v", snap.Points[0].Score)
	}
	if snap.Points[1].Score != 0.5 {
		t.Fatalf("missing scores must default to 0.5, got %v", snap.Points[1].Score)
	}
	if snap.Points[2].Score != 1.0 {
		t.Fatalf("chat score must be 1.0, got %v", snap.Points[2].Score)
	}
	if snap.Distribution[domain.EmotionSad] != 1 || snap.Distribution[domain.EmotionHappy] != 1 {
		t.Fatalf("unexpected distribution %+v", snap.Distribution)
	}
}

func TestDashboardServiceUsesWindow(t *testing.T) {
	repo := repository.NewMemoryEventRepository()
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 5; i++ {
		_ = repo.Append(context.Background(), eventAt(domain.EmotionNeutral, domain.ModalityFace, 0.4, base.Add(time.Duration(i)*time.Second)))
	}
	snap, err := NewDashboardService(repo, 3).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Total != 3 {
		t.Fatalf("expected window of 3, got %d", snap.Total)
	}
	if !snap.Points[2].CreatedAt.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("expected newest event last, got %v", snap.Points[2].CreatedAt)
	}
}
