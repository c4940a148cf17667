package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"sentio/internal/classifier"
	"sentio/internal/domain"
	"sentio/internal/repository"
)

type scriptedChatClient struct {
	deltas  []string
	emotion string
	err     error
	lastReq classifier.ChatRequest
}

func (c *scriptedChatClient) Chat(_ context.Context, req classifier.ChatRequest, onDelta func(string)) (classifier.ChatReply, error) {
	c.lastReq = req
	if c.err != nil {
		return classifier.ChatReply{}, c.err
	}
	text := ""
	for _, d := range c.deltas {
		text += d
		onDelta(d)
	}
	return classifier.ChatReply{Text: text, DetectedEmotion: c.emotion}, nil
}

func newTestChatService(client ChatClient) (*ChatService, *repository.MemoryEventRepository, *Publisher, *ToneTracker) {
	repo := repository.NewMemoryEventRepository()
	tones := NewToneTracker()
	pub := NewPublisher(repo, nil, zap.NewNop(), time.Second, tones)
	return NewChatService(client, pub, tones, nil, zap.NewNop()), repo, pub, tones
}

func TestChatSendStreamsAndPublishes(t *testing.T) {
	client := &scriptedChatClient{deltas: []string{"Glad ", "to hear"}, emotion: "joy"}
	svc, repo, pub, tones := newTestChatService(client)
	tones.OnEmotion(domain.EmotionEvent{UserID: "u1", Modality: domain.ModalityVoice, Emotion: domain.EmotionSad})

	var updates []domain.ChatMessage
	res, err := svc.Send(context.Background(), "u1", "", "I got the job", func(m domain.ChatMessage) {
		updates = append(updates, m)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.lastReq.Emotion != domain.EmotionSad {
		t.Fatalf("expected tone from voice, got %q", client.lastReq.Emotion)
	}
	if len(client.lastReq.History) != 1 || client.lastReq.History[0].Role != "model" {
		t.Fatalf("history must carry the greeting only, got %+v", client.lastReq.History)
	}

	if len(updates) != 3 || updates[0].Text != "Glad " || updates[1].Text != "Glad to hear" {
		t.Fatalf("unexpected updates %+v", updates)
	}
	for _, u := range updates {
		if u.ID != res.BotMessage.ID {
			t.Fatalf("every delta must target the same bot message")
		}
	}
	if res.BotMessage.Streaming || res.BotMessage.Emoji != "😊" {
		t.Fatalf("unexpected final bot message %+v", res.BotMessage)
	}

	msgs, err := svc.Transcript("u1", res.SessionID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Text != chatGreeting || msgs[2].Text != "Glad to hear" {
		t.Fatalf("unexpected transcript %+v", msgs)
	}

	pub.Wait()
	stored, _ := repo.ListByUser(context.Background(), "u1", domain.ModalityChat, 10)
	if len(stored) != 1 {
		t.Fatalf("expected one chat event, got %d", len(stored))
	}
	if stored[0].Emotion != domain.EmotionHappy || stored[0].ChatMessage != "I got the job" || stored[0].BotResponse != "Glad to hear" {
		t.Fatalf("unexpected chat event %+v", stored[0])
	}
	if tones.Emotion("u1") != domain.EmotionSad {
		t.Fatalf("chat events must not override the capture tone")
	}
}

func TestChatSendFallbackOnError(t *testing.T) {
	svc, repo, pub, _ := newTestChatService(&scriptedChatClient{err: classifier.ErrTransport})

	res, err := svc.Send(context.Background(), "u1", "s1", "hello", nil)
	if !errors.Is(err, ErrChatUnavailable) {
		t.Fatalf("expected ErrChatUnavailable, got %v", err)
	}
	if res.BotMessage.Text != chatFallbackText || res.BotMessage.Emotion != domain.EmotionNeutral {
		t.Fatalf("unexpected fallback %+v", res.BotMessage)
	}
	pub.Wait()
	if stored, _ := repo.ListRecent(context.Background(), 10); len(stored) != 0 {
		t.Fatalf("failed chat must not be persisted")
	}

	msgs, _ := svc.Transcript("u1", "s1")
	if len(msgs) != 3 || msgs[2].Streaming {
		t.Fatalf("fallback must replace the placeholder, got %+v", msgs)
	}
}

func TestChatSessionOwnership(t *testing.T) {
	svc, _, _, _ := newTestChatService(&scriptedChatClient{deltas: []string{"ok"}, emotion: "neutral"})
	if _, err := svc.Send(context.Background(), "u1", "s1", "  ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected empty message error, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "u1", "s1", "hi", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Transcript("u2", "s1"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "u2", "s1", "hi", nil); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestTranscriptUpsertAndHistory(t *testing.T) {
	tr := NewTranscript()
	tr.Upsert(domain.ChatMessage{ID: "1", Sender: domain.ChatSenderUser, Text: "hi"})
	tr.Upsert(domain.ChatMessage{ID: "2", Sender: domain.ChatSenderBot, Text: "he", Streaming: true})
	tr.Upsert(domain.ChatMessage{ID: "2", Sender: domain.ChatSenderBot, Text: "hello", Streaming: true})

	if tr.Len() != 2 {
		t.Fatalf("upsert by id must not append, got %d", tr.Len())
	}
	if h := tr.History(10); len(h) != 1 {
		t.Fatalf("streaming messages must be excluded, got %+v", h)
	}

	tr.Upsert(domain.ChatMessage{ID: "2", Sender: domain.ChatSenderBot, Text: "hello"})
	tr.Upsert(domain.ChatMessage{ID: "3", Sender: domain.ChatSenderUser, Text: "bye"})
	h := tr.History(2)
	if len(h) != 2 || h[0].Role != "model" || h[0].Parts[0].Text != "hello" || h[1].Role != "user" {
		t.Fatalf("unexpected history %+v", h)
	}

	msgs := tr.Messages()
	msgs[0].Text = "mutated"
	if tr.Messages()[0].Text != "hi" {
		t.Fatalf("Messages must return a copy")
	}
}

func TestChatSendRateLimited(t *testing.T) {
	repo := repository.NewMemoryEventRepository()
	tones := NewToneTracker()
	pub := NewPublisher(repo, nil, zap.NewNop(), time.Second)
	svc := NewChatService(&scriptedChatClient{deltas: []string{"ok"}, emotion: "neutral"}, pub, tones, NewMemoryChatRateLimiter(time.Minute, 1), zap.NewNop())

	if _, err := svc.Send(context.Background(), "u1", "s1", "one", nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := svc.Send(context.Background(), "u1", "s1", "two", nil); !errors.Is(err, ErrChatRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	msgs, _ := svc.Transcript("u1", "s1")
	if len(msgs) != 3 {
		t.Fatalf("rate-limited message must not reach the transcript, got %d messages", len(msgs))
	}
	pub.Wait()
}

func TestChatSessionsExpireAndAreCappedPerUser(t *testing.T) {
	svc, _, pub, _ := newTestChatService(&scriptedChatClient{deltas: []string{"ok"}, emotion: "neutral"})
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < maxChatSessionsPerUser; i++ {
		clock = clock.Add(time.Second)
		if _, err := svc.Send(ctx, "u1", fmt.Sprintf("s%d", i), "hi", nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	clock = clock.Add(time.Second)
	if _, err := svc.Send(ctx, "u1", "extra", "hi", nil); err != nil {
		t.Fatalf("send extra: %v", err)
	}
	if _, err := svc.Transcript("u1", "s0"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("least recently used session must be evicted, got %v", err)
	}
	if _, err := svc.Transcript("u1", "s1"); err != nil {
		t.Fatalf("newer sessions must survive: %v", err)
	}

	clock = clock.Add(chatSessionIdleTTL + time.Minute)
	if _, err := svc.Transcript("u1", "extra"); !errors.Is(err, ErrChatSessionNotFound) {
		t.Fatalf("idle session must expire, got %v", err)
	}
	if _, err := svc.Send(ctx, "u2", "fresh", "hi", nil); err != nil {
		t.Fatalf("send u2: %v", err)
	}
	svc.mu.Lock()
	remaining := len(svc.sessions)
	svc.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("expired sessions must be pruned, %d left", remaining)
	}
	pub.Wait()
}
